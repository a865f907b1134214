// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator implements the Ingestion Orchestrator: bounded
// parallel per-(state, layer) task scheduling, a circuit breaker over
// consecutive failures, and atomic, resumable checkpointing.
package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Checkpoint is one batch job's persisted progress (spec.md §3, §6).
type Checkpoint struct {
	ID                 string    `json:"id"`
	StartedAt          time.Time `json:"started_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	CompletedStates    []string  `json:"completed_states"`
	FailedStates       []string  `json:"failed_states"`
	PendingStates      []string  `json:"pending_states"`
	Options            BatchOptions `json:"options"`
	CircuitOpen        bool      `json:"circuit_open"`
	ConsecutiveFailures int      `json:"consecutive_failures"`
	BoundaryCount      int       `json:"boundary_count"`
}

// NewCheckpointID builds a stable-across-attempts checkpoint id:
// ckpt_<epoch>_<uuid>, per spec.md §4.3.
func NewCheckpointID(now time.Time) string {
	return fmt.Sprintf("ckpt_%d_%s", now.Unix(), uuid.NewString())
}

// CheckpointStore persists Checkpoints atomically (write-to-temp-then-rename).
type CheckpointStore struct {
	dir string
}

// NewCheckpointStore opens a store rooted at dir, creating it if needed.
func NewCheckpointStore(dir string) (*CheckpointStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &CheckpointStore{dir: dir}, nil
}

func (s *CheckpointStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save persists ckpt atomically.
func (s *CheckpointStore) Save(ckpt Checkpoint) error {
	ckpt.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(ckpt, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	final := s.path(ckpt.ID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint tmp file: %w", err)
	}
	return os.Rename(tmp, final)
}

// Load reads a checkpoint by id, returning CheckpointNotFound if absent.
func (s *CheckpointStore) Load(id string) (Checkpoint, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return Checkpoint{}, fmt.Errorf("checkpoint %q: %w", id, errCheckpointNotFound)
		}
		return Checkpoint{}, fmt.Errorf("read checkpoint: %w", err)
	}
	var ckpt Checkpoint
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return Checkpoint{}, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return ckpt, nil
}
