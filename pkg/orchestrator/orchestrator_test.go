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

package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kraklabs/boundaryatlas/pkg/normalize"
	"github.com/kraklabs/boundaryatlas/pkg/registry"
)

func TestIngestBatchCompletesAllTasksOnSuccess(t *testing.T) {
	store, err := NewCheckpointStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	runner := func(ctx context.Context, task StateTask) ([]normalize.Boundary, error) {
		return []normalize.Boundary{{ID: task.StateFIPS + ":" + string(task.Layer)}}, nil
	}
	orch := New(store, nil, runner)

	result, err := orch.IngestBatch(context.Background(), BatchOptions{
		States:                  []string{"56", "55"},
		Layers:                  []registry.Layer{registry.LayerCongressionalDistrict},
		MaxConcurrent:           2,
		CircuitBreakerThreshold: 3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Completed) != 2 {
		t.Fatalf("expected 2 completed tasks, got %d", len(result.Completed))
	}
	if len(result.Failed) != 0 {
		t.Fatalf("expected no failed tasks, got %v", result.Failed)
	}
	if len(result.Boundaries) != 2 {
		t.Fatalf("expected 2 aggregated boundaries, got %d", len(result.Boundaries))
	}
	if result.CircuitOpen {
		t.Fatal("expected the circuit to remain closed on an all-success batch")
	}
}

func TestIngestBatchOpensCircuitAfterConsecutiveFailures(t *testing.T) {
	store, err := NewCheckpointStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	runner := func(ctx context.Context, task StateTask) ([]normalize.Boundary, error) {
		return nil, fmt.Errorf("simulated failure for %s", task.StateFIPS)
	}
	orch := New(store, nil, runner)

	result, err := orch.IngestBatch(context.Background(), BatchOptions{
		States:                  []string{"01", "02", "03", "04"},
		Layers:                  []registry.Layer{registry.LayerCounty},
		MaxConcurrent:           1,
		CircuitBreakerThreshold: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.CircuitOpen {
		t.Fatal("expected the circuit to open after reaching the consecutive-failure threshold")
	}
}

func TestResumeFromCheckpointOnlyRetriesPendingAndRequestedFailed(t *testing.T) {
	store, err := NewCheckpointStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var mu sync.Mutex
	attempted := map[string]int{}
	runner := func(ctx context.Context, task StateTask) ([]normalize.Boundary, error) {
		mu.Lock()
		attempted[task.StateFIPS]++
		mu.Unlock()
		if task.StateFIPS == "02" {
			return nil, fmt.Errorf("still failing")
		}
		return []normalize.Boundary{{ID: task.StateFIPS}}, nil
	}

	orch := New(store, nil, runner)
	ckpt := Checkpoint{
		ID: NewCheckpointID(time.Now()),
		Options: BatchOptions{
			States:                  []string{"01", "02", "03"},
			Layers:                  []registry.Layer{registry.LayerCounty},
			MaxConcurrent:           1,
			CircuitBreakerThreshold: 5,
		},
		CompletedStates: []string{StateTask{StateFIPS: "01", Layer: registry.LayerCounty}.key()},
		FailedStates:    []string{StateTask{StateFIPS: "02", Layer: registry.LayerCounty}.key()},
		PendingStates:   []string{StateTask{StateFIPS: "03", Layer: registry.LayerCounty}.key()},
	}
	if err := store.Save(ckpt); err != nil {
		t.Fatalf("unexpected error saving checkpoint: %v", err)
	}

	result, err := orch.ResumeFromCheckpoint(context.Background(), ckpt.ID, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempted["01"] != 0 {
		t.Fatal("expected the already-completed state to not be retried")
	}
	if attempted["02"] == 0 {
		t.Fatal("expected the previously-failed state to be retried when retryFailed is true")
	}
	if attempted["03"] == 0 {
		t.Fatal("expected the still-pending state to be attempted")
	}
	if len(result.Completed) != 2 {
		t.Fatalf("expected 01 and 03 to complete, got %v", result.Completed)
	}
}
