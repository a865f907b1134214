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

package commitment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kraklabs/boundaryatlas/pkg/normalize"
	"github.com/kraklabs/boundaryatlas/pkg/registry"
)

// CrossValidationStatus is the closed set of outcomes a build's
// cross-validation pass may report (spec.md §6).
type CrossValidationStatus string

const (
	CrossValidationCompleted      CrossValidationStatus = "completed"
	CrossValidationPartial        CrossValidationStatus = "partial"
	CrossValidationSkipped        CrossValidationStatus = "skipped"
	CrossValidationFailedGraceful CrossValidationStatus = "failed_graceful"
	CrossValidationDisabled       CrossValidationStatus = "disabled"
)

// Snapshot is the immutable tuple a successful build produces. It is never
// mutated after creation; a rebuild produces a new Snapshot.
type Snapshot struct {
	SnapshotID            string
	MerkleRoot            string // hex-encoded, 256-bit
	TreeDepth             int
	TreeType              string
	LeafCount             int
	LayerCounts           map[registry.Layer]int
	TigerVintage          int
	StatesIncluded        []string
	LayersIncluded        []registry.Layer
	BuildDurationMS       int64
	BuiltAt               time.Time
	CrossValidationStatus CrossValidationStatus

	// Boundaries is kept in-memory for the Lookup Service to index; it is
	// not part of the persisted snapshot record's external schema.
	Boundaries []normalize.Boundary
}

// BuildSnapshot hashes, trees, and assembles a Snapshot from a validated,
// normalized set of boundaries. It does not make the snapshot visible to
// readers; callers use a Store to do that atomically.
func BuildSnapshot(boundaries []normalize.Boundary, snapshotID string, vintage int, states []string, layers []registry.Layer, buildDuration time.Duration, crossValidation CrossValidationStatus, builtAt time.Time) (Snapshot, error) {
	leaves, err := HashLeaves(boundaries)
	if err != nil {
		return Snapshot{}, err
	}
	tree := BuildTree(leaves)

	layerCounts := map[registry.Layer]int{}
	for _, b := range boundaries {
		layerCounts[b.Layer]++
	}

	return Snapshot{
		SnapshotID:            snapshotID,
		MerkleRoot:            tree.RootHex(),
		TreeDepth:             tree.Depth,
		TreeType:              "binary_merkle_sha256",
		LeafCount:             len(leaves),
		LayerCounts:           layerCounts,
		TigerVintage:          vintage,
		StatesIncluded:        states,
		LayersIncluded:        layers,
		BuildDurationMS:       buildDuration.Milliseconds(),
		BuiltAt:               builtAt,
		CrossValidationStatus: crossValidation,
		Boundaries:            boundaries,
	}, nil
}

// snapshotRecord is the external JSON schema for a persisted snapshot,
// spec.md §6's "binary or JSON carrying {...}" contract realized as JSON.
type snapshotRecord struct {
	SnapshotID            string                 `json:"snapshot_id"`
	MerkleRoot             string                 `json:"merkle_root"`
	TreeDepth              int                    `json:"tree_depth"`
	LeafCount              int                    `json:"leaf_count"`
	LayerCounts            map[registry.Layer]int `json:"layer_counts"`
	TigerVintage           int                    `json:"tiger_vintage"`
	StatesIncluded         []string               `json:"states_included"`
	LayersIncluded         []registry.Layer       `json:"layers_included"`
	BuildDurationMS        int64                  `json:"build_duration_ms"`
	BuiltAt                time.Time              `json:"built_at"`
	CrossValidationStatus  CrossValidationStatus  `json:"cross_validation_status"`
}

// Store persists snapshot records to disk using the same atomic
// write-to-temp-then-rename discipline the acquisition subsystem uses for
// checkpoints, so that a crash mid-write never leaves a torn snapshot file
// that could be mistaken for the current one.
type Store struct {
	dir string
}

// NewStore opens a Store rooted at dir, creating it if necessary.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Commit writes snap's record and boundaries and atomically publishes the
// record as "current", per the commit contract: compute root, write the
// record, then mark it visible. The boundary payload is written first (and
// is not itself part of the external snapshot-record schema in spec.md
// §6) so that once current.json points at a snapshot id, its boundaries
// are guaranteed already durable.
func (s *Store) Commit(snap Snapshot) error {
	boundaryData, err := json.Marshal(snap.Boundaries)
	if err != nil {
		return fmt.Errorf("marshal snapshot boundaries: %w", err)
	}
	boundaryFinal := filepath.Join(s.dir, snap.SnapshotID+".boundaries.json")
	boundaryTmp := boundaryFinal + ".tmp"
	if err := os.WriteFile(boundaryTmp, boundaryData, 0o644); err != nil {
		return fmt.Errorf("write snapshot boundaries tmp file: %w", err)
	}
	if err := os.Rename(boundaryTmp, boundaryFinal); err != nil {
		return fmt.Errorf("rename snapshot boundaries tmp file: %w", err)
	}

	return s.commitRecord(snap)
}

func (s *Store) commitRecord(snap Snapshot) error {
	rec := snapshotRecord{
		SnapshotID:            snap.SnapshotID,
		MerkleRoot:            snap.MerkleRoot,
		TreeDepth:             snap.TreeDepth,
		LeafCount:             snap.LeafCount,
		LayerCounts:           snap.LayerCounts,
		TigerVintage:          snap.TigerVintage,
		StatesIncluded:        snap.StatesIncluded,
		LayersIncluded:        snap.LayersIncluded,
		BuildDurationMS:       snap.BuildDurationMS,
		BuiltAt:               snap.BuiltAt,
		CrossValidationStatus: snap.CrossValidationStatus,
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot record: %w", err)
	}

	final := filepath.Join(s.dir, snap.SnapshotID+".json")
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot tmp file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("rename snapshot tmp file: %w", err)
	}

	currentPath := filepath.Join(s.dir, "current.json")
	currentTmp := currentPath + ".tmp"
	if err := os.WriteFile(currentTmp, []byte(snap.SnapshotID), 0o644); err != nil {
		return fmt.Errorf("write current pointer tmp file: %w", err)
	}
	return os.Rename(currentTmp, currentPath)
}

// Load reads the snapshot record named by the "current" pointer file.
func (s *Store) Load() (snapshotRecord, error) {
	currentPath := filepath.Join(s.dir, "current.json")
	idBytes, err := os.ReadFile(currentPath)
	if err != nil {
		return snapshotRecord{}, fmt.Errorf("read current pointer: %w", err)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, string(idBytes)+".json"))
	if err != nil {
		return snapshotRecord{}, fmt.Errorf("read snapshot record: %w", err)
	}
	var rec snapshotRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return snapshotRecord{}, fmt.Errorf("unmarshal snapshot record: %w", err)
	}
	return rec, nil
}

// LoadCurrent reads both the current snapshot record and its boundary
// payload, reassembling a full Snapshot the Lookup Service can index.
func (s *Store) LoadCurrent() (Snapshot, error) {
	rec, err := s.Load()
	if err != nil {
		return Snapshot{}, err
	}
	boundaryData, err := os.ReadFile(filepath.Join(s.dir, rec.SnapshotID+".boundaries.json"))
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot boundaries: %w", err)
	}
	var boundaries []normalize.Boundary
	if err := json.Unmarshal(boundaryData, &boundaries); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal snapshot boundaries: %w", err)
	}

	return Snapshot{
		SnapshotID:            rec.SnapshotID,
		MerkleRoot:            rec.MerkleRoot,
		TreeDepth:             rec.TreeDepth,
		TreeType:              "binary_merkle_sha256",
		LeafCount:             rec.LeafCount,
		LayerCounts:           rec.LayerCounts,
		TigerVintage:          rec.TigerVintage,
		StatesIncluded:        rec.StatesIncluded,
		LayersIncluded:        rec.LayersIncluded,
		BuildDurationMS:       rec.BuildDurationMS,
		BuiltAt:               rec.BuiltAt,
		CrossValidationStatus: rec.CrossValidationStatus,
		Boundaries:            boundaries,
	}, nil
}
