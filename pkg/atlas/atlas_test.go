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

package atlas

import (
	"context"
	"testing"

	"github.com/kraklabs/boundaryatlas/pkg/commitment"
	"github.com/kraklabs/boundaryatlas/pkg/geo"
	"github.com/kraklabs/boundaryatlas/pkg/normalize"
	"github.com/kraklabs/boundaryatlas/pkg/orchestrator"
	"github.com/kraklabs/boundaryatlas/pkg/registry"
	"github.com/kraklabs/boundaryatlas/pkg/validate"
)

func square(id string, minLon, minLat, maxLon, maxLat float64) normalize.Boundary {
	ring := geo.Ring{{Lon: minLon, Lat: minLat}, {Lon: maxLon, Lat: minLat}, {Lon: maxLon, Lat: maxLat}, {Lon: minLon, Lat: maxLat}, {Lon: minLon, Lat: minLat}}
	return normalize.Boundary{ID: id, Layer: registry.LayerCounty, StateFIPS: "56", Geometry: geo.MultiPolygon{{Outer: ring}}}
}

var errAlways = errFixed("simulated task failure")

type errFixed string

func (e errFixed) Error() string { return string(e) }

func newTestAtlas(t *testing.T, runner orchestrator.TaskFunc) *Atlas {
	t.Helper()
	ckptStore, err := orchestrator.NewCheckpointStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snapStore, err := commitment.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return &Atlas{CheckpointStore: ckptStore, SnapshotStore: snapStore, Runner: runner}
}

func TestBuildAtlasCommitsSnapshotOnSuccess(t *testing.T) {
	runner := func(ctx context.Context, task orchestrator.StateTask) ([]normalize.Boundary, error) {
		return []normalize.Boundary{square(task.StateFIPS+"001", 0, 0, 1, 1)}, nil
	}
	a := newTestAtlas(t, runner)

	snap, err := a.BuildAtlas(context.Background(), BuildOptions{
		Scope:                   BuildScope{States: []string{"56"}, Layers: []registry.Layer{registry.LayerCounty}, Year: 2024},
		MaxConcurrentStates:     2,
		CircuitBreakerThreshold: 3,
		HaltGates:               validate.HaltGates{OnTopology: true, OnOverlap: true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.LayerCounts[registry.LayerCounty] != 1 {
		t.Fatalf("expected 1 county boundary in the snapshot, got %d", snap.LayerCounts[registry.LayerCounty])
	}

	current, err := a.SnapshotStore.LoadCurrent()
	if err != nil {
		t.Fatalf("unexpected error loading current snapshot: %v", err)
	}
	if current.MerkleRoot != snap.MerkleRoot {
		t.Fatalf("expected the committed current snapshot to match the returned one")
	}
}

func TestBuildAtlasHaltsOnMalformedGEOID(t *testing.T) {
	runner := func(ctx context.Context, task orchestrator.StateTask) ([]normalize.Boundary, error) {
		return []normalize.Boundary{square("not-a-geoid", 0, 0, 1, 1)}, nil
	}
	a := newTestAtlas(t, runner)

	_, err := a.BuildAtlas(context.Background(), BuildOptions{
		Scope:                   BuildScope{States: []string{"56"}, Layers: []registry.Layer{registry.LayerCounty}, Year: 2024},
		MaxConcurrentStates:     1,
		CircuitBreakerThreshold: 3,
		HaltGates:               validate.HaltGates{OnTopology: true},
	})
	if err == nil {
		t.Fatal("expected a build failure for a malformed GEOID under the topology halt gate")
	}
	failure, ok := err.(*BuildFailure)
	if !ok {
		t.Fatalf("expected a *BuildFailure, got %T", err)
	}
	if failure.Kind != FailureValidationHalt {
		t.Fatalf("expected FailureValidationHalt, got %s", failure.Kind)
	}
}

func TestBuildAtlasHaltsOnForbiddenSchoolSystemOverlap(t *testing.T) {
	overlapping := geo.Ring{{Lon: 0, Lat: 0}, {Lon: 2, Lat: 0}, {Lon: 2, Lat: 2}, {Lon: 0, Lat: 2}, {Lon: 0, Lat: 0}}
	runner := func(ctx context.Context, task orchestrator.StateTask) ([]normalize.Boundary, error) {
		switch task.Layer {
		case registry.LayerSchoolDistrictUnified:
			return []normalize.Boundary{{ID: "5600001", Layer: registry.LayerSchoolDistrictUnified, StateFIPS: "56", Geometry: geo.MultiPolygon{{Outer: overlapping}}}}, nil
		case registry.LayerSchoolDistrictElementary:
			return []normalize.Boundary{{ID: "5600002", Layer: registry.LayerSchoolDistrictElementary, StateFIPS: "56", Geometry: geo.MultiPolygon{{Outer: overlapping}}}}, nil
		}
		return nil, nil
	}
	a := newTestAtlas(t, runner)

	_, err := a.BuildAtlas(context.Background(), BuildOptions{
		Scope: BuildScope{
			States: []string{"56"},
			Layers: []registry.Layer{registry.LayerSchoolDistrictUnified, registry.LayerSchoolDistrictElementary},
			Year:   2024,
		},
		MaxConcurrentStates:     2,
		CircuitBreakerThreshold: 3,
		HaltGates:               validate.HaltGates{OnOverlap: true},
	})
	if err == nil {
		t.Fatal("expected a build failure for a forbidden unified/elementary overlap outside the exception states")
	}
	failure, ok := err.(*BuildFailure)
	if !ok {
		t.Fatalf("expected a *BuildFailure, got %T", err)
	}
	if failure.Kind != FailureValidationHalt {
		t.Fatalf("expected FailureValidationHalt, got %s", failure.Kind)
	}
}

func TestBuildAtlasReportsAllLayersFailedWhenEveryTaskFails(t *testing.T) {
	runner := func(ctx context.Context, task orchestrator.StateTask) ([]normalize.Boundary, error) {
		return nil, errAlways
	}
	a := newTestAtlas(t, runner)

	_, err := a.BuildAtlas(context.Background(), BuildOptions{
		Scope:                   BuildScope{States: []string{"56"}, Layers: []registry.Layer{registry.LayerCounty}, Year: 2024},
		MaxConcurrentStates:     1,
		CircuitBreakerThreshold: 10,
	})
	if err == nil {
		t.Fatal("expected a build failure when every task fails")
	}
	failure, ok := err.(*BuildFailure)
	if !ok {
		t.Fatalf("expected a *BuildFailure, got %T", err)
	}
	if failure.Kind != FailureAllLayersFailed {
		t.Fatalf("expected FailureAllLayersFailed, got %s", failure.Kind)
	}
}
