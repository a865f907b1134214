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

// Package atlas runs a build behind the single buildAtlas entry point
// spec.md §6 specifies: it schedules per-(state, layer) tasks through the
// orchestrator, applies the build-wide validation halt gates, and commits
// the resulting Snapshot. Download, parsing, and normalization happen in
// the caller-supplied TaskRunner; change detection and lookup are not
// invoked from this package.
package atlas

import (
	"context"
	"fmt"
	"time"

	"github.com/kraklabs/boundaryatlas/internal/atlaserrors"
	"github.com/kraklabs/boundaryatlas/pkg/commitment"
	"github.com/kraklabs/boundaryatlas/pkg/normalize"
	"github.com/kraklabs/boundaryatlas/pkg/orchestrator"
	"github.com/kraklabs/boundaryatlas/pkg/progress"
	"github.com/kraklabs/boundaryatlas/pkg/registry"
	"github.com/kraklabs/boundaryatlas/pkg/validate"
)

// BuildScope is the requested (states, layers, year) scope for one build.
type BuildScope struct {
	States []string
	Layers []registry.Layer
	Year   int
}

// BuildOptions configures one buildAtlas call.
type BuildOptions struct {
	Scope                   BuildScope
	MaxConcurrentStates     int
	CircuitBreakerThreshold int
	CheckpointDir           string
	SnapshotDir             string
	HaltGates               validate.HaltGates
	CrossValidationEnabled  bool
}

// BuildFailureKind is the closed set of reasons buildAtlas can fail, per
// spec.md §6's exit contract.
type BuildFailureKind string

const (
	FailureAllLayersFailed BuildFailureKind = "all_layers_failed"
	FailureValidationHalt  BuildFailureKind = "validation_halted"
	FailureIntegrity       BuildFailureKind = "integrity_failure"
	FailureCircuitOpen     BuildFailureKind = "circuit_open"
)

// BuildFailure reports why a build did not produce a snapshot, plus the
// most recent checkpoint id so resumption can be offered.
type BuildFailure struct {
	Kind         BuildFailureKind
	CheckpointID string
	Reasons      map[string]string // per-layer failure reasons
	Cause        error
}

func (f *BuildFailure) Error() string {
	return fmt.Sprintf("build failed (%s): checkpoint %s: %v", f.Kind, f.CheckpointID, f.Cause)
}

// TaskRunner processes one orchestrator.StateTask end to end: download,
// parse, validate, normalize. Supplied by the caller (cmd/atlasctl) since
// it needs the registry, download client, and DLQ wired in.
type TaskRunner = orchestrator.TaskFunc

// Atlas bundles the components buildAtlas orchestrates across.
type Atlas struct {
	Registry        *registry.Registry
	CheckpointStore *orchestrator.CheckpointStore
	SnapshotStore   *commitment.Store
	Sink            *progress.Sink
	Runner          TaskRunner
}

// BuildAtlas runs a full rebuild for opts.Scope: schedules per-(state,
// layer) tasks through the orchestrator, and on success commits a new
// Snapshot atomically. Returns either a Snapshot or a *BuildFailure (never
// both).
func (a *Atlas) BuildAtlas(ctx context.Context, opts BuildOptions) (commitment.Snapshot, error) {
	started := time.Now()

	orch := orchestrator.New(a.CheckpointStore, a.Sink, a.Runner)
	result, err := orch.IngestBatch(ctx, orchestrator.BatchOptions{
		States:                  opts.Scope.States,
		Layers:                  opts.Scope.Layers,
		Year:                    opts.Scope.Year,
		MaxConcurrent:           opts.MaxConcurrentStates,
		CircuitBreakerThreshold: opts.CircuitBreakerThreshold,
		CheckpointDir:           opts.CheckpointDir,
	})
	if err != nil {
		return commitment.Snapshot{}, &BuildFailure{Kind: FailureAllLayersFailed, Cause: err}
	}

	if result.CircuitOpen {
		return commitment.Snapshot{}, &BuildFailure{
			Kind:         FailureCircuitOpen,
			CheckpointID: result.CheckpointID,
			Reasons:      map[string]string{"circuit": "consecutive failure threshold reached"},
		}
	}

	if len(result.Boundaries) == 0 && len(result.Completed) == 0 {
		return commitment.Snapshot{}, &BuildFailure{
			Kind:         FailureAllLayersFailed,
			CheckpointID: result.CheckpointID,
			Reasons:      map[string]string{"all": "every (state, layer) task failed"},
		}
	}

	for _, err := range haltErrors(result.Boundaries, opts.HaltGates) {
		return commitment.Snapshot{}, &BuildFailure{
			Kind:         FailureValidationHalt,
			CheckpointID: result.CheckpointID,
			Cause:        err,
		}
	}

	status := commitment.CrossValidationSkipped
	if opts.CrossValidationEnabled {
		status = commitment.CrossValidationCompleted
	}

	snap, err := commitment.BuildSnapshot(
		result.Boundaries,
		result.CheckpointID,
		opts.Scope.Year,
		opts.Scope.States,
		opts.Scope.Layers,
		time.Since(started),
		status,
		time.Now().UTC(),
	)
	if err != nil {
		if kind, ok := atlaserrors.As(err); ok && kind.Kind == atlaserrors.KindDuplicateID {
			return commitment.Snapshot{}, &BuildFailure{Kind: FailureIntegrity, CheckpointID: result.CheckpointID, Cause: err}
		}
		return commitment.Snapshot{}, &BuildFailure{Kind: FailureAllLayersFailed, CheckpointID: result.CheckpointID, Cause: err}
	}

	if err := a.SnapshotStore.Commit(snap); err != nil {
		return commitment.Snapshot{}, &BuildFailure{Kind: FailureIntegrity, CheckpointID: result.CheckpointID, Cause: err}
	}

	return snap, nil
}

// ResumeFromCheckpoint resumes a previously interrupted batch and, unless
// the circuit opens again or a build-wide halt gate trips, commits a new
// snapshot through the same halt-gate and commit steps BuildAtlas uses.
func (a *Atlas) ResumeFromCheckpoint(ctx context.Context, opts BuildOptions, checkpointID string, retryFailed bool) (commitment.Snapshot, error) {
	started := time.Now()
	orch := orchestrator.New(a.CheckpointStore, a.Sink, a.Runner)
	result, err := orch.ResumeFromCheckpoint(ctx, checkpointID, retryFailed)
	if err != nil {
		return commitment.Snapshot{}, err
	}
	if result.CircuitOpen {
		return commitment.Snapshot{}, &BuildFailure{Kind: FailureCircuitOpen, CheckpointID: result.CheckpointID}
	}

	for _, err := range haltErrors(result.Boundaries, opts.HaltGates) {
		return commitment.Snapshot{}, &BuildFailure{
			Kind:         FailureValidationHalt,
			CheckpointID: result.CheckpointID,
			Cause:        err,
		}
	}

	status := commitment.CrossValidationSkipped
	if opts.CrossValidationEnabled {
		status = commitment.CrossValidationCompleted
	}
	snap, err := commitment.BuildSnapshot(result.Boundaries, result.CheckpointID, opts.Scope.Year, opts.Scope.States, opts.Scope.Layers, time.Since(started), status, time.Now().UTC())
	if err != nil {
		return commitment.Snapshot{}, &BuildFailure{Kind: FailureAllLayersFailed, CheckpointID: result.CheckpointID, Cause: err}
	}
	if err := a.SnapshotStore.Commit(snap); err != nil {
		return commitment.Snapshot{}, &BuildFailure{Kind: FailureIntegrity, CheckpointID: result.CheckpointID, Cause: err}
	}
	return snap, nil
}

// haltErrors re-runs the cross-layer halt checks that need the full
// boundary set rather than a single layer in isolation: GEOID format across
// every normalized boundary, and school-system overlap per state. Per-task
// halts (post-download validation, expected-count cross-validation) are
// already raised by buildTaskRunner and surface as failed tasks; this pass
// is the build-wide gate that runs just before a snapshot is committed.
// Only gates.OnTopology (checked here as GEOID format) and gates.OnOverlap
// are consulted; OnCompleteness, OnCoordinates, OnCoverage, and
// OnCountMismatch have no effect on this pass.
func haltErrors(boundaries []normalize.Boundary, gates validate.HaltGates) []error {
	var errs []error

	if gates.OnTopology {
		byLayer := map[registry.Layer][]string{}
		for _, b := range boundaries {
			byLayer[b.Layer] = append(byLayer[b.Layer], b.ID)
		}
		for layer, ids := range byLayer {
			if bad := validate.ValidateGEOIDFormat(layer, ids); len(bad) > 0 {
				errs = append(errs, atlaserrors.New(atlaserrors.KindValidationHalt,
					fmt.Sprintf("layer %s: %d boundaries with malformed GEOID (e.g. %s)", layer, len(bad), bad[0])))
			}
		}
	}

	if gates.OnOverlap {
		byState := map[string]validate.SchoolSystemBoundaries{}
		for _, b := range boundaries {
			abbr := validate.StateAbbr(b.StateFIPS)
			sys := byState[abbr]
			sys.StateAbbr = abbr
			switch b.Layer {
			case registry.LayerSchoolDistrictUnified:
				sys.Unified = append(sys.Unified, b.Geometry)
			case registry.LayerSchoolDistrictElementary:
				sys.Elementary = append(sys.Elementary, b.Geometry)
			case registry.LayerSchoolDistrictSecondary:
				sys.Secondary = append(sys.Secondary, b.Geometry)
			default:
				continue
			}
			byState[abbr] = sys
		}
		for _, sys := range byState {
			for _, finding := range validate.CheckSchoolSystemOverlaps(sys) {
				if finding.Forbidden {
					errs = append(errs, atlaserrors.New(atlaserrors.KindValidationHalt,
						fmt.Sprintf("state %s: forbidden %s/%s school system overlap (%.1f sq m)",
							sys.StateAbbr, finding.SystemA, finding.SystemB, finding.AreaSquareMeters)))
				}
			}
		}
	}

	return errs
}
