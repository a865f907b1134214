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
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/boundaryatlas/internal/atlaserrors"
	"github.com/kraklabs/boundaryatlas/pkg/normalize"
	"github.com/kraklabs/boundaryatlas/pkg/progress"
	"github.com/kraklabs/boundaryatlas/pkg/registry"
)

var errCheckpointNotFound = atlaserrors.New(atlaserrors.KindCheckpointMissing, "checkpoint not found")

// StateTask identifies one (state, layer) pair to ingest.
type StateTask struct {
	StateFIPS string
	Layer     registry.Layer
}

func (t StateTask) key() string { return string(t.Layer) + ":" + t.StateFIPS }

// BatchOptions parameterizes one ingestBatch call (spec.md §4.3).
type BatchOptions struct {
	States                  []string
	Layers                  []registry.Layer
	Year                    int
	MaxConcurrent           int
	CircuitBreakerThreshold int
	CheckpointDir           string
}

// TaskFunc processes one state task end to end (download, parse, validate,
// normalize) and returns the boundaries it produced.
type TaskFunc func(ctx context.Context, task StateTask) ([]normalize.Boundary, error)

// BatchResult is what ingestBatch (or a resume) returns.
type BatchResult struct {
	CheckpointID string
	Boundaries   []normalize.Boundary
	Completed    []string
	Failed       []string
	Pending      []string
	CircuitOpen  bool
}

// Orchestrator runs batches of state tasks with bounded concurrency, a
// consecutive-failure circuit breaker, and atomic checkpointing.
type Orchestrator struct {
	store  *CheckpointStore
	sink   *progress.Sink
	runner TaskFunc
}

// New builds an Orchestrator. sink may be nil.
func New(store *CheckpointStore, sink *progress.Sink, runner TaskFunc) *Orchestrator {
	return &Orchestrator{store: store, sink: sink, runner: runner}
}

// IngestBatch processes every (state × layer) pair in opts with bounded
// parallelism, tripping a circuit breaker after CircuitBreakerThreshold
// consecutive failures.
func (o *Orchestrator) IngestBatch(ctx context.Context, opts BatchOptions) (BatchResult, error) {
	ckpt := Checkpoint{
		ID:        NewCheckpointID(time.Now()),
		StartedAt: time.Now().UTC(),
		Options:   opts,
	}
	var tasks []StateTask
	for _, layer := range opts.Layers {
		for _, state := range opts.States {
			t := StateTask{StateFIPS: state, Layer: layer}
			tasks = append(tasks, t)
			ckpt.PendingStates = append(ckpt.PendingStates, t.key())
		}
	}

	return o.run(ctx, &ckpt, tasks)
}

// ResumeFromCheckpoint reloads a checkpoint, clears circuit_open, and
// forms a new work queue from pending_states ∪ (retryFailed ?
// failed_states : ∅). Completed states are never reprocessed.
func (o *Orchestrator) ResumeFromCheckpoint(ctx context.Context, id string, retryFailed bool) (BatchResult, error) {
	ckpt, err := o.store.Load(id)
	if err != nil {
		return BatchResult{}, err
	}
	ckpt.CircuitOpen = false
	ckpt.ConsecutiveFailures = 0

	pendingKeys := map[string]bool{}
	for _, k := range ckpt.PendingStates {
		pendingKeys[k] = true
	}
	if retryFailed {
		for _, k := range ckpt.FailedStates {
			pendingKeys[k] = true
		}
		ckpt.FailedStates = nil
	}

	var tasks []StateTask
	var pending []string
	for _, layer := range ckpt.Options.Layers {
		for _, state := range ckpt.Options.States {
			t := StateTask{StateFIPS: state, Layer: layer}
			if pendingKeys[t.key()] {
				tasks = append(tasks, t)
				pending = append(pending, t.key())
			}
		}
	}
	ckpt.PendingStates = pending

	return o.run(ctx, &ckpt, tasks)
}

// run executes tasks with bounded concurrency through a circuit breaker,
// updating and persisting ckpt after every task completion.
func (o *Orchestrator) run(ctx context.Context, ckpt *Checkpoint, tasks []StateTask) (BatchResult, error) {
	maxConcurrent := ckpt.Options.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	threshold := ckpt.Options.CircuitBreakerThreshold
	if threshold <= 0 {
		threshold = 1
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ingestion-orchestrator",
		MaxRequests: 1,
		Interval:    0, // never auto-reset the failure counter mid-batch
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
	})

	var mu sync.Mutex
	var boundaries []normalize.Boundary
	completed := map[string]bool{}
	for _, s := range ckpt.CompletedStates {
		completed[s] = true
	}
	failed := map[string]bool{}
	pending := map[string]bool{}
	for _, s := range ckpt.PendingStates {
		pending[s] = true
	}
	circuitOpen := false

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for _, task := range tasks {
		task := task
		g.Go(func() error {
			mu.Lock()
			open := circuitOpen
			mu.Unlock()
			if open {
				return nil
			}

			o.sink.Emit(progress.Event{Stage: progress.StageDownload, State: task.StateFIPS, Layer: string(task.Layer)})

			raw, execErr := cb.Execute(func() (any, error) {
				return o.runner(gctx, task)
			})

			mu.Lock()
			defer mu.Unlock()
			delete(pending, task.key())

			if execErr != nil {
				failed[task.key()] = true
				if cb.State() == gobreaker.StateOpen {
					circuitOpen = true
				}
			} else {
				if bs, ok := raw.([]normalize.Boundary); ok {
					boundaries = append(boundaries, bs...)
				}
				completed[task.key()] = true
			}

			ckpt.CompletedStates = keysOf(completed)
			ckpt.FailedStates = keysOf(failed)
			ckpt.PendingStates = keysOf(pending)
			ckpt.CircuitOpen = circuitOpen
			ckpt.BoundaryCount = len(boundaries)
			if saveErr := o.store.Save(*ckpt); saveErr != nil {
				return fmt.Errorf("save checkpoint: %w", saveErr)
			}
			return nil
		})
	}

	_ = g.Wait()

	return BatchResult{
		CheckpointID: ckpt.ID,
		Boundaries:   boundaries,
		Completed:    keysOf(completed),
		Failed:       keysOf(failed),
		Pending:      keysOf(pending),
		CircuitOpen:  circuitOpen,
	}, nil
}

func keysOf(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
