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

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/schollz/progressbar/v3"

	"github.com/kraklabs/boundaryatlas/internal/config"
	"github.com/kraklabs/boundaryatlas/pkg/atlas"
	"github.com/kraklabs/boundaryatlas/pkg/commitment"
	"github.com/kraklabs/boundaryatlas/pkg/download"
	"github.com/kraklabs/boundaryatlas/pkg/orchestrator"
	"github.com/kraklabs/boundaryatlas/pkg/progress"
	"github.com/kraklabs/boundaryatlas/pkg/registry"
	"github.com/kraklabs/boundaryatlas/pkg/validate"
	"github.com/kraklabs/boundaryatlas/testutil"
)

// layerAliases maps the short CLI tokens operators type (cd, sldu, sldl,
// county, ...) onto registry.Layer values.
var layerAliases = map[string]registry.Layer{
	"cd":        registry.LayerCongressionalDistrict,
	"sldu":      registry.LayerStateSenate,
	"sldl":      registry.LayerStateHouse,
	"county":    registry.LayerCounty,
	"place":     registry.LayerPlace,
	"sduni":     registry.LayerSchoolDistrictUnified,
	"sdelem":    registry.LayerSchoolDistrictElementary,
	"sdsec":     registry.LayerSchoolDistrictSecondary,
	"vtd":       registry.LayerVotingDistrict,
}

func parseLayers(raw string) ([]registry.Layer, error) {
	var layers []registry.Layer
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		layer, ok := layerAliases[strings.ToLower(tok)]
		if !ok {
			return nil, fmt.Errorf("unknown layer %q", tok)
		}
		layers = append(layers, layer)
	}
	return layers, nil
}

func parseStates(raw string) []string {
	var states []string
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			states = append(states, tok)
		}
	}
	return states
}

func runBuild(args []string, cfg config.Config, globals GlobalFlags) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	statesFlag := fs.String("states", "", "Comma-separated state FIPS codes")
	layersFlag := fs.String("layers", "cd", "Comma-separated layer aliases (cd,sldu,sldl,county,place,sduni,sdelem,sdsec,vtd)")
	yearFlag := fs.Int("year", time.Now().Year(), "Vintage year")
	if err := fs.Parse(args); err != nil {
		return err
	}

	layers, err := parseLayers(*layersFlag)
	if err != nil {
		return err
	}
	states := parseStates(*statesFlag)
	if len(states) == 0 {
		return fmt.Errorf("--states is required")
	}

	reg := registry.New(testutil.SampleSources())
	checkpointStore, err := orchestrator.NewCheckpointStore(cfg.BatchIngestion.CheckpointDir)
	if err != nil {
		return err
	}
	snapshotStore, err := commitment.NewStore(cfg.Persistence.DatabasePath)
	if err != nil {
		return err
	}
	dlq, err := download.OpenDLQ(cfg.Persistence.DatabasePath+".dlq", cfg.Extraction.RetryAttempts, cfg.Extraction.RetryDelay())
	if err != nil {
		return err
	}
	defer dlq.Close()

	sink := progress.NewSink(64)
	bar := progressbar.NewOptions(len(states)*len(layers),
		progressbar.OptionSetDescription("building atlas"),
		progressbar.OptionSetWriter(progressWriter(globals)),
	)
	go func() {
		for range sink.Events() {
			_ = bar.Add(1)
		}
	}()

	a := &atlas.Atlas{
		Registry:        reg,
		CheckpointStore: checkpointStore,
		SnapshotStore:   snapshotStore,
		Sink:            sink,
		Runner:          buildTaskRunner(reg, cfg, dlq, cfg.BatchIngestion.CheckpointDir),
	}

	snap, err := a.BuildAtlas(context.Background(), atlas.BuildOptions{
		Scope:                   atlas.BuildScope{States: states, Layers: layers, Year: *yearFlag},
		MaxConcurrentStates:     cfg.BatchIngestion.MaxConcurrentStates,
		CircuitBreakerThreshold: cfg.BatchIngestion.CircuitBreakerThreshold,
		CheckpointDir:           cfg.BatchIngestion.CheckpointDir,
		HaltGates: validate.HaltGates{
			OnTopology:      cfg.Validation.HaltOnTopologyError,
			OnCompleteness:  cfg.Validation.HaltOnCompletenessError,
			OnCoordinates:   cfg.Validation.HaltOnCoordinateError,
			OnCountMismatch: true,
		},
		CrossValidationEnabled: cfg.CrossValidation.Enabled,
	})
	sink.Close()
	if err != nil {
		return err
	}

	successColor.Printf("snapshot %s: %d boundaries, root=%s\n", snap.SnapshotID, snap.LeafCount, snap.MerkleRoot)
	return nil
}

func runResume(args []string, cfg config.Config, globals GlobalFlags) error {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	retryFailed := fs.Bool("retry-failed", false, "Also retry states that previously failed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 1 {
		return fmt.Errorf("usage: atlasctl resume <checkpoint-id> [--retry-failed]")
	}
	checkpointID := rest[0]

	reg := registry.New(testutil.SampleSources())
	checkpointStore, err := orchestrator.NewCheckpointStore(cfg.BatchIngestion.CheckpointDir)
	if err != nil {
		return err
	}
	snapshotStore, err := commitment.NewStore(cfg.Persistence.DatabasePath)
	if err != nil {
		return err
	}
	dlq, err := download.OpenDLQ(cfg.Persistence.DatabasePath+".dlq", cfg.Extraction.RetryAttempts, cfg.Extraction.RetryDelay())
	if err != nil {
		return err
	}
	defer dlq.Close()

	a := &atlas.Atlas{
		Registry:        reg,
		CheckpointStore: checkpointStore,
		SnapshotStore:   snapshotStore,
		Runner:          buildTaskRunner(reg, cfg, dlq, cfg.BatchIngestion.CheckpointDir),
	}

	snap, err := a.ResumeFromCheckpoint(context.Background(), atlas.BuildOptions{
		CrossValidationEnabled: cfg.CrossValidation.Enabled,
	}, checkpointID, *retryFailed)
	if err != nil {
		return err
	}
	fmt.Printf("snapshot %s: %d boundaries, root=%s\n", snap.SnapshotID, snap.LeafCount, snap.MerkleRoot)
	return nil
}

func progressWriter(globals GlobalFlags) io.Writer {
	if globals.JSON {
		return io.Discard
	}
	return os.Stderr
}
