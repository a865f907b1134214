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
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kraklabs/boundaryatlas/internal/atlaserrors"
	"github.com/kraklabs/boundaryatlas/internal/config"
	"github.com/kraklabs/boundaryatlas/pkg/download"
	"github.com/kraklabs/boundaryatlas/pkg/normalize"
	"github.com/kraklabs/boundaryatlas/pkg/orchestrator"
	"github.com/kraklabs/boundaryatlas/pkg/registry"
	"github.com/kraklabs/boundaryatlas/pkg/shapefile"
	"github.com/kraklabs/boundaryatlas/pkg/validate"
)

// buildTaskRunner returns the orchestrator.TaskFunc atlasctl wires through
// BuildAtlas: download the source's file, parse it by extension, run both
// validators, and normalize the survivors.
func buildTaskRunner(reg *registry.Registry, cfg config.Config, dlq *download.DeadLetterQueue, workDir string) orchestrator.TaskFunc {
	return func(ctx context.Context, task orchestrator.StateTask) ([]normalize.Boundary, error) {
		sources := reg.ForStatesAndLayers([]string{task.StateFIPS}, []registry.Layer{task.Layer})
		if len(sources) == 0 {
			return nil, atlaserrors.New(atlaserrors.KindNotFound, fmt.Sprintf("no registry source for %s/%s", task.Layer, task.StateFIPS))
		}
		source := sources[0]

		outPath := filepath.Join(workDir, strings.ReplaceAll(source.ID, ":", "_"))
		result, err := download.DownloadWithRetry(ctx, download.Options{
			URL:            source.URL,
			OutPath:        outPath,
			ExpectedSHA256: source.ChecksumSHA256,
			ManifestPolicy: download.ManifestLenient,
			MaxAttempts:    cfg.Extraction.RetryAttempts,
			RetryBaseDelay: cfg.Extraction.RetryDelay(),
			Timeout:        cfg.Extraction.Timeout(),
		}, dlq, string(source.Layer), source.StateFIPS, source.Vintage)
		if err != nil {
			return nil, err
		}

		data, err := os.ReadFile(outPath)
		if err != nil {
			return nil, atlaserrors.Wrap(atlaserrors.KindParseError, "read downloaded file", err)
		}

		var fc *shapefile.FeatureCollection
		if strings.HasSuffix(strings.ToLower(source.URL), ".zip") {
			fc, err = shapefile.ParseShapefileZip(data)
		} else {
			fc, err = shapefile.ParseGeoJSON(data)
		}
		if err != nil {
			return nil, atlaserrors.Wrap(atlaserrors.KindParseError, "parse boundary file", err)
		}

		verdict := validate.ValidatePostDownload(fc)
		if !verdict.Valid {
			return nil, atlaserrors.New(atlaserrors.KindParseError, fmt.Sprintf("post-download validation failed: %v", verdict.Issues))
		}

		boundaries, err := normalize.NormalizeAll(fc, normalize.Options{
			Source:        source,
			ContentSHA256: result.ContentSHA256,
			RetrievedAt:   time.Now().UTC(),
		})
		if err != nil {
			return nil, atlaserrors.Wrap(atlaserrors.KindParseError, "normalize boundaries", err)
		}

		if _, ok := validate.CrossValidateCount(source.Layer, source.ExpectedCount, len(boundaries)); !ok {
			return nil, atlaserrors.New(atlaserrors.KindValidationHalt, fmt.Sprintf("expected count mismatch for %s", source.ID))
		}

		return boundaries, nil
	}
}
