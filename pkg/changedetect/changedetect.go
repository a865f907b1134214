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

// Package changedetect implements the Change Detector: conditional
// metadata-only requests against each registered source, diffed against a
// persisted checksum cache, gated by each source's update-trigger policy.
package changedetect

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/boundaryatlas/internal/atlaserrors"
	"github.com/kraklabs/boundaryatlas/pkg/registry"
)

// ChangeKind distinguishes a source seen for the first time from one
// whose validator changed.
type ChangeKind string

const (
	ChangeNew      ChangeKind = "new"
	ChangeModified ChangeKind = "modified"
)

// ChangeReport is emitted when a source's validator differs from its
// cached one.
type ChangeReport struct {
	SourceID       string
	OldValidator   string
	NewValidator   string
	DetectedAt     time.Time
	Trigger        registry.TriggerKind
	Kind           ChangeKind
}

// cachedValidator is one Checksum Cache row.
type cachedValidator struct {
	ETag         string    `json:"etag"`
	LastModified string    `json:"last_modified"`
	CheckedAt    time.Time `json:"checked_at"`
}

// checksumCacheFile is the on-disk document (spec.md §6).
type checksumCacheFile struct {
	LastChecked time.Time                  `json:"last_checked"`
	Sources     map[string]cachedValidator `json:"sources"`
}

// Cache is the persisted Checksum Cache, guarded by a mutex since change
// checks of distinct sources must not share mutable state but do share
// the on-disk file.
type Cache struct {
	mu   sync.Mutex
	path string
	data checksumCacheFile
}

// OpenCache loads (or initializes) the checksum cache at path.
func OpenCache(path string) (*Cache, error) {
	c := &Cache{path: path, data: checksumCacheFile{Sources: map[string]cachedValidator{}}}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("read checksum cache: %w", err)
	}
	if err := json.Unmarshal(raw, &c.data); err != nil {
		return nil, fmt.Errorf("unmarshal checksum cache: %w", err)
	}
	if c.data.Sources == nil {
		c.data.Sources = map[string]cachedValidator{}
	}
	return c, nil
}

func (c *Cache) get(sourceID string) (cachedValidator, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data.Sources[sourceID]
	return v, ok
}

// save writes the cache atomically via write-to-temp-then-rename.
func (c *Cache) save(sourceID string, v cachedValidator) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.Sources[sourceID] = v
	c.data.LastChecked = time.Now().UTC()

	data, err := json.MarshalIndent(c.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checksum cache: %w", err)
	}
	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checksum cache dir: %w", err)
		}
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checksum cache tmp file: %w", err)
	}
	return os.Rename(tmp, c.path)
}

// Detector runs conditional requests and diffs validators against the
// Cache.
type Detector struct {
	client *http.Client
	cache  *Cache
}

// NewDetector builds a Detector using client for conditional requests.
func NewDetector(client *http.Client, cache *Cache) *Detector {
	if client == nil {
		client = http.DefaultClient
	}
	return &Detector{client: client, cache: cache}
}

// CheckForChange issues a conditional HEAD request against source.URL,
// retrying transient network failures up to three times with exponential
// backoff (base 500ms), and reports a ChangeReport when the observed
// validator differs from the cached one.
func (d *Detector) CheckForChange(ctx context.Context, source registry.Source) (*ChangeReport, error) {
	cached, hadCached := d.cache.get(source.ID)

	var etag, lastModified string
	var statusCode int

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, source.URL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		if hadCached {
			if cached.ETag != "" {
				req.Header.Set("If-None-Match", cached.ETag)
			}
			if cached.LastModified != "" {
				req.Header.Set("If-Modified-Since", cached.LastModified)
			}
		}

		resp, err := d.client.Do(req)
		if err != nil {
			return err // retryable network error
		}
		defer resp.Body.Close()

		statusCode = resp.StatusCode
		etag = resp.Header.Get("ETag")
		lastModified = resp.Header.Get("Last-Modified")
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(500*time.Millisecond),
	), 3)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, atlaserrors.Wrap(atlaserrors.KindNetwork, "change check failed after retries", err)
	}

	if statusCode < 200 || statusCode >= 300 {
		return nil, nil // non-2xx: null result, not an error
	}

	newValidator := etag
	if newValidator == "" {
		newValidator = lastModified
	}
	if newValidator == "" {
		if hadCached {
			return nil, nil // both absent, previous checksum non-null: unchanged
		}
	}

	oldValidator := cached.ETag
	if oldValidator == "" {
		oldValidator = cached.LastModified
	}

	if newValidator == oldValidator {
		return nil, nil
	}

	kind := ChangeModified
	if !hadCached {
		kind = ChangeNew
	}

	if err := d.cache.save(source.ID, cachedValidator{ETag: etag, LastModified: lastModified, CheckedAt: time.Now().UTC()}); err != nil {
		return nil, fmt.Errorf("persist checksum cache: %w", err)
	}

	return &ChangeReport{
		SourceID:     source.ID,
		OldValidator: oldValidator,
		NewValidator: newValidator,
		DetectedAt:   time.Now().UTC(),
		Trigger:      source.Trigger.Kind,
		Kind:         kind,
	}, nil
}

// maxConcurrentChecks bounds how many per-source checks CheckScheduledSources
// and CheckAllSources run at once: the fan-out is across sources, but each
// source's own HEAD-then-diff work stays sequential.
const maxConcurrentChecks = 8

// CheckScheduledSources iterates the registry, filters by each source's
// update-trigger eligibility at referenceTime, and checks each eligible
// source concurrently (bounded by maxConcurrentChecks). Individual source
// failures never abort the pass.
func (d *Detector) CheckScheduledSources(ctx context.Context, reg *registry.Registry, referenceTime time.Time) []ChangeReport {
	var eligibleSources []registry.Source
	for _, source := range reg.All() {
		if eligible(source.Trigger, referenceTime) {
			eligibleSources = append(eligibleSources, source)
		}
	}
	return d.checkSources(ctx, eligibleSources)
}

// CheckAllSources forces a check of every source regardless of trigger
// eligibility, the semantics TriggerForced sources rely on, fanned out the
// same way as CheckScheduledSources.
func (d *Detector) CheckAllSources(ctx context.Context, reg *registry.Registry) []ChangeReport {
	return d.checkSources(ctx, reg.All())
}

// checkSources fans per-source checks out across a bounded errgroup, the
// same pattern the orchestrator uses for per-state ingestion tasks.
func (d *Detector) checkSources(ctx context.Context, sources []registry.Source) []ChangeReport {
	var mu sync.Mutex
	var reports []ChangeReport

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentChecks)

	for _, source := range sources {
		source := source
		g.Go(func() error {
			report, err := d.CheckForChange(gctx, source)
			if err != nil {
				slog.Warn("change check failed", "source_id", source.ID, "error", err)
				return nil // other checks continue
			}
			if report != nil {
				mu.Lock()
				reports = append(reports, *report)
				mu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()
	return reports
}

func eligible(trigger registry.UpdateTrigger, referenceTime time.Time) bool {
	switch trigger.Kind {
	case registry.TriggerAnnual:
		return int(referenceTime.Month()) == trigger.AnnualReleaseMonth
	case registry.TriggerRedistricting:
		yearMod := referenceTime.Year() % 10
		return yearMod == 1 || yearMod == 2
	case registry.TriggerForced:
		return false // only eligible via CheckAllSources
	default:
		return false
	}
}
