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

package lookup

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kraklabs/boundaryatlas/internal/atlaserrors"
	"github.com/kraklabs/boundaryatlas/pkg/commitment"
	"github.com/kraklabs/boundaryatlas/pkg/geo"
	"github.com/kraklabs/boundaryatlas/pkg/registry"
)

// roundingPrecision is the number of decimal digits lat/lon are rounded to
// for the cache key (~1.1m at the equator), matching spec.md §4.7's
// "(round(lat, k), round(lon, k))" cache key contract.
const roundingPrecision = 5

// cacheEntry distinguishes "no district" (a cached miss) from "not yet
// cached" (absent from the map entirely).
type cacheEntry struct {
	id    string
	found bool
}

// Service answers point-in-polygon lookups against an atomically-swapped
// Snapshot. A lookup either observes the old snapshot or the new one in
// full, never a partial state, per spec.md §5.
type Service struct {
	snapshot atomic.Pointer[snapshotState]
	cache    *lru.LRU[string, cacheEntry]
	metrics  *rollingLatency
	prom     *promMetrics
}

type snapshotState struct {
	snapshot commitment.Snapshot
	index    *Index
}

// Options configures cache sizing and TTL.
type Options struct {
	CacheSize int
	CacheTTL  time.Duration
	Registerer prometheus.Registerer
}

// NewService builds a Service with no snapshot loaded; call Swap before
// serving lookups.
func NewService(opts Options) *Service {
	size := opts.CacheSize
	if size <= 0 {
		size = 10_000
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		cache:   lru.NewLRU[string, cacheEntry](size, nil, ttl),
		metrics: newRollingLatency(),
		prom:    newPromMetrics(opts.Registerer),
	}
}

// Swap atomically publishes a new Snapshot, replacing whatever was
// previously visible. In-flight lookups against the old snapshot continue
// to completion unaffected.
func (s *Service) Swap(snap commitment.Snapshot) {
	s.snapshot.Store(&snapshotState{snapshot: snap, index: BuildIndex(snap.Boundaries)})
	s.cache.Purge()
}

// Current returns the currently-visible Snapshot, if any.
func (s *Service) Current() (commitment.Snapshot, bool) {
	st := s.snapshot.Load()
	if st == nil {
		return commitment.Snapshot{}, false
	}
	return st.snapshot, true
}

func cacheKey(lat, lon float64, layer registry.Layer) string {
	round := func(v float64) float64 {
		scale := math.Pow(10, roundingPrecision)
		return math.Round(v*scale) / scale
	}
	return fmt.Sprintf("%s:%.5f,%.5f", layer, round(lat), round(lon))
}

// Lookup answers "which boundary contains (lat, lon)?" against the
// currently-visible snapshot, across every layer. Returns ("", false) when
// no boundary contains the point; never surfaces internal errors for
// well-formed coordinates per spec.md §7.
func (s *Service) Lookup(lat, lon float64) (id string, found bool, err error) {
	return s.lookup(lat, lon, "")
}

// LookupLayer answers the same question restricted to a single layer,
// parameterizing the query by layer (spec.md §4.7's "GET /lookup?lat=&
// lon=&layer=" contract) without disturbing Lookup's across-all-layers
// behavior or its lowest-id tie-break among same-layer overlaps.
func (s *Service) LookupLayer(lat, lon float64, layer registry.Layer) (id string, found bool, err error) {
	return s.lookup(lat, lon, layer)
}

func (s *Service) lookup(lat, lon float64, layer registry.Layer) (id string, found bool, err error) {
	start := time.Now()

	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) ||
		lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return "", false, atlaserrors.New(atlaserrors.KindInvalidCoordinate, "lat/lon out of range or non-finite")
	}

	key := cacheKey(lat, lon, layer)
	if cached, ok := s.cache.Get(key); ok {
		s.recordLatency(start, true)
		return cached.id, cached.found, nil
	}

	st := s.snapshot.Load()
	var result cacheEntry
	if st != nil {
		p := geo.Point{Lon: lon, Lat: lat}
		for _, c := range st.index.Candidates(p) {
			if layer != "" && c.boundary.Layer != layer {
				continue
			}
			if geo.MultiPolygonContains(c.boundary.Geometry, p) {
				result = cacheEntry{id: c.id, found: true}
				break
			}
		}
	}

	s.cache.Add(key, result)
	s.recordLatency(start, false)
	return result.id, result.found, nil
}

func (s *Service) recordLatency(start time.Time, hit bool) {
	d := time.Since(start)
	s.metrics.record(d, hit)
	s.prom.latency.Observe(d.Seconds())
	if hit {
		s.prom.cacheHits.Inc()
	} else {
		s.prom.cacheMisses.Inc()
	}
}

// Metrics returns the current rolling LookupMetrics snapshot.
func (s *Service) Metrics() Snapshot {
	return s.metrics.snapshot(s.cache.Len())
}
