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
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// promMetrics are the Prometheus collectors the Lookup Service exports
// alongside its in-process rolling LookupMetrics snapshot.
type promMetrics struct {
	latency    prometheus.Histogram
	cacheHits  prometheus.Counter
	cacheMisses prometheus.Counter
}

func newPromMetrics(reg prometheus.Registerer) *promMetrics {
	m := &promMetrics{
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "boundaryatlas_lookup_latency_seconds",
			Help:    "Lookup query latency in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boundaryatlas_lookup_cache_hits_total",
			Help: "Lookup cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boundaryatlas_lookup_cache_misses_total",
			Help: "Lookup cache misses.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.latency, m.cacheHits, m.cacheMisses)
	}
	return m
}

// windowSize bounds the rolling latency window LookupMetrics computes
// percentiles over, matching the "p95 over any 100-query window" property.
const windowSize = 100

// rollingLatency is a fixed-capacity ring buffer of recent query
// latencies, used to compute p50/p95/p99 without retaining the full
// history of a long-running process.
type rollingLatency struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
	filled  bool

	totalQueries uint64
	cacheHits    uint64
	cacheMisses  uint64
}

func newRollingLatency() *rollingLatency {
	return &rollingLatency{samples: make([]time.Duration, windowSize)}
}

func (r *rollingLatency) record(d time.Duration, hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[r.next] = d
	r.next = (r.next + 1) % windowSize
	if r.next == 0 {
		r.filled = true
	}
	r.totalQueries++
	if hit {
		r.cacheHits++
	} else {
		r.cacheMisses++
	}
}

// Snapshot is the rolling Lookup Metrics snapshot (spec.md §3).
type Snapshot struct {
	TotalQueries uint64
	CacheHits    uint64
	CacheMisses  uint64
	CacheSize    int
	P50, P95, P99 time.Duration
}

func (r *rollingLatency) snapshot(cacheSize int) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.filled {
		n = windowSize
	}
	sorted := make([]time.Duration, n)
	copy(sorted, r.samples[:n])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	percentile := func(p float64) time.Duration {
		if len(sorted) == 0 {
			return 0
		}
		idx := int(p * float64(len(sorted)-1))
		return sorted[idx]
	}

	return Snapshot{
		TotalQueries: r.totalQueries,
		CacheHits:    r.cacheHits,
		CacheMisses:  r.cacheMisses,
		CacheSize:    cacheSize,
		P50:          percentile(0.50),
		P95:          percentile(0.95),
		P99:          percentile(0.99),
	}
}
