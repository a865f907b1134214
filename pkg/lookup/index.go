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

// Package lookup implements the Lookup Service: a read-only spatial index
// over a committed Snapshot, answering "which district contains (lat,
// lon)?" through a bounding-box prefilter, strict point-in-polygon test,
// and an LRU+TTL cache, with latency and hit/miss metrics.
package lookup

import (
	"sort"

	"github.com/kraklabs/boundaryatlas/pkg/geo"
	"github.com/kraklabs/boundaryatlas/pkg/normalize"
)

// entry is one indexed boundary: its bounding box and a pointer back to
// the full geometry for the point-in-polygon test.
type entry struct {
	id       string
	bbox     geo.BBox
	boundary normalize.Boundary
}

// Index is a bounding-box index over one layer's (or one snapshot's)
// boundaries. Candidates are prefiltered by bbox containment, then tested
// with strict point-in-polygon in ascending-id order so the documented
// tie-break (lowest id wins) holds without extra bookkeeping.
//
// spec.md leaves index choice to the implementer ("R-tree or
// equivalent"); a sorted slice with a linear bbox-prefilter scan is used
// here rather than an R-tree, since no pack repo imports a spatial index
// library and the atlas's per-state boundary counts (tens to low
// hundreds) make a linear scan's constant factor negligible next to the
// point-in-polygon test itself.
type Index struct {
	entries []entry
}

// BuildIndex constructs an Index from a snapshot's boundaries, sorted by
// id ascending so scans naturally favor the lowest-id boundary on ties.
func BuildIndex(boundaries []normalize.Boundary) *Index {
	entries := make([]entry, len(boundaries))
	for i, b := range boundaries {
		entries[i] = entry{id: b.ID, bbox: geo.MultiPolygonBBox(b.Geometry), boundary: b}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })
	return &Index{entries: entries}
}

// Candidates returns every boundary whose bounding box contains p, in
// ascending-id order.
func (idx *Index) Candidates(p geo.Point) []entry {
	var out []entry
	for _, e := range idx.entries {
		if e.bbox.Contains(p) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of indexed boundaries.
func (idx *Index) Len() int { return len(idx.entries) }
