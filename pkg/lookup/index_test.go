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
	"testing"

	"github.com/kraklabs/boundaryatlas/pkg/geo"
	"github.com/kraklabs/boundaryatlas/pkg/normalize"
)

func TestBuildIndexSortsByID(t *testing.T) {
	idx := BuildIndex([]normalize.Boundary{
		squareBoundary("c", 0, 0, 1, 1),
		squareBoundary("a", 0, 0, 1, 1),
		squareBoundary("b", 0, 0, 1, 1),
	})
	if idx.entries[0].id != "a" || idx.entries[1].id != "b" || idx.entries[2].id != "c" {
		t.Fatalf("expected entries sorted by id, got %v", idx.entries)
	}
}

func TestCandidatesFiltersByBoundingBox(t *testing.T) {
	idx := BuildIndex([]normalize.Boundary{
		squareBoundary("near", 0, 0, 1, 1),
		squareBoundary("far", 50, 50, 51, 51),
	})
	candidates := idx.Candidates(geo.Point{Lon: 0.5, Lat: 0.5})
	if len(candidates) != 1 || candidates[0].id != "near" {
		t.Fatalf("expected only the near boundary to be a candidate, got %v", candidates)
	}
}

func TestIndexLenMatchesInputSize(t *testing.T) {
	idx := BuildIndex([]normalize.Boundary{squareBoundary("a", 0, 0, 1, 1), squareBoundary("b", 2, 2, 3, 3)})
	if idx.Len() != 2 {
		t.Fatalf("expected len 2, got %d", idx.Len())
	}
}
