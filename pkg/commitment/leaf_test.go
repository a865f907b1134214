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

package commitment

import (
	"bytes"
	"testing"
	"time"

	"github.com/kraklabs/boundaryatlas/pkg/geo"
	"github.com/kraklabs/boundaryatlas/pkg/normalize"
)

func sampleBoundary(id string) normalize.Boundary {
	return normalize.Boundary{
		ID:    id,
		Name:  "Sample District " + id,
		Level: normalize.LevelDistrict,
		Geometry: geo.MultiPolygon{{
			Outer: geo.Ring{
				{Lon: -100, Lat: 40}, {Lon: -99, Lat: 40}, {Lon: -99, Lat: 41}, {Lon: -100, Lat: 41}, {Lon: -100, Lat: 40},
			},
		}},
		Provenance: normalize.Provenance{
			Provider:      "census.gov",
			URL:           "https://example.test/" + id,
			Vintage:       2024,
			RetrievedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			ContentSHA256: "abc123",
		},
	}
}

func TestEncodeLeafIsDeterministic(t *testing.T) {
	b := sampleBoundary("5601")
	first := EncodeLeaf(b)
	second := EncodeLeaf(b)
	if !bytes.Equal(first, second) {
		t.Fatal("expected identical boundaries to encode to identical bytes")
	}
}

func TestEncodeLeafDiffersOnCoordinateChange(t *testing.T) {
	a := sampleBoundary("5601")
	b := sampleBoundary("5601")
	b.Geometry[0].Outer[0].Lon += 0.0001
	if bytes.Equal(EncodeLeaf(a), EncodeLeaf(b)) {
		t.Fatal("expected a coordinate change to change the encoded bytes")
	}
}

func TestEncodeLeafUnaffectedByFloatingPointNoiseBelowScale(t *testing.T) {
	a := sampleBoundary("5601")
	b := sampleBoundary("5601")
	// A sub-1e-7-degree perturbation should round to the same fixed-point
	// integer and therefore encode identically.
	b.Geometry[0].Outer[0].Lon += 1e-9
	if !bytes.Equal(EncodeLeaf(a), EncodeLeaf(b)) {
		t.Fatal("expected sub-precision coordinate noise to not affect the encoding")
	}
}

func TestHashLeavesOrdersLexicographically(t *testing.T) {
	boundaries := []normalize.Boundary{sampleBoundary("5603"), sampleBoundary("5601"), sampleBoundary("5602")}
	leaves, err := HashLeaves(boundaries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"5601", "5602", "5603"}
	for i, l := range leaves {
		if l.ID != want[i] {
			t.Fatalf("expected leaf %d to be %q, got %q", i, want[i], l.ID)
		}
	}
}

func TestHashLeavesDetectsDuplicateIDs(t *testing.T) {
	boundaries := []normalize.Boundary{sampleBoundary("5601"), sampleBoundary("5601")}
	if _, err := HashLeaves(boundaries); err == nil {
		t.Fatal("expected an error for duplicate boundary ids")
	}
}
