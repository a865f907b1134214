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

package geo

import "testing"

func square(minLon, minLat, maxLon, maxLat float64) Ring {
	return Ring{
		{Lon: minLon, Lat: minLat},
		{Lon: maxLon, Lat: minLat},
		{Lon: maxLon, Lat: maxLat},
		{Lon: minLon, Lat: maxLat},
		{Lon: minLon, Lat: minLat},
	}
}

func TestRingContainsStrictInterior(t *testing.T) {
	r := square(0, 0, 10, 10)
	if !RingContains(r, Point{Lon: 5, Lat: 5}) {
		t.Fatal("expected point strictly inside the square to be contained")
	}
}

func TestRingContainsOutsidePoint(t *testing.T) {
	r := square(0, 0, 10, 10)
	if RingContains(r, Point{Lon: 20, Lat: 20}) {
		t.Fatal("expected point far outside the square to be excluded")
	}
}

func TestCloseRingAppendsFirstVertex(t *testing.T) {
	r := Ring{{Lon: 0, Lat: 0}, {Lon: 1, Lat: 0}, {Lon: 1, Lat: 1}}
	closed := CloseRing(r)
	if !IsClosed(closed) {
		t.Fatal("expected CloseRing to produce a closed ring")
	}
	if len(closed) != len(r)+1 {
		t.Fatalf("expected one vertex appended, got len=%d", len(closed))
	}
}

func TestCloseRingNoopWhenAlreadyClosed(t *testing.T) {
	r := square(0, 0, 1, 1)
	closed := CloseRing(r)
	if len(closed) != len(r) {
		t.Fatalf("expected no change to an already-closed ring, got len=%d want=%d", len(closed), len(r))
	}
}

func TestDedupeConsecutiveRemovesRepeats(t *testing.T) {
	r := Ring{{Lon: 0, Lat: 0}, {Lon: 0, Lat: 0}, {Lon: 1, Lat: 1}, {Lon: 1, Lat: 1}, {Lon: 0, Lat: 0}}
	deduped := DedupeConsecutive(r)
	if len(deduped) != 3 {
		t.Fatalf("expected 3 vertices after dedupe, got %d", len(deduped))
	}
}

func TestInBoundsRejectsOutOfRangeCoordinates(t *testing.T) {
	if InBounds(Point{Lon: 200, Lat: 0}) {
		t.Fatal("expected lon=200 to be out of bounds")
	}
	if InBounds(Point{Lon: 0, Lat: 91}) {
		t.Fatal("expected lat=91 to be out of bounds")
	}
	if !InBounds(Point{Lon: -122.4, Lat: 37.8}) {
		t.Fatal("expected a valid SF coordinate to be in bounds")
	}
}

func TestBBoxOverlapDetectsIntersection(t *testing.T) {
	a := BBox{MinLon: 0, MaxLon: 10, MinLat: 0, MaxLat: 10}
	b := BBox{MinLon: 5, MaxLon: 15, MinLat: 5, MaxLat: 15}
	if !BBoxOverlap(a, b) {
		t.Fatal("expected overlapping boxes to be detected")
	}
	c := BBox{MinLon: 20, MaxLon: 30, MinLat: 20, MaxLat: 30}
	if BBoxOverlap(a, c) {
		t.Fatal("expected disjoint boxes to not overlap")
	}
}

func TestEstimateOverlapAreaZeroForDisjointPolygons(t *testing.T) {
	a := MultiPolygon{{Outer: square(0, 0, 1, 1)}}
	b := MultiPolygon{{Outer: square(10, 10, 11, 11)}}
	if area := EstimateOverlapAreaSquareMeters(a, b); area != 0 {
		t.Fatalf("expected zero overlap area for disjoint polygons, got %f", area)
	}
}

func TestEstimateOverlapAreaPositiveForOverlappingPolygons(t *testing.T) {
	a := MultiPolygon{{Outer: square(0, 0, 2, 2)}}
	b := MultiPolygon{{Outer: square(1, 1, 3, 3)}}
	if area := EstimateOverlapAreaSquareMeters(a, b); area <= 0 {
		t.Fatalf("expected positive overlap area for overlapping polygons, got %f", area)
	}
}

func TestCoverageRatioFullyCoveredState(t *testing.T) {
	state := MultiPolygon{{Outer: square(0, 0, 1, 1)}}
	boundaries := []MultiPolygon{{{Outer: square(-0.1, -0.1, 1.1, 1.1)}}}
	report := CoverageRatio(state, boundaries)
	if report < 0.99 {
		t.Fatalf("expected near-total coverage, got %f", report)
	}
}

func TestRingAreaSquareMetersPositiveForNonDegenerateRing(t *testing.T) {
	r := square(-1, -1, 1, 1)
	area := RingAreaSquareMeters(r)
	if area <= 0 {
		t.Fatalf("expected positive area, got %f", area)
	}
}
