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

package validate

import (
	"testing"

	"github.com/kraklabs/boundaryatlas/pkg/geo"
	"github.com/kraklabs/boundaryatlas/pkg/registry"
	"github.com/kraklabs/boundaryatlas/pkg/shapefile"
)

func closedSquare() geo.Ring {
	return geo.Ring{
		{Lon: -100, Lat: 40}, {Lon: -99, Lat: 40}, {Lon: -99, Lat: 41}, {Lon: -100, Lat: 41}, {Lon: -100, Lat: 40},
	}
}

func districtFeature() shapefile.Feature {
	return shapefile.Feature{
		Properties: map[string]any{"GEOID": "5600", "DISTRICT": "1"},
		Geometry: shapefile.Geometry{
			Type:         shapefile.GeometryPolygon,
			MultiPolygon: geo.MultiPolygon{{Outer: closedSquare()}},
		},
	}
}

func TestValidatePostDownloadAcceptsWellFormedFeatureCollection(t *testing.T) {
	fc := &shapefile.FeatureCollection{Type: "FeatureCollection", Features: []shapefile.Feature{districtFeature()}}
	res := ValidatePostDownload(fc)
	if !res.Valid {
		t.Fatalf("expected valid result, got issues: %v", res.Issues)
	}
	if res.Confidence <= 0 {
		t.Fatalf("expected positive confidence, got %d", res.Confidence)
	}
}

func TestValidatePostDownloadRejectsWrongType(t *testing.T) {
	fc := &shapefile.FeatureCollection{Type: "Feature", Features: []shapefile.Feature{districtFeature()}}
	res := ValidatePostDownload(fc)
	if res.Valid {
		t.Fatal("expected an invalid result for a non-FeatureCollection type")
	}
}

func TestValidatePostDownloadRejectsEmptyCollection(t *testing.T) {
	fc := &shapefile.FeatureCollection{Type: "FeatureCollection"}
	res := ValidatePostDownload(fc)
	if res.Valid {
		t.Fatal("expected an invalid result for zero features")
	}
}

func TestValidatePostDownloadRejectsOversizedCollection(t *testing.T) {
	features := make([]shapefile.Feature, 101)
	for i := range features {
		features[i] = districtFeature()
	}
	fc := &shapefile.FeatureCollection{Type: "FeatureCollection", Features: features}
	res := ValidatePostDownload(fc)
	if res.Valid {
		t.Fatal("expected an invalid result for more than 100 features")
	}
}

func TestValidatePostDownloadRejectsBannedPropertyKey(t *testing.T) {
	f := districtFeature()
	f.Properties["PRECINCT_ID"] = "001"
	fc := &shapefile.FeatureCollection{Type: "FeatureCollection", Features: []shapefile.Feature{f}}
	res := ValidatePostDownload(fc)
	if res.Valid {
		t.Fatal("expected an invalid result when a banned property key is present")
	}
}

func TestValidatePostDownloadRejectsUnclosedRing(t *testing.T) {
	f := districtFeature()
	f.Geometry.MultiPolygon[0].Outer = f.Geometry.MultiPolygon[0].Outer[:len(f.Geometry.MultiPolygon[0].Outer)-1]
	fc := &shapefile.FeatureCollection{Type: "FeatureCollection", Features: []shapefile.Feature{f}}
	res := ValidatePostDownload(fc)
	if res.Valid {
		t.Fatal("expected an invalid result for an unclosed ring")
	}
}

func TestValidatePostDownloadRejectsOutOfBoundsCoordinate(t *testing.T) {
	f := districtFeature()
	f.Geometry.MultiPolygon[0].Outer[0] = geo.Point{Lon: 400, Lat: 40}
	fc := &shapefile.FeatureCollection{Type: "FeatureCollection", Features: []shapefile.Feature{f}}
	res := ValidatePostDownload(fc)
	if res.Valid {
		t.Fatal("expected an invalid result for an out-of-bounds coordinate")
	}
}

func TestValidatePostDownloadWarnsWithoutDistrictLikeKey(t *testing.T) {
	f := districtFeature()
	delete(f.Properties, "DISTRICT")
	fc := &shapefile.FeatureCollection{Type: "FeatureCollection", Features: []shapefile.Feature{f}}
	res := ValidatePostDownload(fc)
	if !res.Valid {
		t.Fatalf("expected the result to still be valid (warning, not issue), got: %v", res.Issues)
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected a warning when no property key resembles a district identifier")
	}
}

func TestCrossValidateCountExactMatchForNonLegislativeLayer(t *testing.T) {
	if diff, ok := CrossValidateCount(registry.LayerCounty, 78, 78); !ok || diff != 0 {
		t.Fatalf("expected exact match to pass with zero diff, got diff=%d ok=%v", diff, ok)
	}
	if _, ok := CrossValidateCount(registry.LayerCounty, 78, 77); ok {
		t.Fatal("expected a one-off mismatch to fail for a non-legislative layer")
	}
}

func TestCrossValidateCountToleratesOffByOneForLegislativeLayer(t *testing.T) {
	if _, ok := CrossValidateCount(registry.LayerCongressionalDistrict, 8, 7); !ok {
		t.Fatal("expected legislative layers to tolerate a ±1 diff")
	}
	if _, ok := CrossValidateCount(registry.LayerCongressionalDistrict, 8, 6); ok {
		t.Fatal("expected a ±2 diff to fail even for a legislative layer")
	}
}

func TestCrossValidateCountSkipsWhenExpectedUnknown(t *testing.T) {
	if _, ok := CrossValidateCount(registry.LayerCongressionalDistrict, -1, 1234); !ok {
		t.Fatal("expected a negative expected count to skip validation")
	}
}
