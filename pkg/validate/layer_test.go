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
)

func TestValidateGEOIDFormatCongressionalDistrict(t *testing.T) {
	bad := ValidateGEOIDFormat(registry.LayerCongressionalDistrict, []string{"5600", "09AL", "abc", "123456"})
	if len(bad) != 2 {
		t.Fatalf("expected 2 malformed ids, got %d: %v", len(bad), bad)
	}
}

func TestValidateGEOIDFormatUnknownLayerSkipsCheck(t *testing.T) {
	bad := ValidateGEOIDFormat(registry.LayerPlace, []string{"anything", "goes"})
	if bad != nil {
		t.Fatalf("expected no check for a layer with no GEOID pattern, got %v", bad)
	}
}

func square(minLon, minLat, maxLon, maxLat float64) geo.MultiPolygon {
	return geo.MultiPolygon{{Outer: geo.Ring{
		{Lon: minLon, Lat: minLat}, {Lon: maxLon, Lat: minLat}, {Lon: maxLon, Lat: maxLat}, {Lon: minLon, Lat: maxLat}, {Lon: minLon, Lat: minLat},
	}}}
}

func TestCheckSchoolSystemOverlapsForbidsUnifiedSelfOverlap(t *testing.T) {
	sys := SchoolSystemBoundaries{
		StateAbbr: "CA",
		Unified:   []geo.MultiPolygon{square(0, 0, 2, 2), square(1, 1, 3, 3)},
	}
	findings := CheckSchoolSystemOverlaps(sys)
	if len(findings) == 0 || !findings[0].Forbidden {
		t.Fatal("expected unified self-overlap to be forbidden")
	}
}

func TestCheckSchoolSystemOverlapsAllowsDualSystemElementarySecondary(t *testing.T) {
	sys := SchoolSystemBoundaries{
		StateAbbr: "CT",
		Elementary: []geo.MultiPolygon{square(0, 0, 2, 2)},
		Secondary:  []geo.MultiPolygon{square(1, 1, 3, 3)},
	}
	findings := CheckSchoolSystemOverlaps(sys)
	if len(findings) == 0 {
		t.Fatal("expected an overlap finding to be reported")
	}
	for _, f := range findings {
		if f.Forbidden {
			t.Fatal("expected elementary/secondary overlap to be permitted in a dual-system state")
		}
	}
}

func TestCheckSchoolSystemOverlapsForbidsElementarySecondaryOutsideDualSystemStates(t *testing.T) {
	sys := SchoolSystemBoundaries{
		StateAbbr: "CA",
		Elementary: []geo.MultiPolygon{square(0, 0, 2, 2)},
		Secondary:  []geo.MultiPolygon{square(1, 1, 3, 3)},
	}
	findings := CheckSchoolSystemOverlaps(sys)
	found := false
	for _, f := range findings {
		if f.Forbidden {
			found = true
		}
	}
	if !found {
		t.Fatal("expected elementary/secondary overlap to be forbidden outside a dual-system state")
	}
}

func TestCheckSchoolSystemOverlapsUnifiedElementaryExceptionStates(t *testing.T) {
	sys := SchoolSystemBoundaries{
		StateAbbr: "NY",
		Unified:    []geo.MultiPolygon{square(0, 0, 2, 2)},
		Elementary: []geo.MultiPolygon{square(1, 1, 3, 3)},
	}
	findings := CheckSchoolSystemOverlaps(sys)
	for _, f := range findings {
		if f.SystemA == "unified_elementary" && f.Forbidden {
			t.Fatal("expected NY to be exempt from the unified/elementary overlap prohibition")
		}
	}
}

func TestCheckCoverageSatisfiedAboveThreshold(t *testing.T) {
	state := square(0, 0, 1, 1)[0]
	report := CheckCoverage(geo.MultiPolygon{state}, []geo.MultiPolygon{square(-0.1, -0.1, 1.1, 1.1)})
	if !report.Satisfied {
		t.Fatalf("expected coverage to be satisfied, got ratio %f", report.Ratio)
	}
}

func TestCheckCoverageUnsatisfiedBelowThreshold(t *testing.T) {
	state := square(0, 0, 10, 10)[0]
	report := CheckCoverage(geo.MultiPolygon{state}, []geo.MultiPolygon{square(0, 0, 1, 1)})
	if report.Satisfied {
		t.Fatalf("expected coverage to be unsatisfied for a small partial patch, got ratio %f", report.Ratio)
	}
}

func TestEvaluateHaltGatesReturnsFirstTrippedGate(t *testing.T) {
	gates := HaltGates{OnTopology: true, OnCoverage: true}
	err := EvaluateHaltGates(gates, true, false, false, false, CoverageReport{Ratio: 0.5}, 0)
	if err == nil {
		t.Fatal("expected a halt error when the topology gate is enabled and tripped")
	}
}

func TestEvaluateHaltGatesReturnsNilWhenNoGateTrips(t *testing.T) {
	gates := HaltGates{OnTopology: true, OnCoverage: true}
	err := EvaluateHaltGates(gates, false, false, false, false, CoverageReport{Ratio: 0.99, Satisfied: true}, 0)
	if err != nil {
		t.Fatalf("expected no halt error, got %v", err)
	}
}

func TestStateAbbrFallsBackToFIPSForUnknownCode(t *testing.T) {
	if got := StateAbbr("99"); got != "99" {
		t.Fatalf("expected fallback to the raw FIPS code, got %q", got)
	}
	if got := StateAbbr("09"); got != "CT" {
		t.Fatalf("expected 09 to map to CT, got %q", got)
	}
}
