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
	"fmt"
	"regexp"

	"github.com/kraklabs/boundaryatlas/internal/atlaserrors"
	"github.com/kraklabs/boundaryatlas/pkg/geo"
	"github.com/kraklabs/boundaryatlas/pkg/registry"
)

// geoidPatterns gives the per-layer GEOID regex spec.md §4.5 enumerates.
// SS is the two-digit state FIPS prefix.
var geoidPatterns = map[registry.Layer]*regexp.Regexp{
	registry.LayerCongressionalDistrict:    regexp.MustCompile(`^\d{2}(\d{2}|AL)$`),
	registry.LayerStateSenate:              regexp.MustCompile(`^\d{2}\w{3,4}$`),
	registry.LayerStateHouse:               regexp.MustCompile(`^\d{2}\w{3,4}$`),
	registry.LayerCounty:                   regexp.MustCompile(`^\d{5}$`),
	registry.LayerSchoolDistrictUnified:    regexp.MustCompile(`^\d{7}$`),
	registry.LayerSchoolDistrictElementary: regexp.MustCompile(`^\d{7}$`),
	registry.LayerSchoolDistrictSecondary:  regexp.MustCompile(`^\d{7}$`),
}

// dualSystemStates is the known set of states whose elementary and
// secondary school systems legitimately overlap the same territory.
var dualSystemStates = map[string]bool{
	"CT": true, "IL": true, "ME": true, "MA": true, "MT": true,
	"NH": true, "NJ": true, "RI": true, "VT": true,
}

// unifiedOverlapExceptionStates permits unified-with-specialized overlaps
// (e.g. a handful of specialized districts layered atop a unified system).
var unifiedOverlapExceptionStates = map[string]bool{
	"NY": true, "HI": true,
}

// HaltGates is the configurable set of hard-stop conditions spec.md §4.5
// names. When a gate is enabled and its condition trips, the validator
// raises ValidationHalt instead of returning a warning.
type HaltGates struct {
	OnTopology       bool
	OnCompleteness   bool
	OnCoordinates    bool
	OnOverlap        bool
	OnCoverage       bool
	OnCountMismatch  bool // trips above a 10% expected/actual diff
}

// LayerReport is the per-layer analysis result: counts, GEOID validity,
// and any overlap findings discovered for this layer in isolation.
type LayerReport struct {
	Layer         registry.Layer
	ExpectedCount int
	ActualCount   int
	InvalidGEOIDs []string
	Warnings      []string
}

// ValidateGEOIDFormat checks every boundary id against the layer's GEOID
// regex, returning the ids that fail to match.
func ValidateGEOIDFormat(layer registry.Layer, ids []string) []string {
	pattern, ok := geoidPatterns[layer]
	if !ok {
		return nil
	}
	var bad []string
	for _, id := range ids {
		if !pattern.MatchString(id) {
			bad = append(bad, id)
		}
	}
	return bad
}

// CrossValidateCount compares an observed count against the registry's
// expected count for (layer, state, vintage). Legislative layers tolerate
// a ±1 diff (redistricting-vintage boundaries); other layers require an
// exact match. A negative expectedCount means "unknown", skipping the
// check entirely.
func CrossValidateCount(layer registry.Layer, expectedCount, actualCount int) (diff int, ok bool) {
	if expectedCount < 0 {
		return 0, true
	}
	diff = actualCount - expectedCount
	tolerance := 0
	if layer.IsLegislative() {
		tolerance = 1
	}
	if diff < 0 {
		return diff, -diff <= tolerance
	}
	return diff, diff <= tolerance
}

// SchoolSystemBoundaries groups one state's three school-district layers
// for the multi-system overlap check.
type SchoolSystemBoundaries struct {
	StateAbbr   string
	Unified     []geo.MultiPolygon
	Elementary  []geo.MultiPolygon
	Secondary   []geo.MultiPolygon
}

// OverlapFinding describes one forbidden (or, in a dual-system state,
// expected) intersection between two school-system boundaries.
type OverlapFinding struct {
	SystemA, SystemB string
	AreaSquareMeters float64
	Forbidden        bool
}

// CheckSchoolSystemOverlaps runs the pairwise overlap rules spec.md §4.5
// specifies: unified is never allowed to overlap itself, elementary, or
// secondary; elementary and secondary are never allowed to overlap
// themselves; elementary↔secondary is forbidden unless the state is a
// known dual-system state, where it is expected.
func CheckSchoolSystemOverlaps(b SchoolSystemBoundaries) []OverlapFinding {
	var findings []OverlapFinding
	exceptUnified := unifiedOverlapExceptionStates[b.StateAbbr]

	pairwise := func(setA, setB []geo.MultiPolygon, label string, forbidden bool) {
		for _, a := range setA {
			for _, bm := range setB {
				area := geo.EstimateOverlapAreaSquareMeters(a, bm)
				if area > 0 {
					findings = append(findings, OverlapFinding{
						SystemA: label, SystemB: label, AreaSquareMeters: area, Forbidden: forbidden,
					})
				}
			}
		}
	}

	selfOverlap := func(set []geo.MultiPolygon, label string) {
		for i := 0; i < len(set); i++ {
			for j := i + 1; j < len(set); j++ {
				area := geo.EstimateOverlapAreaSquareMeters(set[i], set[j])
				if area > 0 {
					findings = append(findings, OverlapFinding{
						SystemA: label, SystemB: label, AreaSquareMeters: area, Forbidden: true,
					})
				}
			}
		}
	}

	selfOverlap(b.Unified, "unified")
	selfOverlap(b.Elementary, "elementary")
	selfOverlap(b.Secondary, "secondary")
	pairwise(b.Unified, b.Elementary, "unified_elementary", !exceptUnified)
	pairwise(b.Unified, b.Secondary, "unified_secondary", !exceptUnified)

	dual := dualSystemStates[b.StateAbbr]
	for _, e := range b.Elementary {
		for _, s := range b.Secondary {
			area := geo.EstimateOverlapAreaSquareMeters(e, s)
			if area > 0 {
				findings = append(findings, OverlapFinding{
					SystemA: "elementary", SystemB: "secondary",
					AreaSquareMeters: area, Forbidden: !dual,
				})
			}
		}
	}

	return findings
}

// CoverageReport is the outcome of comparing a state's union of boundaries
// against its own polygon.
type CoverageReport struct {
	Ratio     float64
	Satisfied bool // ratio >= 0.95
}

// CheckCoverage computes the union-of-boundaries coverage ratio of a
// state's polygon, per spec.md §4.5's coverage check.
func CheckCoverage(statePolygon geo.MultiPolygon, boundaries []geo.MultiPolygon) CoverageReport {
	ratio := geo.CoverageRatio(statePolygon, boundaries)
	return CoverageReport{Ratio: ratio, Satisfied: ratio >= 0.95}
}

// EvaluateHaltGates inspects a set of findings against the configured
// HaltGates and returns a ValidationHalt error for the first tripped gate,
// or nil if the build may continue (findings are still reported as
// warnings by the caller).
func EvaluateHaltGates(gates HaltGates, hasTopologyIssue, hasCompletenessGap, hasCoordinateIssue, hasForbiddenOverlap bool, coverage CoverageReport, countDiffPercent float64) error {
	switch {
	case gates.OnTopology && hasTopologyIssue:
		return atlaserrors.New(atlaserrors.KindValidationHalt, "topology check failed: self-intersection or unclosed ring detected")
	case gates.OnCompleteness && hasCompletenessGap:
		return atlaserrors.New(atlaserrors.KindValidationHalt, "completeness check failed: missing boundaries detected")
	case gates.OnCoordinates && hasCoordinateIssue:
		return atlaserrors.New(atlaserrors.KindValidationHalt, "coordinate sanity check failed: out-of-range or null coordinate detected")
	case gates.OnOverlap && hasForbiddenOverlap:
		return atlaserrors.New(atlaserrors.KindValidationHalt, "overlap check failed: forbidden boundary intersection detected")
	case gates.OnCoverage && !coverage.Satisfied:
		return atlaserrors.New(atlaserrors.KindValidationHalt, fmt.Sprintf("coverage check failed: ratio %.4f below 0.95 threshold", coverage.Ratio))
	case gates.OnCountMismatch && countDiffPercent > 10.0:
		return atlaserrors.New(atlaserrors.KindValidationHalt, fmt.Sprintf("count mismatch check failed: %.1f%% diff exceeds 10%% threshold", countDiffPercent))
	default:
		return nil
	}
}
