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

// Package validate implements the Post-Download Validator and the
// Layer/Topology Validators: the semantic checks that stand between a
// freshly parsed FeatureCollection and a Canonical Boundary.
package validate

import (
	"strings"

	"github.com/kraklabs/boundaryatlas/pkg/geo"
	"github.com/kraklabs/boundaryatlas/pkg/shapefile"
)

// bannedPropertySubstrings are property-key fragments (case-insensitive)
// that indicate precinct-or-finer granularity data this atlas never
// ingests.
var bannedPropertySubstrings = []string{
	"PRECINCT", "POLLING", "VOTING", "PARCEL", "CANOPY", "ZONING",
}

// districtLikeSubstrings are property-key fragments whose presence is
// evidence the feature set actually describes districts.
var districtLikeSubstrings = []string{
	"DISTRICT", "WARD", "COUNCIL",
}

// Result is the Post-Download Validator's verdict on one FeatureCollection.
type Result struct {
	Valid      bool
	Confidence int
	Issues     []string
	Warnings   []string
	Metadata   map[string]any
}

func (r *Result) addIssue(msg string)   { r.Issues = append(r.Issues, msg) }
func (r *Result) addWarning(msg string) { r.Warnings = append(r.Warnings, msg) }

// ValidatePostDownload runs the five ordered stages against fc and returns
// a verdict plus confidence score. Any issue fails the result; warnings
// never do.
func ValidatePostDownload(fc *shapefile.FeatureCollection) Result {
	res := Result{Valid: true, Metadata: map[string]any{}}

	// Stage 1: type.
	if fc == nil || fc.Type != "FeatureCollection" {
		res.addIssue("object is not a FeatureCollection")
	}

	var numFeatures int
	if fc != nil {
		numFeatures = len(fc.Features)
	}

	// Stage 2: cardinality.
	if numFeatures < 1 || numFeatures > 100 {
		res.addIssue("feature count out of range [1, 100]: precinct-granularity data is rejected")
	}

	var anyPolygonal, allPolygonal, anyNonPolygonal bool
	if fc != nil {
		allPolygonal = numFeatures > 0
		for _, f := range fc.Features {
			switch f.Geometry.Type {
			case shapefile.GeometryPolygon, shapefile.GeometryMultiPolygon:
				anyPolygonal = true
			default:
				anyNonPolygonal = true
				allPolygonal = false
			}
		}
	}

	// Stage 3: geometry mix.
	if !anyPolygonal {
		res.addIssue("no Polygon or MultiPolygon geometry present")
	} else if anyNonPolygonal {
		res.addWarning("mixed polygon and non-polygon geometries present")
	}

	// Stage 4: property keys.
	districtLike := false
	if fc != nil {
		bannedFound := false
		for _, f := range fc.Features {
			for key := range f.Properties {
				upper := strings.ToUpper(key)
				if containsAnySubstring(upper, bannedPropertySubstrings) {
					bannedFound = true
				}
				if containsAnySubstring(upper, districtLikeSubstrings) {
					districtLike = true
				}
			}
		}
		if bannedFound {
			res.addIssue("property key matches a banned precinct/parcel/zoning substring")
		}
		if !districtLike {
			res.addWarning("no property key resembles a district-like identifier")
		}
	}

	// Stage 5: per-feature geometry.
	var bbox geo.BBox
	haveBBox := false
	if fc != nil {
		for _, f := range fc.Features {
			for _, poly := range f.Geometry.MultiPolygon {
				rings := append([]geo.Ring{poly.Outer}, poly.Holes...)
				for _, ring := range rings {
					if !geo.IsClosed(ring) {
						res.addIssue("ring is not closed: first vertex must equal last")
					}
					if len(ring) < 4 {
						res.addIssue("ring has fewer than 4 vertices")
					}
					for _, pt := range ring {
						if !geo.InBounds(pt) {
							res.addIssue("coordinate out of WGS84 bounds")
						}
					}
				}
				pb := geo.PolygonBBox(poly)
				if !haveBBox {
					bbox = pb
					haveBBox = true
				} else {
					bbox = bbox.Union(pb)
				}
			}
		}
	}
	if haveBBox {
		if bbox.SpanLon() > 10 || bbox.SpanLat() > 10 {
			res.addWarning("aggregate bounding box span exceeds 10 degrees")
		}
		if bbox.SpanLon() < 0.001 || bbox.SpanLat() < 0.001 {
			res.addWarning("aggregate bounding box span is under 0.001 degrees")
		}
	}

	res.Valid = len(res.Issues) == 0
	res.Confidence = scoreConfidence(res, districtLike, allPolygonal, numFeatures)
	res.Metadata["feature_count"] = numFeatures
	return res
}

func scoreConfidence(res Result, districtLike, allPolygonal bool, numFeatures int) int {
	score := 100
	score -= 20 * len(res.Issues)
	score -= 5 * len(res.Warnings)
	if districtLike {
		score += 10
	}
	if allPolygonal {
		score += 10
	}
	if numFeatures >= 3 && numFeatures <= 50 {
		score += 10
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

func containsAnySubstring(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
