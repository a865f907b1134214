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

// Package testutil holds the sample Source Registry entries cmd/atlasctl
// uses as its illustrative default registry. The production registry of
// authoritative source URLs is explicitly out of scope (spec.md §1); these
// entries cover the states of the literal end-to-end scenarios spec.md §8
// names (Wyoming, WI/CT/NH, Puerto Rico). No package test imports them.
package testutil

import (
	"github.com/kraklabs/boundaryatlas/pkg/registry"
)

// SampleSources returns a small, illustrative Source Registry covering the
// states and layers spec.md §8's concrete end-to-end scenarios name.
func SampleSources() []registry.Source {
	annual := registry.UpdateTrigger{Kind: registry.TriggerAnnual, AnnualReleaseMonth: 1}
	redistricting := registry.UpdateTrigger{Kind: registry.TriggerRedistricting, RedistrictingGracePeriod: true}

	return []registry.Source{
		{
			Layer: registry.LayerCongressionalDistrict, StateFIPS: "56", Vintage: 2024,
			URL: "https://www2.census.gov/geo/tiger/TIGER2024/CD/tl_2024_56_cd.zip",
			GEOIDFormat: `^56(\d{2}|AL)$`, ExpectedCount: 1,
			Authority: registry.AuthorityFederalTIGER, Trigger: redistricting,
		},
		{
			Layer: registry.LayerCongressionalDistrict, StateFIPS: "55", Vintage: 2024,
			URL: "https://www2.census.gov/geo/tiger/TIGER2024/CD/tl_2024_55_cd.zip",
			GEOIDFormat: `^55(\d{2}|AL)$`, ExpectedCount: 8,
			Authority: registry.AuthorityFederalTIGER, Trigger: redistricting,
		},
		{
			Layer: registry.LayerCongressionalDistrict, StateFIPS: "09", Vintage: 2024,
			URL: "https://www2.census.gov/geo/tiger/TIGER2024/CD/tl_2024_09_cd.zip",
			GEOIDFormat: `^09(\d{2}|AL)$`, ExpectedCount: 5,
			Authority: registry.AuthorityFederalTIGER, Trigger: redistricting,
		},
		{
			Layer: registry.LayerCongressionalDistrict, StateFIPS: "33", Vintage: 2024,
			URL: "https://www2.census.gov/geo/tiger/TIGER2024/CD/tl_2024_33_cd.zip",
			GEOIDFormat: `^33(\d{2}|AL)$`, ExpectedCount: 2,
			Authority: registry.AuthorityFederalTIGER, Trigger: redistricting,
		},
		{
			Layer: registry.LayerCongressionalDistrict, StateFIPS: "72", Vintage: 2024,
			URL: "https://www2.census.gov/geo/tiger/TIGER2024/CD/tl_2024_72_cd.zip",
			GEOIDFormat: `^72(\d{2}|AL)$`, ExpectedCount: 1,
			Authority: registry.AuthorityFederalTIGER, Trigger: redistricting,
		},
		{
			Layer: registry.LayerCounty, StateFIPS: "72", Vintage: 2024,
			URL: "https://www2.census.gov/geo/tiger/TIGER2024/COUNTY/tl_2024_us_county.zip",
			GEOIDFormat: `^72\d{3}$`, ExpectedCount: 78,
			Authority: registry.AuthorityFederalTIGER, Trigger: annual,
		},
	}
}
