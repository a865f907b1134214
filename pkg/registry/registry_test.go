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

package registry

import "testing"

func sources() []Source {
	return []Source{
		{Layer: LayerCongressionalDistrict, StateFIPS: "56", Vintage: 2024, ExpectedCount: 1},
		{Layer: LayerCongressionalDistrict, StateFIPS: "55", Vintage: 2024, ExpectedCount: 8},
		{Layer: LayerCounty, StateFIPS: "72", Vintage: 2024, ExpectedCount: 78},
	}
}

func TestNewDerivesIDsFromLayerStateVintage(t *testing.T) {
	r := New(sources())
	s, ok := r.Lookup(LayerCongressionalDistrict, "56", 2024)
	if !ok {
		t.Fatal("expected to find the Wyoming congressional district source")
	}
	if s.ID != "congressional_district:56:2024" {
		t.Fatalf("expected derived id, got %q", s.ID)
	}
}

func TestForStatesAndLayersFiltersOnBoth(t *testing.T) {
	r := New(sources())
	got := r.ForStatesAndLayers([]string{"56"}, []Layer{LayerCongressionalDistrict})
	if len(got) != 1 || got[0].StateFIPS != "56" {
		t.Fatalf("expected exactly the Wyoming CD source, got %v", got)
	}
}

func TestForStatesAndLayersEmptyStatesMatchesAllStates(t *testing.T) {
	r := New(sources())
	got := r.ForStatesAndLayers(nil, []Layer{LayerCongressionalDistrict})
	if len(got) != 2 {
		t.Fatalf("expected both congressional district sources when no state filter is given, got %d", len(got))
	}
}

func TestIsLegislativeClassifiesDistrictLayers(t *testing.T) {
	if !LayerCongressionalDistrict.IsLegislative() {
		t.Fatal("expected congressional district to be legislative")
	}
	if LayerCounty.IsLegislative() {
		t.Fatal("expected county to not be legislative")
	}
}

func TestGetReturnsFalseForUnknownID(t *testing.T) {
	r := New(sources())
	if _, ok := r.Get("does-not-exist"); ok {
		t.Fatal("expected Get to report false for an unregistered id")
	}
}
