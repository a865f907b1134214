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

// Package registry implements the Source Registry: the static, read-only
// mapping from (layer, state, vintage) to a canonical download URL, an
// expected record count, a GEOID format descriptor, an authority rank, and
// an update trigger. The registry is immutable once built; reloading
// requires a fresh process instance (spec.md §9).
package registry

import "fmt"

// Layer is the closed set of boundary classes the atlas tracks.
type Layer string

const (
	LayerCongressionalDistrict    Layer = "congressional_district"
	LayerStateSenate              Layer = "state_senate"
	LayerStateHouse               Layer = "state_house"
	LayerCounty                   Layer = "county"
	LayerPlace                    Layer = "place"
	LayerSchoolDistrictUnified    Layer = "school_district_unified"
	LayerSchoolDistrictElementary Layer = "school_district_elementary"
	LayerSchoolDistrictSecondary  Layer = "school_district_secondary"
	LayerVotingDistrict           Layer = "voting_district"
)

// IsLegislative reports whether a layer is a legislative district layer,
// which gets a ±1 tolerance on expected-count cross-validation.
func (l Layer) IsLegislative() bool {
	switch l {
	case LayerCongressionalDistrict, LayerStateSenate, LayerStateHouse:
		return true
	default:
		return false
	}
}

// AuthorityLevel ranks a source's provenance trustworthiness.
type AuthorityLevel string

const (
	AuthorityFederalTIGER   AuthorityLevel = "federal_tiger"
	AuthorityStatePrimary   AuthorityLevel = "state_primary"
	AuthorityStateDerived   AuthorityLevel = "state_derived"
)

// TriggerKind is the closed set of update-trigger policies a Source may
// declare (spec.md §4.1).
type TriggerKind string

const (
	TriggerAnnual        TriggerKind = "annual"
	TriggerRedistricting TriggerKind = "redistricting"
	TriggerForced        TriggerKind = "forced"
)

// UpdateTrigger describes when a source becomes eligible for a scheduled
// change check.
type UpdateTrigger struct {
	Kind TriggerKind

	// AnnualReleaseMonth is the UTC month (1-12) a TriggerAnnual source is
	// eligible in. Ignored for other kinds.
	AnnualReleaseMonth int

	// RedistrictingGracePeriod marks legislative boundaries that get extra
	// leeway during a redistricting-eligible year (spec.md §4.1).
	RedistrictingGracePeriod bool
}

// Source is one (layer, region, vintage) entry in the registry.
type Source struct {
	ID string // canonical id: "<layer>:<state_fips>:<vintage>"

	Layer       Layer
	StateFIPS   string // "" for nationwide/territory-spanning sources
	Vintage     int
	URL         string
	GEOIDFormat string // regex describing valid ids for this layer

	// ExpectedCount is nullable: -1 means "unknown, skip count validation".
	ExpectedCount int

	Authority AuthorityLevel
	Trigger   UpdateTrigger

	// ChecksumSHA256 is the known-good digest for integrity verification,
	// empty when no manifest entry exists for this source.
	ChecksumSHA256 string
}

// Registry is the immutable collection of Sources, indexed for fast lookup.
type Registry struct {
	sources []Source
	byID    map[string]Source
}

// SourceID builds the canonical identifier for a (layer, stateFIPS, vintage)
// triple, matching the "<layer>:<state_fips>:<year>" shape of spec.md §6.
func SourceID(layer Layer, stateFIPS string, vintage int) string {
	return fmt.Sprintf("%s:%s:%d", layer, stateFIPS, vintage)
}

// New builds an immutable Registry from a slice of Sources. IDs are derived
// from (Layer, StateFIPS, Vintage) if not already set.
func New(sources []Source) *Registry {
	r := &Registry{
		sources: make([]Source, len(sources)),
		byID:    make(map[string]Source, len(sources)),
	}
	for i, s := range sources {
		if s.ID == "" {
			s.ID = SourceID(s.Layer, s.StateFIPS, s.Vintage)
		}
		r.sources[i] = s
		r.byID[s.ID] = s
	}
	return r
}

// Get returns the Source for an id, if present.
func (r *Registry) Get(id string) (Source, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// Lookup returns the Source for a (layer, stateFIPS, vintage) triple.
func (r *Registry) Lookup(layer Layer, stateFIPS string, vintage int) (Source, bool) {
	return r.Get(SourceID(layer, stateFIPS, vintage))
}

// All returns every Source in the registry, in registration order.
func (r *Registry) All() []Source {
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// ForLayers returns every Source matching one of the given layers.
func (r *Registry) ForLayers(layers []Layer) []Source {
	want := make(map[Layer]bool, len(layers))
	for _, l := range layers {
		want[l] = true
	}
	var out []Source
	for _, s := range r.sources {
		if want[s.Layer] {
			out = append(out, s)
		}
	}
	return out
}

// ForStatesAndLayers returns every Source matching one of the given state
// FIPS codes and one of the given layers (scope of a buildAtlas call).
func (r *Registry) ForStatesAndLayers(stateFIPS []string, layers []Layer) []Source {
	wantStates := make(map[string]bool, len(stateFIPS))
	for _, s := range stateFIPS {
		wantStates[s] = true
	}
	wantLayers := make(map[Layer]bool, len(layers))
	for _, l := range layers {
		wantLayers[l] = true
	}
	var out []Source
	for _, s := range r.sources {
		if wantLayers[s.Layer] && (len(wantStates) == 0 || wantStates[s.StateFIPS]) {
			out = append(out, s)
		}
	}
	return out
}
