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

// Package normalize converts validated Features into Canonical Boundary
// records: stable id, display name, level, geometry pinned to EPSG:4326
// with closed, deduplicated rings, and an attached provenance block.
package normalize

import (
	"fmt"
	"time"

	"github.com/kraklabs/boundaryatlas/pkg/geo"
	"github.com/kraklabs/boundaryatlas/pkg/registry"
	"github.com/kraklabs/boundaryatlas/pkg/shapefile"
)

// Level is the closed set of boundary levels a Canonical Boundary may
// carry, distinct from Layer (several layers can share a level, e.g.
// state_senate and state_house are both "district").
type Level string

const (
	LevelDistrict Level = "district"
	LevelCounty   Level = "county"
	LevelCity     Level = "city"
)

// LayerLevel maps a registry Layer to its Canonical Boundary Level.
func LayerLevel(layer registry.Layer) Level {
	switch layer {
	case registry.LayerCounty:
		return LevelCounty
	case registry.LayerPlace:
		return LevelCity
	default:
		return LevelDistrict
	}
}

// Provenance is the non-empty record every Canonical Boundary must carry.
type Provenance struct {
	Provider        string
	URL             string
	Vintage         int
	License         string
	RetrievedAt     time.Time
	ContentSHA256   string
	AuthorityLevel  registry.AuthorityLevel
	LegalStatus     string
	CoordinateSystem string
}

// Boundary is the invariant Canonical Boundary record (spec.md §3).
type Boundary struct {
	ID         string
	Name       string
	Level      Level
	Layer      registry.Layer
	StateFIPS  string
	Geometry   geo.MultiPolygon
	Provenance Provenance
}

// Options parameterizes normalization with values not derivable from the
// Feature itself: the source it came from and when it was retrieved.
type Options struct {
	Source      registry.Source
	ContentSHA256 string
	RetrievedAt time.Time
	IDProperty  string // property key holding the GEOID; defaults to "GEOID"
	NameProperty string // property key holding the display name; defaults to "NAME"
	LegalStatus string
}

// Normalize converts one parsed Feature into a Canonical Boundary. Rings
// are closed and deduplicated; reprojection is a no-op here because the
// acquisition layer only ever downloads EPSG:4326 sources (spec.md allows
// the Normalizer to reproject "if necessary" — tracked as a future
// extension point, not exercised by any current Source).
func Normalize(f shapefile.Feature, opts Options) (Boundary, error) {
	idProp := opts.IDProperty
	if idProp == "" {
		idProp = "GEOID"
	}
	nameProp := opts.NameProperty
	if nameProp == "" {
		nameProp = "NAME"
	}

	id, ok := stringProperty(f.Properties, idProp)
	if !ok || id == "" {
		return Boundary{}, fmt.Errorf("normalize: feature missing id property %q", idProp)
	}
	name, _ := stringProperty(f.Properties, nameProp)

	mp := make(geo.MultiPolygon, len(f.Geometry.MultiPolygon))
	for i, poly := range f.Geometry.MultiPolygon {
		mp[i] = geo.Polygon{
			Outer: geo.DedupeConsecutive(geo.CloseRing(poly.Outer)),
		}
		for _, hole := range poly.Holes {
			mp[i].Holes = append(mp[i].Holes, geo.DedupeConsecutive(geo.CloseRing(hole)))
		}
	}

	return Boundary{
		ID:       id,
		Name:     name,
		Level:     LayerLevel(opts.Source.Layer),
		Layer:     opts.Source.Layer,
		StateFIPS: opts.Source.StateFIPS,
		Geometry:  mp,
		Provenance: Provenance{
			Provider:         opts.Source.URL,
			URL:              opts.Source.URL,
			Vintage:          opts.Source.Vintage,
			License:          "public domain",
			RetrievedAt:      opts.RetrievedAt,
			ContentSHA256:    opts.ContentSHA256,
			AuthorityLevel:   opts.Source.Authority,
			LegalStatus:      opts.LegalStatus,
			CoordinateSystem: "EPSG:4326",
		},
	}, nil
}

// NormalizeAll normalizes every feature in a FeatureCollection, stopping
// at the first error.
func NormalizeAll(fc *shapefile.FeatureCollection, opts Options) ([]Boundary, error) {
	out := make([]Boundary, 0, len(fc.Features))
	for _, f := range fc.Features {
		b, err := Normalize(f, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func stringProperty(props map[string]any, key string) (string, bool) {
	v, ok := props[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
