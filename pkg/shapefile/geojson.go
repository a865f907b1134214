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

// Package shapefile decodes the two raw boundary file formats the
// acquisition pipeline downloads: GeoJSON (native) and the ESRI shapefile
// (wrapped in a zip). Both decoders produce the same FeatureCollection the
// Post-Download Validator and Normalizer operate on.
package shapefile

import (
	"encoding/json"
	"fmt"

	"github.com/kraklabs/boundaryatlas/pkg/geo"
)

// GeometryType is the closed set of geometry kinds a Feature may carry.
type GeometryType string

const (
	GeometryPolygon      GeometryType = "Polygon"
	GeometryMultiPolygon GeometryType = "MultiPolygon"
	GeometryPoint        GeometryType = "Point"
	GeometryNull         GeometryType = ""
)

// Geometry is a parsed feature geometry, normalized to a MultiPolygon
// representation regardless of whether the source was Polygon or
// MultiPolygon (a bare Polygon becomes a one-element MultiPolygon).
type Geometry struct {
	Type         GeometryType
	MultiPolygon geo.MultiPolygon
}

// Feature is one parsed GeoJSON feature: its properties and geometry.
type Feature struct {
	Properties map[string]any
	Geometry   Geometry
}

// FeatureCollection is the parsed top-level GeoJSON object the Post-Download
// Validator and Normalizer operate on.
type FeatureCollection struct {
	Type     string
	Features []Feature
}

// rawFeatureCollection mirrors the wire format for decoding via encoding/json before
// converting to the geo package's coordinate types.
type rawFeatureCollection struct {
	Type     string     `json:"type"`
	Features []rawFeature `json:"features"`
}

type rawFeature struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Geometry   rawGeometry    `json:"geometry"`
}

type rawGeometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

// ParseGeoJSON decodes raw GeoJSON bytes into a FeatureCollection.
func ParseGeoJSON(data []byte) (*FeatureCollection, error) {
	var raw rawFeatureCollection
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}

	fc := &FeatureCollection{Type: raw.Type}
	for _, rf := range raw.Features {
		geom, err := convertGeometry(rf.Geometry)
		if err != nil {
			return nil, fmt.Errorf("convert feature geometry: %w", err)
		}
		fc.Features = append(fc.Features, Feature{
			Properties: rf.Properties,
			Geometry:   geom,
		})
	}
	return fc, nil
}

func convertGeometry(rg rawGeometry) (Geometry, error) {
	switch rg.Type {
	case string(GeometryPolygon):
		poly, err := decodePolygonCoords(rg.Coordinates)
		if err != nil {
			return Geometry{}, err
		}
		return Geometry{Type: GeometryPolygon, MultiPolygon: geo.MultiPolygon{poly}}, nil
	case string(GeometryMultiPolygon):
		mp, err := decodeMultiPolygonCoords(rg.Coordinates)
		if err != nil {
			return Geometry{}, err
		}
		return Geometry{Type: GeometryMultiPolygon, MultiPolygon: mp}, nil
	case string(GeometryPoint):
		return Geometry{Type: GeometryPoint}, nil
	default:
		return Geometry{Type: GeometryNull}, nil
	}
}

func decodePolygonCoords(raw any) (geo.Polygon, error) {
	rings, ok := raw.([]any)
	if !ok || len(rings) == 0 {
		return geo.Polygon{}, fmt.Errorf("polygon coordinates: expected non-empty ring array")
	}
	outer, err := decodeRing(rings[0])
	if err != nil {
		return geo.Polygon{}, fmt.Errorf("outer ring: %w", err)
	}
	poly := geo.Polygon{Outer: outer}
	for _, h := range rings[1:] {
		hole, err := decodeRing(h)
		if err != nil {
			return geo.Polygon{}, fmt.Errorf("hole ring: %w", err)
		}
		poly.Holes = append(poly.Holes, hole)
	}
	return poly, nil
}

func decodeMultiPolygonCoords(raw any) (geo.MultiPolygon, error) {
	polys, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("multipolygon coordinates: expected polygon array")
	}
	mp := make(geo.MultiPolygon, 0, len(polys))
	for _, p := range polys {
		poly, err := decodePolygonCoords(p)
		if err != nil {
			return nil, err
		}
		mp = append(mp, poly)
	}
	return mp, nil
}

func decodeRing(raw any) (geo.Ring, error) {
	points, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("ring: expected coordinate array")
	}
	ring := make(geo.Ring, 0, len(points))
	for _, pt := range points {
		coord, ok := pt.([]any)
		if !ok || len(coord) < 2 {
			return nil, fmt.Errorf("coordinate: expected [lon, lat]")
		}
		lon, ok1 := coord[0].(float64)
		lat, ok2 := coord[1].(float64)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("coordinate: expected numeric lon/lat")
		}
		ring = append(ring, geo.Point{Lon: lon, Lat: lat})
	}
	return ring, nil
}
