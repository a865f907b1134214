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

// ESRI shapefile decoding. The format used by TIGER/Line and most state
// GIS portals: a zip containing a .shp (geometry), .shx (index, unused
// here), and .dbf (attributes). This decoder reads polygon and
// multipolygon shape types directly off the documented binary layout
// (ESRI Shapefile Technical Description, 1998) using encoding/binary.
// Z/M coordinate values and most .dbf attribute types beyond strings are
// intentionally unsupported; see DESIGN.md for why a minimal decoder is
// in-scope here rather than an external dependency.
package shapefile

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/kraklabs/boundaryatlas/pkg/geo"
)

const (
	shapeTypeNull        = 0
	shapeTypePolygon     = 5
	shapeTypePolygonZ    = 15
	shapeTypePolygonM    = 25
)

// ParseShapefileZip extracts the .shp and .dbf members from a zip archive
// and decodes them into a FeatureCollection.
func ParseShapefileZip(data []byte) (*FeatureCollection, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open shapefile zip: %w", err)
	}

	var shpBytes, dbfBytes []byte
	for _, f := range zr.File {
		lower := strings.ToLower(f.Name)
		switch {
		case strings.HasSuffix(lower, ".shp"):
			shpBytes, err = readZipFile(f)
		case strings.HasSuffix(lower, ".dbf"):
			dbfBytes, err = readZipFile(f)
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
	}
	if shpBytes == nil {
		return nil, fmt.Errorf("shapefile zip: no .shp member found")
	}

	polygons, err := decodeSHP(shpBytes)
	if err != nil {
		return nil, fmt.Errorf("decode .shp: %w", err)
	}

	var records []map[string]any
	if dbfBytes != nil {
		records, err = decodeDBF(dbfBytes)
		if err != nil {
			return nil, fmt.Errorf("decode .dbf: %w", err)
		}
	}

	fc := &FeatureCollection{Type: "FeatureCollection"}
	for i, poly := range polygons {
		props := map[string]any{}
		if i < len(records) {
			props = records[i]
		}
		geomType := GeometryPolygon
		if len(poly) > 1 {
			geomType = GeometryMultiPolygon
		}
		fc.Features = append(fc.Features, Feature{
			Properties: props,
			Geometry:   Geometry{Type: geomType, MultiPolygon: poly},
		})
	}
	return fc, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// decodeSHP reads the shapefile main file header (100 bytes) followed by a
// sequence of variable-length records, each holding one polygon shape's
// rings. Rings are not grouped by the shapefile winding convention
// (clockwise outer rings, counter-clockwise holes): every ring becomes the
// outer ring of its own polygon, so holes are not represented.
func decodeSHP(data []byte) ([]geo.MultiPolygon, error) {
	if len(data) < 100 {
		return nil, fmt.Errorf("shp file too short for header")
	}
	// File header: big-endian file code at offset 0, file length at 24
	// (in 16-bit words), then little-endian version/shape type at 28/32.
	fileLengthWords := binary.BigEndian.Uint32(data[24:28])
	fileLength := int(fileLengthWords) * 2
	if fileLength > len(data) {
		fileLength = len(data)
	}

	var result []geo.MultiPolygon
	offset := 100
	for offset+8 <= fileLength {
		// Record header: big-endian record number (4), content length in
		// 16-bit words (4).
		contentLenWords := binary.BigEndian.Uint32(data[offset+4 : offset+8])
		contentLen := int(contentLenWords) * 2
		recStart := offset + 8
		recEnd := recStart + contentLen
		if recEnd > len(data) {
			break
		}

		shapeType := binary.LittleEndian.Uint32(data[recStart : recStart+4])
		switch shapeType {
		case shapeTypeNull:
			// no geometry
		case shapeTypePolygon, shapeTypePolygonZ, shapeTypePolygonM:
			mp, err := decodePolygonRecord(data[recStart:recEnd])
			if err != nil {
				return nil, err
			}
			result = append(result, mp)
		default:
			return nil, fmt.Errorf("unsupported shape type %d", shapeType)
		}

		offset = recEnd
	}
	return result, nil
}

// decodePolygonRecord decodes the Polygon record layout: bounding box (32
// bytes), NumParts (int32), NumPoints (int32), Parts (int32 array, point
// indices into Points), Points (pairs of float64 X,Y).
func decodePolygonRecord(rec []byte) (geo.MultiPolygon, error) {
	const headerLen = 4 + 32 // shape type + bbox
	if len(rec) < headerLen+8 {
		return nil, fmt.Errorf("polygon record too short")
	}
	numParts := int(binary.LittleEndian.Uint32(rec[headerLen : headerLen+4]))
	numPoints := int(binary.LittleEndian.Uint32(rec[headerLen+4 : headerLen+8]))

	partsOffset := headerLen + 8
	pointsOffset := partsOffset + numParts*4
	if pointsOffset+numPoints*16 > len(rec) {
		return nil, fmt.Errorf("polygon record truncated")
	}

	parts := make([]int, numParts)
	for i := 0; i < numParts; i++ {
		parts[i] = int(binary.LittleEndian.Uint32(rec[partsOffset+i*4 : partsOffset+i*4+4]))
	}

	points := make(geo.Ring, numPoints)
	for i := 0; i < numPoints; i++ {
		o := pointsOffset + i*16
		x := float64frombits(rec[o : o+8])
		y := float64frombits(rec[o+8 : o+16])
		points[i] = geo.Point{Lon: x, Lat: y}
	}

	var mp geo.MultiPolygon
	for i := 0; i < numParts; i++ {
		start := parts[i]
		end := numPoints
		if i+1 < numParts {
			end = parts[i+1]
		}
		if start >= end || end > len(points) {
			continue
		}
		mp = append(mp, geo.Polygon{Outer: append(geo.Ring{}, points[start:end]...)})
	}
	return mp, nil
}

func float64frombits(b []byte) float64 {
	bits := binary.LittleEndian.Uint64(b)
	return math.Float64frombits(bits)
}

// decodeDBF reads the subset of the dBase III attribute format shapefiles
// carry: a 32-byte header (field count derived from HeaderLen), a field
// descriptor array (32 bytes each, name + type + length), then fixed-width
// ASCII records. Every field is returned as its space-trimmed text whatever
// its declared type; numeric fields are not parsed. This matches what the Post-Download
// Validator and Normalizer need (GEOID, NAME, and similar string/numeric
// attributes) without a general-purpose dbf library, which nothing in the
// pack carries as a dependency.
func decodeDBF(data []byte) ([]map[string]any, error) {
	if len(data) < 32 {
		return nil, fmt.Errorf("dbf file too short for header")
	}
	numRecords := int(binary.LittleEndian.Uint32(data[4:8]))
	headerLen := int(binary.LittleEndian.Uint16(data[8:10]))
	recordLen := int(binary.LittleEndian.Uint16(data[10:12]))
	if headerLen <= 0 || recordLen <= 0 || headerLen > len(data) {
		return nil, fmt.Errorf("dbf file: invalid header/record length")
	}

	type field struct {
		name      string
		fieldType byte
		length    int
	}

	var fields []field
	for off := 32; off+32 <= headerLen-1; off += 32 {
		desc := data[off : off+32]
		nameEnd := bytes.IndexByte(desc[:11], 0)
		if nameEnd < 0 {
			nameEnd = 11
		}
		fields = append(fields, field{
			name:      string(bytes.TrimRight(desc[:nameEnd], " ")),
			fieldType: desc[11],
			length:    int(desc[16]),
		})
	}

	records := make([]map[string]any, 0, numRecords)
	recOffset := headerLen
	for i := 0; i < numRecords; i++ {
		if recOffset+recordLen > len(data) {
			break
		}
		rec := data[recOffset : recOffset+recordLen]
		recOffset += recordLen
		if len(rec) > 0 && rec[0] == '*' {
			continue // marked deleted
		}

		props := make(map[string]any, len(fields))
		fieldOffset := 1 // leading deletion-flag byte
		for _, f := range fields {
			if fieldOffset+f.length > len(rec) {
				break
			}
			raw := string(bytes.TrimSpace(rec[fieldOffset : fieldOffset+f.length]))
			fieldOffset += f.length
			props[f.name] = raw
		}
		records = append(records, props)
	}
	return records, nil
}
