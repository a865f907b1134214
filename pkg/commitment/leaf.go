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

// Package commitment implements the Commitment Engine: deterministic leaf
// encoding of Canonical Boundaries, lexicographic ordering, and Merkle
// tree construction over the ordered leaves. The root plus build metadata
// form an immutable Snapshot.
package commitment

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/kraklabs/boundaryatlas/internal/atlaserrors"
	"github.com/kraklabs/boundaryatlas/pkg/geo"
	"github.com/kraklabs/boundaryatlas/pkg/normalize"
)

// coordinateScale fixes geometry precision at 1e-7 degrees (~1.1cm at the
// equator), matching the fixed-precision integer encoding TIGER-derived
// tooling typically uses for GEOID-keyed boundaries.
const coordinateScale = 1e7

// EncodeLeaf produces the canonical byte serialization of a Canonical
// Boundary: id, name, level, geometry at fixed precision, and provenance,
// in a fixed field order so that identical boundaries always encode to
// identical bytes. This is the "any encoding scheme... provided it is a
// total, order-preserving function" contract; the function chosen here is
// a flat length-prefixed field concatenation.
func EncodeLeaf(b normalize.Boundary) []byte {
	var buf bytes.Buffer
	writeString(&buf, b.ID)
	writeString(&buf, b.Name)
	writeString(&buf, string(b.Level))

	writeUint32(&buf, uint32(len(b.Geometry)))
	for _, poly := range b.Geometry {
		writeRing(&buf, poly.Outer)
		writeUint32(&buf, uint32(len(poly.Holes)))
		for _, hole := range poly.Holes {
			writeRing(&buf, hole)
		}
	}

	p := b.Provenance
	writeString(&buf, p.Provider)
	writeString(&buf, p.URL)
	writeUint32(&buf, uint32(p.Vintage))
	writeString(&buf, p.License)
	writeString(&buf, p.RetrievedAt.UTC().Format("2006-01-02T15:04:05Z"))
	writeString(&buf, p.ContentSHA256)
	writeString(&buf, string(p.AuthorityLevel))
	writeString(&buf, p.LegalStatus)
	writeString(&buf, p.CoordinateSystem)

	return buf.Bytes()
}

// writeRing encodes a ring's vertices as fixed-precision (scale 1e7)
// big-endian int64 lon/lat pairs, so that floating-point representation
// differences never change the encoded bytes for equal coordinates.
func writeRing(buf *bytes.Buffer, r geo.Ring) {
	writeUint32(buf, uint32(len(r)))
	for _, p := range r {
		writeInt64(buf, int64(math.Round(p.Lon*coordinateScale)))
		writeInt64(buf, int64(math.Round(p.Lat*coordinateScale)))
	}
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

// Leaf is one Merkle leaf: the boundary id (for ordering/tie detection)
// and its hashed encoding.
type Leaf struct {
	ID   string
	Hash [32]byte
}

// HashLeaves sorts boundaries by id, hashes each one's canonical encoding,
// and detects duplicate ids, which the id-uniqueness invariant forbids.
func HashLeaves(boundaries []normalize.Boundary) ([]Leaf, error) {
	sorted := make([]normalize.Boundary, len(boundaries))
	copy(sorted, boundaries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	leaves := make([]Leaf, 0, len(sorted))
	for i, b := range sorted {
		if i > 0 && sorted[i-1].ID == b.ID {
			return nil, atlaserrors.New(atlaserrors.KindDuplicateID, fmt.Sprintf("duplicate boundary id %q", b.ID))
		}
		h := sha256.Sum256(EncodeLeaf(b))
		leaves = append(leaves, Leaf{ID: b.ID, Hash: h})
	}
	return leaves, nil
}
