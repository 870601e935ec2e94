// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package result

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Feature is one vector element: a flat coordinate list (lon,lat pairs for
// PointSet, vertex chains for LineSet/PolygonSet) plus the timestamp it was
// valid at. Coordinates are left un-interpreted here; only the enclosing
// PointSet/LineSet/PolygonSet knows how to group them into geometries.
type Feature struct {
	Coords    []float64
	Timestamp float64
}

func writeFeatures(w io.Writer, features []Feature) error {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(features)))
	if _, err := w.Write(n[:]); err != nil {
		return err
	}
	for _, f := range features {
		var hdr [8 + 4]byte
		binary.LittleEndian.PutUint64(hdr[0:8], math.Float64bits(f.Timestamp))
		binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(f.Coords)))
		if _, err := w.Write(hdr[:]); err != nil {
			return err
		}
		for _, c := range f.Coords {
			var cb [8]byte
			binary.LittleEndian.PutUint64(cb[:], math.Float64bits(c))
			if _, err := w.Write(cb[:]); err != nil {
				return err
			}
		}
	}
	return nil
}

func readFeatures(r io.Reader) ([]Feature, error) {
	var n [4]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return nil, fmt.Errorf("result: short feature count: %w", err)
	}
	count := binary.LittleEndian.Uint32(n[:])
	features := make([]Feature, 0, count)
	for i := uint32(0); i < count; i++ {
		var hdr [8 + 4]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, fmt.Errorf("result: short feature header: %w", err)
		}
		ts := math.Float64frombits(binary.LittleEndian.Uint64(hdr[0:8]))
		coordCount := binary.LittleEndian.Uint32(hdr[8:12])
		coords := make([]float64, coordCount)
		for j := range coords {
			var cb [8]byte
			if _, err := io.ReadFull(r, cb[:]); err != nil {
				return nil, fmt.Errorf("result: short coordinate: %w", err)
			}
			coords[j] = math.Float64frombits(binary.LittleEndian.Uint64(cb[:]))
		}
		features = append(features, Feature{Coords: coords, Timestamp: ts})
	}
	return features, nil
}

func featuresByteSize(features []Feature) int {
	total := 0
	for _, f := range features {
		total += 12 + len(f.Coords)*8
	}
	return total
}

func deepCopyFeatures(features []Feature) []Feature {
	cp := make([]Feature, len(features))
	for i, f := range features {
		coords := make([]float64, len(f.Coords))
		copy(coords, f.Coords)
		cp[i] = Feature{Coords: coords, Timestamp: f.Timestamp}
	}
	return cp
}

// PointSet, LineSet and PolygonSet share the same on-wire shape (a feature
// count, followed by each feature's timestamp and flat coordinate list) and
// differ only in how the coordinate list is grouped into geometries by
// operators that consume them; the cache and protocol layers never need to
// know the grouping.

type PointSet struct {
	CRSID    uint16
	Features []Feature
}

var _ Result = (*PointSet)(nil)

func (p *PointSet) Kind() Kind        { return KindPointSet }
func (p *PointSet) ByteSize() int     { return 2 + featuresByteSize(p.Features) }
func (p *PointSet) DeepCopy() Result  { return &PointSet{CRSID: p.CRSID, Features: deepCopyFeatures(p.Features)} }
func (p *PointSet) WriteFramed(w io.Writer) error {
	return writeVectorFramed(w, p.CRSID, p.Features)
}

func readPointSetFramed(r io.Reader) (Result, error) {
	crs, features, err := readVectorFramed(r)
	if err != nil {
		return nil, err
	}
	return &PointSet{CRSID: crs, Features: features}, nil
}

type LineSet struct {
	CRSID    uint16
	Features []Feature
}

var _ Result = (*LineSet)(nil)

func (l *LineSet) Kind() Kind       { return KindLineSet }
func (l *LineSet) ByteSize() int    { return 2 + featuresByteSize(l.Features) }
func (l *LineSet) DeepCopy() Result { return &LineSet{CRSID: l.CRSID, Features: deepCopyFeatures(l.Features)} }
func (l *LineSet) WriteFramed(w io.Writer) error {
	return writeVectorFramed(w, l.CRSID, l.Features)
}

func readLineSetFramed(r io.Reader) (Result, error) {
	crs, features, err := readVectorFramed(r)
	if err != nil {
		return nil, err
	}
	return &LineSet{CRSID: crs, Features: features}, nil
}

type PolygonSet struct {
	CRSID    uint16
	Features []Feature
}

var _ Result = (*PolygonSet)(nil)

func (p *PolygonSet) Kind() Kind       { return KindPolygonSet }
func (p *PolygonSet) ByteSize() int    { return 2 + featuresByteSize(p.Features) }
func (p *PolygonSet) DeepCopy() Result {
	return &PolygonSet{CRSID: p.CRSID, Features: deepCopyFeatures(p.Features)}
}
func (p *PolygonSet) WriteFramed(w io.Writer) error {
	return writeVectorFramed(w, p.CRSID, p.Features)
}

func readPolygonSetFramed(r io.Reader) (Result, error) {
	crs, features, err := readVectorFramed(r)
	if err != nil {
		return nil, err
	}
	return &PolygonSet{CRSID: crs, Features: features}, nil
}

func writeVectorFramed(w io.Writer, crsID uint16, features []Feature) error {
	var crs [2]byte
	binary.LittleEndian.PutUint16(crs[:], crsID)
	if _, err := w.Write(crs[:]); err != nil {
		return err
	}
	return writeFeatures(w, features)
}

func readVectorFramed(r io.Reader) (uint16, []Feature, error) {
	var crs [2]byte
	if _, err := io.ReadFull(r, crs[:]); err != nil {
		return 0, nil, fmt.Errorf("result: short vector crs: %w", err)
	}
	features, err := readFeatures(r)
	if err != nil {
		return 0, nil, err
	}
	return binary.LittleEndian.Uint16(crs[:]), features, nil
}
