// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package result implements the polymorphic result container every operator
// produces and every cache entry stores: a discriminated variant over
// Raster | PointSet | LineSet | PolygonSet | Plot, with one capability
// surface the cache core needs and nothing else.
//
// Binary layout follows the teacher's binaryCheckpoint.go convention: a
// fixed magic + version header, then little-endian fields via
// encoding/binary, so the framing is self-describing without reflection.
//
//	Frame:
//	  magic:   [4]byte "GERX"
//	  version: uint32 LE
//	  kind:    uint8
//	  body:    kind-specific (see raster.go / vector.go / plot.go)
package result

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Kind discriminates which variant a Result value holds.
type Kind uint8

const (
	KindRaster Kind = iota
	KindPointSet
	KindLineSet
	KindPolygonSet
	KindPlot
)

func (k Kind) String() string {
	switch k {
	case KindRaster:
		return "raster"
	case KindPointSet:
		return "point_set"
	case KindLineSet:
		return "line_set"
	case KindPolygonSet:
		return "polygon_set"
	case KindPlot:
		return "plot"
	default:
		return "unknown"
	}
}

var frameMagic = [4]byte{'G', 'E', 'R', 'X'}

const frameVersion uint32 = 1

// Result is the common capability surface the cache core, the dispatcher,
// and the wire protocol need, regardless of which concrete variant a node
// produced. byte_size() must be a stable lower bound of heap occupancy: it
// is what eviction accounting is computed from.
type Result interface {
	Kind() Kind
	ByteSize() int
	DeepCopy() Result
	WriteFramed(w io.Writer) error
}

// WriteFrame writes the common header followed by r's own encoding.
func WriteFrame(w io.Writer, r Result) error {
	var hdr [4 + 4 + 1]byte
	copy(hdr[0:4], frameMagic[:])
	binary.LittleEndian.PutUint32(hdr[4:8], frameVersion)
	hdr[8] = byte(r.Kind())
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	return r.WriteFramed(w)
}

// ReadFrame reads the common header and dispatches to the matching variant's
// decoder. Unknown kind tags and magic/version mismatches are reported as
// plain errors; the protocol layer is responsible for turning them into a
// ProtocolError response.
func ReadFrame(r io.Reader) (Result, error) {
	var hdr [4 + 4 + 1]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("result: short frame header: %w", err)
	}
	if [4]byte(hdr[0:4]) != frameMagic {
		return nil, fmt.Errorf("result: bad frame magic %q", hdr[0:4])
	}
	if v := binary.LittleEndian.Uint32(hdr[4:8]); v != frameVersion {
		return nil, fmt.Errorf("result: unsupported frame version %d", v)
	}

	switch Kind(hdr[8]) {
	case KindRaster:
		return readRasterFramed(r)
	case KindPointSet:
		return readPointSetFramed(r)
	case KindLineSet:
		return readLineSetFramed(r)
	case KindPolygonSet:
		return readPolygonSetFramed(r)
	case KindPlot:
		return readPlotFramed(r)
	default:
		return nil, fmt.Errorf("result: unknown kind tag %d", hdr[8])
	}
}
