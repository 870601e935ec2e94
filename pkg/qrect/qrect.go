// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package qrect implements the value types that scope every query answered
// by the server: the spatial/temporal/resolution rectangle a client asks
// for (QueryRectangle) and the metadata stamped on a produced result
// (SpatioTemporalReference). Both are small, immutable, fixed-width value
// types — the wire-format layout documented below is part of the binary
// protocol and must not change without a protocol version bump.
package qrect

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// TimeType discriminates the time-encoding convention a SpatioTemporalReference
// was stamped with. The cache only ever accepts TimeTypeUnix; anything else
// flowing into a cache lookup is an upstream invariant violation.
type TimeType uint8

const (
	TimeTypeUnix TimeType = iota
	TimeTypeISO
	TimeTypeNone
)

func (t TimeType) String() string {
	switch t {
	case TimeTypeUnix:
		return "unix"
	case TimeTypeISO:
		return "iso"
	default:
		return "none"
	}
}

// QueryRectangle is the scope of one client request: coordinate system,
// spatial bounds, a single instant, and a target pixel resolution.
//
// Invariants (enforced by New, never by the zero value — callers that build
// one by hand are expected to have validated it already, same as the rest of
// this package):
//   - X1 <= X2, Y1 <= Y2
//   - XRes, YRes >= 1 whenever a gridded result is requested (XRes/YRes == 0
//     is used by non-gridded queries, e.g. point/line/polygon/plot results)
type QueryRectangle struct {
	CRSID     uint16
	X1, X2    float64
	Y1, Y2    float64
	Timestamp float64
	XRes      uint32
	YRes      uint32
}

// New validates and constructs a QueryRectangle.
func New(crsID uint16, x1, y1, x2, y2, timestamp float64, xres, yres uint32) (QueryRectangle, error) {
	q := QueryRectangle{CRSID: crsID, X1: x1, Y1: y1, X2: x2, Y2: y2, Timestamp: timestamp, XRes: xres, YRes: yres}
	if q.X1 > q.X2 || q.Y1 > q.Y2 {
		return QueryRectangle{}, fmt.Errorf("qrect: inverted bounds (%v,%v)-(%v,%v)", x1, y1, x2, y2)
	}
	return q, nil
}

// MinX/MaxX/MinY/MaxY are tolerant to rectangles whose axis sign was given
// inverted by a caller (e.g. a CRS with a flipped Y axis upstream).
func (q QueryRectangle) MinX() float64 { return min(q.X1, q.X2) }
func (q QueryRectangle) MaxX() float64 { return max(q.X1, q.X2) }
func (q QueryRectangle) MinY() float64 { return min(q.Y1, q.Y2) }
func (q QueryRectangle) MaxY() float64 { return max(q.Y1, q.Y2) }

// WireSize is the length of the fixed-width little-endian encoding used on the socket:
// crs_id(u16) x1,y1,x2,y2,timestamp(f64 x5) xres,yres(u32 x2) = 2 + 40 + 8 = 50 bytes.
const WireSize = 2 + 5*8 + 2*4

// Serialize writes the fixed-width wire encoding of q to w.
func (q QueryRectangle) Serialize(w io.Writer) error {
	var buf [WireSize]byte
	binary.LittleEndian.PutUint16(buf[0:2], q.CRSID)
	binary.LittleEndian.PutUint64(buf[2:10], math.Float64bits(q.X1))
	binary.LittleEndian.PutUint64(buf[10:18], math.Float64bits(q.Y1))
	binary.LittleEndian.PutUint64(buf[18:26], math.Float64bits(q.X2))
	binary.LittleEndian.PutUint64(buf[26:34], math.Float64bits(q.Y2))
	binary.LittleEndian.PutUint64(buf[34:42], math.Float64bits(q.Timestamp))
	binary.LittleEndian.PutUint32(buf[42:46], q.XRes)
	binary.LittleEndian.PutUint32(buf[46:50], q.YRes)
	_, err := w.Write(buf[:])
	return err
}

// Deserialize reads the fixed-width wire encoding into a fresh QueryRectangle.
// A short read is reported as io.ErrUnexpectedEOF, which the protocol layer
// surfaces to the peer as a ProtocolError.
func Deserialize(r io.Reader) (QueryRectangle, error) {
	var buf [WireSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.EOF {
			return QueryRectangle{}, io.EOF
		}
		return QueryRectangle{}, io.ErrUnexpectedEOF
	}

	return QueryRectangle{
		CRSID:     binary.LittleEndian.Uint16(buf[0:2]),
		X1:        math.Float64frombits(binary.LittleEndian.Uint64(buf[2:10])),
		Y1:        math.Float64frombits(binary.LittleEndian.Uint64(buf[10:18])),
		X2:        math.Float64frombits(binary.LittleEndian.Uint64(buf[18:26])),
		Y2:        math.Float64frombits(binary.LittleEndian.Uint64(buf[26:34])),
		Timestamp: math.Float64frombits(binary.LittleEndian.Uint64(buf[34:42])),
		XRes:      binary.LittleEndian.Uint32(buf[42:46]),
		YRes:      binary.LittleEndian.Uint32(buf[46:50]),
	}, nil
}

// Enlarge grows the bbox by `pixels` pixels on every side, preserving the
// pixel-to-world scale, and grows XRes/YRes by 2*pixels. Operators that need
// a border (convolution, rasterization) call this before requesting a
// child's result. Enlarge(n) followed by Enlarge(-n) restores X1..Y2 (up to
// floating-point rounding, since the second call recomputes the scale from
// the enlarged rectangle). XRes/YRes are restored too, except where a
// shrink would take them below zero: they are then clamped to 0, and later
// calls leave the rectangle unchanged.
func (q QueryRectangle) Enlarge(pixels int) QueryRectangle {
	if q.XRes == 0 || q.YRes == 0 {
		return q
	}

	xScale := (q.X2 - q.X1) / float64(q.XRes)
	yScale := (q.Y2 - q.Y1) / float64(q.YRes)
	margin := float64(pixels)

	out := q
	out.X1 = q.X1 - margin*xScale
	out.X2 = q.X2 + margin*xScale
	out.Y1 = q.Y1 - margin*yScale
	out.Y2 = q.Y2 + margin*yScale
	out.XRes = addPixels(q.XRes, pixels)
	out.YRes = addPixels(q.YRes, pixels)
	return out
}

func addPixels(res uint32, pixels int) uint32 {
	delta := int64(2 * pixels)
	result := int64(res) + delta
	if result < 0 {
		return 0
	}
	return uint32(result)
}

// SpatioTemporalReference is the metadata stamped on every produced result:
// what region, instant range, and coordinate system it is valid for. Bounds
// here may be larger than the query that triggered production, because
// producers are free to round outward to pixel boundaries.
type SpatioTemporalReference struct {
	CRSID    uint16
	X1, X2   float64
	Y1, Y2   float64
	T1, T2   float64
	TimeType TimeType
}

// Covers2D reports whether the 2D bounds of s contain the 2D bounds of q,
// without any tolerance. The cache's match predicate uses it for entries
// without a pixel grid, where no half-pixel tolerance applies.
func (s SpatioTemporalReference) Covers2D(q QueryRectangle) bool {
	return q.MinX() >= s.X1 && q.MaxX() <= s.X2 && q.MinY() >= s.Y1 && q.MaxY() <= s.Y2
}

