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

	"github.com/geoengine/ge-backend/pkg/qrect"
)

// DataType names the pixel element type of a Raster's buffer. The cache
// never interprets pixel bytes, it only needs their count for byte_size();
// DataType exists so WriteFramed/ReadFramed can round-trip a raster without
// the producer having to tell the reader out of band.
type DataType uint8

const (
	DataTypeU8 DataType = iota
	DataTypeI16
	DataTypeF32
	DataTypeF64
)

// ByteWidth returns the size in bytes of one pixel element of this type.
// Producers use it to size a pixel buffer from width*height.
func (d DataType) ByteWidth() int {
	switch d {
	case DataTypeU8:
		return 1
	case DataTypeI16:
		return 2
	case DataTypeF32:
		return 4
	case DataTypeF64:
		return 8
	default:
		return 0
	}
}

// Raster is a 2D typed grid: a data descriptor, the SpatioTemporalReference
// it was produced for, and a raw pixel buffer in row-major order.
type Raster struct {
	Stref    qrect.SpatioTemporalReference
	Width    uint32
	Height   uint32
	DataType DataType
	Pixels   []byte
}

var _ Result = (*Raster)(nil)

func (r *Raster) Kind() Kind { return KindRaster }

// Dimensions reports the pixel grid size, used by the cache's resolution
// match predicate. Non-gridded Result variants do not implement this.
func (r *Raster) Dimensions() (width, height uint32) { return r.Width, r.Height }

// ByteSize is sizeof(header) + width*height*bpp, matching the spec's
// definition for eviction accounting; the header is fixed-size metadata so
// a constant covers it.
func (r *Raster) ByteSize() int {
	const headerBytes = 64
	return headerBytes + len(r.Pixels)
}

func (r *Raster) DeepCopy() Result {
	cp := &Raster{Stref: r.Stref, Width: r.Width, Height: r.Height, DataType: r.DataType}
	cp.Pixels = make([]byte, len(r.Pixels))
	copy(cp.Pixels, r.Pixels)
	return cp
}

func (r *Raster) WriteFramed(w io.Writer) error {
	var hdr [2 + 6*8 + 1 + 4 + 4 + 1 + 4]byte
	off := 0
	binary.LittleEndian.PutUint16(hdr[off:], r.Stref.CRSID)
	off += 2
	for _, f := range []float64{r.Stref.X1, r.Stref.Y1, r.Stref.X2, r.Stref.Y2} {
		binary.LittleEndian.PutUint64(hdr[off:], math.Float64bits(f))
		off += 8
	}
	binary.LittleEndian.PutUint64(hdr[off:], math.Float64bits(r.Stref.T1))
	off += 8
	binary.LittleEndian.PutUint64(hdr[off:], math.Float64bits(r.Stref.T2))
	off += 8
	hdr[off] = byte(r.Stref.TimeType)
	off++
	binary.LittleEndian.PutUint32(hdr[off:], r.Width)
	off += 4
	binary.LittleEndian.PutUint32(hdr[off:], r.Height)
	off += 4
	hdr[off] = byte(r.DataType)
	off++
	binary.LittleEndian.PutUint32(hdr[off:], uint32(len(r.Pixels)))
	off += 4

	if _, err := w.Write(hdr[:off]); err != nil {
		return err
	}
	_, err := w.Write(r.Pixels)
	return err
}

func readRasterFramed(r io.Reader) (Result, error) {
	var hdr [2 + 6*8 + 1 + 4 + 4 + 1 + 4]byte
	// The header mirrors WriteFramed: crs, x1, y1, x2, y2, t1, t2, time
	// type, width, height, data type, pixel byte count.
	const fixedLen = 2 + 4*8 + 8 + 8 + 1 + 4 + 4 + 1 + 4
	buf := hdr[:fixedLen]
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("result: short raster header: %w", err)
	}

	off := 0
	crs := binary.LittleEndian.Uint16(buf[off:])
	off += 2
	x1 := math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	y1 := math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	x2 := math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	y2 := math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	t1 := math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	t2 := math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	timeType := buf[off]
	off++
	width := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	height := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	dtype := buf[off]
	off++
	n := binary.LittleEndian.Uint32(buf[off:])

	pixels := make([]byte, n)
	if _, err := io.ReadFull(r, pixels); err != nil {
		return nil, fmt.Errorf("result: short raster pixels: %w", err)
	}

	return &Raster{
		Stref: qrect.SpatioTemporalReference{
			CRSID: crs, X1: x1, Y1: y1, X2: x2, Y2: y2, T1: t1, T2: t2,
			TimeType: qrect.TimeType(timeType),
		},
		Width: width, Height: height, DataType: DataType(dtype), Pixels: pixels,
	}, nil
}
