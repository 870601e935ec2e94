// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package result

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Plot is a pre-rendered, opaque result: JSON or SVG payload produced by a
// plotting operator. The cache and protocol layers treat Data as an
// uninterpreted byte string.
type Plot struct {
	Data []byte
}

var _ Result = (*Plot)(nil)

func (p *Plot) Kind() Kind    { return KindPlot }
func (p *Plot) ByteSize() int { return len(p.Data) }

func (p *Plot) DeepCopy() Result {
	cp := make([]byte, len(p.Data))
	copy(cp, p.Data)
	return &Plot{Data: cp}
}

func (p *Plot) WriteFramed(w io.Writer) error {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(p.Data)))
	if _, err := w.Write(n[:]); err != nil {
		return err
	}
	_, err := w.Write(p.Data)
	return err
}

func readPlotFramed(r io.Reader) (Result, error) {
	var n [4]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return nil, fmt.Errorf("result: short plot length: %w", err)
	}
	data := make([]byte, binary.LittleEndian.Uint32(n[:]))
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("result: short plot payload: %w", err)
	}
	return &Plot{Data: data}, nil
}
