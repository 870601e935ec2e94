// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package qrect

import (
	"bytes"
	"testing"
)

func TestSerializeRoundTrip(t *testing.T) {
	q, err := New(4326, -10, -5, 10, 5, 1700000000, 256, 128)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var buf bytes.Buffer
	if err := q.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	got, err := Deserialize(&buf)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got != q {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, q)
	}
}

func TestDeserializeShortRead(t *testing.T) {
	_, err := Deserialize(bytes.NewReader([]byte{1, 2, 3}))
	if err == nil {
		t.Fatal("expected error on short read")
	}
}

func TestNewRejectsInvertedBounds(t *testing.T) {
	if _, err := New(0, 10, 0, -10, 0, 0, 1, 1); err == nil {
		t.Fatal("expected error for x1 > x2")
	}
}

func TestMinMaxToleratesInvertedAxisSign(t *testing.T) {
	q := QueryRectangle{X1: 10, X2: -10, Y1: 5, Y2: -5}
	if q.MinX() != -10 || q.MaxX() != 10 {
		t.Fatalf("MinX/MaxX wrong: %v/%v", q.MinX(), q.MaxX())
	}
	if q.MinY() != -5 || q.MaxY() != 5 {
		t.Fatalf("MinY/MaxY wrong: %v/%v", q.MinY(), q.MaxY())
	}
}

func TestEnlargeThenShrinkIsIdentityOnBounds(t *testing.T) {
	q, err := New(0, 0, 0, 100, 100, 0, 100, 100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	grown := q.Enlarge(10)
	back := grown.Enlarge(-10)

	if back.X1 != q.X1 || back.X2 != q.X2 || back.Y1 != q.Y1 || back.Y2 != q.Y2 {
		t.Fatalf("enlarge(n).enlarge(-n) is not the identity on bounds: got %+v, want %+v", back, q)
	}

	if grown.XRes != q.XRes+20 || grown.YRes != q.YRes+20 {
		t.Fatalf("enlarge(10) should grow resolution by 2*10, got xres=%d yres=%d", grown.XRes, grown.YRes)
	}
}

func TestEnlargeNoopOnNonGriddedQuery(t *testing.T) {
	q := QueryRectangle{X1: 0, Y1: 0, X2: 10, Y2: 10}
	if got := q.Enlarge(5); got != q {
		t.Fatalf("enlarge on a 0-resolution (non-gridded) query should be a no-op, got %+v", got)
	}
}
