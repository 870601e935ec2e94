// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package server

import (
	"context"
	"net"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/geoengine/ge-backend/internal/cache"
	"github.com/geoengine/ge-backend/internal/dispatch"
	"github.com/geoengine/ge-backend/internal/operator"
	"github.com/geoengine/ge-backend/internal/operator/sources"
	"github.com/geoengine/ge-backend/internal/protocol"
	"github.com/geoengine/ge-backend/pkg/qrect"
	"github.com/geoengine/ge-backend/pkg/result"
)

func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving a port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func startTestServer(t *testing.T) (addr string, stop func()) {
	t.Helper()

	reg := operator.NewRegistry()
	if err := sources.RegisterSynthetic(reg); err != nil {
		t.Fatalf("RegisterSynthetic: %v", err)
	}
	reg.Freeze()

	disp := dispatch.New(cache.New(10_000_000))
	addr = freePort(t)
	srv := New(addr, reg, disp, 2, 8, rate.NewLimiter(rate.Inf, 1))

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := srv.Run(ctx, time.Second); err != nil {
			t.Errorf("Run: %v", err)
		}
	}()

	// Give the listener a moment to bind before the test dials it.
	for i := 0; i < 50; i++ {
		if c, err := net.Dial("tcp", addr); err == nil {
			c.Close()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	return addr, func() {
		cancel()
		<-runDone
	}
}

func TestServerAnswersSyntheticSourceQuery(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	q, _ := qrect.New(0, 0, 0, 10, 10, 5, 4, 4)
	graph := []byte(`{"type":"synthetic_source","params":{"value":9},"sources":{}}`)

	if err := writeRequest(conn, q, graph, protocol.QueryModeExact); err != nil {
		t.Fatalf("writeRequest: %v", err)
	}

	r, err := protocol.ReadResponse(conn)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	raster, ok := r.(*result.Raster)
	if !ok {
		t.Fatalf("expected *result.Raster, got %T", r)
	}
	if raster.Width != 4 || raster.Height != 4 {
		t.Fatalf("raster dims = %dx%d, want 4x4", raster.Width, raster.Height)
	}
	for _, b := range raster.Pixels {
		if b != 9 {
			t.Fatalf("expected all pixels == 9, found %d", b)
		}
	}
}

func TestServerReportsGraphParseErrorWithoutDroppingConnection(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	q, _ := qrect.New(0, 0, 0, 10, 10, 5, 2, 2)
	badGraph := []byte(`{"type":"does_not_exist","params":{},"sources":{}}`)
	if err := writeRequest(conn, q, badGraph, protocol.QueryModeExact); err != nil {
		t.Fatalf("writeRequest: %v", err)
	}
	if _, err := protocol.ReadResponse(conn); err == nil {
		t.Fatal("expected an error response for an unknown operator type")
	}

	// The connection must still be usable for a second, valid request.
	goodGraph := []byte(`{"type":"synthetic_source","params":{"value":1},"sources":{}}`)
	if err := writeRequest(conn, q, goodGraph, protocol.QueryModeExact); err != nil {
		t.Fatalf("writeRequest (second): %v", err)
	}
	if _, err := protocol.ReadResponse(conn); err != nil {
		t.Fatalf("expected second request on the same connection to succeed, got %v", err)
	}
}

func writeRequest(conn net.Conn, q qrect.QueryRectangle, graph []byte, mode protocol.QueryMode) error {
	if _, err := conn.Write([]byte{byte(protocol.CommandGetRaster)}); err != nil {
		return err
	}
	if err := q.Serialize(conn); err != nil {
		return err
	}
	lenBuf := make([]byte, 4)
	putUint32LE(lenBuf, uint32(len(graph)))
	if _, err := conn.Write(lenBuf); err != nil {
		return err
	}
	if _, err := conn.Write(graph); err != nil {
		return err
	}
	_, err := conn.Write([]byte{byte(mode)})
	return err
}

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
