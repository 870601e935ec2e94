// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metricsexport encodes completed top-level query profiles as
// InfluxDB line protocol, for forwarding to an external time-series sink.
// Grounded on pkg/metricstore/lineprotocol.go and internal/memorystore/
// lineprotocol.go's use of the same wire format, but running the encoder
// in reverse: those packages decode incoming metric lines, this one
// produces them from a profiler.Summary.
package metricsexport

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/influxdata/line-protocol/v2/lineprotocol"

	"github.com/geoengine/ge-backend/internal/profiler"
	"github.com/geoengine/ge-backend/pkg/log"
)

const measurement = "ge_query"

// Sink receives encoded line-protocol batches. cmd/ge-backend's query
// completion hook writes through one, backed by a Writer wrapping
// os.Stdout, but any io.Writer
// works — a network-attached time-series database's write endpoint
// included.
type Sink interface {
	Write(fingerprint string, outcome string, summary profiler.Summary, at time.Time) error
}

// Writer is a Sink that encodes each summary to line protocol and writes
// it to an underlying io.Writer. Safe for concurrent use; encoding happens
// under a mutex since lineprotocol.Encoder is not safe to share across
// goroutines otherwise.
type Writer struct {
	mu  sync.Mutex
	w   io.Writer
	enc *lineprotocol.Encoder
}

// NewWriter constructs a Writer sinking to w, encoding timestamps with
// nanosecond precision.
func NewWriter(w io.Writer) *Writer {
	enc := &lineprotocol.Encoder{}
	enc.SetPrecision(lineprotocol.Nanosecond)
	return &Writer{w: w, enc: enc}
}

// Write implements Sink.
func (mw *Writer) Write(fingerprint string, outcome string, summary profiler.Summary, at time.Time) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	mw.enc.Reset()
	mw.enc.StartLine(measurement)
	mw.enc.AddTag("fingerprint", fingerprint)
	mw.enc.AddTag("outcome", outcome)
	mw.enc.AddField("self_cpu_ns", lineprotocol.IntValue(summary.SelfCPU.Nanoseconds()))
	mw.enc.AddField("total_cpu_ns", lineprotocol.IntValue(summary.TotalCPU.Nanoseconds()))
	mw.enc.AddField("self_gpu_ns", lineprotocol.IntValue(summary.SelfGPU.Nanoseconds()))
	mw.enc.AddField("total_gpu_ns", lineprotocol.IntValue(summary.TotalGPU.Nanoseconds()))
	mw.enc.AddField("self_io_bytes", lineprotocol.IntValue(summary.SelfIO))
	mw.enc.AddField("total_io_bytes", lineprotocol.IntValue(summary.TotalIO))
	mw.enc.EndLine(at)

	if err := mw.enc.Err(); err != nil {
		return fmt.Errorf("metricsexport: encoding line for fingerprint %s: %w", fingerprint, err)
	}

	if _, err := mw.w.Write(mw.enc.Bytes()); err != nil {
		log.Errorf("metricsexport: writing encoded line: %v", err)
		return fmt.Errorf("metricsexport: writing line: %w", err)
	}
	return nil
}

var _ Sink = (*Writer)(nil)
