// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package metricsexport

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/geoengine/ge-backend/internal/profiler"
)

func TestWriteEncodesRecognizableLineProtocol(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	summary := profiler.Summary{
		SelfCPU: 10 * time.Millisecond, TotalCPU: 30 * time.Millisecond,
		SelfIO: 1024, TotalIO: 4096,
	}

	if err := w.Write("fp-123", "ok", summary, time.Unix(1700000000, 0)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, measurement+",") {
		t.Fatalf("expected line to start with measurement name, got %q", out)
	}
	if !strings.Contains(out, "fingerprint=fp-123") {
		t.Fatalf("expected fingerprint tag in output, got %q", out)
	}
	if !strings.Contains(out, "total_cpu_ns=30000000i") {
		t.Fatalf("expected encoded total_cpu_ns field, got %q", out)
	}
	if !strings.HasSuffix(strings.TrimRight(out, "\n"), "1700000000000000000") {
		t.Fatalf("expected nanosecond timestamp suffix, got %q", out)
	}
}

func TestWriteIsSafeForConcurrentUse(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func(i int) {
			done <- w.Write("fp", "ok", profiler.Summary{}, time.Unix(int64(i), 0))
		}(i)
	}
	for i := 0; i < 4; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent Write: %v", err)
		}
	}
}
