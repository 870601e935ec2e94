// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package profiler

import (
	"testing"
	"time"
)

func fakeClock(steps ...time.Time) Clock {
	i := 0
	return func() time.Time {
		t := steps[i]
		if i < len(steps)-1 {
			i++
		}
		return t
	}
}

func TestSelfExcludesPausedChildInterval(t *testing.T) {
	t0 := time.Unix(0, 0)
	clock := fakeClock(
		t0,                     // parent StartCPU
		t0.Add(1*time.Second),  // parent PauseCPU (1s of self so far)
		t0.Add(1*time.Second),  // child StartCPU
		t0.Add(4*time.Second),  // child StopCPU (3s child total)
		t0.Add(4*time.Second),  // parent ResumeCPU
		t0.Add(5*time.Second),  // parent StopCPU (+1s self)
	)

	parent := NewWithClock(clock)
	child := NewWithClock(clock)

	parent.StartCPU()
	parent.PauseCPU()
	child.StartCPU()
	child.StopCPU()
	parent.ResumeCPU()
	parent.StopCPU()
	parent.AddChildTotal(child)

	ps := parent.Summary()
	if ps.SelfCPU != 2*time.Second {
		t.Fatalf("parent self cpu = %v, want 2s (child's 3s must be excluded)", ps.SelfCPU)
	}
	if ps.TotalCPU != 5*time.Second {
		t.Fatalf("parent total cpu = %v, want 5s (2s self + 3s child)", ps.TotalCPU)
	}
}

func TestStartTwiceWithoutPausePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double-start")
		}
	}()
	p := New()
	p.StartCPU()
	p.StartCPU()
}

func TestStopWithoutStartPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on stop-without-start")
		}
	}()
	p := New()
	p.StopCPU()
}

func TestAddIOBytesAccumulatesSelfAndTotal(t *testing.T) {
	p := New()
	p.AddIOBytes(10)
	p.AddIOBytes(5)
	s := p.Summary()
	if s.SelfIO != 15 || s.TotalIO != 15 {
		t.Fatalf("io bytes = self:%d total:%d, want 15/15", s.SelfIO, s.TotalIO)
	}
}
