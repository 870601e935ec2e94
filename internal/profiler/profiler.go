// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package profiler implements the per-query cost accumulator: self and
// total CPU/GPU time and I/O bytes, attributed per operator node by the
// "pause the parent, run the child, resume the parent" trick described in
// the dispatcher's design notes.
package profiler

import "time"

// Clock abstracts time.Now so tests can control elapsed durations; the
// zero value uses the real wall clock.
type Clock func() time.Time

// timer is one running/stopped wall-clock accumulator. CPU and GPU each
// get their own, since a node may have an async GPU kernel in flight while
// still doing CPU work (or vice versa) — they are not mutually exclusive
// the way a single "the timer" implies.
type timer struct {
	clock     Clock
	self, tot time.Duration
	running   bool
	startedAt time.Time
}

func (t *timer) start() {
	if t.running {
		panic("profiler: invariant violation, timer started while already running")
	}
	t.running = true
	t.startedAt = t.clock()
}

func (t *timer) stop() time.Duration {
	if !t.running {
		panic("profiler: invariant violation, timer stopped while not running")
	}
	delta := t.clock().Sub(t.startedAt)
	if delta < 0 {
		delta = 0
	}
	t.running = false
	t.self += delta
	t.tot += delta
	return delta
}

func (t *timer) resume() {
	if t.running {
		panic("profiler: invariant violation, timer resumed while already running")
	}
	t.running = true
	t.startedAt = t.clock()
}

// Profiler accumulates self (this node only) and total (this node plus
// every descendant) cost for one node's evaluation. A Profiler is created
// fresh per node per evaluation; it is not safe for concurrent use by more
// than one goroutine.
type Profiler struct {
	cpu, gpu        timer
	selfIO, totalIO int64
}

// New constructs a Profiler using the real wall clock.
func New() *Profiler {
	return &Profiler{cpu: timer{clock: time.Now}, gpu: timer{clock: time.Now}}
}

// NewWithClock is used by tests to supply a deterministic clock, shared by
// both the CPU and GPU timers.
func NewWithClock(clock Clock) *Profiler {
	return &Profiler{cpu: timer{clock: clock}, gpu: timer{clock: clock}}
}

// StartCPU begins CPU timing. Starting an already-running timer is an
// invariant violation — it means a node re-entered its own accounting
// without the dispatcher pausing it first.
func (p *Profiler) StartCPU() { p.cpu.start() }

// StopCPU ends CPU timing, adding the elapsed delta to self and total.
func (p *Profiler) StopCPU() { p.cpu.stop() }

// PauseCPU stops CPU timing so a child's evaluation is excluded from this
// node's self cost; ResumeCPU restarts it once the child returns. The
// child's own total is folded back in via AddChildTotal.
func (p *Profiler) PauseCPU() time.Duration { return p.cpu.stop() }
func (p *Profiler) ResumeCPU()              { p.cpu.resume() }

// StartGPU/StopGPU/PauseGPU/ResumeGPU mirror the CPU timer for GPU work.
func (p *Profiler) StartGPU()               { p.gpu.start() }
func (p *Profiler) StopGPU()                { p.gpu.stop() }
func (p *Profiler) PauseGPU() time.Duration { return p.gpu.stop() }
func (p *Profiler) ResumeGPU()              { p.gpu.resume() }

// AddChildTotal folds a completed child's total cost into this node's
// total (inclusive) cost, without affecting self cost.
func (p *Profiler) AddChildTotal(child *Profiler) {
	p.cpu.tot += child.cpu.tot
	p.gpu.tot += child.gpu.tot
	p.totalIO += child.totalIO
}

// AddIOBytes records I/O performed by this node's own producer.
func (p *Profiler) AddIOBytes(n int64) {
	p.selfIO += n
	p.totalIO += n
}

// Summary is the read-only snapshot reported once evaluation completes,
// used by internal/audit and internal/metricsexport.
type Summary struct {
	SelfCPU, TotalCPU time.Duration
	SelfGPU, TotalGPU time.Duration
	SelfIO, TotalIO   int64
}

func (p *Profiler) Summary() Summary {
	return Summary{
		SelfCPU: p.cpu.self, TotalCPU: p.cpu.tot,
		SelfGPU: p.gpu.self, TotalGPU: p.gpu.tot,
		SelfIO: p.selfIO, TotalIO: p.totalIO,
	}
}
