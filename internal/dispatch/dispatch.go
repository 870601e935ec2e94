// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dispatch implements the operator-graph evaluation dispatcher: it
// mediates between the cache and the recursive evaluation of a node,
// wrapping every production in cache.GetOrCompute and attributing cost via
// the paused-parent-timer trick.
package dispatch

import (
	"context"

	"github.com/geoengine/ge-backend/internal/cache"
	"github.com/geoengine/ge-backend/internal/operator"
	"github.com/geoengine/ge-backend/internal/profiler"
	"github.com/geoengine/ge-backend/pkg/qrect"
	"github.com/geoengine/ge-backend/pkg/result"
)

// Dispatcher implements operator.Evaluator, backed by a cache.Store. Every
// node evaluation — top-level or child — goes through Evaluate, which is
// the single place the cache gets a chance to intercept a subtree
// request.
type Dispatcher struct {
	store cache.Store
}

var _ operator.Evaluator = (*Dispatcher)(nil)

// New constructs a Dispatcher backed by store. Pass cache.NoopCache{} to
// disable caching entirely.
func New(store cache.Store) *Dispatcher {
	return &Dispatcher{store: store}
}

// Stats reports the backing store's occupancy, for internal/adminhttp's
// /stats endpoint. Returns the zero Stats if store does not implement
// cache.StatsProvider (it always does today; this guards against a future
// cache.Store implementation that doesn't bother).
func (d *Dispatcher) Stats() cache.Stats {
	if sp, ok := d.store.(cache.StatsProvider); ok {
		return sp.Stats()
	}
	return cache.Stats{}
}

// TopLevelEvaluate evaluates node for q with no parent profiler context —
// the entry point used by the server's worker pool for an incoming
// request. It returns the completed root profiler alongside the result so
// the caller can report a cost summary (internal/audit, internal/metricsexport).
func (d *Dispatcher) TopLevelEvaluate(ctx context.Context, node operator.Node, q qrect.QueryRectangle) (result.Result, *profiler.Profiler, error) {
	prof := profiler.New()
	r, err := d.evaluate(ctx, node, q, prof)
	return r, prof, err
}

// Evaluate implements operator.Evaluator: a node calls this for every
// child it needs, instead of calling the child's Produce directly, so the
// cache sees every subtree request.
func (d *Dispatcher) Evaluate(ctx context.Context, node operator.Node, q qrect.QueryRectangle, parent *profiler.Profiler) (result.Result, error) {
	if parent != nil {
		parent.PauseCPU()
	}

	self := profiler.New()
	r, err := d.evaluate(ctx, node, q, self)

	if parent != nil {
		parent.AddChildTotal(self)
		parent.ResumeCPU()
	}
	return r, err
}

func (d *Dispatcher) evaluate(ctx context.Context, node operator.Node, q qrect.QueryRectangle, self *profiler.Profiler) (result.Result, error) {
	node.SetState(operator.StateRunning)

	producer := func() (result.Result, qrect.SpatioTemporalReference, error) {
		return node.Produce(ctx, q, self, d)
	}

	r, err := d.store.GetOrCompute(node.SemanticID(), q, producer)
	if err != nil {
		node.SetState(operator.StateDoneFailed)
		return nil, err
	}
	node.SetState(operator.StateDoneOK)
	return r, nil
}
