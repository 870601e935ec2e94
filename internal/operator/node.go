// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package operator implements the operator DAG: node construction from a
// parsed graph description, the process-wide type registry, semantic
// fingerprinting, and the Node contract the dispatcher drives.
package operator

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/geoengine/ge-backend/internal/profiler"
	"github.com/geoengine/ge-backend/pkg/qrect"
	"github.com/geoengine/ge-backend/pkg/result"
)

// State is a node's lifecycle stage. It is bookkeeping for
// introspection/metrics only — per spec.md §4.4, a node may be invoked
// concurrently from multiple top-level requests, so this field is
// intentionally racy across concurrent evaluations and must never gate
// control flow.
type State int32

const (
	StateFresh State = iota
	StateRunning
	StateDoneOK
	StateDoneFailed
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateRunning:
		return "running"
	case StateDoneOK:
		return "done-ok"
	case StateDoneFailed:
		return "done-failed"
	default:
		return "unknown"
	}
}

// Evaluator is implemented by the dispatcher. A node calls back into it to
// evaluate a child, which is the hook that lets the cache intercept
// subtree requests — a node must never call a child's Produce directly.
type Evaluator interface {
	Evaluate(ctx context.Context, node Node, q qrect.QueryRectangle, parent *profiler.Profiler) (result.Result, error)
}

// Node is one vertex of the operator DAG.
type Node interface {
	Type() string
	SemanticID() string
	Sources() map[string][]Node
	State() State
	SetState(State)

	// Produce computes this node's result for q. It must call back into
	// eval for any child it needs, never call a child's Produce directly,
	// so that cache interception (§4.3) applies at every level.
	Produce(ctx context.Context, q qrect.QueryRectangle, prof *profiler.Profiler, eval Evaluator) (result.Result, qrect.SpatioTemporalReference, error)
}

// Base is embedded by every concrete node type; it implements everything
// but Produce.
type Base struct {
	typ        string
	semanticID string
	sources    map[string][]Node
	state      *atomic.Int32
}

// NewBase constructs the shared part of a node. params is the node's raw
// (already schema-validated) parameter object, used only for
// fingerprinting — concrete node types decode it separately into their own
// typed fields.
func NewBase(typ string, params json.RawMessage, commutative bool, sources map[string][]Node) Base {
	return Base{
		typ:        typ,
		semanticID: computeSemanticID(typ, params, commutative, sources),
		sources:    sources,
		state:      new(atomic.Int32),
	}
}

func (b Base) Type() string              { return b.typ }
func (b Base) SemanticID() string         { return b.semanticID }
func (b Base) Sources() map[string][]Node { return b.sources }
func (b Base) State() State               { return State(b.state.Load()) }
func (b Base) SetState(s State)           { b.state.Store(int32(s)) }
