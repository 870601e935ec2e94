// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package operator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/geoengine/ge-backend/internal/profiler"
	"github.com/geoengine/ge-backend/pkg/qrect"
	"github.com/geoengine/ge-backend/pkg/result"
)

// stubNode is a trivial Node used only to exercise parsing and
// fingerprinting, independent of any real producer.
type stubNode struct {
	Base
}

func (s *stubNode) Produce(ctx context.Context, q qrect.QueryRectangle, prof *profiler.Profiler, eval Evaluator) (result.Result, qrect.SpatioTemporalReference, error) {
	return nil, qrect.SpatioTemporalReference{}, nil
}

func newTestRegistry() *Registry {
	reg := NewRegistry()
	_ = reg.Register("stub", TypeDescriptor{
		Commutative: false,
		Factory: func(params json.RawMessage, sources map[string][]Node) (Node, error) {
			return &stubNode{Base: NewBase("stub", params, false, sources)}, nil
		},
	})
	_ = reg.Register("stub_commutative", TypeDescriptor{
		Commutative: true,
		Factory: func(params json.RawMessage, sources map[string][]Node) (Node, error) {
			return &stubNode{Base: NewBase("stub_commutative", params, true, sources)}, nil
		},
	})
	reg.Freeze()
	return reg
}

func TestParseGraphRejectsUnknownType(t *testing.T) {
	reg := newTestRegistry()
	raw := []byte(`{"type":"nonexistent","params":{},"sources":{}}`)
	if _, err := ParseGraph(reg, raw); err == nil {
		t.Fatal("expected error for unknown operator type")
	}
}

func TestParseGraphRejectsUnknownTopLevelKey(t *testing.T) {
	reg := newTestRegistry()
	raw := []byte(`{"type":"stub","params":{},"sources":{},"bogus":1}`)
	if _, err := ParseGraph(reg, raw); err == nil {
		t.Fatal("expected schema validation error for unknown top-level key")
	}
}

func TestParseGraphRejectsTooManySources(t *testing.T) {
	reg := newTestRegistry()
	children := make([]string, MaxSourcesPerNode+1)
	for i := range children {
		children[i] = `{"type":"stub","params":{},"sources":{}}`
	}
	raw := []byte(`{"type":"stub","params":{},"sources":{"raster":[` + joinJSON(children) + `]}}`)
	if _, err := ParseGraph(reg, raw); err == nil {
		t.Fatal("expected error for exceeding MaxSourcesPerNode")
	}
}

func joinJSON(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

func TestSemanticIDDeterministic(t *testing.T) {
	reg := newTestRegistry()
	raw := []byte(`{"type":"stub","params":{"a":1,"b":2},"sources":{}}`)

	n1, err := ParseGraph(reg, raw)
	if err != nil {
		t.Fatalf("ParseGraph: %v", err)
	}
	n2, err := ParseGraph(reg, raw)
	if err != nil {
		t.Fatalf("ParseGraph: %v", err)
	}
	if n1.SemanticID() != n2.SemanticID() {
		t.Fatalf("semantic IDs differ across identical parses: %s vs %s", n1.SemanticID(), n2.SemanticID())
	}
}

func TestSemanticIDIgnoresParamKeyOrder(t *testing.T) {
	reg := newTestRegistry()
	a, _ := ParseGraph(reg, []byte(`{"type":"stub","params":{"a":1,"b":2},"sources":{}}`))
	b, _ := ParseGraph(reg, []byte(`{"type":"stub","params":{"b":2,"a":1},"sources":{}}`))
	if a.SemanticID() != b.SemanticID() {
		t.Fatalf("param key order should not affect semantic ID: %s vs %s", a.SemanticID(), b.SemanticID())
	}
}

func TestSemanticIDDiffersOnChildOrderForNonCommutativeType(t *testing.T) {
	reg := newTestRegistry()
	graphA := []byte(`{"type":"stub","params":{},"sources":{"raster":[
		{"type":"stub","params":{"n":1},"sources":{}},
		{"type":"stub","params":{"n":2},"sources":{}}
	]}}`)
	graphB := []byte(`{"type":"stub","params":{},"sources":{"raster":[
		{"type":"stub","params":{"n":2},"sources":{}},
		{"type":"stub","params":{"n":1},"sources":{}}
	]}}`)

	a, err := ParseGraph(reg, graphA)
	if err != nil {
		t.Fatalf("ParseGraph(a): %v", err)
	}
	b, err := ParseGraph(reg, graphB)
	if err != nil {
		t.Fatalf("ParseGraph(b): %v", err)
	}
	if a.SemanticID() == b.SemanticID() {
		t.Fatal("non-commutative node should produce different IDs for different child order")
	}
}

func TestSemanticIDSameOnChildOrderForCommutativeType(t *testing.T) {
	reg := newTestRegistry()
	graphA := []byte(`{"type":"stub_commutative","params":{},"sources":{"raster":[
		{"type":"stub","params":{"n":1},"sources":{}},
		{"type":"stub","params":{"n":2},"sources":{}}
	]}}`)
	graphB := []byte(`{"type":"stub_commutative","params":{},"sources":{"raster":[
		{"type":"stub","params":{"n":2},"sources":{}},
		{"type":"stub","params":{"n":1},"sources":{}}
	]}}`)

	a, err := ParseGraph(reg, graphA)
	if err != nil {
		t.Fatalf("ParseGraph(a): %v", err)
	}
	b, err := ParseGraph(reg, graphB)
	if err != nil {
		t.Fatalf("ParseGraph(b): %v", err)
	}
	if a.SemanticID() != b.SemanticID() {
		t.Fatal("commutative node should produce the same ID regardless of child order")
	}
}
