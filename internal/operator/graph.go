// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package operator

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/graph.schema.json
var schemaFS embed.FS

var graphSchema = mustCompileGraphSchema()

func mustCompileGraphSchema() *jsonschema.Schema {
	raw, err := schemaFS.ReadFile("schema/graph.schema.json")
	if err != nil {
		panic(fmt.Sprintf("operator: embedded graph schema missing: %v", err))
	}
	sch, err := jsonschema.CompileString("graph.schema.json", string(raw))
	if err != nil {
		panic(fmt.Sprintf("operator: embedded graph schema does not compile: %v", err))
	}
	return sch
}

// MaxSourcesPerNode bounds the total number of source children (summed
// across all source kinds) a single node may declare. Exceeding it fails
// the parse, per spec.md §4.4.
const MaxSourcesPerNode = 64

type rawNode struct {
	Type    string               `json:"type"`
	Params  json.RawMessage      `json:"params"`
	Sources map[string][]rawNode `json:"sources"`
}

// ParseGraph validates raw against the embedded JSON Schema (rejecting
// unknown top-level keys and non-string types before any structural
// walk), then recursively builds a Node tree via reg, bottom-up so every
// child's SemanticID is already known when its parent's is computed.
func ParseGraph(reg *Registry, raw []byte) (Node, error) {
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, &GraphParseError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if err := graphSchema.Validate(generic); err != nil {
		return nil, &GraphParseError{Reason: fmt.Sprintf("schema validation: %v", err)}
	}

	var root rawNode
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, &GraphParseError{Reason: fmt.Sprintf("decode: %v", err)}
	}

	return buildNode(reg, root)
}

func buildNode(reg *Registry, rn rawNode) (Node, error) {
	desc, ok := reg.Lookup(rn.Type)
	if !ok {
		return nil, &GraphParseError{Reason: fmt.Sprintf("unknown operator type %q", rn.Type)}
	}

	total := 0
	for _, children := range rn.Sources {
		total += len(children)
	}
	if total > MaxSourcesPerNode {
		return nil, &GraphParseError{Reason: fmt.Sprintf("node %q has %d sources, exceeds limit of %d", rn.Type, total, MaxSourcesPerNode)}
	}

	built := make(map[string][]Node, len(rn.Sources))
	for kind, children := range rn.Sources {
		nodes := make([]Node, len(children))
		for i, c := range children {
			n, err := buildNode(reg, c)
			if err != nil {
				return nil, err
			}
			nodes[i] = n
		}
		built[kind] = nodes
	}

	node, err := desc.Factory(rn.Params, built)
	if err != nil {
		return nil, &GraphParseError{Reason: fmt.Sprintf("constructing node %q: %v", rn.Type, err)}
	}
	return node, nil
}
