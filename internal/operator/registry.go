// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package operator

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Factory builds one node instance from its raw parameter object and its
// already-constructed children, grouped by source kind.
type Factory func(params json.RawMessage, sources map[string][]Node) (Node, error)

// TypeDescriptor is what a node type registers: its factory and whether
// its source order is semantically irrelevant (affects fingerprinting,
// §8 invariant 5).
type TypeDescriptor struct {
	Factory     Factory
	Commutative bool
}

// Registry maps type-name strings to factories. It is write-once at
// bootstrap and read-only thereafter (§5), modeled explicitly rather than
// via the source's process-global mutable state (§9 design note).
type Registry struct {
	mu     sync.RWMutex
	types  map[string]TypeDescriptor
	frozen bool
}

// NewRegistry returns an empty, writable registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]TypeDescriptor)}
}

// Register adds a type. It fails if the registry has been frozen or the
// name is already registered.
func (r *Registry) Register(name string, desc TypeDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("operator: registry is frozen, cannot register %q", name)
	}
	if _, exists := r.types[name]; exists {
		return fmt.Errorf("operator: type %q already registered", name)
	}
	r.types[name] = desc
	return nil
}

// Freeze stops further registration. Call once at the end of bootstrap.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Lookup returns the descriptor for name, or false if unregistered.
func (r *Registry) Lookup(name string) (TypeDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.types[name]
	return d, ok
}
