// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package cache

import (
	"github.com/geoengine/ge-backend/pkg/qrect"
	"github.com/geoengine/ge-backend/pkg/result"
)

// Handle is an index into the entry pool. Buckets and the eviction policy
// hold handles, never pointers to entries directly — the pool is the sole
// owner of entry memory, matching the "handle/index into an arena-style
// entry pool" design note: this is what lets eviction unlink an entry in
// O(1) without a raw back-pointer cycle.
type Handle uint32

const invalidHandle Handle = 0

type entry struct {
	fingerprint string
	stref       qrect.SpatioTemporalReference
	payload     result.Result
	size        int

	// lruPrev/lruNext link this entry into the eviction policy's list.
	// Owned exclusively by the policy; the pool never reads them.
	lruPrev, lruNext Handle
}

// pool is an arena of entries referenced by Handle. Handle 0 is reserved as
// the invalid/nil handle so a zero-valued Handle is always detectable.
type pool struct {
	entries []*entry
	free    []Handle
}

func newPool() *pool {
	return &pool{entries: make([]*entry, 1)} // index 0 reserved
}

func (p *pool) insert(e *entry) Handle {
	if n := len(p.free); n > 0 {
		h := p.free[n-1]
		p.free = p.free[:n-1]
		p.entries[h] = e
		return h
	}
	h := Handle(len(p.entries))
	p.entries = append(p.entries, e)
	return h
}

func (p *pool) get(h Handle) *entry {
	if h == invalidHandle || int(h) >= len(p.entries) {
		return nil
	}
	return p.entries[h]
}

func (p *pool) remove(h Handle) {
	if h == invalidHandle || int(h) >= len(p.entries) {
		return
	}
	p.entries[h] = nil
	p.free = append(p.free, h)
}
