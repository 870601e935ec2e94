// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cache implements the spatiotemporal semantic result cache: a
// mapping from semantic fingerprint to a bucket of previously produced
// results, matched against incoming queries by geometric/temporal/
// resolution subsumption rather than exact equality.
//
// Grounded on pkg/lrucache/cache.go's condition-variable-gated
// compute-in-progress pattern, but split per-fingerprint instead of
// cache-wide: each bucket owns its own mutex and condition variable, so two
// misses on different fingerprints never block each other.
package cache

import (
	"fmt"
	"sync"

	"github.com/geoengine/ge-backend/pkg/log"
	"github.com/geoengine/ge-backend/pkg/qrect"
	"github.com/geoengine/ge-backend/pkg/result"
)

// Producer computes a fresh result for a cache miss. It returns the result
// together with the SpatioTemporalReference it was stamped with — the
// cache never inspects the payload to learn this, it is supplied alongside
// it, so the cache core stays generic over Result variants that may not
// even carry a stref of their own (plots, for instance).
type Producer func() (result.Result, qrect.SpatioTemporalReference, error)

// Observer receives cache events for instrumentation (internal/adminhttp's
// Prometheus collector). All methods must return quickly; they are called
// while cache-internal locks may still be held on some paths.
type Observer interface {
	OnHit(fingerprint string)
	OnMiss(fingerprint string)
	OnEvict(fingerprint string, size int)
}

type noopObserver struct{}

func (noopObserver) OnHit(string)        {}
func (noopObserver) OnMiss(string)       {}
func (noopObserver) OnEvict(string, int) {}

// Store is the interface the dispatcher depends on, satisfied by both
// *Cache and NoopCache.
type Store interface {
	GetOrCompute(fingerprint string, q qrect.QueryRectangle, producer Producer) (result.Result, error)
}

// bucket holds every entry cached under one semantic fingerprint, plus the
// in-flight bookkeeping needed for the at-most-one-producer guarantee.
type bucket struct {
	mu      sync.Mutex
	cond    *sync.Cond
	entries []Handle
	pending bool // a producer is currently running for this fingerprint
}

// Cache is the semantic spatiotemporal result cache (component C). The
// zero value is not usable; construct with New.
type Cache struct {
	maxBytes int64

	bucketsMu sync.Mutex
	buckets   map[string]*bucket

	// accounting serializes pool mutation, size bookkeeping, and eviction
	// policy calls. It is locked independently of any bucket's mutex and
	// always acquired before a bucket lock is taken from within it (evict
	// path), never the reverse — so the two never deadlock against each
	// other.
	accounting   sync.Mutex
	pool         *pool
	policy       Policy
	currentBytes int64

	observer Observer
}

// New constructs a Cache with the given byte budget and the default LRU
// eviction policy.
func New(maxBytes int64) *Cache {
	p := newPool()
	return &Cache{
		maxBytes: maxBytes,
		buckets:  make(map[string]*bucket),
		pool:     p,
		policy:   newLRUPolicy(p),
		observer: noopObserver{},
	}
}

// SetObserver installs an instrumentation hook. Not safe to call
// concurrently with cache operations; call once during bootstrap.
func (c *Cache) SetObserver(o Observer) {
	if o == nil {
		o = noopObserver{}
	}
	c.observer = o
}

func (c *Cache) bucketFor(fingerprint string) *bucket {
	c.bucketsMu.Lock()
	defer c.bucketsMu.Unlock()
	b, ok := c.buckets[fingerprint]
	if !ok {
		b = &bucket{}
		b.cond = sync.NewCond(&b.mu)
		c.buckets[fingerprint] = b
	}
	return b
}

// Get looks up a subsuming cached result for (fingerprint, q). On hit it
// records an access with the eviction policy and returns a fresh deep copy
// of the stored payload — the caller may mutate or retain it freely.
func (c *Cache) Get(fingerprint string, q qrect.QueryRectangle) (result.Result, bool) {
	c.bucketsMu.Lock()
	b, ok := c.buckets[fingerprint]
	c.bucketsMu.Unlock()
	if !ok {
		c.observer.OnMiss(fingerprint)
		return nil, false
	}

	b.mu.Lock()
	for _, h := range b.entries {
		e := c.pool.get(h)
		if e == nil {
			continue
		}
		if match(e, q) {
			b.mu.Unlock()
			c.recordAccess(h, e)
			c.observer.OnHit(fingerprint)
			return e.payload.DeepCopy(), true
		}
	}
	b.mu.Unlock()
	c.observer.OnMiss(fingerprint)
	return nil, false
}

// recordAccess notifies the eviction policy of an access to h, but only if
// h still refers to the same entry it did when the caller matched it: a
// concurrent put may have evicted and recycled the handle for an unrelated
// entry in the gap between releasing the bucket lock and acquiring
// accounting here, and touching the policy's list for the wrong entry would
// corrupt it.
func (c *Cache) recordAccess(h Handle, e *entry) {
	c.accounting.Lock()
	if c.pool.get(h) == e {
		c.policy.OnAccess(h)
	}
	c.accounting.Unlock()
}

// Put inserts result r, stamped with stref, under fingerprint. An
// oversized result (bigger than the whole cache budget) is logged and
// dropped without insertion. Otherwise entries are evicted (LRU by
// default) until the new result fits, then it is stored as a deep copy.
func (c *Cache) Put(fingerprint string, stref qrect.SpatioTemporalReference, r result.Result) {
	b := c.bucketFor(fingerprint)
	c.put(fingerprint, b, stref, r)
}

func (c *Cache) put(fingerprint string, b *bucket, stref qrect.SpatioTemporalReference, r result.Result) {
	size := r.ByteSize()
	if int64(size) > c.maxBytes {
		log.Warnf("cache: dropping result for fingerprint %s, size %d exceeds max_bytes %d", fingerprint, size, c.maxBytes)
		return
	}

	cp := r.DeepCopy()

	c.accounting.Lock()
	for c.currentBytes+int64(size) > c.maxBytes {
		victim, ok := c.policy.Evict()
		if !ok {
			c.accounting.Unlock()
			log.Critf("cache: overfull with nothing left to evict (current=%d max=%d new=%d)", c.currentBytes, c.maxBytes, size)
			panic("cache: invariant violation, eviction requested with nothing to evict")
		}
		c.evictLocked(victim)
	}

	e := &entry{fingerprint: fingerprint, stref: stref, payload: cp, size: size}
	h := c.pool.insert(e)
	c.currentBytes += int64(size)
	c.policy.OnInsert(h)
	c.accounting.Unlock()

	b.mu.Lock()
	b.entries = append(b.entries, h)
	b.mu.Unlock()
}

// evictLocked removes the victim handle from its bucket and the pool.
// Caller must hold c.accounting.
func (c *Cache) evictLocked(h Handle) {
	e := c.pool.get(h)
	if e == nil {
		return
	}

	c.bucketsMu.Lock()
	vb := c.buckets[e.fingerprint]
	c.bucketsMu.Unlock()

	if vb != nil {
		vb.mu.Lock()
		for i, bh := range vb.entries {
			if bh == h {
				vb.entries = append(vb.entries[:i], vb.entries[i+1:]...)
				break
			}
		}
		vb.mu.Unlock()
	}

	c.currentBytes -= int64(e.size)
	c.pool.remove(h)
	c.observer.OnEvict(e.fingerprint, e.size)
}

// GetOrCompute implements the cache's central operation: a cache hit
// returns immediately; a miss invokes producer exactly once even under
// concurrent callers racing on the same fingerprint — later callers block
// on the bucket's condition variable until the first completes, then
// re-check the bucket (which now, on success, holds the fresh entry).
func (c *Cache) GetOrCompute(fingerprint string, q qrect.QueryRectangle, producer Producer) (result.Result, error) {
	b := c.bucketFor(fingerprint)

	b.mu.Lock()
	for {
		if h, ok := findMatch(c.pool, b, q); ok {
			e := c.pool.get(h)
			b.mu.Unlock()
			c.recordAccess(h, e)
			c.observer.OnHit(fingerprint)
			return e.payload.DeepCopy(), nil
		}
		if !b.pending {
			break
		}
		b.cond.Wait()
	}
	b.pending = true
	b.mu.Unlock()

	c.observer.OnMiss(fingerprint)
	r, stref, err := producer()

	if err != nil {
		b.mu.Lock()
		b.pending = false
		b.cond.Broadcast()
		b.mu.Unlock()
		return nil, fmt.Errorf("cache: producer for fingerprint %s failed: %w", fingerprint, err)
	}

	// The new entry must be inserted — and visible to b.entries — before
	// waiters are released: otherwise a woken waiter's findMatch runs
	// against a bucket that does not yet hold it, sees pending == false,
	// and invokes the producer again, violating the at-most-one guarantee.
	c.put(fingerprint, b, stref, r)

	b.mu.Lock()
	b.pending = false
	b.cond.Broadcast()
	b.mu.Unlock()

	return r, nil
}

func findMatch(p *pool, b *bucket, q qrect.QueryRectangle) (Handle, bool) {
	for _, h := range b.entries {
		if e := p.get(h); e != nil && match(e, q) {
			return h, true
		}
	}
	return invalidHandle, false
}

// StatsProvider is implemented by both *Cache and NoopCache, so
// internal/adminhttp can report occupancy regardless of which Store backs
// the dispatcher.
type StatsProvider interface {
	Stats() Stats
}

// Stats is a point-in-time snapshot used by the admin HTTP surface.
type Stats struct {
	CurrentBytes int64
	MaxBytes     int64
	Buckets      int
}

func (c *Cache) Stats() Stats {
	c.accounting.Lock()
	cur := c.currentBytes
	c.accounting.Unlock()

	c.bucketsMu.Lock()
	n := len(c.buckets)
	c.bucketsMu.Unlock()

	return Stats{CurrentBytes: cur, MaxBytes: c.maxBytes, Buckets: n}
}
