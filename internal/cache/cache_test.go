// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package cache

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/geoengine/ge-backend/pkg/qrect"
	"github.com/geoengine/ge-backend/pkg/result"
)

// fakeResult is a minimal result.Result used to control byte size and
// gridded-ness precisely in tests, independent of pkg/result's own header
// accounting.
type fakeResult struct {
	id            int
	size          int
	width, height uint32
}

var _ result.Result = (*fakeResult)(nil)

func (f *fakeResult) Kind() result.Kind             { return result.KindRaster }
func (f *fakeResult) ByteSize() int                 { return f.size }
func (f *fakeResult) DeepCopy() result.Result       { cp := *f; return &cp }
func (f *fakeResult) WriteFramed(w io.Writer) error { return nil }
func (f *fakeResult) Dimensions() (uint32, uint32)  { return f.width, f.height }

func nonGridded(size int) *fakeResult { return &fakeResult{size: size} }

func griddedStref(crs uint16, x1, y1, x2, y2, t1, t2 float64) qrect.SpatioTemporalReference {
	return qrect.SpatioTemporalReference{CRSID: crs, X1: x1, Y1: y1, X2: x2, Y2: y2, T1: t1, T2: t2, TimeType: qrect.TimeTypeUnix}
}

func TestScenario1_HitReturnsDistinctAllocation(t *testing.T) {
	c := New(1000)
	stref := griddedStref(0, 0, 0, 100, 100, 0, 1000)
	r := &fakeResult{id: 1, size: 100, width: 100, height: 100}
	c.Put("fp1", stref, r)

	q, _ := qrect.New(0, 10, 10, 90, 90, 500, 50, 50)
	got, ok := c.Get("fp1", q)
	if !ok {
		t.Fatal("expected hit")
	}
	gotFake := got.(*fakeResult)
	if gotFake == r {
		t.Fatal("Get returned the exact cached pointer, not a deep copy")
	}
	if gotFake.id != r.id {
		t.Fatalf("deep copy lost identity: got %+v, want %+v", gotFake, r)
	}
}

func TestScenario2_OversizeResultIsDropped(t *testing.T) {
	c := New(1000)
	stref := griddedStref(0, 0, 0, 100, 100, 0, 1000)
	c.Put("fp1", stref, nonGridded(1200))

	if got := c.Stats().CurrentBytes; got != 0 {
		t.Fatalf("current_bytes should stay 0 after a dropped oversize put, got %d", got)
	}

	q, _ := qrect.New(0, 10, 10, 90, 90, 500, 0, 0)
	if _, ok := c.Get("fp1", q); ok {
		t.Fatal("expected miss after oversize result was dropped")
	}
}

func TestScenario3_ThirdInsertionEvictsFirstByLRU(t *testing.T) {
	c := New(1000)
	stref := griddedStref(0, 0, 0, 100, 100, 0, 1000)
	q, _ := qrect.New(0, 10, 10, 90, 90, 500, 0, 0)

	c.Put("fp1", stref, nonGridded(400))
	c.Put("fp2", stref, nonGridded(400))
	c.Put("fp3", stref, nonGridded(400))

	if _, ok := c.Get("fp1", q); ok {
		t.Fatal("expected fp1 to have been evicted")
	}
	if _, ok := c.Get("fp2", q); !ok {
		t.Fatal("expected fp2 to still be cached")
	}
	if _, ok := c.Get("fp3", q); !ok {
		t.Fatal("expected fp3 to still be cached")
	}
}

func TestScenario4_HalfPixelToleranceHits(t *testing.T) {
	c := New(1000)
	// pixel_size = (100-0)/100 = 1; Q extends 0.4 pixels past the stored x2.
	// Clipped to Q the entry holds 100.4x100 pixels, inside [60,120).
	stref := griddedStref(0, 0, 0, 100, 100, 0, 1000)
	c.Put("fp1", stref, &fakeResult{size: 100, width: 100, height: 100})

	q, _ := qrect.New(0, 0, 0, 100.4, 100, 500, 60, 60)
	if _, ok := c.Get("fp1", q); !ok {
		t.Fatal("expected half-pixel-tolerance hit")
	}
}

func TestScenario5_ResolutionWithinOneOctaveHits(t *testing.T) {
	c := New(10_000_000)
	stref := griddedStref(0, 0, 0, 1000, 1000, 0, 1000)
	c.Put("fp1", stref, &fakeResult{size: 1_000_000, width: 1000, height: 1000})

	q, _ := qrect.New(0, 0, 0, 1000, 1000, 500, 600, 600)
	if _, ok := c.Get("fp1", q); !ok {
		t.Fatal("expected resolution-compatible hit (clip 1000 in [600,1200))")
	}
}

func TestScenario5b_LowerResolutionStoredEntryMisses(t *testing.T) {
	c := New(10_000_000)
	stref := griddedStref(0, 0, 0, 1000, 1000, 0, 1000)
	c.Put("fp1", stref, &fakeResult{size: 400, width: 400, height: 400})

	q, _ := qrect.New(0, 0, 0, 1000, 1000, 500, 600, 600)
	if _, ok := c.Get("fp1", q); ok {
		t.Fatal("a lower-resolution stored entry must not satisfy a higher-resolution query")
	}
}

func TestScenario6_ConcurrentMissesComputeOnce(t *testing.T) {
	c := New(1000)
	q, _ := qrect.New(0, 0, 0, 10, 10, 500, 0, 0)
	stref := griddedStref(0, 0, 0, 10, 10, 0, 1000)

	var calls int32
	producer := func() (result.Result, qrect.SpatioTemporalReference, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(30 * time.Millisecond)
		return &fakeResult{id: 42, size: 10}, stref, nil
	}

	var wg sync.WaitGroup
	results := make([]result.Result, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := c.GetOrCompute("fp1", q, producer)
			if err != nil {
				t.Errorf("GetOrCompute: %v", err)
				return
			}
			results[i] = r
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("producer should run exactly once, ran %d times", got)
	}
	r0, r1 := results[0].(*fakeResult), results[1].(*fakeResult)
	if r0.id != r1.id || r0.size != r1.size {
		t.Fatalf("concurrent callers got differing results: %+v vs %+v", r0, r1)
	}
}

func TestInvariant_CurrentBytesEqualsSumOfEntrySizes(t *testing.T) {
	c := New(1000)
	stref := griddedStref(0, 0, 0, 10, 10, 0, 1000)
	c.Put("fp1", stref, nonGridded(200))
	c.Put("fp2", stref, nonGridded(300))

	if got := c.Stats().CurrentBytes; got != 500 {
		t.Fatalf("current_bytes = %d, want 500", got)
	}
}

func TestEvictionWithNothingToEvictPanics(t *testing.T) {
	c := New(100)
	// Insert one entry while its bucket is marked "pending". Eviction does
	// not consult the pending flag, so this alone does not keep the entry
	// from being evicted; the policy is drained further below.
	b := c.bucketFor("fp1")
	b.mu.Lock()
	b.pending = true
	b.mu.Unlock()

	stref := griddedStref(0, 0, 0, 10, 10, 0, 1000)
	c.Put("fp1", stref, nonGridded(50))

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when eviction has nothing left to evict")
		}
	}()
	// A second fingerprint's put that cannot fit, with the only existing
	// entry belonging to a different (evictable) bucket, would succeed
	// normally; to force the "nothing to evict" path we drain the policy
	// directly.
	for {
		if _, ok := c.policy.Evict(); !ok {
			break
		}
	}
	c.accounting.Lock()
	c.currentBytes = c.maxBytes + 1
	c.accounting.Unlock()
	c.put("fpX", c.bucketFor("fpX"), stref, nonGridded(10))
}

func TestNoopCacheAlwaysInvokesProducer(t *testing.T) {
	var calls int
	nc := NoopCache{}
	q, _ := qrect.New(0, 0, 0, 1, 1, 0, 0, 0)
	producer := func() (result.Result, qrect.SpatioTemporalReference, error) {
		calls++
		return nonGridded(1), qrect.SpatioTemporalReference{}, nil
	}

	for i := 0; i < 3; i++ {
		if _, err := nc.GetOrCompute(fmt.Sprintf("fp%d", i), q, producer); err != nil {
			t.Fatalf("GetOrCompute: %v", err)
		}
	}
	if calls != 3 {
		t.Fatalf("NoopCache must invoke the producer every time, got %d calls", calls)
	}
}
