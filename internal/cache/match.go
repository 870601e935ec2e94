// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package cache

import (
	"github.com/geoengine/ge-backend/pkg/log"
	"github.com/geoengine/ge-backend/pkg/qrect"
)

// dimensioned is implemented by Result variants backed by a pixel grid
// (pkg/result.Raster). Vector and plot results have no grid, so the
// resolution-compatibility test (condition 5) is vacuously satisfied for
// them — there is nothing to be "within one octave" of.
type dimensioned interface {
	Dimensions() (width, height uint32)
}

// match implements the five-part subsumption predicate from the cache
// design: an entry produced for stref S matches query Q iff all five
// conditions hold. Condition 1 (non-unix stored time) is an invariant
// violation, not a match failure: it is logged at crit level and then
// panics — it indicates a producer stamped a result with the wrong time convention,
// which is a programming error upstream of the cache.
func match(e *entry, q qrect.QueryRectangle) bool {
	s := e.stref

	if s.TimeType != qrect.TimeTypeUnix {
		log.Critf("cache: stored entry has non-unix time convention %s (fingerprint=%s)", s.TimeType, e.fingerprint)
		panic("cache: invariant violation, non-unix stored time")
	}

	if q.CRSID != s.CRSID {
		return false
	}

	width, height := uint32(0), uint32(0)
	if d, ok := e.payload.(dimensioned); ok {
		width, height = d.Dimensions()
	}

	if width > 0 && height > 0 {
		hspace := (s.X2 - s.X1) / float64(width) / 2
		vspace := (s.Y2 - s.Y1) / float64(height) / 2
		if !(q.MinX() >= s.X1-hspace && q.MaxX() <= s.X2+hspace &&
			q.MinY() >= s.Y1-vspace && q.MaxY() <= s.Y2+vspace) {
			return false
		}
	} else if !s.Covers2D(q) {
		return false
	}

	// Temporal containment, closed on both ends: Q.timestamp == S.t2 is a
	// HIT. Parameterized via closedUpperBound so the alternative (half-open)
	// is a one-line change, per the open question this was decided from.
	if !(q.Timestamp >= s.T1 && (q.Timestamp < s.T2 || (closedUpperBound && q.Timestamp == s.T2))) {
		return false
	}

	if width == 0 || height == 0 {
		return true
	}

	spanX := s.X2 - s.X1
	spanY := s.Y2 - s.Y1
	if spanX <= 0 || spanY <= 0 {
		return false
	}
	hf := (q.MaxX() - q.MinX()) / spanX
	vf := (q.MaxY() - q.MinY()) / spanY

	clipWidth := float64(width) * hf
	clipHeight := float64(height) * vf

	if clipWidth < float64(q.XRes) || clipHeight < float64(q.YRes) {
		return false
	}
	if clipWidth >= 2*float64(q.XRes) || clipHeight >= 2*float64(q.YRes) {
		return false
	}
	return true
}

// closedUpperBound resolves the open question on Q.timestamp == S.t2: true
// keeps the source's documented behavior (closed interval on both ends).
const closedUpperBound = true
