// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package cache

import (
	"github.com/geoengine/ge-backend/pkg/qrect"
	"github.com/geoengine/ge-backend/pkg/result"
)

// NoopCache is substituted for *Cache when the configuration disables
// caching: get_or_compute always invokes the producer, matching the
// behavior required when cacheEnabled is false.
type NoopCache struct{}

var _ Store = NoopCache{}

func (NoopCache) GetOrCompute(_ string, _ qrect.QueryRectangle, producer Producer) (result.Result, error) {
	r, _, err := producer()
	return r, err
}

// Stats reports an always-empty snapshot, since NoopCache never retains
// anything. internal/adminhttp calls this through the same StatsProvider
// interface regardless of which Store backs the dispatcher.
func (NoopCache) Stats() Stats { return Stats{} }
