// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package audit

import (
	"context"
	"time"

	"github.com/geoengine/ge-backend/pkg/log"
)

type ctxKey string

const ctxKeyBegin ctxKey = "begin"

// Hooks is a sqlhooks.Hooks implementation that logs every statement run
// against the audit database, mirroring internal/repository/hooks.go's
// Before/After pair.
type Hooks struct{}

// Before logs the query about to run and stashes a start timestamp in ctx
// for After to compute elapsed time from.
func (h *Hooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("audit: SQL query %s %q", query, args)
	return context.WithValue(ctx, ctxKeyBegin, time.Now()), nil
}

// After logs the elapsed time since the matching Before call.
func (h *Hooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(ctxKeyBegin).(time.Time); ok {
		log.Debugf("audit: query took %s", time.Since(begin))
	}
	return ctx, nil
}
