// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package scheduler

import (
	"testing"
	"time"

	"github.com/geoengine/ge-backend/internal/audit"
	"github.com/geoengine/ge-backend/internal/cache"
)

func TestRegisterCacheStatsLoggingRunsWithoutError(t *testing.T) {
	sch, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c := cache.New(1024)

	if err := sch.RegisterCacheStatsLogging(c, 20*time.Millisecond); err != nil {
		t.Fatalf("RegisterCacheStatsLogging: %v", err)
	}

	sch.Start()
	time.Sleep(60 * time.Millisecond)
	if err := sch.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestRegisterAuditRetentionRegistersWithoutError(t *testing.T) {
	sch, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	db, err := audit.Open(":memory:")
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	defer db.Close()

	if err := sch.RegisterAuditRetention(db, 30*24*time.Hour); err != nil {
		t.Fatalf("RegisterAuditRetention: %v", err)
	}
	if err := sch.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
