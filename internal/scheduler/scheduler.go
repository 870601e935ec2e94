// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scheduler runs the two periodic background jobs bootstrap wires
// up: cache occupancy logging and audit log retention. Grounded on
// internal/taskmanager's gocron/v2 scheduler wrapper (taskManager.go's
// Start/Shutdown and retentionService.go's DailyJob registration), trading
// the job-archive retention policy for an audit-log one.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/geoengine/ge-backend/internal/audit"
	"github.com/geoengine/ge-backend/internal/cache"
	"github.com/geoengine/ge-backend/pkg/log"
)

// Scheduler owns the gocron scheduler instance and the jobs registered
// against it. The zero value is not usable; construct with New.
type Scheduler struct {
	s gocron.Scheduler
}

// New constructs a Scheduler. Call Start to begin running registered jobs.
func New() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Scheduler{s: s}, nil
}

// RegisterCacheStatsLogging logs cache occupancy at the given interval.
func (sch *Scheduler) RegisterCacheStatsLogging(store cache.StatsProvider, interval time.Duration) error {
	_, err := sch.s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			stats := store.Stats()
			log.Infof("scheduler: cache occupancy: %d/%d bytes across %d fingerprints",
				stats.CurrentBytes, stats.MaxBytes, stats.Buckets)
		}),
	)
	return err
}

// RegisterAuditRetention prunes audit_log rows older than maxAge once a
// day at 03:00, mirroring retentionService.go's daily-at-a-fixed-hour
// cadence for the job archive's own retention sweep.
func (sch *Scheduler) RegisterAuditRetention(db *audit.DB, maxAge time.Duration) error {
	_, err := sch.s.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(3, 0, 0))),
		gocron.NewTask(func() {
			cutoff := time.Now().Add(-maxAge)
			n, err := db.Prune(context.Background(), cutoff)
			if err != nil {
				log.Errorf("scheduler: audit retention sweep: %v", err)
				return
			}
			if n > 0 {
				log.Infof("scheduler: audit retention sweep removed %d rows older than %s", n, cutoff)
			}
		}),
	)
	return err
}

// Start begins running registered jobs. Non-blocking; gocron runs jobs on
// its own goroutines.
func (sch *Scheduler) Start() {
	sch.s.Start()
}

// Shutdown stops the scheduler and waits for any in-progress job to
// finish.
func (sch *Scheduler) Shutdown() error {
	return sch.s.Shutdown()
}
