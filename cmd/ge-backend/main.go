// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command ge-backend is the server binary: it bootstraps the cache,
// operator registry, dispatcher, audit log, admin HTTP surface and
// background scheduler, then runs the connection server until it receives
// SIGINT/SIGTERM. Grounded on cmd/cc-backend/main.go's flag parsing +
// config.Init + signal.Notify + sync.WaitGroup shutdown shape.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/geoengine/ge-backend/internal/adminhttp"
	"github.com/geoengine/ge-backend/internal/audit"
	"github.com/geoengine/ge-backend/internal/cache"
	"github.com/geoengine/ge-backend/internal/config"
	"github.com/geoengine/ge-backend/internal/dispatch"
	"github.com/geoengine/ge-backend/internal/metricsexport"
	"github.com/geoengine/ge-backend/internal/operator"
	"github.com/geoengine/ge-backend/internal/operator/sources"
	"github.com/geoengine/ge-backend/internal/profiler"
	"github.com/geoengine/ge-backend/internal/scheduler"
	"github.com/geoengine/ge-backend/internal/server"
	"github.com/geoengine/ge-backend/pkg/log"
	"github.com/geoengine/ge-backend/pkg/qrect"
	"github.com/geoengine/ge-backend/pkg/runtimeEnv"

	"github.com/google/uuid"
)

const shutdownGrace = 10 * time.Second

func main() {
	var (
		flagConfigFile string
		flagLogLevel   string
		flagUser       string
		flagGroup      string
	)
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Overwrite the default config options by those specified in `config.json`")
	flag.StringVar(&flagLogLevel, "loglevel", "info", "One of: debug, info, warn, err, crit")
	flag.StringVar(&flagUser, "user", "", "Drop root privileges to this user after the listeners are bound")
	flag.StringVar(&flagGroup, "group", "", "Drop root privileges to this group after the listeners are bound")
	flag.Parse()

	log.SetLogLevel(flagLogLevel)
	config.Init(flagConfigFile)

	registry := buildRegistry()

	var store cache.Store
	if config.Keys.CacheEnabled {
		store = cache.New(config.Keys.CacheMaxBytes)
	} else {
		store = cache.NoopCache{}
		log.Warn("main: cache disabled by configuration, every query re-runs its producers")
	}

	metrics := adminhttp.NewMetrics()
	if c, ok := store.(*cache.Cache); ok {
		c.SetObserver(metrics)
	}

	disp := dispatch.New(store)

	auditDB, err := audit.Open(config.Keys.AuditDBPath)
	if err != nil {
		log.Fatalf("main: opening audit database: %v", err)
	}
	defer auditDB.Close()

	metricsSink := metricsexport.NewWriter(os.Stdout)

	limiter := rate.NewLimiter(rate.Limit(500), 50)
	qServer := server.New(config.Keys.Listen, registry, disp, config.Keys.Workers, config.Keys.QueueDepth, limiter)
	qServer.SetCompletionHook(func(fingerprint string, q qrect.QueryRectangle, outcome string, dur time.Duration, summary profiler.Summary) {
		now := time.Now()
		metrics.ObserveQuery(outcome, dur.Seconds())
		if err := metricsSink.Write(fingerprint, outcome, summary, now); err != nil {
			log.Warnf("main: metrics export: %v", err)
		}
		row := audit.Row{
			RequestID:   uuid.New(),
			Fingerprint: fingerprint,
			Query:       q,
			Outcome:     audit.Outcome(outcome),
			Duration:    dur,
			Profile:     summary,
			CreatedAt:   now,
		}
		if err := auditDB.Insert(context.Background(), row); err != nil {
			log.Warnf("main: audit insert: %v", err)
		}
	})

	adminSrv := adminhttp.New(config.Keys.AdminListen, qServer, disp, metrics, config.Keys.JWTSecret)
	if config.Keys.JWTSecret == "" {
		log.Warn("main: adminhttp: no jwtSecret configured, /stats and /metrics are unauthenticated")
	}

	sched, err := scheduler.New()
	if err != nil {
		log.Fatalf("main: constructing scheduler: %v", err)
	}
	if err := sched.RegisterCacheStatsLogging(store.(cache.StatsProvider), time.Minute); err != nil {
		log.Fatalf("main: registering cache stats job: %v", err)
	}
	if err := sched.RegisterAuditRetention(auditDB, 30*24*time.Hour); err != nil {
		log.Fatalf("main: registering audit retention job: %v", err)
	}
	sched.Start()
	defer func() {
		if err := sched.Shutdown(); err != nil {
			log.Warnf("main: scheduler shutdown: %v", err)
		}
	}()

	if flagUser != "" || flagGroup != "" {
		if err := runtimeEnv.DropPrivileges(flagUser, flagGroup); err != nil {
			log.Fatalf("main: dropping privileges: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Infof("main: received signal %s, shutting down", sig)
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(2)

	var qErr, adminErr error
	go func() {
		defer wg.Done()
		qErr = qServer.Run(ctx, shutdownGrace)
	}()
	go func() {
		defer wg.Done()
		adminErr = adminSrv.Run(ctx, shutdownGrace)
	}()

	adminSrv.SetReady(true)
	runtimeEnv.SystemdNotifiy(true, "running")

	wg.Wait()
	runtimeEnv.SystemdNotifiy(false, "stopping")

	if qErr != nil {
		log.Errorf("main: query server exited with error: %v", qErr)
		os.Exit(1)
	}
	if adminErr != nil {
		log.Errorf("main: admin server exited with error: %v", adminErr)
		os.Exit(1)
	}
}

// buildRegistry registers every known operator node type and freezes the
// registry before the server starts accepting connections (§5: "write-once
// at startup, read-only thereafter").
func buildRegistry() *operator.Registry {
	reg := operator.NewRegistry()

	if err := sources.RegisterSynthetic(reg); err != nil {
		log.Fatalf("main: registering synthetic_source: %v", err)
	}

	if config.Keys.S3Bucket != "" {
		client, err := sources.NewS3ClientFromEnv(context.Background(), config.Keys.S3Region)
		if err != nil {
			log.Fatalf("main: constructing S3 client: %v", err)
		}
		if err := sources.RegisterS3Raster(reg, client); err != nil {
			log.Fatalf("main: registering s3_raster_source: %v", err)
		}
	} else {
		log.Warn("main: no s3Bucket configured, s3_raster_source is unavailable")
	}

	reg.Freeze()
	return reg
}
