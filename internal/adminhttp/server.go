// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package adminhttp implements the admin HTTP surface (component I):
// /healthz, /stats, and a Prometheus /metrics endpoint, separate from the
// binary query protocol server so operators can probe it with ordinary
// HTTP tooling. Grounded on cmd/cc-backend/server.go's gorilla/mux +
// gorilla/handlers wiring, trading the templated web UI for a small JSON
// API.
package adminhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/geoengine/ge-backend/internal/dispatch"
	"github.com/geoengine/ge-backend/internal/server"
	"github.com/geoengine/ge-backend/pkg/log"
)

// Server is the admin HTTP server. The zero value is not usable; construct
// with New.
type Server struct {
	addr    string
	disp    *dispatch.Dispatcher
	qserver *server.Server
	metrics *Metrics
	auth    bearerAuth

	httpServer *http.Server
	ready      atomic.Bool
}

// New constructs an admin Server. jwtSecret empty disables authentication
// on /stats and /metrics (still logs a warning at startup).
func New(addr string, qserver *server.Server, disp *dispatch.Dispatcher, metrics *Metrics, jwtSecret string) *Server {
	return &Server{
		addr:    addr,
		disp:    disp,
		qserver: qserver,
		metrics: metrics,
		auth:    bearerAuth{secret: []byte(jwtSecret)},
	}
}

// SetReady marks the server ready to accept query traffic; /healthz
// returns 200 only once this has been called. Call it after the query
// server's worker pool and cache are constructed, before Run.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

type statsResponse struct {
	CacheBytes    int64 `json:"cacheBytes"`
	CacheMaxBytes int64 `json:"cacheMaxBytes"`
	CacheBuckets  int   `json:"cacheFingerprintBuckets"`
	QueueDepth    int   `json:"queueDepth"`
	QueueCap      int   `json:"queueCapacity"`
	WorkersBusy   int   `json:"workersBusy"`
	Workers       int   `json:"workers"`
}

func (s *Server) handleHealthz(rw http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		http.Error(rw, "not ready", http.StatusServiceUnavailable)
		return
	}
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte("ok"))
}

func (s *Server) handleStats(rw http.ResponseWriter, r *http.Request) {
	cacheStats := s.disp.Stats()
	srvStats := s.qserver.Stats()

	s.metrics.refreshGauges(cacheStats, srvStats.QueueDepth, srvStats.WorkersBusy)

	resp := statsResponse{
		CacheBytes:    cacheStats.CurrentBytes,
		CacheMaxBytes: cacheStats.MaxBytes,
		CacheBuckets:  cacheStats.Buckets,
		QueueDepth:    srvStats.QueueDepth,
		QueueCap:      srvStats.QueueCap,
		WorkersBusy:   srvStats.WorkersBusy,
		Workers:       srvStats.Workers,
	}

	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(resp); err != nil {
		log.Errorf("adminhttp: encoding /stats response: %v", err)
	}
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	secured := r.PathPrefix("/").Subrouter()
	secured.Use(s.auth.middleware)
	secured.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	promHandler := promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})
	secured.Handle("/metrics", http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		srvStats := s.qserver.Stats()
		s.metrics.refreshGauges(s.disp.Stats(), srvStats.QueueDepth, srvStats.WorkersBusy)
		promHandler.ServeHTTP(rw, r)
	})).Methods(http.MethodGet)

	r.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
	return r
}

// Run starts the admin HTTP server and blocks until ctx is cancelled, then
// shuts it down within grace.
func (s *Server) Run(ctx context.Context, grace time.Duration) error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("adminhttp: listening on %s", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("adminhttp: shutdown: %v", err)
		return err
	}
	return nil
}
