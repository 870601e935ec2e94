// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package server implements the connection/worker server (component E): a
// goroutine-per-connection accept loop feeding a bounded channel that a
// fixed pool of worker goroutines drains, grounded on
// arx-os-arxos/internal/daemon/server.go's accept-loop/per-client-goroutine
// shape and cmd/cc-backend/main.go's signal.Notify + sync.WaitGroup
// graceful shutdown, adapted to the binary framed protocol instead of HTTP.
package server

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/geoengine/ge-backend/internal/dispatch"
	"github.com/geoengine/ge-backend/internal/operator"
	"github.com/geoengine/ge-backend/internal/profiler"
	"github.com/geoengine/ge-backend/internal/protocol"
	"github.com/geoengine/ge-backend/pkg/log"
	"github.com/geoengine/ge-backend/pkg/qrect"
	"github.com/geoengine/ge-backend/pkg/runtimeEnv"
)

// CompletionHook is notified once per completed top-level query, success or
// failure, so bootstrap can wire the audit log (internal/audit) and the
// Prometheus query-duration histogram (internal/adminhttp) without the
// server package depending on either.
type CompletionHook func(fingerprint string, q qrect.QueryRectangle, outcome string, dur time.Duration, summary profiler.Summary)

// task is one parsed request queued for a worker. done is closed once a
// response (success or error) has been written back to conn, so the
// connection's reader goroutine knows it may read the next frame.
type task struct {
	conn *Connection
	req  *protocol.Request
	done chan struct{}
}

// Server is the connection/worker server. The zero value is not usable;
// construct with New.
type Server struct {
	addr       string
	reg        *operator.Registry
	disp       *dispatch.Dispatcher
	workers    int
	limiter    *rate.Limiter
	onComplete CompletionHook

	queue        chan *task
	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	listener net.Listener

	connsMu sync.Mutex
	conns   map[*Connection]struct{}

	workersWG sync.WaitGroup
	connsWG   sync.WaitGroup

	busyWorkers atomic.Int64
}

// Stats is a point-in-time snapshot for internal/adminhttp's /stats endpoint.
type Stats struct {
	QueueDepth  int
	QueueCap    int
	WorkersBusy int
	Workers     int
}

// SetCompletionHook installs the callback invoked after every completed
// top-level query. Not safe to call concurrently with Run; call once during
// bootstrap.
func (s *Server) SetCompletionHook(hook CompletionHook) {
	s.onComplete = hook
}

// Stats reports current queue occupancy and worker utilization.
func (s *Server) Stats() Stats {
	return Stats{
		QueueDepth:  len(s.queue),
		QueueCap:    cap(s.queue),
		WorkersBusy: int(s.busyWorkers.Load()),
		Workers:     s.workers,
	}
}

// New constructs a Server. queueDepth bounds how many parsed requests may
// wait for a free worker before a connection's reader goroutine blocks
// submitting a new one (ordinary channel backpressure, no separate
// admission-control path for this). limiter bounds the rate of accepted
// connections, independent of request admission.
func New(addr string, reg *operator.Registry, disp *dispatch.Dispatcher, workers, queueDepth int, limiter *rate.Limiter) *Server {
	return &Server{
		addr:       addr,
		reg:        reg,
		disp:       disp,
		workers:    workers,
		limiter:    limiter,
		queue:      make(chan *task, queueDepth),
		shutdownCh: make(chan struct{}),
		conns:      make(map[*Connection]struct{}),
	}
}

// Run listens on s.addr, starts the worker pool and accept loop, and blocks
// until ctx is cancelled. On cancellation it performs a graceful shutdown
// bounded by grace: the listener stops accepting immediately, requests
// still sitting in the queue (not yet claimed by a worker) are dropped with
// an error response, in-flight requests are allowed to complete, and any
// connection still open after grace is forced closed. Run returns nil on a
// clean shutdown.
func (s *Server) Run(ctx context.Context, grace time.Duration) error {
	ln, err := runtimeEnv.Listen(s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	log.Infof("server: listening on %s", s.addr)

	for i := 0; i < s.workers; i++ {
		s.workersWG.Add(1)
		go s.runWorker()
	}

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		s.acceptLoop(ctx)
	}()

	<-ctx.Done()
	s.shutdown(grace)
	<-acceptDone
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
		}

		c, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdownCh:
				return
			default:
				log.Errorf("server: accept: %v", err)
				continue
			}
		}

		conn := newConnection(c)
		s.trackConn(conn)
		s.connsWG.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) trackConn(c *Connection) {
	s.connsMu.Lock()
	s.conns[c] = struct{}{}
	s.connsMu.Unlock()
}

func (s *Server) untrackConn(c *Connection) {
	s.connsMu.Lock()
	delete(s.conns, c)
	s.connsMu.Unlock()
}

func (s *Server) handleConnection(c *Connection) {
	defer s.connsWG.Done()
	defer s.untrackConn(c)
	defer c.Close()

	for {
		c.setState(ConnStateReading)
		req, err := protocol.ReadRequest(c.conn)
		if err != nil {
			if err != io.EOF {
				if protoErr, ok := err.(*protocol.ProtocolError); ok {
					_ = protocol.WriteError(c.conn, protoErr.Error())
				}
			}
			return
		}

		done := make(chan struct{})
		c.setState(ConnStateQueued)
		select {
		case s.queue <- &task{conn: c, req: req, done: done}:
		case <-s.shutdownCh:
			_ = protocol.WriteError(c.conn, "server shutting down")
			return
		}

		c.setState(ConnStateInWorker)
		<-done
	}
}

func (s *Server) runWorker() {
	defer s.workersWG.Done()
	for t := range s.queue {
		s.processTask(t)
		close(t.done)
	}
}

func (s *Server) processTask(t *task) {
	s.busyWorkers.Add(1)
	defer s.busyWorkers.Add(-1)

	start := time.Now()

	node, err := operator.ParseGraph(s.reg, t.req.GraphJSON)
	if err != nil {
		_ = protocol.WriteError(t.conn.conn, err.Error())
		s.notifyComplete("", t.req.Query, "error", time.Since(start), profiler.Summary{})
		return
	}

	r, prof, err := s.disp.TopLevelEvaluate(context.Background(), node, t.req.Query)
	if err != nil {
		_ = protocol.WriteError(t.conn.conn, err.Error())
		s.notifyComplete(node.SemanticID(), t.req.Query, "error", time.Since(start), prof.Summary())
		return
	}

	if err := protocol.WriteOK(t.conn.conn, r); err != nil {
		log.Errorf("server: writing response: %v", err)
	}
	s.notifyComplete(node.SemanticID(), t.req.Query, "ok", time.Since(start), prof.Summary())
}

func (s *Server) notifyComplete(fingerprint string, q qrect.QueryRectangle, outcome string, dur time.Duration, summary profiler.Summary) {
	if s.onComplete != nil {
		s.onComplete(fingerprint, q, outcome, dur, summary)
	}
}

// shutdown stops accepting new connections, drops requests still waiting
// in the queue, lets in-flight work finish, and forces any connection
// still open after grace to close.
func (s *Server) shutdown(grace time.Duration) {
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)
	})
	_ = s.listener.Close()

	// handleConnection's select can still choose the "send on s.queue" case
	// for a moment after shutdownCh closes, so s.queue must not be closed
	// until every connection goroutine — the only senders — has actually
	// returned. Wait out connsWG first, forcing remaining connections
	// closed once grace elapses so a connection idle in ReadRequest cannot
	// block this forever.
	if !runtimeEnv.WaitTimeout(&s.connsWG, grace) {
		log.Warn("server: grace period elapsed, forcing remaining connections closed")
		s.connsMu.Lock()
		for c := range s.conns {
			c.setState(ConnStateClosed)
			_ = c.Close()
		}
		s.connsMu.Unlock()
		s.connsWG.Wait()
	}

	// Every connection goroutine has now returned, so nothing can still be
	// attempting to send on s.queue — only now is it safe to drain and
	// close it.
drain:
	for {
		select {
		case t := <-s.queue:
			_ = protocol.WriteError(t.conn.conn, "server shutting down")
			close(t.done)
		default:
			break drain
		}
	}
	close(s.queue)

	if !runtimeEnv.WaitTimeout(&s.workersWG, grace) {
		log.Warn("server: grace period elapsed with workers still draining")
	}
}
