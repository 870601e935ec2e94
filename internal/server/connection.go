// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package server

import (
	"net"
	"sync/atomic"
)

// ConnState is bookkeeping only, mirroring the teacher's style of exposing
// mutex/atomic-protected structs purely for diagnostics (e.g.
// api.OngoingArchivings): it is exposed through Connection.State, but
// nothing in this package branches on it.
type ConnState int32

const (
	ConnStateReading ConnState = iota
	ConnStateQueued
	ConnStateInWorker
	ConnStateClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnStateReading:
		return "reading"
	case ConnStateQueued:
		return "queued"
	case ConnStateInWorker:
		return "in-worker"
	case ConnStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection wraps one accepted net.Conn with an introspectable state tag.
type Connection struct {
	conn  net.Conn
	state atomic.Int32
}

func newConnection(c net.Conn) *Connection {
	conn := &Connection{conn: c}
	conn.state.Store(int32(ConnStateReading))
	return conn
}

func (c *Connection) State() ConnState     { return ConnState(c.state.Load()) }
func (c *Connection) setState(s ConnState) { c.state.Store(int32(s)) }
func (c *Connection) Close() error         { return c.conn.Close() }
