// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package audit implements the persistent query audit log: every completed
// top-level query's profiler summary is appended as one row to a
// SQLite-backed table, independent of and never consulted by the in-memory
// result cache. Grounded on internal/repository's sqlx/squirrel/
// golang-migrate stack (dbConnection.go, migration.go, jobCreate.go's
// named-insert style), trading the job-domain schema for an audit-log one.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"

	"github.com/geoengine/ge-backend/internal/profiler"
	"github.com/geoengine/ge-backend/pkg/log"
	"github.com/geoengine/ge-backend/pkg/qrect"
)

// registerDriverOnce guards sql.Register, which panics if the same driver
// name is registered twice — Open may be called more than once per process
// (tests open several audit databases), but the hooked driver only needs
// registering once.
var registerDriverOnce sync.Once

func registerDriver() {
	registerDriverOnce.Do(func() {
		sql.Register("sqlite3WithHooks", sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, &Hooks{}))
	})
}

// Outcome discriminates how a top-level query ended.
type Outcome string

const (
	OutcomeOK    Outcome = "ok"
	OutcomeError Outcome = "error"
)

// Row is one audit_log record.
type Row struct {
	RequestID   uuid.UUID
	Fingerprint string
	Query       qrect.QueryRectangle
	Outcome     Outcome
	Duration    time.Duration
	Profile     profiler.Summary
	CreatedAt   time.Time
}

// DB wraps the audit database connection. The zero value is not usable;
// construct with Open.
type DB struct {
	conn *sqlx.DB
}

// Open opens (creating if necessary) the SQLite database at path and brings
// its schema up to date. Mirrors dbConnection.go's single-writer discipline:
// SQLite does not benefit from more than one open connection here, and
// serializing writes avoids SQLITE_BUSY under concurrent top-level queries.
// The driver is wrapped with sqlhooks, exactly as dbConnection.go's
// "sqlite3WithHooks" registration does, so every statement is logged
// through pkg/log at debug level with its elapsed time.
func Open(path string) (*DB, error) {
	registerDriver()

	conn, err := sqlx.Open("sqlite3WithHooks", fmt.Sprintf("%s?_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("audit: opening %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1)

	if err := runMigrations(conn.DB); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn}, nil
}

func (db *DB) Close() error { return db.conn.Close() }

// Insert appends one completed query's profile to the log. Never called for
// a cache hit alone — one row per top-level dispatcher evaluation,
// regardless of whether the cache served it.
func (db *DB) Insert(ctx context.Context, row Row) error {
	queryJSON, err := json.Marshal(row.Query)
	if err != nil {
		return fmt.Errorf("audit: marshaling query rectangle: %w", err)
	}

	query, args, err := sq.Insert("audit_log").
		Columns(
			"request_id", "fingerprint", "query_json", "outcome",
			"duration_ns", "self_cpu_ns", "total_cpu_ns",
			"self_gpu_ns", "total_gpu_ns", "self_io_bytes", "total_io_bytes",
			"created_at",
		).
		Values(
			row.RequestID.String(), row.Fingerprint, string(queryJSON), string(row.Outcome),
			row.Duration.Nanoseconds(),
			row.Profile.SelfCPU.Nanoseconds(), row.Profile.TotalCPU.Nanoseconds(),
			row.Profile.SelfGPU.Nanoseconds(), row.Profile.TotalGPU.Nanoseconds(),
			row.Profile.SelfIO, row.Profile.TotalIO,
			row.CreatedAt.Unix(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("audit: building insert: %w", err)
	}

	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		log.Errorf("audit: inserting row for request %s: %v", row.RequestID, err)
		return fmt.Errorf("audit: inserting row: %w", err)
	}
	return nil
}

// Recent returns up to limit of the most recently inserted rows, newest
// first (ordered by created_at).
func (db *DB) Recent(ctx context.Context, limit int) ([]Row, error) {
	query, args, err := sq.Select(
		"request_id", "fingerprint", "query_json", "outcome",
		"duration_ns", "self_cpu_ns", "total_cpu_ns",
		"self_gpu_ns", "total_gpu_ns", "self_io_bytes", "total_io_bytes",
		"created_at",
	).From("audit_log").OrderBy("created_at DESC").Limit(uint64(limit)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("audit: building select: %w", err)
	}

	rows, err := db.conn.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: querying recent rows: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			requestID                        string
			fingerprint, queryJSON, outcome  string
			durationNS                       int64
			selfCPU, totalCPU                int64
			selfGPU, totalGPU                int64
			selfIO, totalIO                  int64
			createdAt                        int64
		)
		if err := rows.Scan(&requestID, &fingerprint, &queryJSON, &outcome,
			&durationNS, &selfCPU, &totalCPU, &selfGPU, &totalGPU,
			&selfIO, &totalIO, &createdAt); err != nil {
			return nil, fmt.Errorf("audit: scanning row: %w", err)
		}

		id, err := uuid.Parse(requestID)
		if err != nil {
			return nil, fmt.Errorf("audit: parsing request id %q: %w", requestID, err)
		}
		var q qrect.QueryRectangle
		if err := json.Unmarshal([]byte(queryJSON), &q); err != nil {
			return nil, fmt.Errorf("audit: unmarshaling query rectangle: %w", err)
		}

		out = append(out, Row{
			RequestID:   id,
			Fingerprint: fingerprint,
			Query:       q,
			Outcome:     Outcome(outcome),
			Duration:    time.Duration(durationNS),
			Profile: profiler.Summary{
				SelfCPU: time.Duration(selfCPU), TotalCPU: time.Duration(totalCPU),
				SelfGPU: time.Duration(selfGPU), TotalGPU: time.Duration(totalGPU),
				SelfIO: selfIO, TotalIO: totalIO,
			},
			CreatedAt: time.Unix(createdAt, 0).UTC(),
		})
	}
	return out, rows.Err()
}

// Prune deletes rows older than cutoff, for the scheduler's retention
// sweep. Returns the number of rows removed.
func (db *DB) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := sq.Delete("audit_log").Where(sq.Lt{"created_at": cutoff.Unix()}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("audit: building delete: %w", err)
	}

	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("audit: pruning rows: %w", err)
	}
	return res.RowsAffected()
}
