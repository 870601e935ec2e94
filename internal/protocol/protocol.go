// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package protocol implements the framed binary request/response encoding
// on top of a single net.Conn, grounded on the arena-free request/response
// pair pattern from arx-os-arxos/internal/daemon/server.go but
// little-endian fixed-width framing instead of line-delimited JSON, per the
// wire layout documented in the module's top-level specification.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/geoengine/ge-backend/pkg/qrect"
	"github.com/geoengine/ge-backend/pkg/result"
)

// Command discriminates the single currently-defined request kind. Future
// codes are reserved but unassigned.
type Command uint8

const CommandGetRaster Command = 1

// QueryMode controls whether a producer may round a requested resolution
// outward (Loose) or must match exactly (Exact).
type QueryMode uint8

const (
	QueryModeLoose QueryMode = 0
	QueryModeExact QueryMode = 1
)

// Status is the first byte of every response.
type Status uint8

const (
	StatusOK      Status = 1
	StatusPartial Status = 2 // reserved, never emitted
	StatusError   Status = 9
)

const maxGraphJSONBytes = 16 * 1024 * 1024

// ProtocolError represents a framing violation: unknown command, truncated
// read, or an oversized length prefix. It always terminates the
// connection — unlike GraphParseError/ProducerError, which are reported to
// the peer but keep the connection alive.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("protocol: %s", e.Reason) }

// Request is one fully-decoded client request.
type Request struct {
	Command   Command
	Query     qrect.QueryRectangle
	GraphJSON []byte
	Mode      QueryMode
}

// ReadRequest decodes one request frame from r. A clean EOF before any byte
// is read is reported as io.EOF so the caller can distinguish "peer closed
// the connection" from a genuine framing violation; anything else short of
// a complete frame is a *ProtocolError.
func ReadRequest(r io.Reader) (*Request, error) {
	var cmdBuf [1]byte
	if _, err := io.ReadFull(r, cmdBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &ProtocolError{Reason: "short read of command byte"}
	}
	cmd := Command(cmdBuf[0])
	if cmd != CommandGetRaster {
		return nil, &ProtocolError{Reason: fmt.Sprintf("unknown command %d", cmd)}
	}

	q, err := qrect.Deserialize(r)
	if err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("query rectangle: %v", err)}
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, &ProtocolError{Reason: "short read of graph length prefix"}
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > maxGraphJSONBytes {
		return nil, &ProtocolError{Reason: fmt.Sprintf("graph JSON length %d exceeds limit", n)}
	}
	graph := make([]byte, n)
	if _, err := io.ReadFull(r, graph); err != nil {
		return nil, &ProtocolError{Reason: "short read of graph JSON body"}
	}

	var modeBuf [1]byte
	if _, err := io.ReadFull(r, modeBuf[:]); err != nil {
		return nil, &ProtocolError{Reason: "short read of querymode byte"}
	}
	mode := QueryMode(modeBuf[0])
	if mode != QueryModeLoose && mode != QueryModeExact {
		return nil, &ProtocolError{Reason: fmt.Sprintf("unknown querymode %d", mode)}
	}

	return &Request{Command: cmd, Query: q, GraphJSON: graph, Mode: mode}, nil
}

// WriteOK writes a success response carrying r framed per pkg/result.
func WriteOK(w io.Writer, r result.Result) error {
	if _, err := w.Write([]byte{byte(StatusOK)}); err != nil {
		return err
	}
	return result.WriteFrame(w, r)
}

// WriteError writes an error response: status byte followed by a
// length-prefixed UTF-8 message. Used for ProtocolError, GraphParseError
// and ProducerError alike — the wire format does not distinguish which.
func WriteError(w io.Writer, msg string) error {
	if _, err := w.Write([]byte{byte(StatusError)}); err != nil {
		return err
	}
	body := []byte(msg)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// ReadResponse decodes one response frame, for use by a test client or a
// future CLI front-end. On a StatusError response, the message becomes the
// returned error's text; it is never a *ProtocolError, since the peer
// spoke the protocol correctly in reporting its own failure.
func ReadResponse(r io.Reader) (result.Result, error) {
	var statusBuf [1]byte
	if _, err := io.ReadFull(r, statusBuf[:]); err != nil {
		return nil, &ProtocolError{Reason: "short read of status byte"}
	}

	switch Status(statusBuf[0]) {
	case StatusOK:
		res, err := result.ReadFrame(r)
		if err != nil {
			return nil, &ProtocolError{Reason: fmt.Sprintf("result frame: %v", err)}
		}
		return res, nil
	case StatusError:
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, &ProtocolError{Reason: "short read of error length prefix"}
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		if n > maxGraphJSONBytes {
			return nil, &ProtocolError{Reason: "error message length exceeds limit"}
		}
		msg := make([]byte, n)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, &ProtocolError{Reason: "short read of error message body"}
		}
		return nil, fmt.Errorf("%s", msg)
	default:
		return nil, &ProtocolError{Reason: fmt.Sprintf("unknown status byte %d", statusBuf[0])}
	}
}
