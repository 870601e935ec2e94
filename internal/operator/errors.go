// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package operator

import "fmt"

// GraphParseError is returned for an unknown operator type, malformed
// graph JSON, or a node exceeding the source-count limit. It is surfaced
// to the peer as an error response; the connection is kept open.
type GraphParseError struct {
	Reason string
}

func (e *GraphParseError) Error() string { return fmt.Sprintf("graph parse error: %s", e.Reason) }

// ProducerError wraps any failure raised by a leaf producer (I/O, DB,
// compute). Surfaced to the peer; the connection is kept open; never
// memoized by the cache.
type ProducerError struct {
	NodeType string
	Err      error
}

func (e *ProducerError) Error() string {
	return fmt.Sprintf("producer error in node %q: %v", e.NodeType, e.Err)
}

func (e *ProducerError) Unwrap() error { return e.Err }
