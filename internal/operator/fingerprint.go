// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package operator

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// computeSemanticID derives the deterministic fingerprint used as the
// cache's fingerprint-bucket key: (type, serialized parameters sorted by
// key, children's semantic_ids in declared order). Equal subtrees produce
// equal IDs; different parameters or a different child order produce
// different IDs, except when commutative is true, in which case each
// source kind's child IDs are sorted before hashing so operand order
// stops mattering — the operator itself declares this via its registered
// TypeDescriptor.
func computeSemanticID(typ string, params json.RawMessage, commutative bool, sources map[string][]Node) string {
	var buf bytes.Buffer
	buf.WriteString(typ)
	buf.WriteByte(0)
	buf.Write(canonicalizeJSON(params))
	buf.WriteByte(0)

	kinds := make([]string, 0, len(sources))
	for k := range sources {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	for _, k := range kinds {
		buf.WriteString(k)
		buf.WriteByte(0)

		children := sources[k]
		ids := make([]string, len(children))
		for i, c := range children {
			ids[i] = c.SemanticID()
		}
		if commutative {
			sort.Strings(ids)
		}
		for _, id := range ids {
			buf.WriteString(id)
			buf.WriteByte(0)
		}
	}

	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

// canonicalizeJSON re-marshals raw into a form with map keys in sorted
// order — encoding/json already sorts map[string]any keys on Marshal, so a
// decode-then-encode round trip is sufficient; malformed input degrades to
// the raw bytes rather than failing fingerprinting.
func canonicalizeJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}
