// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package adminhttp

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/geoengine/ge-backend/pkg/log"
)

// bearerAuth gates /stats and /metrics behind a symmetric-key JWT, grounded
// on internal/auth/jwt.go's HS256 verification path but trimmed to a single
// shared secret instead of cc-backend's full ed25519/cross-login stack —
// this server has one caller population (operators), not end users.
type bearerAuth struct {
	secret []byte
}

var errMissingBearer = errors.New("adminhttp: missing or malformed bearer token")

func (b bearerAuth) middleware(next http.Handler) http.Handler {
	if len(b.secret) == 0 {
		log.Warn("adminhttp: no jwtSecret configured, admin endpoints are unauthenticated")
		return next
	}

	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if err := b.verify(r); err != nil {
			rw.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(rw, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(rw, r)
	})
}

func (b bearerAuth) verify(r *http.Request) error {
	raw := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(raw, prefix) {
		return errMissingBearer
	}
	tokenStr := strings.TrimPrefix(raw, prefix)

	_, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("adminhttp: unexpected signing method")
		}
		return b.secret, nil
	})
	if err != nil {
		return err
	}
	return nil
}
