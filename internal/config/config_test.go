// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestInitMissingFileKeepsDefaults(t *testing.T) {
	Keys = Config{Workers: 4, QueueDepth: 16}
	Init(filepath.Join(t.TempDir(), "does-not-exist.json"))

	if Keys.Workers != 4 {
		t.Fatalf("Workers = %d, want default of 4 preserved", Keys.Workers)
	}
}

func TestInitOverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "config.json")
	body := `{"listen":":7000","workers":3,"queueDepth":32,"cacheEnabled":false}`
	if err := os.WriteFile(fp, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	Keys = Config{Workers: 1, QueueDepth: 1}
	Init(fp)

	if Keys.Listen != ":7000" {
		t.Fatalf("Listen = %q, want :7000", Keys.Listen)
	}
	if Keys.Workers != 3 {
		t.Fatalf("Workers = %d, want 3", Keys.Workers)
	}
	if Keys.CacheEnabled {
		t.Fatalf("CacheEnabled = true, want false")
	}
}

// Init calls log.Fatal (os.Exit) on a schema-invalid file, which this test
// process cannot safely provoke directly. The schema rejection itself —
// the actual guard Init relies on — is exercised here without going through
// Init's fatal path.
func TestSchemaRejectsUnknownField(t *testing.T) {
	raw := []byte(`{"workers":2,"queueDepth":2,"bogusField":true}`)
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := configSchema.Validate(v); err == nil {
		t.Fatal("expected schema validation to reject an unknown field")
	}
}

func TestEnvOverlayWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "config.json")
	body := `{"workers":2,"queueDepth":2,"jwtSecret":"from-file"}`
	if err := os.WriteFile(fp, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("GE_JWT_SECRET", "from-env")
	Keys = Config{}
	Init(fp)

	if Keys.JWTSecret != "from-env" {
		t.Fatalf("JWTSecret = %q, want env override to win", Keys.JWTSecret)
	}
}
