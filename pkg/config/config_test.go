// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fabric.yaml")
	yaml := []byte(`
gateway:
  port: 9000
redundancy:
  failure_threshold: 3
  recovery_seconds: 5
services:
  gis:
    url: http://gis.internal:8005
    alternates:
      - http://gis-replica.internal:8005
`)
	require.NoError(t, os.WriteFile(path, yaml, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Gateway.Port)
	assert.Equal(t, 3, cfg.Redundancy.FailureThreshold)
	assert.Equal(t, 5*time.Second, cfg.RecoveryInterval())

	assert.Equal(t, "http://gis.internal:8005", cfg.Services["gis"].URL)
	assert.Equal(t, []string{"http://gis-replica.internal:8005"}, cfg.Services["gis"].Alternates)

	// Unconfigured services keep their port-convention defaults.
	assert.Equal(t, "http://localhost:8001", cfg.Services["analysis"].URL)
	assert.Equal(t, "http://localhost:8008", cfg.Services["google-drive"].URL)
}

func TestLoadDefaultKnobs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fabric.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Redundancy.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.RecoveryInterval())
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL())
	assert.Equal(t, 30*time.Second, cfg.Timeout())
	assert.Equal(t, 3, cfg.Redundancy.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.BaseDelay())
	assert.Equal(t, 30*time.Second, cfg.MaxDelay())
	assert.InDelta(t, 0.1, cfg.Redundancy.JitterFraction, 1e-9)
	assert.Equal(t, "memory", cfg.Vector.Backend)
	assert.Equal(t, 384, cfg.Vector.Dimension)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fabric.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gateway:\n  port: 9000\n"), 0644))

	t.Setenv("FABRIC_GATEWAY_PORT", "9100")
	t.Setenv("ACRIS_SERVICE_URL", "http://acris.internal:8006")
	t.Setenv("GOOGLE_DRIVE_SERVICE_URL_ALT1", "http://drive-b.internal:8008")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Gateway.Port)
	assert.Equal(t, "http://acris.internal:8006", cfg.Services["acris"].URL)
	assert.Contains(t, cfg.Services["google-drive"].Alternates, "http://drive-b.internal:8008")
}

func TestServicePort(t *testing.T) {
	assert.Equal(t, 8000, ServicePort("gateway"))
	assert.Equal(t, 8001, ServicePort("analysis"))
	assert.Equal(t, 8004, ServicePort("vector"))
	assert.Equal(t, 8008, ServicePort("google-drive"))
	assert.Equal(t, 0, ServicePort("unknown"))
}
