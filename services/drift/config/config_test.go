// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "drift.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 8890, cfg.Server.Port)
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9001
  debug: true
storage:
  data_dir: /var/lib/drift
sync:
  enabled: true
  dir: /shared/drift
resolve:
  strategy: custom_merge
telemetry:
  metric_exporter: stdout
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.True(t, cfg.Server.Debug)
	assert.Equal(t, "/var/lib/drift", cfg.Storage.DataDir)
	assert.Equal(t, "/shared/drift", cfg.Sync.Dir)
	assert.Equal(t, "custom_merge", cfg.Resolve.Strategy)
	assert.Equal(t, "stdout", cfg.Telemetry.MetricExporter)
	// Unset sections keep defaults.
	assert.Equal(t, "none", cfg.Telemetry.TraceExporter)
}

func TestLoadRejectsBadConfig(t *testing.T) {
	_, err := Load(writeConfig(t, "server:\n  port: 99999\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "sync:\n  enabled: true\n"))
	assert.Error(t, err, "sync enabled without dir must fail validation")

	_, err = Load(writeConfig(t, "telemetry:\n  metric_exporter: graphite\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "resolve:\n  strategy: coin_flip\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "not: [valid"))
	assert.Error(t, err)
}
