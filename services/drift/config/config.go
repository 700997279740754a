// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads Drift daemon configuration from YAML.
//
// The default location is ~/.aleutian/drift.yaml. A missing file is not
// an error; defaults apply. Validation happens at load time with
// go-playground/validator tags so a bad config fails fast at startup
// instead of mid-sync.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Sync      SyncConfig      `yaml:"sync" json:"sync"`
	Resolve   ResolveConfig   `yaml:"resolve" json:"resolve"`
	Backup    BackupConfig    `yaml:"backup" json:"backup"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
}

// ServerConfig controls the HTTP/websocket listener.
type ServerConfig struct {
	Port  int  `yaml:"port" json:"port" validate:"gte=1,lte=65535"`
	Debug bool `yaml:"debug" json:"debug"`
}

// StorageConfig controls snapshot persistence.
type StorageConfig struct {
	// DataDir is the BadgerDB directory. Empty selects an in-memory
	// store.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// SyncConfig controls folder-based snapshot sync.
type SyncConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Dir     string `yaml:"dir" json:"dir" validate:"required_if=Enabled true"`
}

// ResolveConfig controls how document merges settle true conflicts.
type ResolveConfig struct {
	// Strategy names the resolution strategy. Empty means
	// last_write_wins.
	Strategy string `yaml:"strategy" json:"strategy" validate:"omitempty,oneof=last_write_wins first_write_wins custom_merge manual_resolution conflict_avoidance"`
}

// BackupConfig controls GCS snapshot backup.
type BackupConfig struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	Bucket          string `yaml:"bucket" json:"bucket" validate:"required_if=Enabled true"`
	Prefix          string `yaml:"prefix" json:"prefix"`
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	// Dir enables file logging alongside stderr. Supports ~ expansion.
	Dir string `yaml:"dir" json:"dir"`

	// JSON switches stderr output to JSON format.
	JSON bool `yaml:"json" json:"json"`
}

// TelemetryConfig mirrors the telemetry package's exporter selection.
type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter" json:"trace_exporter" validate:"omitempty,oneof=otlp jaeger stdout none"`
	MetricExporter string `yaml:"metric_exporter" json:"metric_exporter" validate:"omitempty,oneof=prometheus stdout none"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" json:"otlp_endpoint"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: 8890},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "prometheus",
		},
	}
}

// DefaultPath returns ~/.aleutian/drift.yaml, or just "drift.yaml" when
// the home directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "drift.yaml"
	}
	return filepath.Join(home, ".aleutian", "drift.yaml")
}

var configValidate = validator.New()

// Load reads and validates configuration from path. A missing file
// returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := configValidate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

var (
	loadOnce  sync.Once
	loadedCfg Config
	loadedErr error
)

// LoadDefault loads the config from DefaultPath exactly once and caches
// the result for the process lifetime.
func LoadDefault() (Config, error) {
	loadOnce.Do(func() {
		loadedCfg, loadedErr = Load(DefaultPath())
	})
	return loadedCfg, loadedErr
}
