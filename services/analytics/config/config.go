// Copyright (C) 2025 Cairn Health (oss@cairnhealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config provides configuration loading for the analytics engine.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then environment overrides. The loaded struct is validated with
// go-playground/validator tags before use. Watch provides fsnotify-based
// hot reload so threshold changes take effect without a restart.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MaxConfigFileSize caps the config file at 1MB to avoid loading arbitrary
// large files into memory.
const MaxConfigFileSize = 1024 * 1024

// configValidate is the shared validator instance.
var configValidate = validator.New()

// Duration wraps time.Duration with YAML support for strings like "168h".
type Duration time.Duration

// UnmarshalYAML parses either a Go duration string or a bare number of
// seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" validate:"min=1,max=65535"`
}

// StorageConfig configures durable storage.
type StorageConfig struct {
	// DataDir is the BadgerDB directory. Ignored when InMemory is true.
	DataDir string `yaml:"data_dir"`

	// InMemory disables durable storage entirely.
	InMemory bool `yaml:"in_memory"`
}

// AnalyticsConfig holds the engine thresholds and job frequencies.
type AnalyticsConfig struct {
	// MinSampleSizeForInsights is the minimum number of samples (or
	// benchmarks, for the pattern pass) required before the engine draws
	// conclusions from the data.
	MinSampleSizeForInsights int `yaml:"min_sample_size_for_insights" validate:"min=1"`

	// BenchmarkRefreshFrequency is the interval between benchmark and
	// effectiveness-database refresh runs.
	BenchmarkRefreshFrequency Duration `yaml:"benchmark_refresh_frequency" validate:"min=1"`

	// InsightGenerationFrequency is the interval between insight
	// generation runs.
	InsightGenerationFrequency Duration `yaml:"insight_generation_frequency" validate:"min=1"`
}

// CacheConfig configures the query result cache.
type CacheConfig struct {
	TTL        Duration `yaml:"ttl" validate:"min=1"`
	MaxEntries int      `yaml:"max_entries" validate:"min=1"`
}

// Config is the full engine configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Cache     CacheConfig     `yaml:"cache"`
}

// Default returns the built-in defaults: weekly benchmark refresh, daily
// insight generation, sample threshold of 10.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Analytics: AnalyticsConfig{
			MinSampleSizeForInsights:   10,
			BenchmarkRefreshFrequency:  Duration(168 * time.Hour),
			InsightGenerationFrequency: Duration(24 * time.Hour),
		},
		Cache: CacheConfig{
			TTL:        Duration(5 * time.Minute),
			MaxEntries: 1024,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment overrides.
//
// Description:
//
//	path may be empty, in which case only defaults and environment are
//	used. A missing file at a non-empty path is an error; a present but
//	invalid file is an error. The result is validated before return.
//
// Environment overrides:
//
//	CAIRN_PORT      - server port
//	CAIRN_DATA_DIR  - storage directory
//	CAIRN_IN_MEMORY - "true" disables durable storage
//
// Outputs:
//
//	*Config - The validated configuration.
//	error - Non-nil on read, parse, or validation failure.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	return configValidate.Struct(c)
}

func loadFile(cfg *Config, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileSize {
		return fmt.Errorf("config file %s exceeds %d bytes", path, MaxConfigFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CAIRN_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CAIRN_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("CAIRN_IN_MEMORY"); v == "true" || v == "1" {
		cfg.Storage.InMemory = true
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "cairn-analytics")
	}
	return filepath.Join(home, ".cairn", "analytics")
}

// Watch reloads the configuration whenever the file at path changes and
// calls onChange with each successfully loaded result.
//
// Description:
//
//	Watches the config file's directory (editors typically replace the
//	file rather than write in place, which would drop a watch on the file
//	itself). A change that fails to load or validate is logged and
//	ignored; the previous configuration stays in effect.
//
// Inputs:
//
//	path - Config file to watch. Must be non-empty.
//	logger - Logger for reload outcomes.
//	onChange - Called with each successfully reloaded config.
//
// Outputs:
//
//	func() - Stop function releasing the watcher.
//	error - Non-nil if the watcher cannot be created.
func Watch(path string, logger *slog.Logger, onChange func(*Config)) (func(), error) {
	if path == "" {
		return nil, fmt.Errorf("config watch requires a file path")
	}
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch config directory: %w", err)
	}

	target := filepath.Clean(path)
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					logger.Warn("config reload failed, keeping previous configuration",
						slog.String("path", path),
						slog.String("error", err.Error()))
					continue
				}
				logger.Info("configuration reloaded", slog.String("path", path))
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", slog.String("error", err.Error()))
			}
		}
	}()

	return func() { watcher.Close() }, nil
}
