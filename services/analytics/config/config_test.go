// Copyright (C) 2025 Cairn Health (oss@cairnhealth.io)
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
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "analytics.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.Storage.InMemory)
	assert.NotEmpty(t, cfg.Storage.DataDir)
	assert.Equal(t, 10, cfg.Analytics.MinSampleSizeForInsights)
	assert.Equal(t, 168*time.Hour, cfg.Analytics.BenchmarkRefreshFrequency.Std())
	assert.Equal(t, 24*time.Hour, cfg.Analytics.InsightGenerationFrequency.Std())
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL.Std())
	assert.Equal(t, 1024, cfg.Cache.MaxEntries)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
analytics:
  min_sample_size_for_insights: 20
  benchmark_refresh_frequency: 72h
  insight_generation_frequency: 6h
cache:
  ttl: 30s
  max_entries: 64
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 20, cfg.Analytics.MinSampleSizeForInsights)
	assert.Equal(t, 72*time.Hour, cfg.Analytics.BenchmarkRefreshFrequency.Std())
	assert.Equal(t, 6*time.Hour, cfg.Analytics.InsightGenerationFrequency.Std())
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL.Std())
	assert.Equal(t, 64, cfg.Cache.MaxEntries)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("CAIRN_PORT", "7070")
	t.Setenv("CAIRN_DATA_DIR", "/tmp/cairn-test")
	t.Setenv("CAIRN_IN_MEMORY", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "/tmp/cairn-test", cfg.Storage.DataDir)
	assert.True(t, cfg.Storage.InMemory)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_Failures(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "explicit path must exist")

	_, err = Load(writeConfig(t, "server: [not a map"))
	assert.Error(t, err, "malformed yaml")

	_, err = Load(writeConfig(t, "server:\n  port: 99999\n"))
	assert.Error(t, err, "port out of range fails validation")

	_, err = Load(writeConfig(t, "analytics:\n  min_sample_size_for_insights: 0\n"))
	assert.Error(t, err, "zero sample threshold fails validation")
}

func TestDuration_Unmarshal(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want time.Duration
	}{
		{"go duration string", `"168h"`, 168 * time.Hour},
		{"composite duration", `"1h30m"`, 90 * time.Minute},
		{"bare seconds", `300`, 5 * time.Minute},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var d Duration
			require.NoError(t, yaml.Unmarshal([]byte(tc.in), &d))
			assert.Equal(t, tc.want, d.Std())
		})
	}

	var d Duration
	assert.Error(t, yaml.Unmarshal([]byte(`"not a duration"`), &d))
}

func TestDuration_MarshalRoundTrip(t *testing.T) {
	out, err := yaml.Marshal(Duration(90 * time.Minute))
	require.NoError(t, err)

	var d Duration
	require.NoError(t, yaml.Unmarshal(out, &d))
	assert.Equal(t, 90*time.Minute, d.Std())
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	path := writeConfig(t, "analytics:\n  min_sample_size_for_insights: 10\n")

	reloaded := make(chan *Config, 1)
	stop, err := Watch(path, nil, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte("analytics:\n  min_sample_size_for_insights: 25\n"), 0600))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 25, cfg.Analytics.MinSampleSizeForInsights)
	case <-time.After(3 * time.Second):
		t.Fatal("config change was not observed")
	}
}

func TestWatch_InvalidChangeKeepsPrevious(t *testing.T) {
	path := writeConfig(t, "analytics:\n  min_sample_size_for_insights: 10\n")

	reloaded := make(chan *Config, 4)
	stop, err := Watch(path, nil, func(cfg *Config) { reloaded <- cfg })
	require.NoError(t, err)
	defer stop()

	// Invalid content: reload fails, callback must not fire for it.
	require.NoError(t, os.WriteFile(path, []byte("analytics:\n  min_sample_size_for_insights: 0\n"), 0600))
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("analytics:\n  min_sample_size_for_insights: 30\n"), 0600))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 30, cfg.Analytics.MinSampleSizeForInsights,
			"only the valid change is delivered")
	case <-time.After(3 * time.Second):
		t.Fatal("config change was not observed")
	}
}

func TestWatch_RequiresPath(t *testing.T) {
	_, err := Watch("", nil, func(*Config) {})
	assert.Error(t, err)
}
