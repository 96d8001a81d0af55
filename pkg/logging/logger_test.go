// Copyright (C) 2025 Cairn Health (oss@cairnhealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestLevel_ToSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelDebug.toSlogLevel())
	assert.Equal(t, slog.LevelInfo, LevelInfo.toSlogLevel())
	assert.Equal(t, slog.LevelWarn, LevelWarn.toSlogLevel())
	assert.Equal(t, slog.LevelError, LevelError.toSlogLevel())
	assert.Equal(t, slog.LevelInfo, Level(42).toSlogLevel(), "unknown levels default to info")
}

func TestNew_FileLogging(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelDebug,
		LogDir:  dir,
		Service: "analytics",
		Quiet:   true,
	})

	logger.Info("refresh completed", "benchmarks", 6)
	logger.Debug("cache warm", "items", 3)
	require.NoError(t, logger.Close())

	name := "analytics_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "refresh completed", entry["msg"])
	assert.Equal(t, "analytics", entry["service"])
	assert.Equal(t, float64(6), entry["benchmarks"])
}

func TestNew_LevelFiltering(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelWarn,
		LogDir:  dir,
		Service: "analytics",
		Quiet:   true,
	})

	logger.Info("below threshold")
	logger.Warn("at threshold")
	logger.Error("above threshold")
	require.NoError(t, logger.Close())

	name := "analytics_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)

	assert.NotContains(t, string(data), "below threshold")
	assert.Contains(t, string(data), "at threshold")
	assert.Contains(t, string(data), "above threshold")
}

func TestNew_BadLogDirDegradesSilently(t *testing.T) {
	logger := New(Config{
		LogDir:  "/proc/no-such-place/logs",
		Service: "analytics",
		Quiet:   true,
	})
	defer logger.Close()

	// Must not panic even with no working destination.
	logger.Info("still alive")
	assert.Nil(t, logger.file)
}

func TestWith_CarriesAttributes(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		LogDir:  dir,
		Service: "analytics",
		Quiet:   true,
	})

	child := logger.With("job", "benchmark-refresh")
	child.Info("cycle started")
	require.NoError(t, logger.Close())

	name := "analytics_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry))
	assert.Equal(t, "benchmark-refresh", entry["job"])
	assert.Equal(t, "analytics", entry["service"])
}

func TestClose_Idempotent(t *testing.T) {
	logger := New(Config{LogDir: t.TempDir(), Service: "analytics", Quiet: true})
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close(), "second close is a no-op")
}

func TestSlog_ReturnsUsableLogger(t *testing.T) {
	logger := Default()
	require.NotNil(t, logger.Slog())
	logger.Slog().Info("direct slog use")
}

func TestMultiHandler(t *testing.T) {
	dir := t.TempDir()
	fileA, err := os.Create(filepath.Join(dir, "a.log"))
	require.NoError(t, err)
	fileB, err := os.Create(filepath.Join(dir, "b.log"))
	require.NoError(t, err)
	defer fileA.Close()
	defer fileB.Close()

	h := &multiHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(fileA, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(fileB, &slog.HandlerOptions{Level: slog.LevelError}),
	}}

	ctx := context.Background()
	assert.True(t, h.Enabled(ctx, slog.LevelInfo), "enabled if any destination accepts")
	assert.False(t, h.Enabled(ctx, slog.LevelDebug))

	logger := slog.New(h)
	logger.Info("info message")
	logger.Error("error message")

	dataA, err := os.ReadFile(fileA.Name())
	require.NoError(t, err)
	dataB, err := os.ReadFile(fileB.Name())
	require.NoError(t, err)

	assert.Contains(t, string(dataA), "info message")
	assert.Contains(t, string(dataA), "error message")
	assert.NotContains(t, string(dataB), "info message", "per-destination level respected")
	assert.Contains(t, string(dataB), "error message")
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".cairn/logs"), expandPath("~/.cairn/logs"))
	assert.Equal(t, "/var/log/cairn", expandPath("/var/log/cairn"))
	assert.Equal(t, "", expandPath(""))
}
