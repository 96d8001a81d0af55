// Copyright (C) 2025 Cairn Health (oss@cairnhealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache provides the read-through result cache for analytics
// queries.
//
// The cache holds projections only, never authoritative records; losing an
// entry costs a recomputation, nothing more. Invalidation is deliberately
// coarse: any write of a record type wipes that type's whole key namespace
// rather than doing fine-grained tagged invalidation.
package cache

import (
	"strings"
	"sync"
	"time"
)

// DefaultTTL is the default time-to-live for cached query results.
const DefaultTTL = 5 * time.Minute

// DefaultMaxEntries caps the number of cached results.
const DefaultMaxEntries = 1024

// ResultCache is the contract the orchestrator consumes. An external cache
// (Redis or similar) can be wired behind this interface; Memory is the
// in-process implementation.
type ResultCache interface {
	// Get returns the cached value for key, or false on miss or expiry.
	Get(key string) (any, bool)

	// Set stores value under key with the cache's default TTL.
	Set(key string, value any)

	// SetWithTTL stores value under key with an explicit TTL.
	SetWithTTL(key string, value any, ttl time.Duration)

	// InvalidatePrefix removes every entry whose key starts with prefix
	// and returns the number of entries removed.
	InvalidatePrefix(prefix string) int
}

type entry struct {
	value    any
	storedAt time.Time
	expires  time.Time
}

// Memory is an in-process ResultCache with per-entry TTL and a hard entry
// cap. Safe for concurrent use.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]entry
	defaultTTL time.Duration
	maxEntries int

	// now is swappable for tests.
	now func() time.Time
}

// Option configures a Memory cache.
type Option func(*Memory)

// WithTTL overrides the default entry TTL.
func WithTTL(ttl time.Duration) Option {
	return func(m *Memory) { m.defaultTTL = ttl }
}

// WithMaxEntries overrides the entry cap.
func WithMaxEntries(n int) Option {
	return func(m *Memory) { m.maxEntries = n }
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates an in-process result cache.
func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		entries:    make(map[string]entry),
		defaultTTL: DefaultTTL,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the cached value for key, or false on miss or expiry.
func (m *Memory) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		cacheMisses.Inc()
		return nil, false
	}
	if m.now().After(e.expires) {
		delete(m.entries, key)
		cacheEvictions.Inc()
		cacheMisses.Inc()
		return nil, false
	}
	cacheHits.Inc()
	return e.value, true
}

// Set stores value under key with the default TTL.
func (m *Memory) Set(key string, value any) {
	m.SetWithTTL(key, value, m.defaultTTL)
}

// SetWithTTL stores value under key with an explicit TTL.
// A non-positive TTL falls back to the default.
func (m *Memory) SetWithTTL(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) >= m.maxEntries {
		m.evictLocked()
	}

	now := m.now()
	m.entries[key] = entry{value: value, storedAt: now, expires: now.Add(ttl)}
}

// InvalidatePrefix removes every entry whose key starts with prefix.
//
// Pass the namespace prefix of a record type (for example "analytics:") to
// wipe all cached projections of that type after a write.
func (m *Memory) InvalidatePrefix(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
			removed++
		}
	}
	if removed > 0 {
		cacheInvalidations.Add(float64(removed))
	}
	return removed
}

// Len returns the current number of entries, including any not yet purged
// expired ones.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// evictLocked drops expired entries; if nothing expired, it drops the oldest
// entry to make room. Caller holds m.mu.
func (m *Memory) evictLocked() {
	now := m.now()
	dropped := 0
	for key, e := range m.entries {
		if now.After(e.expires) {
			delete(m.entries, key)
			dropped++
		}
	}
	if dropped == 0 {
		var oldestKey string
		var oldest time.Time
		for key, e := range m.entries {
			if oldestKey == "" || e.storedAt.Before(oldest) {
				oldestKey = key
				oldest = e.storedAt
			}
		}
		if oldestKey != "" {
			delete(m.entries, oldestKey)
			dropped = 1
		}
	}
	cacheEvictions.Add(float64(dropped))
}

var _ ResultCache = (*Memory)(nil)
