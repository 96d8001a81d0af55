// Copyright (C) 2025 Cairn Health (oss@cairnhealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store implements the benchmark store: the authoritative persistence
// layer for benchmarks, technique-effectiveness records, and insights.
//
// The store keeps an in-memory working set and optionally writes through to
// an embedded BadgerDB. Records are serialized as JSON under the key
// namespaces `benchmark:`, `technique:`, and `insight:`.
//
// # Degradation Model
//
// Hydration tolerates malformed individual records (skip, log, continue). A
// failure to read durable storage as a whole degrades the store to pure
// in-memory operation for the remainder of the process lifetime; it never
// aborts startup. Durable write failures are best-effort: the in-memory
// upsert stands and the failure is logged.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Reads do not see a consistent
// snapshot across multiple calls; each call reads the current state
// independently.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/CairnHealth/CairnAnalytics/services/analytics/datatypes"
	storebadger "github.com/CairnHealth/CairnAnalytics/services/analytics/store/badger"
)

// tracer for store operations.
var tracer = otel.Tracer("cairn.analytics.store")

// Key namespaces in durable storage.
const (
	benchmarkPrefix = "benchmark:"
	techniquePrefix = "technique:"
	insightPrefix   = "insight:"
)

// RecordParseError reports a single durable record that could not be decoded
// during hydration. The record is skipped; hydration continues.
type RecordParseError struct {
	Key string
	Err error
}

func (e *RecordParseError) Error() string {
	return fmt.Sprintf("parse record %s: %v", e.Key, e.Err)
}

func (e *RecordParseError) Unwrap() error { return e.Err }

// HydrationStats summarizes one Initialize run.
type HydrationStats struct {
	Benchmarks int
	Techniques int
	Insights   int
	Skipped    int
}

// Empty reports whether hydration produced no records at all. Callers use
// this to decide whether first-boot seeding is needed.
func (s HydrationStats) Empty() bool {
	return s.Benchmarks == 0 && s.Techniques == 0 && s.Insights == 0
}

// Store is the benchmark store.
type Store struct {
	mu         sync.RWMutex
	benchmarks map[string]datatypes.Benchmark
	techniques map[string]datatypes.TechniqueEffectiveness
	insights   map[string]datatypes.Insight

	db       *storebadger.DB // nil for memory-only operation
	degraded atomic.Bool

	logger *slog.Logger
}

// New creates a benchmark store.
//
// Description:
//
//	Creates an empty store. Pass a non-nil db to enable durable
//	write-through; pass nil for pure in-memory operation. Call
//	Initialize before first use to hydrate from durable storage.
//
// Inputs:
//
//	db - Optional BadgerDB handle. May be nil.
//	logger - Logger for write failures and hydration outcomes. May be nil.
//
// Outputs:
//
//	*Store - The store, not yet hydrated.
func New(db *storebadger.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		benchmarks: make(map[string]datatypes.Benchmark),
		techniques: make(map[string]datatypes.TechniqueEffectiveness),
		insights:   make(map[string]datatypes.Insight),
		db:         db,
		logger:     logger,
	}
}

// Degraded reports whether durable storage has been disabled after a
// hydration read failure.
func (s *Store) Degraded() bool {
	return s.degraded.Load()
}

// Durable reports whether writes currently go through to durable storage.
func (s *Store) Durable() bool {
	return s.db != nil && !s.degraded.Load()
}

// =============================================================================
// Hydration
// =============================================================================

// Initialize hydrates the working set from durable storage.
//
// Description:
//
//	Scans the three key namespaces and decodes each record. A malformed
//	record is logged and skipped; it does not abort hydration of the rest.
//	If the durable read fails as a whole (for example the database is
//	unusable), the store falls back to empty in-memory state and disables
//	durable writes for the remainder of the process lifetime.
//
// Inputs:
//
//	ctx - Context for cancellation.
//
// Outputs:
//
//	HydrationStats - Counts of hydrated and skipped records.
//	error - Non-nil only when ctx is cancelled. Storage failures degrade
//	and return nil.
func (s *Store) Initialize(ctx context.Context) (HydrationStats, error) {
	ctx, span := tracer.Start(ctx, "store.Initialize")
	defer span.End()

	var stats HydrationStats
	if s.db == nil {
		return stats, nil
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	benchmarks := make(map[string]datatypes.Benchmark)
	techniques := make(map[string]datatypes.TechniqueEffectiveness)
	insights := make(map[string]datatypes.Insight)

	err := s.db.View(func(txn *badger.Txn) error {
		if err := s.scanPrefix(txn, benchmarkPrefix, &stats, func(key string, val []byte) error {
			var b datatypes.Benchmark
			if err := json.Unmarshal(val, &b); err != nil {
				return err
			}
			benchmarks[b.ID] = b
			stats.Benchmarks++
			return nil
		}); err != nil {
			return err
		}
		if err := s.scanPrefix(txn, techniquePrefix, &stats, func(key string, val []byte) error {
			var t datatypes.TechniqueEffectiveness
			if err := json.Unmarshal(val, &t); err != nil {
				return err
			}
			techniques[t.ID] = t
			stats.Techniques++
			return nil
		}); err != nil {
			return err
		}
		return s.scanPrefix(txn, insightPrefix, &stats, func(key string, val []byte) error {
			var i datatypes.Insight
			if err := json.Unmarshal(val, &i); err != nil {
				return err
			}
			insights[i.ID] = i
			stats.Insights++
			return nil
		})
	})
	if err != nil {
		// Whole-read failure: degrade to in-memory operation, keep running.
		s.degraded.Store(true)
		s.logger.Error("benchmark store hydration failed, continuing in-memory only",
			slog.String("error", err.Error()))
		return HydrationStats{}, nil
	}

	s.mu.Lock()
	s.benchmarks = benchmarks
	s.techniques = techniques
	s.insights = insights
	s.mu.Unlock()

	span.SetAttributes(
		attribute.Int("benchmarks", stats.Benchmarks),
		attribute.Int("techniques", stats.Techniques),
		attribute.Int("insights", stats.Insights),
		attribute.Int("skipped", stats.Skipped),
	)
	s.logger.Info("benchmark store hydrated",
		slog.Int("benchmarks", stats.Benchmarks),
		slog.Int("techniques", stats.Techniques),
		slog.Int("insights", stats.Insights),
		slog.Int("skipped", stats.Skipped))

	hydratedRecords.WithLabelValues("benchmark").Set(float64(stats.Benchmarks))
	hydratedRecords.WithLabelValues("technique").Set(float64(stats.Techniques))
	hydratedRecords.WithLabelValues("insight").Set(float64(stats.Insights))
	return stats, nil
}

// scanPrefix iterates one key namespace, decoding values via decode.
// A decode failure is logged as a RecordParseError and skipped.
func (s *Store) scanPrefix(txn *badger.Txn, prefix string, stats *HydrationStats, decode func(key string, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		key := string(item.Key())
		err := item.Value(func(val []byte) error {
			return decode(key, val)
		})
		if err != nil {
			stats.Skipped++
			parseFailures.Inc()
			parseErr := &RecordParseError{Key: key, Err: err}
			s.logger.Warn("skipping malformed record during hydration",
				slog.String("key", key),
				slog.String("error", parseErr.Error()))
		}
	}
	return nil
}

// =============================================================================
// Writes
// =============================================================================

// StoreBenchmark upserts a benchmark by id.
//
// Description:
//
//	Replaces any existing record with the same id, preserving the original
//	CreatedAt. Writes through to durable storage when enabled; a durable
//	write failure is logged and does not roll back the in-memory upsert.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	b - The benchmark. Must pass datatypes validation.
//
// Outputs:
//
//	error - Non-nil if the record is structurally invalid.
func (s *Store) StoreBenchmark(ctx context.Context, b datatypes.Benchmark) error {
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	if b.UpdatedAt.Before(b.CreatedAt) {
		b.UpdatedAt = b.CreatedAt
	}
	if err := b.Validate(); err != nil {
		return fmt.Errorf("invalid benchmark: %w", err)
	}

	s.mu.Lock()
	if existing, ok := s.benchmarks[b.ID]; ok {
		b.CreatedAt = existing.CreatedAt
		if b.UpdatedAt.Before(b.CreatedAt) {
			b.UpdatedAt = now
		}
	}
	s.benchmarks[b.ID] = b
	s.mu.Unlock()

	s.persist(ctx, benchmarkPrefix+b.ID, b)
	return nil
}

// StoreTechnique upserts a technique-effectiveness record by id.
func (s *Store) StoreTechnique(ctx context.Context, t datatypes.TechniqueEffectiveness) error {
	if t.LastUpdated.IsZero() {
		t.LastUpdated = time.Now().UTC()
	}
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid technique record: %w", err)
	}

	s.mu.Lock()
	s.techniques[t.ID] = t
	s.mu.Unlock()

	s.persist(ctx, techniquePrefix+t.ID, t)
	return nil
}

// StoreInsight upserts an insight by id.
func (s *Store) StoreInsight(ctx context.Context, i datatypes.Insight) error {
	if i.GeneratedAt.IsZero() {
		i.GeneratedAt = time.Now().UTC()
	}
	if err := i.Validate(); err != nil {
		return fmt.Errorf("invalid insight: %w", err)
	}

	s.mu.Lock()
	s.insights[i.ID] = i
	s.mu.Unlock()

	s.persist(ctx, insightPrefix+i.ID, i)
	return nil
}

// persist writes one record to durable storage, best-effort.
// Each write is independent; a failure never affects other records.
func (s *Store) persist(ctx context.Context, key string, record any) {
	if !s.Durable() {
		return
	}
	if err := ctx.Err(); err != nil {
		return
	}

	val, err := json.Marshal(record)
	if err != nil {
		// Records are plain structs; marshal failure here is a programming
		// error rather than an I/O condition.
		s.logger.Error("marshal record for durable write",
			slog.String("key", key), slog.String("error", err.Error()))
		return
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
	if err != nil {
		writeFailures.Inc()
		s.logger.Warn("durable write failed, in-memory copy retained",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}

// =============================================================================
// Queries
// =============================================================================

// GetBenchmark returns the benchmark with the given id.
func (s *Store) GetBenchmark(id string) (datatypes.Benchmark, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.benchmarks[id]
	if !ok {
		return datatypes.Benchmark{}, false
	}
	return copyBenchmark(b), true
}

// GetTechnique returns the technique-effectiveness record with the given id.
func (s *Store) GetTechnique(id string) (datatypes.TechniqueEffectiveness, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.techniques[id]
	if !ok {
		return datatypes.TechniqueEffectiveness{}, false
	}
	return copyTechnique(t), true
}

// GetBenchmarksByIndication returns benchmarks whose pattern type matches the
// indication (case-insensitive exact match). An empty indication is a
// wildcard returning all benchmarks.
func (s *Store) GetBenchmarksByIndication(indication string) []datatypes.Benchmark {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []datatypes.Benchmark
	for _, b := range s.benchmarks {
		if indication == "" || strings.EqualFold(b.PatternType, indication) {
			out = append(out, copyBenchmark(b))
		}
	}
	sortBenchmarks(out)
	return out
}

// GetBenchmarksByTechnique returns benchmarks whose technique set contains
// the given id.
func (s *Store) GetBenchmarksByTechnique(techniqueID string) []datatypes.Benchmark {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []datatypes.Benchmark
	for _, b := range s.benchmarks {
		for _, id := range b.TechniqueIDs {
			if id == techniqueID {
				out = append(out, copyBenchmark(b))
				break
			}
		}
	}
	sortBenchmarks(out)
	return out
}

// GetTechniquesByIndication returns techniques with an indication matching
// the query (case-insensitive substring match). An empty query is a wildcard
// returning all techniques.
func (s *Store) GetTechniquesByIndication(indication string) []datatypes.TechniqueEffectiveness {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(indication)
	var out []datatypes.TechniqueEffectiveness
	for _, t := range s.techniques {
		if indication == "" || matchesIndication(t.Indications, needle) {
			out = append(out, copyTechnique(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetInsightsForPattern returns insights related to the given pattern type
// (case-insensitive match against RelatedPatternTypes), newest first.
func (s *Store) GetInsightsForPattern(pattern string) []datatypes.Insight {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []datatypes.Insight
	for _, in := range s.insights {
		for _, p := range in.RelatedPatternTypes {
			if strings.EqualFold(p, pattern) {
				out = append(out, copyInsight(in))
				break
			}
		}
	}
	sortInsights(out)
	return out
}

// GetInsightsForTechnique returns insights related to the given technique id
// (case-insensitive match against RelatedTechniqueIDs), newest first.
func (s *Store) GetInsightsForTechnique(techniqueID string) []datatypes.Insight {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []datatypes.Insight
	for _, in := range s.insights {
		for _, id := range in.RelatedTechniqueIDs {
			if strings.EqualFold(id, techniqueID) {
				out = append(out, copyInsight(in))
				break
			}
		}
	}
	sortInsights(out)
	return out
}

// ListTechniques returns all technique records sorted by id.
func (s *Store) ListTechniques() []datatypes.TechniqueEffectiveness {
	return s.GetTechniquesByIndication("")
}

// ListInsights returns all insights, newest first.
func (s *Store) ListInsights() []datatypes.Insight {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]datatypes.Insight, 0, len(s.insights))
	for _, in := range s.insights {
		out = append(out, copyInsight(in))
	}
	sortInsights(out)
	return out
}

// ListBenchmarks returns one page of benchmarks, newest first.
//
// Inputs:
//
//	page - 1-based page number. Values < 1 are treated as 1.
//	pageSize - Records per page. Values < 1 default to 50.
//
// Outputs:
//
//	[]datatypes.Benchmark - The requested page, possibly empty.
//	int - Total benchmark count across all pages.
func (s *Store) ListBenchmarks(page, pageSize int) ([]datatypes.Benchmark, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	s.mu.RLock()
	all := make([]datatypes.Benchmark, 0, len(s.benchmarks))
	for _, b := range s.benchmarks {
		all = append(all, copyBenchmark(b))
	}
	s.mu.RUnlock()

	// Newest first for paging.
	sort.Slice(all, func(i, j int) bool {
		if !all[i].Timestamp.Equal(all[j].Timestamp) {
			return all[i].Timestamp.After(all[j].Timestamp)
		}
		return all[i].ID < all[j].ID
	})

	total := len(all)
	start := (page - 1) * pageSize
	if start >= total {
		return []datatypes.Benchmark{}, total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return all[start:end], total
}

// Counts returns the number of records of each type.
func (s *Store) Counts() (benchmarks, techniques, insights int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.benchmarks), len(s.techniques), len(s.insights)
}

// =============================================================================
// Helpers
// =============================================================================

func matchesIndication(indications []string, needle string) bool {
	for _, ind := range indications {
		if strings.Contains(strings.ToLower(ind), needle) {
			return true
		}
	}
	return false
}

func sortBenchmarks(bs []datatypes.Benchmark) {
	sort.Slice(bs, func(i, j int) bool {
		if !bs[i].Timestamp.Equal(bs[j].Timestamp) {
			return bs[i].Timestamp.Before(bs[j].Timestamp)
		}
		return bs[i].ID < bs[j].ID
	})
}

func sortInsights(ins []datatypes.Insight) {
	sort.Slice(ins, func(i, j int) bool {
		if !ins[i].GeneratedAt.Equal(ins[j].GeneratedAt) {
			return ins[i].GeneratedAt.After(ins[j].GeneratedAt)
		}
		return ins[i].ID < ins[j].ID
	})
}

func copyBenchmark(b datatypes.Benchmark) datatypes.Benchmark {
	out := b
	out.TechniqueIDs = append([]string(nil), b.TechniqueIDs...)
	out.EffectivenessRatings = make(map[string]float64, len(b.EffectivenessRatings))
	for k, v := range b.EffectivenessRatings {
		out.EffectivenessRatings[k] = v
	}
	return out
}

func copyTechnique(t datatypes.TechniqueEffectiveness) datatypes.TechniqueEffectiveness {
	out := t
	out.Indications = append([]string(nil), t.Indications...)
	out.Contraindications = append([]string(nil), t.Contraindications...)
	out.ByIndication = make(map[string]datatypes.IndicationStats, len(t.ByIndication))
	for k, v := range t.ByIndication {
		out.ByIndication[k] = v
	}
	return out
}

func copyInsight(i datatypes.Insight) datatypes.Insight {
	out := i
	out.RelatedPatternTypes = append([]string(nil), i.RelatedPatternTypes...)
	out.RelatedTechniqueIDs = append([]string(nil), i.RelatedTechniqueIDs...)
	out.Tags = append([]string(nil), i.Tags...)
	if i.ExpiresAt != nil {
		exp := *i.ExpiresAt
		out.ExpiresAt = &exp
	}
	return out
}
