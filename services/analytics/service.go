// Copyright (C) 2025 Cairn Health (oss@cairnhealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package analytics implements the comparative effectiveness analytics
// orchestrator.
//
// The orchestrator converts raw technique-outcome statistics from the
// efficacy collaborator into anonymized benchmarks, maintains the
// technique-effectiveness database, and runs three insight-generation
// passes (comparative, pattern-specific, trend). It owns no records;
// authoritative copies live in the benchmark store, and query results are
// served through a read-through cache that is always a projection.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/CairnHealth/CairnAnalytics/services/analytics/cache"
	"github.com/CairnHealth/CairnAnalytics/services/analytics/datatypes"
	"github.com/CairnHealth/CairnAnalytics/services/analytics/efficacy"
	"github.com/CairnHealth/CairnAnalytics/services/analytics/stats"
	"github.com/CairnHealth/CairnAnalytics/services/analytics/store"
)

// tracer for orchestrator passes.
var tracer = otel.Tracer("cairn.analytics.engine")

// DefaultMinSampleSize is the default minimum sample count before the
// engine draws conclusions from the data.
const DefaultMinSampleSize = 10

// Pattern-confidence heuristic for synthesized benchmarks. A coarse
// two-level step, kept as-is on purpose; do not refine without a product
// decision.
const (
	highPatternConfidence    = 0.9
	defaultPatternConfidence = 0.7
	patternConfidenceCutoff  = 0.7
)

// Cache key namespaces. Writes invalidate the whole namespace of the
// written record type plus the composite analytics namespace.
const (
	cacheNSAnalytics  = "analytics:"
	cacheNSBenchmarks = "benchmarks:"
	cacheNSTechniques = "techniques:"
	cacheNSInsights   = "insights:"
)

// Service is the analytics orchestrator.
//
// Construct once at process start and inject everywhere; the engine keeps
// no package-level state.
type Service struct {
	store    *store.Store
	efficacy efficacy.Source
	cache    cache.ResultCache
	logger   *slog.Logger

	// minSampleSize is hot-reloadable via SetMinSampleSize.
	minSampleSize atomic.Int64

	// now is swappable for tests.
	now func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMinSampleSize overrides the insight sample-size threshold.
func WithMinSampleSize(n int) ServiceOption {
	return func(s *Service) { s.minSampleSize.Store(int64(n)) }
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates the orchestrator.
//
// Inputs:
//
//	st - The benchmark store. Must not be nil.
//	src - The efficacy collaborator. Must not be nil.
//	resultCache - Read-through query cache. Must not be nil.
//	logger - May be nil; slog.Default() is used.
func NewService(st *store.Store, src efficacy.Source, resultCache cache.ResultCache, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:    st,
		efficacy: src,
		cache:    resultCache,
		logger:   logger,
		now:      time.Now,
	}
	s.minSampleSize.Store(DefaultMinSampleSize)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetMinSampleSize updates the insight sample-size threshold. Called from
// the config hot-reload path.
func (s *Service) SetMinSampleSize(n int) {
	if n < 1 {
		return
	}
	s.minSampleSize.Store(int64(n))
}

// MinSampleSize returns the current insight sample-size threshold.
func (s *Service) MinSampleSize() int {
	return int(s.minSampleSize.Load())
}

// Store exposes the underlying benchmark store for health reporting.
func (s *Service) Store() *store.Store { return s.store }

// CacheLen reports the number of live cache entries, or 0 when the cache
// implementation does not expose a length.
func (s *Service) CacheLen() int {
	if sized, ok := s.cache.(interface{ Len() int }); ok {
		return sized.Len()
	}
	return 0
}

// =============================================================================
// Benchmark Creation
// =============================================================================

// CreateBenchmarks synthesizes benchmarks from the efficacy collaborator.
//
// Description:
//
//	For every technique whose overall sample size meets the insight
//	threshold, and for each of its per-indication stats meeting the same
//	threshold, creates one benchmark carrying that indication's
//	effectiveness rating. Benchmark ids are deterministic per
//	technique/indication pair, so repeated runs upsert instead of
//	accreting. Pattern confidence uses the two-level heuristic: 0.9 when
//	the indication's average efficacy reaches 0.7, else 0.7.
//
// Outputs:
//
//	int - Number of benchmarks created or replaced.
//	error - A *CollaboratorError if the efficacy source fails.
func (s *Service) CreateBenchmarks(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "analytics.CreateBenchmarks")
	defer span.End()
	defer s.observePass("benchmark_creation")()

	raw, err := s.efficacy.TechniquesEfficacyStats(ctx, nil)
	if err != nil {
		return 0, &CollaboratorError{Collaborator: "efficacy", Err: err}
	}

	minSamples := s.MinSampleSize()
	now := s.now().UTC()
	created := 0

	for _, techniqueID := range sortedKeys(raw) {
		st := raw[techniqueID]
		if st.SampleSize < minSamples {
			continue
		}
		for _, indication := range sortedKeys(st.ByIndication) {
			indStat := st.ByIndication[indication]
			if indStat.SampleSize < minSamples {
				continue
			}

			confidence := defaultPatternConfidence
			if indStat.AverageEfficacy >= patternConfidenceCutoff {
				confidence = highPatternConfidence
			}

			b := datatypes.Benchmark{
				ID:                benchmarkID(techniqueID, indication),
				Timestamp:         now,
				PatternType:       indication,
				PatternConfidence: confidence,
				TechniqueIDs:      []string{techniqueID},
				EffectivenessRatings: map[string]float64{
					techniqueID: indStat.AverageEfficacy,
				},
				DataPointCount: indStat.SampleSize,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := s.store.StoreBenchmark(ctx, b); err != nil {
				s.logger.Warn("skipping invalid synthesized benchmark",
					slog.String("benchmark_id", b.ID),
					slog.String("error", err.Error()))
				continue
			}
			created++
		}
	}

	benchmarksCreated.Add(float64(created))
	span.SetAttributes(attribute.Int("created", created))
	s.invalidate(cacheNSBenchmarks)
	s.logger.Info("benchmark creation completed", slog.Int("created", created))
	return created, nil
}

// =============================================================================
// Effectiveness-Database Refresh
// =============================================================================

// RefreshEffectiveness rebuilds the technique-effectiveness database.
//
// Description:
//
//	For every technique reported by the efficacy collaborator, rebuilds
//	its record: overall effectiveness and sample size are copied from the
//	source, confidence intervals recomputed (Wald), per-indication stats
//	derived with the same formula, and the evidence level classified.
//	Contraindications are carried forward from the previous record, being
//	the one field the refresh cannot derive.
//
// Outputs:
//
//	int - Number of technique records updated.
//	error - A *CollaboratorError if the efficacy source fails.
func (s *Service) RefreshEffectiveness(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "analytics.RefreshEffectiveness")
	defer span.End()
	defer s.observePass("effectiveness_refresh")()

	raw, err := s.efficacy.TechniquesEfficacyStats(ctx, nil)
	if err != nil {
		return 0, &CollaboratorError{Collaborator: "efficacy", Err: err}
	}

	now := s.now().UTC()
	updated := 0

	for _, techniqueID := range sortedKeys(raw) {
		st := raw[techniqueID]

		byIndication := make(map[string]datatypes.IndicationStats, len(st.ByIndication))
		indications := make([]string, 0, len(st.ByIndication))
		for ind, indStat := range st.ByIndication {
			byIndication[ind] = datatypes.IndicationStats{
				Effectiveness:      indStat.AverageEfficacy,
				SampleSize:         indStat.SampleSize,
				ConfidenceInterval: stats.WaldInterval(indStat.AverageEfficacy, indStat.SampleSize),
			}
			indications = append(indications, ind)
		}
		sort.Strings(indications)

		rec := datatypes.TechniqueEffectiveness{
			ID:                   techniqueID,
			Name:                 st.TechniqueName,
			Indications:          indications,
			OverallEffectiveness: st.AverageEfficacy,
			ConfidenceInterval:   stats.WaldInterval(st.AverageEfficacy, st.SampleSize),
			SampleSize:           st.SampleSize,
			ByIndication:         byIndication,
			EvidenceLevel:        stats.ClassifyEvidence(st.SampleSize, st.AverageEfficacy),
			LastUpdated:          now,
		}
		if existing, ok := s.store.GetTechnique(techniqueID); ok {
			rec.Contraindications = existing.Contraindications
		}
		if rec.Name == "" {
			rec.Name = techniqueID
		}

		if err := s.store.StoreTechnique(ctx, rec); err != nil {
			s.logger.Warn("skipping invalid technique record",
				slog.String("technique_id", techniqueID),
				slog.String("error", err.Error()))
			continue
		}
		updated++
	}

	techniquesUpdated.Add(float64(updated))
	span.SetAttributes(attribute.Int("updated", updated))
	s.invalidate(cacheNSTechniques)
	s.logger.Info("effectiveness database refreshed", slog.Int("updated", updated))
	return updated, nil
}

// =============================================================================
// Insight Generation
// =============================================================================

// GenerateInsights runs the three insight passes and persists the results.
//
// Description:
//
//	Runs the comparative, pattern-specific, and trend passes over the
//	current store state, appending to one combined list, then persists
//	each insight individually. Earlier findings are superseded by the new
//	records (fresh ids), never mutated.
//
// Outputs:
//
//	[]datatypes.Insight - All insights generated this cycle.
//	error - Non-nil if persisting an insight fails structurally.
func (s *Service) GenerateInsights(ctx context.Context) ([]datatypes.Insight, error) {
	ctx, span := tracer.Start(ctx, "analytics.GenerateInsights")
	defer span.End()

	techniques := s.store.ListTechniques()
	benchmarks := s.store.GetBenchmarksByIndication("")

	var insights []datatypes.Insight
	insights = append(insights, s.comparativeInsights(techniques)...)
	insights = append(insights, s.patternInsights(benchmarks)...)
	insights = append(insights, s.trendInsights(benchmarks)...)

	for _, in := range insights {
		if err := s.store.StoreInsight(ctx, in); err != nil {
			return nil, fmt.Errorf("persist insight %s: %w", in.ID, err)
		}
	}

	span.SetAttributes(attribute.Int("generated", len(insights)))
	s.invalidate(cacheNSInsights)
	s.logger.Info("insight generation completed", slog.Int("generated", len(insights)))
	return insights, nil
}

// =============================================================================
// Job Entry Points
// =============================================================================

// RunBenchmarkRefresh is the scheduled benchmark-refresh cycle: benchmark
// creation followed by an effectiveness-database rebuild.
func (s *Service) RunBenchmarkRefresh(ctx context.Context) error {
	created, err := s.CreateBenchmarks(ctx)
	if err != nil {
		return err
	}
	updated, err := s.RefreshEffectiveness(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("benchmark refresh cycle completed",
		slog.Int("benchmarks_created", created),
		slog.Int("techniques_updated", updated))
	return nil
}

// RunInsightGeneration is the scheduled insight-generation cycle.
func (s *Service) RunInsightGeneration(ctx context.Context) error {
	_, err := s.GenerateInsights(ctx)
	return err
}

// =============================================================================
// Helpers
// =============================================================================

// invalidate wipes one record-type namespace plus the composite analytics
// namespace. Coarse on purpose; see the cache package.
func (s *Service) invalidate(namespace string) {
	s.cache.InvalidatePrefix(namespace)
	s.cache.InvalidatePrefix(cacheNSAnalytics)
}

func (s *Service) observePass(pass string) func() {
	start := s.now()
	return func() {
		passDuration.WithLabelValues(pass).Observe(time.Since(start).Seconds())
	}
}

// techniqueName resolves an id to its display name, falling back to the id
// for techniques the effectiveness database has not seen yet.
func (s *Service) techniqueName(id string) string {
	if t, ok := s.store.GetTechnique(id); ok && t.Name != "" {
		return t.Name
	}
	return id
}

func benchmarkID(techniqueID, indication string) string {
	return "bm:" + techniqueID + ":" + slugify(indication)
}

func slugify(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "-")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
