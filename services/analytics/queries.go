// Copyright (C) 2025 Cairn Health (oss@cairnhealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analytics

import (
	"context"
	"fmt"
	"strings"

	"github.com/CairnHealth/CairnAnalytics/services/analytics/datatypes"
)

// IndicationAnalytics is the composite answer for one indication.
type IndicationAnalytics struct {
	Techniques []datatypes.TechniqueEffectiveness `json:"techniques"`
	Insights   []datatypes.Insight                `json:"insights"`
	Benchmarks []datatypes.Benchmark              `json:"benchmarks"`
}

// TechniqueAnalytics is the composite answer for one technique.
type TechniqueAnalytics struct {
	Technique  datatypes.TechniqueEffectiveness `json:"technique"`
	Insights   []datatypes.Insight              `json:"insights"`
	Benchmarks []datatypes.Benchmark            `json:"benchmarks"`

	// Alternatives are other techniques sharing at least one indication.
	Alternatives []datatypes.TechniqueEffectiveness `json:"alternatives"`
}

// BenchmarkPage is one page of the benchmark listing.
type BenchmarkPage struct {
	Benchmarks []datatypes.Benchmark `json:"benchmarks"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	Total      int                   `json:"total"`
}

// ComparativeAnalyticsForIndication assembles techniques, insights, and
// benchmarks for an indication.
//
// Description:
//
//	Served read-through: a cached projection is returned when fresh,
//	otherwise the store is queried and the result cached. An empty
//	indication is the wildcard, returning everything. Expired insights
//	are filtered out.
func (s *Service) ComparativeAnalyticsForIndication(ctx context.Context, indication string) (*IndicationAnalytics, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := cacheNSAnalytics + "indication:" + strings.ToLower(indication)
	if cached, ok := s.cache.Get(key); ok {
		if result, ok := cached.(*IndicationAnalytics); ok {
			return result, nil
		}
	}

	result := &IndicationAnalytics{
		Techniques: s.store.GetTechniquesByIndication(indication),
		Insights:   s.filterExpired(s.store.GetInsightsForPattern(indication)),
		Benchmarks: s.store.GetBenchmarksByIndication(indication),
	}
	s.cache.Set(key, result)
	return result, nil
}

// ComparativeAnalyticsForTechnique assembles the analytics view for one
// technique.
//
// Outputs:
//
//	*TechniqueAnalytics - Technique record, related insights and
//	benchmarks, and alternative techniques sharing an indication.
//	error - ErrTechniqueNotFound when the id is unknown.
func (s *Service) ComparativeAnalyticsForTechnique(ctx context.Context, techniqueID string) (*TechniqueAnalytics, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := cacheNSAnalytics + "technique:" + techniqueID
	if cached, ok := s.cache.Get(key); ok {
		if result, ok := cached.(*TechniqueAnalytics); ok {
			return result, nil
		}
	}

	technique, ok := s.store.GetTechnique(techniqueID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTechniqueNotFound, techniqueID)
	}

	result := &TechniqueAnalytics{
		Technique:    technique,
		Insights:     s.filterExpired(s.store.GetInsightsForTechnique(techniqueID)),
		Benchmarks:   s.store.GetBenchmarksByTechnique(techniqueID),
		Alternatives: s.alternativesFor(technique),
	}
	s.cache.Set(key, result)
	return result, nil
}

// BenchmarkPage returns one cached page of the benchmark listing, newest
// first.
func (s *Service) BenchmarkPage(ctx context.Context, page, pageSize int) (*BenchmarkPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	key := fmt.Sprintf("%spage:%d:%d", cacheNSBenchmarks, page, pageSize)
	if cached, ok := s.cache.Get(key); ok {
		if result, ok := cached.(*BenchmarkPage); ok {
			return result, nil
		}
	}

	benchmarks, total := s.store.ListBenchmarks(page, pageSize)
	result := &BenchmarkPage{
		Benchmarks: benchmarks,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
	}
	s.cache.Set(key, result)
	return result, nil
}

// alternativesFor returns other techniques sharing at least one indication
// with t, case-insensitively.
func (s *Service) alternativesFor(t datatypes.TechniqueEffectiveness) []datatypes.TechniqueEffectiveness {
	own := make(map[string]struct{}, len(t.Indications))
	for _, ind := range t.Indications {
		own[strings.ToLower(ind)] = struct{}{}
	}

	var out []datatypes.TechniqueEffectiveness
	for _, candidate := range s.store.ListTechniques() {
		if candidate.ID == t.ID {
			continue
		}
		for _, ind := range candidate.Indications {
			if _, shared := own[strings.ToLower(ind)]; shared {
				out = append(out, candidate)
				break
			}
		}
	}
	return out
}

func (s *Service) filterExpired(insights []datatypes.Insight) []datatypes.Insight {
	now := s.now()
	out := insights[:0]
	for _, in := range insights {
		if !in.Expired(now) {
			out = append(out, in)
		}
	}
	return out
}
