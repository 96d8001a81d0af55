// Copyright (C) 2025 Cairn Health (oss@cairnhealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package efficacy defines the narrow interface to the efficacy-tracking
// collaborator, the external source of raw per-technique outcome statistics.
//
// The analytics engine consumes these statistics but never computes them.
// A deployment wires a real efficacy-tracking client behind the Source
// interface; StaticSource provides deterministic sample statistics for
// first boot and for tests.
package efficacy

import (
	"context"
	"sort"

	"github.com/CairnHealth/CairnAnalytics/services/analytics/datatypes"
)

// IndicationEfficacy is the per-indication slice of a technique's raw stats.
type IndicationEfficacy struct {
	AverageEfficacy float64 `json:"average_efficacy"`
	SampleSize      int     `json:"sample_size"`
}

// TechniqueStats is the raw outcome summary for one technique as reported by
// the efficacy collaborator.
type TechniqueStats struct {
	TechniqueName      string                         `json:"technique_name"`
	AverageEfficacy    float64                        `json:"average_efficacy"`
	ConfidenceInterval datatypes.ConfidenceInterval  `json:"confidence_interval"`
	SampleSize         int                            `json:"sample_size"`
	ByIndication       map[string]IndicationEfficacy `json:"by_indication"`
}

// Source is the efficacy-tracking collaborator contract.
type Source interface {
	// TechniquesEfficacyStats returns raw stats keyed by technique id.
	//
	// An empty or nil ids slice means "all known techniques". Implementations
	// must treat the returned map as a snapshot; the engine does not mutate it.
	TechniquesEfficacyStats(ctx context.Context, ids []string) (map[string]TechniqueStats, error)
}

// =============================================================================
// Static Source
// =============================================================================

// StaticSource serves a fixed set of technique stats.
//
// Used as the default collaborator when no efficacy-tracking deployment is
// configured, and as a deterministic fixture in tests. Safe for concurrent
// use; the stats map is never mutated after construction.
type StaticSource struct {
	stats map[string]TechniqueStats
}

// NewStaticSource creates a source over the given stats map.
func NewStaticSource(stats map[string]TechniqueStats) *StaticSource {
	if stats == nil {
		stats = map[string]TechniqueStats{}
	}
	return &StaticSource{stats: stats}
}

// TechniquesEfficacyStats implements Source.
//
// Returns a copy so callers cannot alias the source's internal map. Unknown
// ids are silently omitted, matching the collaborator contract.
func (s *StaticSource) TechniquesEfficacyStats(ctx context.Context, ids []string) (map[string]TechniqueStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]TechniqueStats, len(s.stats))
	if len(ids) == 0 {
		for id, st := range s.stats {
			out[id] = st
		}
		return out, nil
	}
	for _, id := range ids {
		if st, ok := s.stats[id]; ok {
			out[id] = st
		}
	}
	return out, nil
}

// TechniqueIDs returns the sorted ids known to the source.
func (s *StaticSource) TechniqueIDs() []string {
	ids := make([]string, 0, len(s.stats))
	for id := range s.stats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

var _ Source = (*StaticSource)(nil)

// SampleStats returns the deterministic technique statistics used when the
// engine boots without a configured efficacy-tracking deployment.
//
// The numbers are chosen so that every orchestrator pass has material to
// work with at first boot: all sample sizes clear the default insight
// threshold, and the anxiety techniques differ enough to produce a
// head-to-head comparative insight.
func SampleStats() map[string]TechniqueStats {
	return map[string]TechniqueStats{
		"cbt-cognitive-restructuring": {
			TechniqueName:   "Cognitive Restructuring",
			AverageEfficacy: 0.82,
			SampleSize:      64,
			ByIndication: map[string]IndicationEfficacy{
				"anxiety":    {AverageEfficacy: 0.87, SampleSize: 38},
				"depression": {AverageEfficacy: 0.74, SampleSize: 26},
			},
		},
		"behavioral-activation": {
			TechniqueName:   "Behavioral Activation",
			AverageEfficacy: 0.76,
			SampleSize:      41,
			ByIndication: map[string]IndicationEfficacy{
				"depression": {AverageEfficacy: 0.79, SampleSize: 29},
				"anxiety":    {AverageEfficacy: 0.68, SampleSize: 12},
			},
		},
		"mindfulness-grounding": {
			TechniqueName:   "Mindfulness Grounding",
			AverageEfficacy: 0.71,
			SampleSize:      33,
			ByIndication: map[string]IndicationEfficacy{
				"anxiety": {AverageEfficacy: 0.76, SampleSize: 21},
				"stress":  {AverageEfficacy: 0.66, SampleSize: 12},
			},
		},
	}
}
