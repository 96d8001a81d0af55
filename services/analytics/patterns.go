// Copyright (C) 2025 Cairn Health (oss@cairnhealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analytics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/CairnHealth/CairnAnalytics/services/analytics/datatypes"
)

// Pattern pass thresholds.
const (
	// patternMinContributions is the minimum number of benchmarks a
	// technique must appear in before its aggregate rating counts.
	patternMinContributions = 3

	// consistencyMinBenchmarks gates the lower-confidence consistency
	// insight on pattern volume.
	consistencyMinBenchmarks = 10

	// consistencyConfidence is the fixed confidence for consistency
	// insights; volume-based, not effect-based.
	consistencyConfidence = 0.65

	// consistencyMaxNamed caps how many techniques a consistency insight
	// names.
	consistencyMaxNamed = 3
)

// aggregateRating accumulates one technique's ratings across a pattern's
// benchmarks.
type aggregateRating struct {
	techniqueID   string
	sum           float64
	contributions int
}

func (a aggregateRating) mean() float64 {
	return a.sum / float64(a.contributions)
}

// patternInsights runs the pattern-specific leader analysis.
//
// Description:
//
//	Groups benchmarks by pattern type (case-insensitive). Patterns backed
//	by fewer benchmarks than the insight threshold are skipped. Within a
//	pattern, effectiveness ratings are averaged per technique across
//	benchmarks; techniques contributing to fewer than three benchmarks
//	are dropped. The best remaining technique yields a top-performer
//	insight. Patterns with ten or more benchmarks additionally yield a
//	lower-confidence consistency insight naming up to the top three.
func (s *Service) patternInsights(benchmarks []datatypes.Benchmark) []datatypes.Insight {
	defer s.observePass("pattern")()

	groups := make(map[string][]datatypes.Benchmark)
	labels := make(map[string]string)
	for _, b := range benchmarks {
		key := strings.ToLower(b.PatternType)
		if _, ok := labels[key]; !ok {
			labels[key] = b.PatternType
		}
		groups[key] = append(groups[key], b)
	}

	minBenchmarks := s.MinSampleSize()
	now := s.now().UTC()
	var out []datatypes.Insight

	for _, key := range sortedKeys(groups) {
		group := groups[key]
		if len(group) < minBenchmarks {
			continue
		}
		pattern := labels[key]

		byTechnique := make(map[string]*aggregateRating)
		for _, b := range group {
			for techniqueID, rating := range b.EffectivenessRatings {
				agg, ok := byTechnique[techniqueID]
				if !ok {
					agg = &aggregateRating{techniqueID: techniqueID}
					byTechnique[techniqueID] = agg
				}
				agg.sum += rating
				agg.contributions++
			}
		}

		var ranked []aggregateRating
		for _, agg := range byTechnique {
			if agg.contributions >= patternMinContributions {
				ranked = append(ranked, *agg)
			}
		}
		if len(ranked) == 0 {
			continue
		}
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].mean() != ranked[j].mean() {
				return ranked[i].mean() > ranked[j].mean()
			}
			if ranked[i].contributions != ranked[j].contributions {
				return ranked[i].contributions > ranked[j].contributions
			}
			return ranked[i].techniqueID < ranked[j].techniqueID
		})

		best := ranked[0]
		out = append(out, datatypes.Insight{
			ID:                  uuid.NewString(),
			RelatedPatternTypes: []string{pattern},
			RelatedTechniqueIDs: []string{best.techniqueID},
			Text: fmt.Sprintf(
				"%s is the top performer for %s with a mean rating of %.0f%% across %d benchmarks.",
				s.techniqueName(best.techniqueID), pattern,
				best.mean()*100, best.contributions),
			ConfidenceLevel:      minFloat(0.95, best.mean()),
			SupportingDataPoints: best.contributions,
			ClinicalRelevance:    datatypes.TierHigh,
			Actionability:        datatypes.TierModerate,
			GeneratedAt:          now,
			Tags:                 []string{"pattern", "top-performer", key},
		})
		insightsGenerated.WithLabelValues("pattern").Inc()

		if len(group) >= consistencyMinBenchmarks {
			named := ranked
			if len(named) > consistencyMaxNamed {
				named = named[:consistencyMaxNamed]
			}
			var (
				names []string
				ids   []string
			)
			for _, agg := range named {
				names = append(names, s.techniqueName(agg.techniqueID))
				ids = append(ids, agg.techniqueID)
			}
			out = append(out, datatypes.Insight{
				ID:                  uuid.NewString(),
				RelatedPatternTypes: []string{pattern},
				RelatedTechniqueIDs: ids,
				Text: fmt.Sprintf(
					"Clients presenting with %s respond consistently to %s across %d benchmarks.",
					pattern, joinNames(names), len(group)),
				ConfidenceLevel:      consistencyConfidence,
				SupportingDataPoints: len(group),
				ClinicalRelevance:    datatypes.TierModerate,
				Actionability:        datatypes.TierModerate,
				GeneratedAt:          now,
				Tags:                 []string{"pattern", "consistency", key},
			})
			insightsGenerated.WithLabelValues("pattern").Inc()
		}
	}
	return out
}
