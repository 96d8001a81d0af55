// Copyright (C) 2025 Cairn Health (oss@cairnhealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/CairnHealth/CairnAnalytics/services/analytics/datatypes"
	"github.com/CairnHealth/CairnAnalytics/services/analytics/stats"
)

// Trend pass thresholds.
const (
	// trendMinBenchmarks is the minimum history per technique before a
	// trend is considered.
	trendMinBenchmarks = 10

	// trendMinProjectedChange is the minimum absolute change of the
	// fitted line between the earliest and latest observation.
	trendMinProjectedChange = 0.05

	// trendMinSlope filters out numerically-flat fits. The threshold is
	// scaled for Unix-timestamp x values, where meaningful slopes are
	// tiny per-second quantities.
	trendMinSlope = 1e-8

	// recommendationTTL bounds how long a review recommendation stays
	// surfaced before a newer cycle must re-confirm it.
	recommendationTTL = 30 * 24 * time.Hour
)

// trendPoint is one benchmark observation for a technique.
type trendPoint struct {
	at     time.Time
	rating float64
}

// trendInsights runs the regression-based trend detection.
//
// Description:
//
//	Groups benchmarks by technique, requiring at least ten observations.
//	Fits effectiveness over time by ordinary least squares and projects
//	the fitted line at the earliest and latest timestamps. A projected
//	change above 0.05 with a non-degenerate slope classifies the
//	technique as improving or declining. Confidence is tiered by fit:
//	R² >= 0.7 -> 0.85, R² >= 0.5 -> 0.70, else 0.60. A declining
//	technique with R² > 0.7 additionally yields a high-priority review
//	recommendation with a 30-day expiry.
func (s *Service) trendInsights(benchmarks []datatypes.Benchmark) []datatypes.Insight {
	defer s.observePass("trend")()

	series := make(map[string][]trendPoint)
	for _, b := range benchmarks {
		for techniqueID, rating := range b.EffectivenessRatings {
			series[techniqueID] = append(series[techniqueID], trendPoint{
				at:     b.Timestamp,
				rating: rating,
			})
		}
	}

	now := s.now().UTC()
	var out []datatypes.Insight

	for _, techniqueID := range sortedKeys(series) {
		points := series[techniqueID]
		if len(points) < trendMinBenchmarks {
			continue
		}
		sort.Slice(points, func(i, j int) bool { return points[i].at.Before(points[j].at) })

		xs := make([]float64, len(points))
		ys := make([]float64, len(points))
		for i, p := range points {
			xs[i] = float64(p.at.Unix())
			ys[i] = p.rating
		}

		reg := stats.LinearRegression(xs, ys)
		projectedChange := reg.PredictAt(xs[len(xs)-1]) - reg.PredictAt(xs[0])
		if math.Abs(projectedChange) <= trendMinProjectedChange || math.Abs(reg.Slope) <= trendMinSlope {
			continue
		}

		direction := "improving"
		relevance := datatypes.TierModerate
		if reg.Slope < 0 {
			direction = "declining"
			relevance = datatypes.TierHigh
		}
		name := s.techniqueName(techniqueID)

		out = append(out, datatypes.Insight{
			ID:                  uuid.NewString(),
			RelatedTechniqueIDs: []string{techniqueID},
			Text: fmt.Sprintf(
				"Effectiveness of %s is %s over the observed period (projected change %+.2f across %d benchmarks).",
				name, direction, projectedChange, len(points)),
			ConfidenceLevel:      trendConfidence(reg.RSquared),
			SupportingDataPoints: len(points),
			ClinicalRelevance:    relevance,
			Actionability:        datatypes.TierModerate,
			GeneratedAt:          now,
			Tags:                 []string{"trend", direction},
		})
		insightsGenerated.WithLabelValues("trend").Inc()

		if direction == "declining" && reg.RSquared > 0.7 {
			expires := now.Add(recommendationTTL)
			out = append(out, datatypes.Insight{
				ID:                  uuid.NewString(),
				RelatedTechniqueIDs: []string{techniqueID},
				Text: fmt.Sprintf(
					"Review the implementation of %s: its effectiveness is declining steadily and the trend fits the data closely.",
					name),
				ConfidenceLevel:      trendConfidence(reg.RSquared),
				SupportingDataPoints: len(points),
				ClinicalRelevance:    datatypes.TierHigh,
				Actionability:        datatypes.TierHigh,
				GeneratedAt:          now,
				ExpiresAt:            &expires,
				Tags:                 []string{"trend", "declining", "recommendation"},
			})
			insightsGenerated.WithLabelValues("trend").Inc()
		}
	}
	return out
}

// trendConfidence maps the regression fit to a confidence tier.
func trendConfidence(r2 float64) float64 {
	switch {
	case r2 >= 0.7:
		return 0.85
	case r2 >= 0.5:
		return 0.70
	default:
		return 0.60
	}
}
