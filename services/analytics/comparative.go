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

// Comparative pass thresholds.
const (
	// headToHeadGap is the minimum effectiveness gap between the top two
	// techniques before a head-to-head insight is worth emitting.
	headToHeadGap = 0.10

	// headToHeadFloor is the minimum effectiveness the leader must show.
	headToHeadFloor = 0.70

	// clusterFloor is the effectiveness cutoff for the strong-performer
	// cluster.
	clusterFloor = 0.70

	// clusterMinTechniques is how many techniques an indication needs
	// before a cluster insight is considered.
	clusterMinTechniques = 4

	// clusterMaxNamed caps how many techniques a cluster insight names.
	clusterMaxNamed = 3
)

// rankedTechnique is one technique's standing for a single indication.
type rankedTechnique struct {
	id            string
	name          string
	effectiveness float64
	sampleSize    int
}

// comparativeInsights runs the head-to-head and cluster comparisons.
//
// Description:
//
//	Groups techniques by shared indication (case-insensitive). For each
//	indication backed by at least two techniques, ranks them by
//	per-indication effectiveness and emits:
//
//	  - a head-to-head insight when the leader beats the runner-up by more
//	    than 0.10 and itself exceeds 0.70, with confidence
//	    min(0.95, leader effectiveness);
//	  - for indications with four or more techniques, a cluster insight
//	    naming up to three strong performers (effectiveness >= 0.70),
//	    provided the strong set is a non-empty strict subset.
func (s *Service) comparativeInsights(techniques []datatypes.TechniqueEffectiveness) []datatypes.Insight {
	defer s.observePass("comparative")()

	groups := make(map[string][]rankedTechnique)
	labels := make(map[string]string)
	for _, t := range techniques {
		for ind, indStats := range t.ByIndication {
			key := strings.ToLower(ind)
			if _, ok := labels[key]; !ok {
				labels[key] = ind
			}
			groups[key] = append(groups[key], rankedTechnique{
				id:            t.ID,
				name:          t.Name,
				effectiveness: indStats.Effectiveness,
				sampleSize:    indStats.SampleSize,
			})
		}
	}

	now := s.now().UTC()
	var out []datatypes.Insight

	for _, key := range sortedKeys(groups) {
		ranked := groups[key]
		if len(ranked) < 2 {
			continue
		}
		indication := labels[key]
		rankTechniques(ranked)

		top, second := ranked[0], ranked[1]
		if top.effectiveness-second.effectiveness > headToHeadGap && top.effectiveness > headToHeadFloor {
			out = append(out, datatypes.Insight{
				ID:                  uuid.NewString(),
				RelatedPatternTypes: []string{indication},
				RelatedTechniqueIDs: []string{top.id, second.id},
				Text: fmt.Sprintf(
					"%s shows notably higher effectiveness than %s for %s (%.0f%% vs %.0f%%).",
					top.name, second.name, indication,
					top.effectiveness*100, second.effectiveness*100),
				ConfidenceLevel:      minFloat(0.95, top.effectiveness),
				SupportingDataPoints: top.sampleSize + second.sampleSize,
				ClinicalRelevance:    datatypes.TierHigh,
				Actionability:        datatypes.TierHigh,
				GeneratedAt:          now,
				Tags:                 []string{"comparative", "head-to-head", strings.ToLower(indication)},
			})
			insightsGenerated.WithLabelValues("comparative").Inc()
		}

		if len(ranked) >= clusterMinTechniques {
			var strong []rankedTechnique
			for _, r := range ranked {
				if r.effectiveness >= clusterFloor {
					strong = append(strong, r)
				}
			}
			if len(strong) > 0 && len(strong) < len(ranked) {
				named := strong
				if len(named) > clusterMaxNamed {
					named = named[:clusterMaxNamed]
				}
				var (
					names      []string
					ids        []string
					sumEff     float64
					sumSamples int
				)
				for _, r := range named {
					names = append(names, r.name)
					ids = append(ids, r.id)
				}
				for _, r := range strong {
					sumEff += r.effectiveness
					sumSamples += r.sampleSize
				}
				out = append(out, datatypes.Insight{
					ID:                  uuid.NewString(),
					RelatedPatternTypes: []string{indication},
					RelatedTechniqueIDs: ids,
					Text: fmt.Sprintf(
						"A subset of techniques performs strongly for %s: %s.",
						indication, joinNames(names)),
					ConfidenceLevel:      minFloat(0.90, sumEff/float64(len(strong))),
					SupportingDataPoints: sumSamples,
					ClinicalRelevance:    datatypes.TierModerate,
					Actionability:        datatypes.TierModerate,
					GeneratedAt:          now,
					Tags:                 []string{"comparative", "cluster", strings.ToLower(indication)},
				})
				insightsGenerated.WithLabelValues("comparative").Inc()
			}
		}
	}
	return out
}

// rankTechniques sorts by effectiveness descending, breaking ties by sample
// size descending and then id ascending for deterministic output.
func rankTechniques(ranked []rankedTechnique) {
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].effectiveness != ranked[j].effectiveness {
			return ranked[i].effectiveness > ranked[j].effectiveness
		}
		if ranked[i].sampleSize != ranked[j].sampleSize {
			return ranked[i].sampleSize > ranked[j].sampleSize
		}
		return ranked[i].id < ranked[j].id
	})
}

func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	default:
		return strings.Join(names[:len(names)-1], ", ") + ", and " + names[len(names)-1]
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
