// Copyright (C) 2025 Cairn Health (oss@cairnhealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analytics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CairnHealth/CairnAnalytics/services/analytics/cache"
	"github.com/CairnHealth/CairnAnalytics/services/analytics/datatypes"
	"github.com/CairnHealth/CairnAnalytics/services/analytics/efficacy"
	"github.com/CairnHealth/CairnAnalytics/services/analytics/store"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// failingSource simulates an unavailable efficacy collaborator.
type failingSource struct{}

func (failingSource) TechniquesEfficacyStats(ctx context.Context, ids []string) (map[string]efficacy.TechniqueStats, error) {
	return nil, errors.New("efficacy tracking unavailable")
}

func newTestService(t *testing.T, src efficacy.Source, opts ...ServiceOption) *Service {
	t.Helper()
	if src == nil {
		src = efficacy.NewStaticSource(efficacy.SampleStats())
	}
	opts = append([]ServiceOption{WithClock(func() time.Time { return testTime })}, opts...)
	return NewService(store.New(nil, nil), src, cache.NewMemory(), nil, opts...)
}

func insightsWithTag(insights []datatypes.Insight, tag string) []datatypes.Insight {
	var out []datatypes.Insight
	for _, in := range insights {
		for _, t := range in.Tags {
			if t == tag {
				out = append(out, in)
				break
			}
		}
	}
	return out
}

// =============================================================================
// Benchmark Creation
// =============================================================================

func TestCreateBenchmarks_FromSampleStats(t *testing.T) {
	svc := newTestService(t, nil)

	created, err := svc.CreateBenchmarks(context.Background())
	require.NoError(t, err)
	// Every per-indication stat in the sample data clears the threshold.
	assert.Equal(t, 6, created)

	benchmarks, _, _ := svc.Store().Counts()
	assert.Equal(t, 6, benchmarks)

	// 0.87 efficacy clears the 0.7 cutoff: high pattern confidence.
	b, ok := svc.Store().GetBenchmark("bm:cbt-cognitive-restructuring:anxiety")
	require.True(t, ok)
	assert.Equal(t, 0.9, b.PatternConfidence)
	assert.Equal(t, "anxiety", b.PatternType)
	assert.Equal(t, []string{"cbt-cognitive-restructuring"}, b.TechniqueIDs)
	assert.Equal(t, 0.87, b.EffectivenessRatings["cbt-cognitive-restructuring"])
	assert.Equal(t, 38, b.DataPointCount)

	// 0.68 efficacy stays below the cutoff: default confidence.
	b, ok = svc.Store().GetBenchmark("bm:behavioral-activation:anxiety")
	require.True(t, ok)
	assert.Equal(t, 0.7, b.PatternConfidence)
}

func TestCreateBenchmarks_RepeatRunsUpsert(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.CreateBenchmarks(ctx)
	require.NoError(t, err)
	_, err = svc.CreateBenchmarks(ctx)
	require.NoError(t, err)

	benchmarks, _, _ := svc.Store().Counts()
	assert.Equal(t, 6, benchmarks, "deterministic ids make repeat cycles upsert")
}

func TestCreateBenchmarks_RespectsSampleThreshold(t *testing.T) {
	src := efficacy.NewStaticSource(map[string]efficacy.TechniqueStats{
		"thin": {
			TechniqueName:   "Thin Data",
			AverageEfficacy: 0.9,
			SampleSize:      9, // below default threshold
			ByIndication: map[string]efficacy.IndicationEfficacy{
				"anxiety": {AverageEfficacy: 0.9, SampleSize: 9},
			},
		},
		"mixed": {
			TechniqueName:   "Mixed Data",
			AverageEfficacy: 0.8,
			SampleSize:      40,
			ByIndication: map[string]efficacy.IndicationEfficacy{
				"anxiety": {AverageEfficacy: 0.8, SampleSize: 30},
				"stress":  {AverageEfficacy: 0.8, SampleSize: 5}, // below threshold
			},
		},
	})
	svc := newTestService(t, src)

	created, err := svc.CreateBenchmarks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, created, "only the indication stat with enough samples qualifies")

	_, ok := svc.Store().GetBenchmark("bm:mixed:anxiety")
	assert.True(t, ok)
}

func TestCreateBenchmarks_CollaboratorFailure(t *testing.T) {
	svc := newTestService(t, failingSource{})

	_, err := svc.CreateBenchmarks(context.Background())
	require.Error(t, err)

	var collabErr *CollaboratorError
	require.ErrorAs(t, err, &collabErr)
	assert.Equal(t, "efficacy", collabErr.Collaborator)
}

// =============================================================================
// Effectiveness Refresh
// =============================================================================

func TestRefreshEffectiveness_RebuildsRecords(t *testing.T) {
	svc := newTestService(t, nil)

	updated, err := svc.RefreshEffectiveness(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, updated)

	rec, ok := svc.Store().GetTechnique("cbt-cognitive-restructuring")
	require.True(t, ok)
	assert.Equal(t, "Cognitive Restructuring", rec.Name)
	assert.Equal(t, 0.82, rec.OverallEffectiveness)
	assert.Equal(t, 64, rec.SampleSize)
	// n=64 with effect 0.82: high evidence.
	assert.Equal(t, datatypes.EvidenceHigh, rec.EvidenceLevel)
	assert.ElementsMatch(t, []string{"anxiety", "depression"}, rec.Indications)

	// Wald interval around 0.82 with n=64.
	assert.InDelta(t, 0.726, rec.ConfidenceInterval.Lower, 0.001)
	assert.InDelta(t, 0.914, rec.ConfidenceInterval.Upper, 0.001)

	anx := rec.ByIndication["anxiety"]
	assert.Equal(t, 0.87, anx.Effectiveness)
	assert.Equal(t, 38, anx.SampleSize)
	assert.Less(t, anx.ConfidenceInterval.Lower, 0.87)
	assert.Greater(t, anx.ConfidenceInterval.Upper, 0.87)

	// n=41 misses the high bar but clears moderate.
	rec, ok = svc.Store().GetTechnique("behavioral-activation")
	require.True(t, ok)
	assert.Equal(t, datatypes.EvidenceModerate, rec.EvidenceLevel)
}

func TestRefreshEffectiveness_CarriesContraindications(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	existing := datatypes.TechniqueEffectiveness{
		ID:                   "cbt-cognitive-restructuring",
		Name:                 "Cognitive Restructuring",
		Contraindications:    []string{"acute psychosis"},
		OverallEffectiveness: 0.5,
		ConfidenceInterval:   datatypes.ConfidenceInterval{Lower: 0.3, Upper: 0.7},
		SampleSize:           10,
		EvidenceLevel:        datatypes.EvidenceLow,
		LastUpdated:          testTime.Add(-24 * time.Hour),
	}
	require.NoError(t, svc.Store().StoreTechnique(ctx, existing))

	_, err := svc.RefreshEffectiveness(ctx)
	require.NoError(t, err)

	rec, ok := svc.Store().GetTechnique("cbt-cognitive-restructuring")
	require.True(t, ok)
	assert.Equal(t, []string{"acute psychosis"}, rec.Contraindications,
		"contraindications survive the rebuild")
	assert.Equal(t, 0.82, rec.OverallEffectiveness, "everything else is recomputed")
}

func TestRefreshEffectiveness_CollaboratorFailure(t *testing.T) {
	svc := newTestService(t, failingSource{})

	_, err := svc.RefreshEffectiveness(context.Background())
	var collabErr *CollaboratorError
	require.ErrorAs(t, err, &collabErr)
}

// =============================================================================
// Insight Generation
// =============================================================================

func TestGenerateInsights_HeadToHead(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.RunBenchmarkRefresh(ctx))

	insights, err := svc.GenerateInsights(ctx)
	require.NoError(t, err)

	// Anxiety: 0.87 vs 0.76 is a gap above 0.10 with a strong leader.
	// Depression's 0.79 vs 0.74 gap is too small; stress has one technique.
	headToHead := insightsWithTag(insights, "head-to-head")
	require.Len(t, headToHead, 1)

	in := headToHead[0]
	assert.Equal(t, []string{"anxiety"}, in.RelatedPatternTypes)
	assert.Equal(t, []string{"cbt-cognitive-restructuring", "mindfulness-grounding"}, in.RelatedTechniqueIDs)
	assert.InDelta(t, 0.87, in.ConfidenceLevel, 1e-9, "confidence tracks the leader, capped at 0.95")
	assert.Equal(t, datatypes.TierHigh, in.ClinicalRelevance)
	assert.Contains(t, in.Text, "Cognitive Restructuring")
	assert.Contains(t, in.Text, "Mindfulness Grounding")

	// Generated insights are persisted and queryable.
	stored := svc.Store().GetInsightsForPattern("anxiety")
	assert.NotEmpty(t, stored)
}

func TestComparativeInsights_ClusterRequiresStrictSubset(t *testing.T) {
	svc := newTestService(t, nil)

	techniques := []datatypes.TechniqueEffectiveness{}
	for i, eff := range []float64{0.85, 0.8, 0.75, 0.5} {
		techniques = append(techniques, datatypes.TechniqueEffectiveness{
			ID:   fmt.Sprintf("tech-%d", i),
			Name: fmt.Sprintf("Technique %d", i),
			ByIndication: map[string]datatypes.IndicationStats{
				"anxiety": {Effectiveness: eff, SampleSize: 30},
			},
		})
	}

	insights := svc.comparativeInsights(techniques)
	clusters := insightsWithTag(insights, "cluster")
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0].RelatedTechniqueIDs, 3, "weak performer excluded")
	// Mean of the strong subset: (0.85+0.8+0.75)/3 = 0.8.
	assert.InDelta(t, 0.8, clusters[0].ConfidenceLevel, 1e-9)

	// All techniques strong: no subset to contrast against, no insight.
	for i := range techniques {
		st := techniques[i].ByIndication["anxiety"]
		st.Effectiveness = 0.9
		techniques[i].ByIndication["anxiety"] = st
	}
	insights = svc.comparativeInsights(techniques)
	assert.Empty(t, insightsWithTag(insights, "cluster"))
}

func TestPatternInsights_TopPerformerAndConsistency(t *testing.T) {
	svc := newTestService(t, nil)

	var benchmarks []datatypes.Benchmark
	for i := 0; i < 12; i++ {
		benchmarks = append(benchmarks, datatypes.Benchmark{
			ID:                fmt.Sprintf("bm-%d", i),
			Timestamp:         testTime.Add(time.Duration(i) * time.Hour),
			PatternType:       "Anxiety",
			PatternConfidence: 0.9,
			TechniqueIDs:      []string{"strong", "weak"},
			EffectivenessRatings: map[string]float64{
				"strong": 0.85,
				"weak":   0.55,
			},
			DataPointCount: 20,
		})
	}

	insights := svc.patternInsights(benchmarks)

	top := insightsWithTag(insights, "top-performer")
	require.Len(t, top, 1)
	assert.Equal(t, []string{"strong"}, top[0].RelatedTechniqueIDs)
	assert.InDelta(t, 0.85, top[0].ConfidenceLevel, 1e-9)

	consistency := insightsWithTag(insights, "consistency")
	require.Len(t, consistency, 1, "12 benchmarks clear the consistency volume gate")
	assert.InDelta(t, 0.65, consistency[0].ConfidenceLevel, 1e-9)
	assert.Equal(t, 12, consistency[0].SupportingDataPoints)
}

func TestPatternInsights_BelowVolumeThreshold(t *testing.T) {
	svc := newTestService(t, nil)

	var benchmarks []datatypes.Benchmark
	for i := 0; i < 9; i++ {
		benchmarks = append(benchmarks, datatypes.Benchmark{
			ID:                   fmt.Sprintf("bm-%d", i),
			Timestamp:            testTime,
			PatternType:          "anxiety",
			PatternConfidence:    0.9,
			TechniqueIDs:         []string{"tech-a"},
			EffectivenessRatings: map[string]float64{"tech-a": 0.8},
		})
	}

	assert.Empty(t, svc.patternInsights(benchmarks), "9 benchmarks are below the threshold of 10")
}

func TestTrendInsights_Improving(t *testing.T) {
	svc := newTestService(t, nil)

	// Twelve benchmarks climbing from 0.5 to 0.9 give a clean upward fit.
	var benchmarks []datatypes.Benchmark
	for i := 0; i < 12; i++ {
		rating := 0.5 + float64(i)*(0.4/11)
		benchmarks = append(benchmarks, datatypes.Benchmark{
			ID:                   fmt.Sprintf("bm-%d", i),
			Timestamp:            testTime.Add(time.Duration(i) * 24 * time.Hour),
			PatternType:          "anxiety",
			PatternConfidence:    0.9,
			TechniqueIDs:         []string{"rising"},
			EffectivenessRatings: map[string]float64{"rising": rating},
		})
	}

	insights := svc.trendInsights(benchmarks)
	improving := insightsWithTag(insights, "improving")
	require.Len(t, improving, 1)
	assert.Equal(t, []string{"rising"}, improving[0].RelatedTechniqueIDs)
	assert.InDelta(t, 0.85, improving[0].ConfidenceLevel, 1e-9, "a clean fit earns top trend confidence")
	assert.Nil(t, improving[0].ExpiresAt)

	assert.Empty(t, insightsWithTag(insights, "recommendation"),
		"improving trends carry no review recommendation")
}

func TestTrendInsights_DecliningYieldsRecommendation(t *testing.T) {
	svc := newTestService(t, nil)

	var benchmarks []datatypes.Benchmark
	for i := 0; i < 12; i++ {
		rating := 0.9 - float64(i)*(0.4/11)
		benchmarks = append(benchmarks, datatypes.Benchmark{
			ID:                   fmt.Sprintf("bm-%d", i),
			Timestamp:            testTime.Add(time.Duration(i) * 24 * time.Hour),
			PatternType:          "anxiety",
			PatternConfidence:    0.9,
			TechniqueIDs:         []string{"fading"},
			EffectivenessRatings: map[string]float64{"fading": rating},
		})
	}

	insights := svc.trendInsights(benchmarks)
	declining := insightsWithTag(insights, "declining")
	require.Len(t, declining, 2, "trend insight plus review recommendation")

	recommendations := insightsWithTag(insights, "recommendation")
	require.Len(t, recommendations, 1)
	rec := recommendations[0]
	require.NotNil(t, rec.ExpiresAt)
	assert.Equal(t, testTime.Add(30*24*time.Hour), *rec.ExpiresAt, "recommendation expires after 30 days")
	assert.Equal(t, datatypes.TierHigh, rec.ClinicalRelevance)
	assert.Equal(t, datatypes.TierHigh, rec.Actionability)
}

func TestTrendInsights_FlatSeriesYieldsNothing(t *testing.T) {
	svc := newTestService(t, nil)

	var benchmarks []datatypes.Benchmark
	for i := 0; i < 12; i++ {
		benchmarks = append(benchmarks, datatypes.Benchmark{
			ID:                   fmt.Sprintf("bm-%d", i),
			Timestamp:            testTime.Add(time.Duration(i) * 24 * time.Hour),
			PatternType:          "anxiety",
			PatternConfidence:    0.9,
			TechniqueIDs:         []string{"steady"},
			EffectivenessRatings: map[string]float64{"steady": 0.75},
		})
	}

	assert.Empty(t, svc.trendInsights(benchmarks))
}

func TestTrendInsights_RequiresHistory(t *testing.T) {
	svc := newTestService(t, nil)

	var benchmarks []datatypes.Benchmark
	for i := 0; i < 9; i++ {
		benchmarks = append(benchmarks, datatypes.Benchmark{
			ID:                   fmt.Sprintf("bm-%d", i),
			Timestamp:            testTime.Add(time.Duration(i) * 24 * time.Hour),
			PatternType:          "anxiety",
			PatternConfidence:    0.9,
			TechniqueIDs:         []string{"short"},
			EffectivenessRatings: map[string]float64{"short": 0.5 + float64(i)*0.05},
		})
	}

	assert.Empty(t, svc.trendInsights(benchmarks), "fewer than 10 observations is not a trend")
}

// =============================================================================
// Configuration
// =============================================================================

func TestSetMinSampleSize(t *testing.T) {
	svc := newTestService(t, nil)
	assert.Equal(t, DefaultMinSampleSize, svc.MinSampleSize())

	svc.SetMinSampleSize(25)
	assert.Equal(t, 25, svc.MinSampleSize())

	svc.SetMinSampleSize(0)
	assert.Equal(t, 25, svc.MinSampleSize(), "invalid values are ignored")
}

func TestRunBenchmarkRefresh_PropagatesCollaboratorError(t *testing.T) {
	svc := newTestService(t, failingSource{})
	err := svc.RunBenchmarkRefresh(context.Background())
	var collabErr *CollaboratorError
	require.ErrorAs(t, err, &collabErr)
}
