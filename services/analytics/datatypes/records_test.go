// Copyright (C) 2025 Cairn Health (oss@cairnhealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var recordTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func validBenchmark() Benchmark {
	return Benchmark{
		ID:                   "bm-1",
		Timestamp:            recordTime,
		PatternType:          "anxiety",
		PatternConfidence:    0.9,
		TechniqueIDs:         []string{"tech-a", "tech-b"},
		EffectivenessRatings: map[string]float64{"tech-a": 0.8, "tech-b": 0.6},
		DataPointCount:       25,
	}
}

func TestBenchmark_Validate(t *testing.T) {
	b := validBenchmark()
	require.NoError(t, b.Validate())

	t.Run("missing id", func(t *testing.T) {
		b := validBenchmark()
		b.ID = ""
		assert.Error(t, b.Validate())
	})

	t.Run("no techniques", func(t *testing.T) {
		b := validBenchmark()
		b.TechniqueIDs = nil
		b.EffectivenessRatings = nil
		assert.Error(t, b.Validate())
	})

	t.Run("rating out of range", func(t *testing.T) {
		b := validBenchmark()
		b.EffectivenessRatings["tech-a"] = 1.5
		assert.Error(t, b.Validate())
	})

	t.Run("confidence out of range", func(t *testing.T) {
		b := validBenchmark()
		b.PatternConfidence = -0.1
		assert.Error(t, b.Validate())
	})
}

func TestBenchmark_RatingKeyInvariant(t *testing.T) {
	b := validBenchmark()
	b.EffectivenessRatings["tech-unlisted"] = 0.5

	err := b.Validate()
	require.Error(t, err)

	var keyErr *RatingKeyError
	require.ErrorAs(t, err, &keyErr)
	assert.Equal(t, "bm-1", keyErr.BenchmarkID)
	assert.Equal(t, "tech-unlisted", keyErr.TechniqueID)
	assert.Contains(t, keyErr.Error(), "tech-unlisted")
}

func TestTechniqueEffectiveness_Validate(t *testing.T) {
	rec := TechniqueEffectiveness{
		ID:                   "tech-a",
		Name:                 "Technique A",
		Indications:          []string{"anxiety"},
		OverallEffectiveness: 0.8,
		ConfidenceInterval:   ConfidenceInterval{Lower: 0.7, Upper: 0.9},
		SampleSize:           40,
		ByIndication: map[string]IndicationStats{
			"anxiety": {Effectiveness: 0.8, SampleSize: 40},
		},
		EvidenceLevel: EvidenceModerate,
		LastUpdated:   recordTime,
	}
	require.NoError(t, rec.Validate())

	rec.EvidenceLevel = "overwhelming"
	assert.Error(t, rec.Validate(), "evidence level outside the enumeration")

	rec.EvidenceLevel = EvidenceModerate
	rec.Name = ""
	assert.Error(t, rec.Validate())
}

func TestInsight_Validate(t *testing.T) {
	in := Insight{
		ID:                   "in-1",
		RelatedPatternTypes:  []string{"anxiety"},
		RelatedTechniqueIDs:  []string{"tech-a"},
		Text:                 "a finding",
		ConfidenceLevel:      0.8,
		SupportingDataPoints: 12,
		ClinicalRelevance:    TierHigh,
		Actionability:        TierModerate,
		GeneratedAt:          recordTime,
	}
	require.NoError(t, in.Validate())

	t.Run("expiry before generation", func(t *testing.T) {
		bad := in
		expires := recordTime.Add(-time.Hour)
		bad.ExpiresAt = &expires

		err := bad.Validate()
		require.Error(t, err)
		var expErr *ExpiryError
		require.ErrorAs(t, err, &expErr)
		assert.Equal(t, "in-1", expErr.InsightID)
	})

	t.Run("expiry equal to generation", func(t *testing.T) {
		bad := in
		expires := recordTime
		bad.ExpiresAt = &expires
		assert.Error(t, bad.Validate())
	})

	t.Run("future expiry", func(t *testing.T) {
		ok := in
		expires := recordTime.Add(time.Hour)
		ok.ExpiresAt = &expires
		assert.NoError(t, ok.Validate())
	})

	t.Run("bad relevance tier", func(t *testing.T) {
		bad := in
		bad.ClinicalRelevance = "critical"
		assert.Error(t, bad.Validate())
	})
}

func TestInsight_Expired(t *testing.T) {
	expires := recordTime.Add(time.Hour)
	in := Insight{ID: "in-1", ExpiresAt: &expires}

	assert.False(t, in.Expired(recordTime))
	assert.False(t, in.Expired(expires), "exactly at expiry is still live")
	assert.True(t, in.Expired(expires.Add(time.Second)))

	in.ExpiresAt = nil
	assert.False(t, in.Expired(recordTime.Add(1000*time.Hour)), "no expiry never expires")
}

func TestConfidenceInterval(t *testing.T) {
	assert.True(t, ConfidenceInterval{Lower: 0, Upper: 1}.Undefined())
	assert.False(t, ConfidenceInterval{Lower: 0.2, Upper: 0.8}.Undefined())
	assert.InDelta(t, 0.6, ConfidenceInterval{Lower: 0.2, Upper: 0.8}.Width(), 1e-9)
}
