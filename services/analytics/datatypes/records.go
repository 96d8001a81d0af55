// Copyright (C) 2025 Cairn Health (oss@cairnhealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides the record types owned by the analytics engine.
//
// Three record kinds flow through the engine:
//
//   - Benchmark: an anonymized snapshot of effectiveness ratings for one or
//     more techniques against a single indication pattern.
//   - TechniqueEffectiveness: the continuously-rebuilt per-technique entry of
//     the effectiveness database, with confidence intervals per indication.
//   - Insight: a generated, human-readable statement plus structured metadata
//     describing a detected comparison, ranking, or trend.
//
// The benchmark store owns the authoritative copies of these records; all
// other holders are transient projections.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// recordValidate is the shared validator instance for record types.
var recordValidate *validator.Validate

func init() {
	recordValidate = validator.New()
}

// =============================================================================
// Enumerations
// =============================================================================

// EvidenceLevel is the qualitative confidence tier derived from sample size
// and effect size.
type EvidenceLevel string

const (
	EvidenceHigh      EvidenceLevel = "high"
	EvidenceModerate  EvidenceLevel = "moderate"
	EvidenceLow       EvidenceLevel = "low"
	EvidenceAnecdotal EvidenceLevel = "anecdotal"
)

// RelevanceTier grades the clinical relevance or actionability of an insight.
type RelevanceTier string

const (
	TierHigh     RelevanceTier = "high"
	TierModerate RelevanceTier = "moderate"
	TierLow      RelevanceTier = "low"
)

// =============================================================================
// Confidence Interval
// =============================================================================

// ConfidenceInterval is a closed interval on [0,1] around an effectiveness
// estimate. Lower <= Upper always holds for intervals produced by the stats
// package; the full interval [0,1] denotes an undefined estimate.
type ConfidenceInterval struct {
	Lower float64 `json:"lower" validate:"gte=0,lte=1"`
	Upper float64 `json:"upper" validate:"gte=0,lte=1,gtefield=Lower"`
}

// Undefined reports whether the interval carries no information,
// i.e. it spans the entire [0,1] range.
func (ci ConfidenceInterval) Undefined() bool {
	return ci.Lower == 0 && ci.Upper == 1
}

// Width returns Upper - Lower.
func (ci ConfidenceInterval) Width() float64 {
	return ci.Upper - ci.Lower
}

// =============================================================================
// Benchmark
// =============================================================================

// Benchmark is an anonymized cross-client effectiveness snapshot.
//
// # Description
//
// A Benchmark records how one or more techniques performed against a single
// indication pattern, aggregated from raw efficacy measurements. Benchmarks
// are created by the orchestrator, replaced wholesale on upsert-by-id, and
// never deleted in normal operation.
//
// # Invariants
//
//   - Every key of EffectivenessRatings appears in TechniqueIDs.
//   - PatternConfidence and each rating lie in [0,1].
//   - UpdatedAt >= CreatedAt.
type Benchmark struct {
	ID                   string             `json:"id" validate:"required"`
	Timestamp            time.Time          `json:"timestamp" validate:"required"`
	PatternType          string             `json:"pattern_type" validate:"required"`
	PatternConfidence    float64            `json:"pattern_confidence" validate:"gte=0,lte=1"`
	TechniqueIDs         []string           `json:"technique_ids" validate:"required,min=1"`
	EffectivenessRatings map[string]float64 `json:"effectiveness_ratings" validate:"dive,gte=0,lte=1"`
	DataPointCount       int                `json:"data_point_count" validate:"gte=0"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// Validate checks structural validity, including the rating-key invariant.
//
// # Outputs
//
//   - error: Non-nil if a field violates its constraints or a rating key
//     does not appear in TechniqueIDs.
func (b *Benchmark) Validate() error {
	if err := recordValidate.Struct(b); err != nil {
		return err
	}
	ids := make(map[string]struct{}, len(b.TechniqueIDs))
	for _, id := range b.TechniqueIDs {
		ids[id] = struct{}{}
	}
	for key := range b.EffectivenessRatings {
		if _, ok := ids[key]; !ok {
			return &RatingKeyError{BenchmarkID: b.ID, TechniqueID: key}
		}
	}
	return nil
}

// RatingKeyError reports an effectiveness rating keyed by a technique that
// is not listed in the benchmark's TechniqueIDs.
type RatingKeyError struct {
	BenchmarkID string
	TechniqueID string
}

func (e *RatingKeyError) Error() string {
	return "benchmark " + e.BenchmarkID + ": rating for technique " +
		e.TechniqueID + " not present in technique_ids"
}

// =============================================================================
// Technique Effectiveness
// =============================================================================

// IndicationStats holds per-indication effectiveness for one technique.
type IndicationStats struct {
	Effectiveness      float64            `json:"effectiveness" validate:"gte=0,lte=1"`
	SampleSize         int                `json:"sample_size" validate:"gte=0"`
	ConfidenceInterval ConfidenceInterval `json:"confidence_interval"`
}

// TechniqueEffectiveness is one entry of the effectiveness database.
//
// # Description
//
// Rebuilt in full on every effectiveness-database refresh from Benchmark and
// efficacy-collaborator data. Never hand-edited. Contraindications are the
// one field the refresh cannot derive; they are carried forward from the
// previous record when one exists.
type TechniqueEffectiveness struct {
	ID                   string                     `json:"id" validate:"required"`
	Name                 string                     `json:"name" validate:"required"`
	Indications          []string                   `json:"indications"`
	Contraindications    []string                   `json:"contraindications"`
	OverallEffectiveness float64                    `json:"overall_effectiveness" validate:"gte=0,lte=1"`
	ConfidenceInterval   ConfidenceInterval         `json:"confidence_interval"`
	SampleSize           int                        `json:"sample_size" validate:"gte=0"`
	ByIndication         map[string]IndicationStats `json:"effectiveness_by_indication"`
	EvidenceLevel        EvidenceLevel              `json:"evidence_level" validate:"required,oneof=high moderate low anecdotal"`
	LastUpdated          time.Time                  `json:"last_updated"`
}

// Validate checks structural validity of the technique record.
func (t *TechniqueEffectiveness) Validate() error {
	return recordValidate.Struct(t)
}

// =============================================================================
// Insight
// =============================================================================

// Insight is a generated natural-language finding with structured metadata.
//
// # Description
//
// Insights are write-once per generation cycle. A later cycle supersedes an
// earlier finding by emitting a new Insight with a fresh id; existing records
// are never mutated. ExpiresAt, when set, must be after GeneratedAt and marks
// findings that should not be surfaced past their shelf life (used for
// recommendation insights).
type Insight struct {
	ID                   string        `json:"id" validate:"required"`
	RelatedPatternTypes  []string      `json:"related_pattern_types"`
	RelatedTechniqueIDs  []string      `json:"related_technique_ids"`
	Text                 string        `json:"insight_text" validate:"required"`
	ConfidenceLevel      float64       `json:"confidence_level" validate:"gte=0,lte=1"`
	SupportingDataPoints int           `json:"supporting_data_points" validate:"gte=0"`
	ClinicalRelevance    RelevanceTier `json:"clinical_relevance" validate:"required,oneof=high moderate low"`
	Actionability        RelevanceTier `json:"actionability" validate:"required,oneof=high moderate low"`
	GeneratedAt          time.Time     `json:"generated_at"`
	ExpiresAt            *time.Time    `json:"expires_at,omitempty"`
	Tags                 []string      `json:"tags,omitempty"`
}

// Validate checks structural validity, including the ExpiresAt ordering.
func (i *Insight) Validate() error {
	if err := recordValidate.Struct(i); err != nil {
		return err
	}
	if i.ExpiresAt != nil && !i.ExpiresAt.After(i.GeneratedAt) {
		return &ExpiryError{InsightID: i.ID}
	}
	return nil
}

// Expired reports whether the insight has an expiry in the past.
func (i *Insight) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && now.After(*i.ExpiresAt)
}

// ExpiryError reports an insight whose ExpiresAt does not follow GeneratedAt.
type ExpiryError struct {
	InsightID string
}

func (e *ExpiryError) Error() string {
	return "insight " + e.InsightID + ": expires_at must be after generated_at"
}
