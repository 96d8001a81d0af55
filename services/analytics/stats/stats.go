// Copyright (C) 2025 Cairn Health (oss@cairnhealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stats provides the pure statistical functions used by the
// analytics engine: Wald confidence intervals, evidence-level
// classification, and ordinary least-squares regression.
//
// All functions are deterministic, allocation-light, and safe for
// concurrent use.
package stats

import (
	"math"

	"github.com/CairnHealth/CairnAnalytics/services/analytics/datatypes"
)

// zScore95 is the two-sided z critical value for a 95% confidence level.
const zScore95 = 1.96

// Evidence-level thresholds. Rules are evaluated in order; the first
// matching rule wins.
const (
	highEvidenceSamples     = 50
	highEvidenceEffect      = 0.7
	moderateEvidenceSamples = 20
	moderateEvidenceEffect  = 0.8
	lowEvidenceSamples      = 10
)

// WaldInterval computes the Wald approximation of a 95% confidence interval
// around a proportion.
//
// Description:
//
//	Given a mean effectiveness p and a sample size n, computes
//	p ± z*sqrt(p(1-p)/n) with z = 1.96 and clamps both bounds to [0,1].
//	For n < 2 the interval is undefined and the full [0,1] range is
//	returned.
//
// Inputs:
//
//	p - Mean effectiveness in [0,1]. Values outside the range are clamped.
//	n - Sample size.
//
// Outputs:
//
//	datatypes.ConfidenceInterval - Interval with 0 <= Lower <= p <= Upper <= 1
//	for n >= 2, or exactly [0,1] otherwise.
func WaldInterval(p float64, n int) datatypes.ConfidenceInterval {
	if n < 2 {
		return datatypes.ConfidenceInterval{Lower: 0, Upper: 1}
	}
	p = clamp01(p)
	margin := zScore95 * math.Sqrt(p*(1-p)/float64(n))
	return datatypes.ConfidenceInterval{
		Lower: clamp01(p - margin),
		Upper: clamp01(p + margin),
	}
}

// ClassifyEvidence assigns a qualitative evidence level from sample size and
// effect magnitude.
//
// Description:
//
//	Rule order matters and the first match wins:
//	  high      n >= 50 AND effect >= 0.7
//	  moderate  n >= 20 OR  effect >= 0.8
//	  low       n >= 10
//	  anecdotal otherwise
//
// Inputs:
//
//	n - Sample size.
//	effect - Effect magnitude in [0,1].
//
// Outputs:
//
//	datatypes.EvidenceLevel - The matched tier.
func ClassifyEvidence(n int, effect float64) datatypes.EvidenceLevel {
	switch {
	case n >= highEvidenceSamples && effect >= highEvidenceEffect:
		return datatypes.EvidenceHigh
	case n >= moderateEvidenceSamples || effect >= moderateEvidenceEffect:
		return datatypes.EvidenceModerate
	case n >= lowEvidenceSamples:
		return datatypes.EvidenceLow
	default:
		return datatypes.EvidenceAnecdotal
	}
}

// Regression holds the result of an ordinary least-squares fit.
type Regression struct {
	// Slope is the fitted change in y per unit of x.
	Slope float64

	// Intercept is the fitted y at x = 0.
	Intercept float64

	// RSquared is the coefficient of determination, 1 - SSres/SStot,
	// or 0 when the y values have zero variance.
	RSquared float64
}

// PredictAt evaluates the fitted line at x.
func (r Regression) PredictAt(x float64) float64 {
	return r.Slope*x + r.Intercept
}

// LinearRegression fits y = slope*x + intercept by ordinary least squares.
//
// Description:
//
//	Uses the centered form slope = Σ(x-x̄)(y-ȳ) / Σ(x-x̄)², which stays
//	numerically stable for large x magnitudes such as Unix timestamps.
//	Degenerate inputs never divide by zero:
//	  - fewer than 2 points: slope 0, intercept = mean of y (0 if empty)
//	  - zero variance in x:  slope 0, intercept = mean of y
//	  - zero variance in y:  RSquared 0
//
// Inputs:
//
//	xs - Independent values. len(xs) must equal len(ys).
//	ys - Dependent values.
//
// Outputs:
//
//	Regression - Fitted slope, intercept, and R².
func LinearRegression(xs, ys []float64) Regression {
	n := len(xs)
	if n != len(ys) || n == 0 {
		return Regression{}
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	if n < 2 {
		return Regression{Intercept: meanY}
	}

	var ssXY, ssXX float64
	for i := 0; i < n; i++ {
		dx := xs[i] - meanX
		ssXY += dx * (ys[i] - meanY)
		ssXX += dx * dx
	}
	if ssXX == 0 {
		return Regression{Intercept: meanY}
	}

	slope := ssXY / ssXX
	intercept := meanY - slope*meanX

	var ssRes, ssTot float64
	for i := 0; i < n; i++ {
		fitted := slope*xs[i] + intercept
		ssRes += (ys[i] - fitted) * (ys[i] - fitted)
		ssTot += (ys[i] - meanY) * (ys[i] - meanY)
	}

	r2 := 0.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}

	return Regression{Slope: slope, Intercept: intercept, RSquared: r2}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
