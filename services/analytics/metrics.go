// Copyright (C) 2025 Cairn Health (oss@cairnhealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analytics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	benchmarksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cairn_analytics_benchmarks_created_total",
		Help: "Benchmarks synthesized from efficacy statistics",
	})

	techniquesUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cairn_analytics_techniques_updated_total",
		Help: "Technique records rebuilt by effectiveness-database refreshes",
	})

	insightsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cairn_analytics_insights_generated_total",
		Help: "Insights produced, by generation pass",
	}, []string{"pass"})

	passDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cairn_analytics_pass_duration_seconds",
		Help:    "Duration of orchestrator computation passes",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 2, 10},
	}, []string{"pass"})
)
