// Copyright (C) 2025 Cairn Health (oss@cairnhealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cairn_scheduler_job_runs_total",
		Help: "Job runs by job name and outcome",
	}, []string{"job", "status"})

	jobSkips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cairn_scheduler_job_skips_total",
		Help: "Ticks skipped because the previous run was still in flight",
	}, []string{"job"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cairn_scheduler_job_duration_seconds",
		Help:    "Job run duration",
		Buckets: []float64{0.01, 0.05, 0.25, 1, 5, 30, 120},
	}, []string{"job"})
)
