// Copyright (C) 2025 Cairn Health (oss@cairnhealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	writeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cairn_store_durable_write_failures_total",
		Help: "Durable write failures; the in-memory copy is retained",
	})

	parseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cairn_store_hydration_parse_failures_total",
		Help: "Records skipped during hydration due to parse errors",
	})

	hydratedRecords = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cairn_store_hydrated_records",
		Help: "Records hydrated from durable storage at startup, by type",
	}, []string{"type"})
)
