// Copyright (C) 2025 Cairn Health (oss@cairnhealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cairn_cache_hits_total",
		Help: "Result cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cairn_cache_misses_total",
		Help: "Result cache misses, including expired entries",
	})

	cacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cairn_cache_evictions_total",
		Help: "Entries evicted for expiry or capacity",
	})

	cacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cairn_cache_invalidations_total",
		Help: "Entries removed by prefix invalidation after writes",
	})
)
