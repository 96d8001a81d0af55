// Copyright (C) 2025 Cairn Health (oss@cairnhealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analytics

import "github.com/gin-gonic/gin"

// RegisterRoutes registers all analytics routes with the router group.
//
// Description:
//
//	Registers all /v1/analytics/* endpoints with the given Gin router
//	group. The group should already have any required middleware
//	applied.
//
// Endpoints:
//
//	GET  /analytics/indication/:indication - Comparative view for an indication
//	GET  /analytics/technique/:id          - Comparative view for a technique
//	GET  /analytics/benchmarks             - Paginated benchmark listing
//	POST /analytics/refresh                - On-demand job trigger
//	GET  /analytics/health                 - Liveness and storage posture
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	analytics := rg.Group("/analytics")
	{
		analytics.GET("/indication/:indication", handlers.HandleIndication)
		analytics.GET("/technique/:id", handlers.HandleTechnique)
		analytics.GET("/benchmarks", handlers.HandleBenchmarks)
		analytics.POST("/refresh", handlers.HandleRefresh)
		analytics.GET("/health", handlers.HandleHealth)
	}
}
