// Copyright (C) 2025 Cairn Health (oss@cairnhealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analytics

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/CairnHealth/CairnAnalytics/services/analytics/scheduler"
)

// ServiceVersion is the analytics service version.
const ServiceVersion = "0.1.0"

// ErrorResponse is the standard error body for analytics endpoints.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`
}

// RefreshResponse reports which jobs a refresh request started.
type RefreshResponse struct {
	Triggered []string `json:"triggered"`
	Busy      []string `json:"busy,omitempty"`
}

// HealthResponse reports engine liveness and storage posture.
type HealthResponse struct {
	Status     string         `json:"status"`
	Version    string         `json:"version"`
	Durable    bool           `json:"durable"`
	Degraded   bool           `json:"degraded"`
	Records    map[string]int `json:"records"`
	CacheItems int            `json:"cache_items"`
}

// Handlers contains the HTTP handlers for the analytics service.
type Handlers struct {
	svc   *Service
	sched *scheduler.Scheduler
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// WithScheduler wires the scheduler so refresh requests can trigger jobs.
func (h *Handlers) WithScheduler(sched *scheduler.Scheduler) *Handlers {
	h.sched = sched
	return h
}

// HandleIndication handles GET /v1/analytics/indication/:indication.
//
// Description:
//
//	Returns the comparative view for one indication: matching
//	techniques, active insights, and benchmarks.
//
// Response:
//
//	200 OK: IndicationAnalytics
//	500 Internal Server Error: Processing error
func (h *Handlers) HandleIndication(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleIndication")

	indication := c.Param("indication")
	result, err := h.svc.ComparativeAnalyticsForIndication(c.Request.Context(), indication)
	if err != nil {
		logger.Error("Indication analytics failed", "indication", indication, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to assemble indication analytics",
			Code:  "ANALYTICS_FAILED",
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleTechnique handles GET /v1/analytics/technique/:id.
//
// Response:
//
//	200 OK: TechniqueAnalytics
//	404 Not Found: Unknown technique id
//	500 Internal Server Error: Processing error
func (h *Handlers) HandleTechnique(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleTechnique")

	id := c.Param("id")
	result, err := h.svc.ComparativeAnalyticsForTechnique(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrTechniqueNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "Unknown technique: " + id,
				Code:  "TECHNIQUE_NOT_FOUND",
			})
			return
		}
		logger.Error("Technique analytics failed", "technique_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to assemble technique analytics",
			Code:  "ANALYTICS_FAILED",
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleBenchmarks handles GET /v1/analytics/benchmarks.
//
// Description:
//
//	Returns one page of benchmarks, newest first. Accepts "page" and
//	"page_size" query parameters; non-numeric values fall back to
//	defaults rather than erroring.
func (h *Handlers) HandleBenchmarks(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleBenchmarks")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	result, err := h.svc.BenchmarkPage(c.Request.Context(), page, pageSize)
	if err != nil {
		logger.Error("Benchmark listing failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to list benchmarks",
			Code:  "ANALYTICS_FAILED",
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleRefresh handles POST /v1/analytics/refresh.
//
// Description:
//
//	Triggers the registered analytics jobs on demand. Jobs whose
//	previous run is still in flight are reported as busy rather than
//	queued twice.
//
// Response:
//
//	202 Accepted: RefreshResponse
//	503 Service Unavailable: No scheduler configured
func (h *Handlers) HandleRefresh(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleRefresh")

	if h.sched == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "Background jobs are not configured",
			Code:  "NO_SCHEDULER",
		})
		return
	}

	resp := RefreshResponse{}
	for _, name := range h.sched.JobNames() {
		err := h.sched.Trigger(c.Request.Context(), name)
		switch {
		case err == nil:
			resp.Triggered = append(resp.Triggered, name)
		case errors.Is(err, scheduler.ErrJobBusy):
			resp.Busy = append(resp.Busy, name)
		default:
			logger.Warn("Job trigger failed", "job", name, "error", err)
		}
	}
	logger.Info("Refresh requested", "triggered", resp.Triggered, "busy", resp.Busy)
	c.JSON(http.StatusAccepted, resp)
}

// HandleHealth handles GET /v1/analytics/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	st := h.svc.Store()
	benchmarks, techniques, insights := st.Counts()
	c.JSON(http.StatusOK, HealthResponse{
		Status:   "healthy",
		Version:  ServiceVersion,
		Durable:  st.Durable(),
		Degraded: st.Degraded(),
		Records: map[string]int{
			"benchmarks": benchmarks,
			"techniques": techniques,
			"insights":   insights,
		},
		CacheItems: h.svc.CacheLen(),
	})
}

func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
