// Copyright (C) 2025 Agentra AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package verifier exposes the fact-checking pipeline over HTTP.
package verifier

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agentra-ai/factcheck/services/verifier/datatypes"
	"github.com/agentra-ai/factcheck/services/verifier/pipeline"
	"github.com/agentra-ai/factcheck/services/verifier/search"
	"github.com/agentra-ai/factcheck/services/verifier/store"
)

// ServiceVersion is the verifier service version.
const ServiceVersion = "0.1.0"

// Runner runs one verification and returns the report.
type Runner interface {
	Run(ctx context.Context, in pipeline.Input) (*datatypes.Report, error)
}

// ReportGetter loads persisted reports by ID.
type ReportGetter interface {
	Get(id string) (*datatypes.Report, error)
}

// CheckRequest is the body of POST /v1/factcheck. At least one of Text and
// URL must be set; the media paths are local to the server and optional.
type CheckRequest struct {
	Text      string `json:"text"`
	URL       string `json:"url"`
	ImagePath string `json:"image_path"`
	AudioPath string `json:"audio_path"`
	VideoPath string `json:"video_path"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Handlers contains the HTTP handlers for the verifier.
type Handlers struct {
	runner  Runner
	reports ReportGetter
}

// NewHandlers creates handlers around a pipeline runner and a report store.
// A nil reports store disables the lookup endpoint with 404s.
func NewHandlers(runner Runner, reports ReportGetter) *Handlers {
	return &Handlers{runner: runner, reports: reports}
}

// HandleCheck handles POST /v1/factcheck.
//
// Response:
//
//	200 OK: datatypes.Report
//	400 Bad Request: no usable input text
//	503 Service Unavailable: search gateway unconfigured or out of budget
//	500 Internal Server Error: any other pipeline failure
func (h *Handlers) HandleCheck(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCheck")

	var req CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	logger.Info("Verification requested",
		"has_text", req.Text != "", "url", req.URL)

	report, err := h.runner.Run(c.Request.Context(), pipeline.Input{
		Text:      req.Text,
		URL:       req.URL,
		ImagePath: req.ImagePath,
		AudioPath: req.AudioPath,
		VideoPath: req.VideoPath,
	})
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "PIPELINE_FAILED"

		if errors.Is(err, pipeline.ErrNoUsableText) {
			statusCode = http.StatusBadRequest
			errCode = "NO_USABLE_TEXT"
		} else if errors.Is(err, search.ErrMissingAPIKey) {
			statusCode = http.StatusServiceUnavailable
			errCode = "SEARCH_UNCONFIGURED"
		} else if errors.Is(err, search.ErrBudgetExhausted) {
			statusCode = http.StatusServiceUnavailable
			errCode = "SEARCH_BUDGET_EXHAUSTED"
		}

		logger.Error("Verification failed", "error", err)
		c.JSON(statusCode, ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	logger.Info("Verification finished",
		"report_id", report.ID,
		"verdict", report.Verdict,
		"confidence", report.Confidence)
	c.JSON(http.StatusOK, report)
}

// HandleGetReport handles GET /v1/factcheck/:id.
func (h *Handlers) HandleGetReport(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGetReport")

	id := c.Param("id")
	if h.reports == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Report storage is not configured",
			Code:  "STORE_DISABLED",
		})
		return
	}

	report, err := h.reports.Get(id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Report not found",
			Code:  "REPORT_NOT_FOUND",
		})
		return
	}
	if err != nil {
		logger.Error("Report lookup failed", "report_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "STORE_FAILED",
		})
		return
	}
	c.JSON(http.StatusOK, report)
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": ServiceVersion,
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
