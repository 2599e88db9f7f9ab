// Copyright (C) 2025 Agentra AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the verifier.
//
// Metrics cover the external call surface (search requests, retries, cache
// behavior, reasoning calls) and the pipeline outcome distribution. They are
// exposed on /metrics by the HTTP server.
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "factcheck"
)

// Metrics holds all Prometheus instruments for the verifier service.
// Initialize once at startup via NewMetrics.
type Metrics struct {
	// SearchRequestsTotal counts outbound search calls by result.
	// Labels: status (success, error)
	SearchRequestsTotal *prometheus.CounterVec

	// SearchRetriesTotal counts retried search attempts.
	SearchRetriesTotal prometheus.Counter

	// SearchCacheTotal counts cache lookups by outcome.
	// Labels: outcome (hit, miss, stale_fallback)
	SearchCacheTotal *prometheus.CounterVec

	// ReasoningCallsTotal counts scheduled reasoning calls by stage and status.
	// Labels: stage (plan, judge, entail, analyst, skeptic, judge_debate),
	// status (success, error, throttle_retry)
	ReasoningCallsTotal *prometheus.CounterVec

	// VerdictsTotal counts fused final verdicts by label.
	VerdictsTotal *prometheus.CounterVec

	// PipelineDurationSeconds measures wall time per pipeline stage.
	// Labels: stage (ingest, plan, retrieve, temporal, entail, debate, total)
	PipelineDurationSeconds *prometheus.HistogramVec
}

// NewMetrics registers all verifier metrics on reg and returns them.
// Pass prometheus.DefaultRegisterer in production; tests should pass a
// fresh prometheus.NewRegistry to keep registrations isolated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SearchRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Outbound search provider requests by final status.",
		}, []string{"status"}),
		SearchRetriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "search",
			Name:      "retries_total",
			Help:      "Search attempts retried after 429/5xx or transport errors.",
		}),
		SearchCacheTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "search",
			Name:      "cache_total",
			Help:      "Search cache lookups by outcome.",
		}, []string{"outcome"}),
		ReasoningCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "reasoning",
			Name:      "calls_total",
			Help:      "Reasoning provider calls by stage and status.",
		}, []string{"stage", "status"}),
		VerdictsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "fusion",
			Name:      "verdicts_total",
			Help:      "Final fused verdicts by label.",
		}, []string{"label"}),
		PipelineDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent per pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"stage"}),
	}
}
