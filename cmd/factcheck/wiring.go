// Copyright (C) 2025 Agentra AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/agentra-ai/factcheck/pkg/logging"
	"github.com/agentra-ai/factcheck/services/llm"
	"github.com/agentra-ai/factcheck/services/verifier/config"
	"github.com/agentra-ai/factcheck/services/verifier/evidence"
	"github.com/agentra-ai/factcheck/services/verifier/observability"
	"github.com/agentra-ai/factcheck/services/verifier/pipeline"
	"github.com/agentra-ai/factcheck/services/verifier/reasoning"
	"github.com/agentra-ai/factcheck/services/verifier/search"
)

// buildChecker assembles the full pipeline from configuration: search
// gateway, evidence retriever, model client, RPM scheduler, reasoning
// engine. sink may be nil to skip report persistence.
func buildChecker(cfg config.Config, log *logging.Logger, metrics *observability.Metrics, sink pipeline.ReportSink) (*pipeline.FactChecker, error) {
	searchClient := search.NewClient(search.Options{
		APIKey:      cfg.BraveAPIKey,
		Whitelist:   cfg.WhitelistDomains,
		RPS:         cfg.BraveRPS,
		Burst:       cfg.BraveBurst,
		MaxRetries:  cfg.BraveMaxRetries,
		BackoffBase: cfg.BraveBackoffBase,
		CacheTTL:    cfg.BraveCacheTTL,
		Logger:      log.Logger,
		Metrics:     metrics,
	})
	retriever := evidence.NewRetriever(searchClient, log.Logger)

	model, err := llm.NewOpenAIClient()
	if err != nil {
		return nil, fmt.Errorf("init model client: %w", err)
	}

	scheduler := reasoning.NewScheduler(reasoning.SchedulerConfig{
		RPM:         cfg.OpenAIRPM,
		Throttled:   cfg.LowRPMMode,
		MaxParallel: int64(cfg.MaxParallel),
		Logger:      log.Logger,
		Metrics:     metrics,
	})
	engine := reasoning.NewEngine(model, scheduler, log)

	return pipeline.NewFactChecker(pipeline.Options{
		Retriever:      retriever,
		Reasoner:       engine,
		Store:          sink,
		LowRPM:         cfg.LowRPMMode,
		MaxSubclaims:   cfg.MaxSubclaims,
		DebateOn:       cfg.DebateEnabled(),
		RPMIntervalSec: int(scheduler.Interval().Seconds()),
		Model:          model.Model(),
		Logger:         log.Logger,
		Metrics:        metrics,
	})
}
