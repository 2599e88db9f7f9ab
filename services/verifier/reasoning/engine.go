// Copyright (C) 2025 Agentra AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reasoning

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentra-ai/factcheck/pkg/jsonx"
	"github.com/agentra-ai/factcheck/pkg/logging"
	"github.com/agentra-ai/factcheck/services/llm"
	"github.com/agentra-ai/factcheck/services/verifier/datatypes"
)

const claimExcerptLimit = 300

// Engine runs every model-backed reasoning stage through a shared Scheduler,
// so the per-minute call budget covers planning, entailment, judging, and
// debate alike.
type Engine struct {
	client llm.Client
	sched  *Scheduler
	logger *logging.Logger
}

// NewEngine builds an Engine. A nil scheduler gets a permissive default and a
// nil logger falls back to the package default.
func NewEngine(client llm.Client, sched *Scheduler, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	if sched == nil {
		sched = NewScheduler(SchedulerConfig{Throttled: false, Logger: logger.Logger})
	}
	return &Engine{client: client, sched: sched, logger: logger}
}

// Scheduler exposes the engine's call gate so callers can reuse it for
// collaborator stages that also consume the model budget.
func (e *Engine) Scheduler() *Scheduler { return e.sched }

// Plan asks the model to decompose the content into subclaims and search
// queries. A malformed model reply degrades to a single-subclaim plan built
// from the content itself; scheduler and transport errors still fail.
func (e *Engine) Plan(ctx context.Context, content string) (datatypes.Plan, error) {
	prompt := fmt.Sprintf(plannerPromptTemplate, content)
	raw, err := e.generate(ctx, "plan", prompt, tempParams(0.2))
	if err != nil {
		return datatypes.Plan{}, err
	}

	var plan datatypes.Plan
	if perr := jsonx.Extract(raw, &plan); perr != nil || len(plan.Subclaims) == 0 {
		e.logger.Warn("planner output unusable, falling back to whole-claim plan",
			"parse_error", perr)
		return fallbackPlan(content), nil
	}
	for i := range plan.Subclaims {
		if plan.Subclaims[i].ID == "" {
			plan.Subclaims[i].ID = fmt.Sprintf("C%d", i+1)
		}
	}
	if len(plan.Queries) == 0 {
		plan.Queries = []string{truncate(content, 120)}
	}
	return plan, nil
}

// JudgeSubclaim issues a single-call verdict for one subclaim over the whole
// evidence pool. Parse failures degrade to UNVERIFIED at 0.5.
func (e *Engine) JudgeSubclaim(ctx context.Context, subclaim datatypes.Subclaim, evidence []datatypes.EvidenceItem) (datatypes.Verdict, error) {
	prompt := fmt.Sprintf(judgePromptTemplate, subclaim.Text, judgeSourcesBlock(evidence))
	raw, err := e.generate(ctx, "judge", prompt, tempParams(0.1))
	if err != nil {
		return datatypes.Verdict{}, err
	}
	return parseVerdict(e.logger, "judge", raw, datatypes.Verdict{
		Label:      datatypes.LabelUnverified,
		Confidence: 0.5,
		Rationale:  "Insufficient or ambiguous evidence.",
	}), nil
}

// EntailSource classifies one source against one subclaim as
// SUPPORTS, REFUTES, or NEUTRAL. Parse failures yield a NEUTRAL vote rather
// than an error so one bad reply never sinks a triangulation round.
func (e *Engine) EntailSource(ctx context.Context, subclaim datatypes.Subclaim, source datatypes.EvidenceItem) (datatypes.Vote, error) {
	prompt := fmt.Sprintf(entailPromptTemplate,
		subclaim.Text, source.Title, source.Snippet, source.URL,
		source.Credibility, source.Freshness)
	raw, err := e.generate(ctx, "entail", prompt, tempParams(0.0))
	if err != nil {
		return datatypes.Vote{}, err
	}

	var vote datatypes.Vote
	if perr := jsonx.Extract(raw, &vote); perr != nil {
		e.logger.Warn("entailment output unusable, recording neutral vote",
			"url", source.URL, "parse_error", perr)
		return datatypes.Vote{
			Label:      datatypes.VoteNeutral,
			Confidence: 0.5,
			Rationale:  "Model output unparseable.",
			Mode:       "entail",
		}, nil
	}
	vote.Label = normalizeVoteLabel(vote.Label)
	vote.Confidence = clamp01(vote.Confidence)
	vote.Mode = "entail"
	return vote, nil
}

// Debate runs the three-role analyst, skeptic, judge exchange over the full
// claim set and returns the judge's verdict plus the exchanged notes.
func (e *Engine) Debate(ctx context.Context, subclaims []datatypes.Subclaim, evidence []datatypes.EvidenceItem) (datatypes.Verdict, datatypes.DebateTrace, error) {
	claims := claimsBlock(subclaims)
	pool := debateEvidenceBlock(evidence)
	trace := datatypes.DebateTrace{}

	analyst, err := e.generate(ctx, "debate_analyst",
		fmt.Sprintf(analystPromptTemplate, claims, pool), tempParams(0.4))
	if err != nil {
		return datatypes.Verdict{}, trace, err
	}
	trace.Analyst = analyst

	skeptic, err := e.generate(ctx, "debate_skeptic",
		fmt.Sprintf(skepticPromptTemplate, claims, pool), tempParams(0.4))
	if err != nil {
		return datatypes.Verdict{}, trace, err
	}
	trace.Skeptic = skeptic

	judgeRaw, err := e.generate(ctx, "debate_judge",
		fmt.Sprintf(debateJudgePromptTemplate, analyst, skeptic), tempParams(0.1))
	if err != nil {
		return datatypes.Verdict{}, trace, err
	}

	verdict := parseVerdict(e.logger, "debate_judge", judgeRaw, datatypes.Verdict{
		Label:      datatypes.LabelUnverified,
		Confidence: 0.55,
		Rationale:  "Debate JSON parse failed.",
	})
	trace.Judge = verdict
	return verdict, trace, nil
}

// tempParams builds generation params carrying only a sampling temperature.
// The zero value is still transmitted so deterministic stages stay pinned.
func tempParams(t float32) llm.GenerationParams {
	return llm.GenerationParams{Temperature: &t}
}

func (e *Engine) generate(ctx context.Context, stage, prompt string, params llm.GenerationParams) (string, error) {
	return e.sched.Do(ctx, stage, func(ctx context.Context) (string, error) {
		return e.client.Generate(ctx, prompt, params)
	})
}

func fallbackPlan(content string) datatypes.Plan {
	excerpt := truncate(content, claimExcerptLimit)
	return datatypes.Plan{
		Subclaims: []datatypes.Subclaim{{ID: "C1", Text: excerpt}},
		Queries:   []string{truncate(content, 120)},
	}
}

// parseVerdict extracts a Verdict from raw model output, normalizing the
// label and clamping confidence. The supplied fallback covers unparseable
// replies.
func parseVerdict(logger *logging.Logger, stage, raw string, fallback datatypes.Verdict) datatypes.Verdict {
	var v datatypes.Verdict
	if err := jsonx.Extract(raw, &v); err != nil || v.Label == "" {
		logger.Warn("verdict output unusable, applying fallback",
			"stage", stage, "parse_error", err)
		return fallback
	}
	v.Label = normalizeVerdictLabel(v.Label)
	v.Confidence = clamp01(v.Confidence)
	if v.Rationale == "" {
		v.Rationale = fallback.Rationale
	}
	return v
}

func normalizeVerdictLabel(label string) string {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case datatypes.LabelTrue:
		return datatypes.LabelTrue
	case datatypes.LabelFake, "FALSE":
		return datatypes.LabelFake
	default:
		return datatypes.LabelUnverified
	}
}

func normalizeVoteLabel(label string) string {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case datatypes.VoteSupports:
		return datatypes.VoteSupports
	case datatypes.VoteRefutes:
		return datatypes.VoteRefutes
	default:
		return datatypes.VoteNeutral
	}
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

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
