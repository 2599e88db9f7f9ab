// Copyright (C) 2025 Agentra AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline orchestrates one verification run end to end: ingest,
// plan, retrieve, temporal checks, evidence reasoning, adversarial debate,
// fusion, and report assembly.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentra-ai/factcheck/services/verifier/datatypes"
	"github.com/agentra-ai/factcheck/services/verifier/fusion"
	"github.com/agentra-ai/factcheck/services/verifier/observability"
	"github.com/agentra-ai/factcheck/services/verifier/temporal"
)

// ErrNoUsableText is returned when no input modality yields text to verify.
var ErrNoUsableText = errors.New("no usable text found, provide text, url, image, or audio")

const (
	perQueryResults = 4
	rankTopK        = 10
	entailTopK      = 8
	maxKeyframes    = 5
	inputLogLimit   = 400
)

// Input carries at most one primary text source plus optional media. The
// first non-empty modality in the order text, URL, audio, image becomes the
// claim text; video only contributes keyframes.
type Input struct {
	Text      string
	URL       string
	ImagePath string
	AudioPath string
	VideoPath string
}

// EvidenceRetriever runs the search queries and returns ranked evidence
// plus the retrieval trace.
type EvidenceRetriever interface {
	Retrieve(ctx context.Context, queries []string, perQuery, topK int) ([]datatypes.EvidenceItem, datatypes.RetrievalTrace, error)
}

// Reasoner is the model-backed reasoning surface the pipeline consumes.
type Reasoner interface {
	Plan(ctx context.Context, content string) (datatypes.Plan, error)
	JudgeSubclaim(ctx context.Context, subclaim datatypes.Subclaim, evidence []datatypes.EvidenceItem) (datatypes.Verdict, error)
	EntailSource(ctx context.Context, subclaim datatypes.Subclaim, source datatypes.EvidenceItem) (datatypes.Vote, error)
	Debate(ctx context.Context, subclaims []datatypes.Subclaim, evidence []datatypes.EvidenceItem) (datatypes.Verdict, datatypes.DebateTrace, error)
}

// ReportSink persists finished reports.
type ReportSink interface {
	Put(report *datatypes.Report) (string, error)
}

// Options wires a FactChecker.
type Options struct {
	Retriever     EvidenceRetriever
	Reasoner      Reasoner
	Store         ReportSink // nil skips persistence
	Collaborators Collaborators

	// LowRPM selects budget mode: one judge call per subclaim, capped at
	// MaxSubclaims, instead of per-source entailment.
	LowRPM         bool
	MaxSubclaims   int
	DebateOn       bool
	RPMIntervalSec int

	// Model names the reasoning model in report metadata.
	Model string

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  trace.Tracer
}

// FactChecker runs verification pipelines. Safe for concurrent use as long
// as its collaborators are.
type FactChecker struct {
	opts Options

	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewFactChecker builds a FactChecker from opts. Retriever and Reasoner
// are required; everything else has a workable default.
func NewFactChecker(opts Options) (*FactChecker, error) {
	if opts.Retriever == nil {
		return nil, errors.New("pipeline: Retriever is required")
	}
	if opts.Reasoner == nil {
		return nil, errors.New("pipeline: Reasoner is required")
	}
	if opts.MaxSubclaims < 1 {
		opts.MaxSubclaims = 1
	}
	if opts.Model == "" {
		opts.Model = "unknown"
	}
	opts.Collaborators = opts.Collaborators.withDefaults()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("factcheck/pipeline")
	}
	return &FactChecker{opts: opts, logger: logger, tracer: tracer, now: time.Now}, nil
}

// Run verifies one input and returns the full report.
func (f *FactChecker) Run(ctx context.Context, in Input) (*datatypes.Report, error) {
	ctx, span := f.tracer.Start(ctx, "pipeline.run")
	defer span.End()

	start := f.now()
	timings := map[string]int{}

	// 1) Ingest.
	tIngest := f.now()
	text, source, err := f.ingest(ctx, in)
	timings["ingest_ms"] = f.sinceMs(tIngest)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("input.source", source))
	f.logger.Info("pipeline input resolved",
		"source", source, "text", truncateForLog(text, inputLogLimit))

	// Optional media passes feed visual notes into reasoning rationales.
	var visualNotes []string

	tVideo := f.now()
	keyframes := f.extractKeyframes(ctx, in.VideoPath)
	if len(keyframes) > 0 {
		visualNotes = append(visualNotes, fmt.Sprintf("%d keyframes extracted", len(keyframes)))
	}
	timings["video_ms"] = f.sinceMs(tVideo)

	tImage := f.now()
	heatmapPath := f.renderHeatmap(ctx, in.ImagePath)
	if heatmapPath != "" {
		visualNotes = append(visualNotes, "Image ELA heatmap generated")
	}
	timings["image_ms"] = f.sinceMs(tImage)

	// 2) Plan.
	tPlan := f.now()
	plan, err := f.plan(ctx, text)
	timings["plan_ms"] = f.sinceMs(tPlan)
	if err != nil {
		return nil, err
	}
	f.logger.Info("plan ready", "subclaims", len(plan.Subclaims), "queries", len(plan.Queries))

	// 3) Retrieval.
	tRetrieve := f.now()
	evidenceRanked, retrievalTrace, err := f.retrieve(ctx, plan.Queries)
	timings["retrieve_ms"] = f.sinceMs(tRetrieve)
	if err != nil {
		return nil, fmt.Errorf("retrieve evidence: %w", err)
	}
	f.logger.Info("evidence ranked", "items", len(evidenceRanked))

	// 3.5) Temporal checks.
	tTemporal := f.now()
	temporalChecks := temporal.Checks(text, evidenceRanked)
	timings["temporal_ms"] = f.sinceMs(tTemporal)

	// 4) Evidence reasoning.
	tEntail := f.now()
	subResults, reasoningTrace, err := f.reason(ctx, plan.Subclaims, evidenceRanked, visualNotes)
	timings["entail_ms"] = f.sinceMs(tEntail)
	if err != nil {
		return nil, err
	}

	// 5) Adversarial self-check.
	tDebate := f.now()
	debate, err := f.debate(ctx, plan.Subclaims, evidenceRanked)
	timings["debate_ms"] = f.sinceMs(tDebate)
	if err != nil {
		return nil, err
	}

	// 6) Fusion.
	final, corrections := fusion.Combine(subResults, len(plan.Subclaims), debate.Judge, temporalChecks)
	partialEval := len(subResults) < len(plan.Subclaims)

	report := &datatypes.Report{
		ID:                   uuid.NewString(),
		Verdict:              final.Label,
		Confidence:           final.Confidence,
		PartialEval:          partialEval,
		SubclaimResults:      subResults,
		Evidence:             evidenceRanked,
		TemporalChecks:       temporalChecks,
		SuggestedCorrections: corrections,
		RetrievalTrace:       retrievalTrace,
		ReasoningTrace:       reasoningTrace,
		Debate:               debate,
		Keyframes:            keyframes,
		HeatmapPath:          heatmapPath,
		QueriesUsed:          retrievalTrace.Queries,
	}

	// 7) Report artifacts, metadata, persistence.
	tReport := f.now()
	f.renderArtifacts(ctx, report, plan.Subclaims)
	timings["report_ms"] = f.sinceMs(tReport)
	timings["total_ms"] = f.sinceMs(start)

	report.Meta = f.buildMeta(source, timings, plan.Subclaims, evidenceRanked, subResults)
	f.persist(report)

	span.SetAttributes(
		attribute.String("verdict.label", report.Verdict),
		attribute.Float64("verdict.confidence", report.Confidence),
	)
	f.observeStages(timings)
	if f.opts.Metrics != nil {
		f.opts.Metrics.VerdictsTotal.WithLabelValues(report.Verdict).Inc()
	}
	f.logger.Info("verification complete",
		"report_id", report.ID,
		"verdict", report.Verdict,
		"confidence", report.Confidence,
		"partial_eval", report.PartialEval,
		"total_ms", timings["total_ms"])
	return report, nil
}

// ingest resolves the claim text from the first usable modality.
func (f *FactChecker) ingest(ctx context.Context, in Input) (text, source string, err error) {
	text = collapseWhitespace(in.Text)
	source = "text"

	if text == "" && in.URL != "" {
		source = "url"
		fetched, ferr := f.opts.Collaborators.TextFetcher.FetchText(ctx, in.URL)
		if ferr != nil {
			f.logger.Warn("URL fetch failed", "url", in.URL, "error", ferr)
		} else {
			text = collapseWhitespace(fetched)
		}
	}
	if text == "" && in.AudioPath != "" {
		source = "audio"
		transcript, terr := f.opts.Collaborators.Transcriber.Transcribe(ctx, in.AudioPath)
		if terr != nil {
			f.logger.Warn("transcription failed", "path", in.AudioPath, "error", terr)
		} else {
			text = collapseWhitespace(transcript)
		}
	}
	if text == "" && in.ImagePath != "" {
		source = "image"
		ocrText, oerr := f.opts.Collaborators.OCR.ImageText(ctx, in.ImagePath)
		if oerr != nil {
			f.logger.Warn("OCR failed", "path", in.ImagePath, "error", oerr)
		} else {
			text = collapseWhitespace(ocrText)
		}
	}
	if text == "" {
		return "", "", ErrNoUsableText
	}
	return text, source, nil
}

func (f *FactChecker) extractKeyframes(ctx context.Context, videoPath string) []string {
	if videoPath == "" {
		return nil
	}
	frames, err := f.opts.Collaborators.Keyframes.Keyframes(ctx, videoPath, maxKeyframes)
	if err != nil {
		f.logger.Warn("keyframe extraction failed", "path", videoPath, "error", err)
		return nil
	}
	return frames
}

func (f *FactChecker) renderHeatmap(ctx context.Context, imagePath string) string {
	if imagePath == "" {
		return ""
	}
	path, err := f.opts.Collaborators.OCR.Heatmap(ctx, imagePath)
	if err != nil {
		f.logger.Warn("heatmap generation failed", "path", imagePath, "error", err)
		return ""
	}
	return path
}

func (f *FactChecker) plan(ctx context.Context, text string) (datatypes.Plan, error) {
	ctx, span := f.tracer.Start(ctx, "pipeline.plan")
	defer span.End()
	plan, err := f.opts.Reasoner.Plan(ctx, text)
	if err != nil {
		return datatypes.Plan{}, fmt.Errorf("plan subclaims: %w", err)
	}
	return plan, nil
}

func (f *FactChecker) retrieve(ctx context.Context, queries []string) ([]datatypes.EvidenceItem, datatypes.RetrievalTrace, error) {
	ctx, span := f.tracer.Start(ctx, "pipeline.retrieve")
	defer span.End()
	return f.opts.Retriever.Retrieve(ctx, queries, perQueryResults, rankTopK)
}

// reason evaluates subclaims against the ranked evidence. Budget mode runs
// one judge call per subclaim, capped at MaxSubclaims; full mode runs
// per-source entailment with triangulation.
func (f *FactChecker) reason(ctx context.Context, subclaims []datatypes.Subclaim, evidence []datatypes.EvidenceItem, visualNotes []string) ([]datatypes.SubclaimResult, []datatypes.ReasoningStep, error) {
	ctx, span := f.tracer.Start(ctx, "pipeline.reason")
	defer span.End()

	if f.opts.LowRPM {
		return f.reasonBudget(ctx, subclaims, evidence)
	}
	return f.reasonFull(ctx, subclaims, evidence, visualNotes)
}

func (f *FactChecker) reasonBudget(ctx context.Context, subclaims []datatypes.Subclaim, evidence []datatypes.EvidenceItem) ([]datatypes.SubclaimResult, []datatypes.ReasoningStep, error) {
	limited := subclaims
	if len(limited) > f.opts.MaxSubclaims {
		limited = limited[:f.opts.MaxSubclaims]
	}

	var results []datatypes.SubclaimResult
	var steps []datatypes.ReasoningStep
	for _, sc := range limited {
		verdict, err := f.judgeOne(ctx, sc, evidence)
		if err != nil {
			return nil, nil, fmt.Errorf("judge subclaim %s: %w", sc.ID, err)
		}
		results = append(results, datatypes.SubclaimResult{
			ID:         sc.ID,
			Text:       sc.Text,
			Label:      verdict.Label,
			Confidence: verdict.Confidence,
			Why:        verdict.Rationale,
		})
		steps = append(steps, datatypes.ReasoningStep{
			SubclaimID: sc.ID,
			Votes: []datatypes.Vote{{
				Label:      verdict.Label,
				Confidence: verdict.Confidence,
				Rationale:  verdict.Rationale,
				Mode:       "low-rpm-single",
			}},
			FusionNotes: "Low-RPM mode: skipped per-source entailment.",
			Rule:        "Single-call judge due to RPM limits.",
			Final:       verdict,
		})
	}

	if len(subclaims) > len(limited) {
		steps = append(steps, datatypes.ReasoningStep{
			Note: fmt.Sprintf("Low-RPM mode verified only the first %d of %d subclaims.",
				len(limited), len(subclaims)),
		})
	}
	return results, steps, nil
}

// judgeOne short-circuits an empty evidence pool: without sources there is
// nothing to judge, so the subclaim resolves UNVERIFIED without spending a
// model call.
func (f *FactChecker) judgeOne(ctx context.Context, sc datatypes.Subclaim, evidence []datatypes.EvidenceItem) (datatypes.Verdict, error) {
	if len(evidence) == 0 {
		return datatypes.Verdict{
			Label:      datatypes.LabelUnverified,
			Confidence: 0.55,
			Rationale:  "Signals insufficient or mixed.",
		}, nil
	}
	return f.opts.Reasoner.JudgeSubclaim(ctx, sc, evidence)
}

func (f *FactChecker) reasonFull(ctx context.Context, subclaims []datatypes.Subclaim, evidence []datatypes.EvidenceItem, visualNotes []string) ([]datatypes.SubclaimResult, []datatypes.ReasoningStep, error) {
	top := evidence
	if len(top) > entailTopK {
		top = top[:entailTopK]
	}

	var results []datatypes.SubclaimResult
	var steps []datatypes.ReasoningStep
	for _, sc := range subclaims {
		votes := f.entailAll(ctx, sc, top)
		verdict, rule := fusion.Triangulate(votes, visualNotes)

		results = append(results, datatypes.SubclaimResult{
			ID:         sc.ID,
			Text:       sc.Text,
			Label:      verdict.Label,
			Confidence: verdict.Confidence,
			Why:        verdict.Rationale,
		})
		steps = append(steps, datatypes.ReasoningStep{
			SubclaimID:  sc.ID,
			Votes:       votes,
			FusionNotes: fusion.VisualNote(visualNotes),
			Rule:        rule,
			Final:       verdict,
		})
	}
	return results, steps, nil
}

// entailAll fans per-source entailment out concurrently. A failed call
// degrades to a NEUTRAL vote so one bad source never sinks the subclaim.
func (f *FactChecker) entailAll(ctx context.Context, sc datatypes.Subclaim, sources []datatypes.EvidenceItem) []datatypes.Vote {
	votes := make([]datatypes.Vote, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src datatypes.EvidenceItem) {
			defer wg.Done()
			vote, err := f.opts.Reasoner.EntailSource(ctx, sc, src)
			if err != nil {
				f.logger.Warn("entailment call failed", "subclaim", sc.ID, "url", src.URL, "error", err)
				vote = datatypes.Vote{
					Label:      datatypes.VoteNeutral,
					Confidence: 0.5,
					Rationale:  "error",
					Mode:       "entail",
				}
			}
			votes[i] = vote
		}(i, src)
	}
	wg.Wait()
	return votes
}

func (f *FactChecker) debate(ctx context.Context, subclaims []datatypes.Subclaim, evidence []datatypes.EvidenceItem) (datatypes.DebateTrace, error) {
	if !f.opts.DebateOn {
		return datatypes.DebateTrace{
			Judge: datatypes.Verdict{
				Label:      datatypes.LabelUnverified,
				Confidence: 0.55,
				Rationale:  "Debate disabled.",
			},
		}, nil
	}

	ctx, span := f.tracer.Start(ctx, "pipeline.debate")
	defer span.End()
	_, dt, err := f.opts.Reasoner.Debate(ctx, subclaims, evidence)
	if err != nil {
		return datatypes.DebateTrace{}, fmt.Errorf("adversarial debate: %w", err)
	}
	return dt, nil
}

func (f *FactChecker) renderArtifacts(ctx context.Context, report *datatypes.Report, subclaims []datatypes.Subclaim) {
	claim := "Claim"
	if len(subclaims) > 0 && subclaims[0].Text != "" {
		claim = subclaims[0].Text
	}

	card, err := f.opts.Collaborators.Renderer.ShareCard(ctx, report.Verdict, report.Confidence, claim)
	if err != nil {
		f.logger.Warn("share card rendering failed", "error", err)
	} else {
		report.ShareCard = card
	}

	pdf, err := f.opts.Collaborators.Renderer.PDFReport(ctx, report)
	if err != nil {
		f.logger.Warn("PDF rendering failed", "error", err)
	} else {
		report.PDFReport = pdf
	}
}

func (f *FactChecker) buildMeta(source string, timings map[string]int, subclaims []datatypes.Subclaim, evidence []datatypes.EvidenceItem, subResults []datatypes.SubclaimResult) datatypes.ReportMeta {
	domains := map[string]int{}
	for _, ev := range evidence {
		if ev.Host != "" {
			domains[ev.Host]++
		}
	}

	verified := len(subResults)
	var modelCalls int
	if f.opts.LowRPM {
		// 1 planner + one judge per verified subclaim + optional debate bundle.
		modelCalls = 1 + verified
		if f.opts.DebateOn {
			modelCalls++
		}
	} else {
		// 1 planner + per-source entailments + debate (analyst, skeptic, judge).
		perSub := min(entailTopK, len(evidence))
		modelCalls = 1 + len(subclaims)*perSub + 3
	}

	meta := datatypes.ReportMeta{
		Source:          source,
		Model:           f.opts.Model,
		ModelCalls:      modelCalls,
		TimingsMs:       timings,
		EvidenceDomains: domains,
		SubclaimsCount:  len(subclaims),
		EvidenceCount:   len(evidence),
		LowRPMMode:      f.opts.LowRPM,
		RPMIntervalSec:  f.opts.RPMIntervalSec,
		DebateOn:        f.opts.DebateOn,
	}
	if verified < len(subclaims) {
		meta.ConsistencyNote = fmt.Sprintf(
			"Low-RPM mode verified only the first %d of %d subclaims.", verified, len(subclaims))
	}
	return meta
}

func (f *FactChecker) persist(report *datatypes.Report) {
	if f.opts.Store == nil {
		return
	}
	if _, err := f.opts.Store.Put(report); err != nil {
		f.logger.Error("report persistence failed", "report_id", report.ID, "error", err)
	}
}

func (f *FactChecker) observeStages(timings map[string]int) {
	if f.opts.Metrics == nil {
		return
	}
	for stage, ms := range timings {
		f.opts.Metrics.PipelineDurationSeconds.WithLabelValues(stage).Observe(float64(ms) / 1000)
	}
}

func (f *FactChecker) sinceMs(t time.Time) int {
	return int(f.now().Sub(t).Milliseconds())
}

func truncateForLog(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
