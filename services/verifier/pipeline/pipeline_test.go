// Copyright (C) 2025 Agentra AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentra-ai/factcheck/services/verifier/datatypes"
)

type fakeRetriever struct {
	items   []datatypes.EvidenceItem
	trace   datatypes.RetrievalTrace
	err     error
	queries []string
}

func (r *fakeRetriever) Retrieve(_ context.Context, queries []string, _, _ int) ([]datatypes.EvidenceItem, datatypes.RetrievalTrace, error) {
	r.queries = queries
	if r.err != nil {
		return nil, datatypes.RetrievalTrace{}, r.err
	}
	trace := r.trace
	trace.Queries = queries
	return r.items, trace, nil
}

type fakeReasoner struct {
	mu sync.Mutex

	plan    datatypes.Plan
	planErr error

	judge      datatypes.Verdict
	judgeCalls int

	entailVote  datatypes.Vote
	entailCalls int

	debateTrace datatypes.DebateTrace
	debateCalls int
}

func (f *fakeReasoner) Plan(context.Context, string) (datatypes.Plan, error) {
	return f.plan, f.planErr
}

func (f *fakeReasoner) JudgeSubclaim(context.Context, datatypes.Subclaim, []datatypes.EvidenceItem) (datatypes.Verdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.judgeCalls++
	return f.judge, nil
}

func (f *fakeReasoner) EntailSource(context.Context, datatypes.Subclaim, datatypes.EvidenceItem) (datatypes.Vote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entailCalls++
	return f.entailVote, nil
}

func (f *fakeReasoner) Debate(context.Context, []datatypes.Subclaim, []datatypes.EvidenceItem) (datatypes.Verdict, datatypes.DebateTrace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.debateCalls++
	return f.debateTrace.Judge, f.debateTrace, nil
}

type memSink struct {
	reports []*datatypes.Report
}

func (s *memSink) Put(report *datatypes.Report) (string, error) {
	s.reports = append(s.reports, report)
	return report.ID, nil
}

func evidencePool(n int) []datatypes.EvidenceItem {
	items := make([]datatypes.EvidenceItem, n)
	for i := range items {
		items[i] = datatypes.EvidenceItem{
			Title:   "T",
			Snippet: "S",
			URL:     "https://example.org/" + string(rune('a'+i)),
			Host:    "example.org",
			Score:   0.8,
		}
	}
	return items
}

func twoSubclaimPlan() datatypes.Plan {
	return datatypes.Plan{
		Subclaims: []datatypes.Subclaim{
			{ID: "C1", Text: "first subclaim"},
			{ID: "C2", Text: "second subclaim"},
		},
		Queries: []string{"q1", "q2"},
	}
}

func TestRunBudgetModePartialEval(t *testing.T) {
	reasoner := &fakeReasoner{
		plan:  twoSubclaimPlan(),
		judge: datatypes.Verdict{Label: datatypes.LabelTrue, Confidence: 0.9, Rationale: "Well supported."},
	}
	retriever := &fakeRetriever{items: evidencePool(3)}
	sink := &memSink{}

	fc, err := NewFactChecker(Options{
		Retriever:    retriever,
		Reasoner:     reasoner,
		Store:        sink,
		LowRPM:       true,
		MaxSubclaims: 1,
	})
	require.NoError(t, err)

	report, err := fc.Run(context.Background(), Input{Text: "  some   claim  text "})
	require.NoError(t, err)

	// Only the first of two subclaims was judged.
	assert.Equal(t, 1, reasoner.judgeCalls)
	require.Len(t, report.SubclaimResults, 1)
	assert.Equal(t, "C1", report.SubclaimResults[0].ID)
	assert.True(t, report.PartialEval)

	// Partial TRUE must not promote the whole claim; debate is off, so the
	// placeholder judge verdict stands.
	assert.Equal(t, datatypes.LabelUnverified, report.Verdict)
	assert.Equal(t, 0.55, report.Confidence)
	assert.Zero(t, reasoner.debateCalls)

	assert.Contains(t, report.Meta.ConsistencyNote, "first 1 of 2 subclaims")
	require.NotEmpty(t, report.ReasoningTrace)
	last := report.ReasoningTrace[len(report.ReasoningTrace)-1]
	assert.Contains(t, last.Note, "first 1 of 2 subclaims")

	// 1 planner + 1 judge, no debate.
	assert.Equal(t, 2, report.Meta.ModelCalls)
	assert.True(t, report.Meta.LowRPMMode)

	require.Len(t, sink.reports, 1)
	assert.Equal(t, report.ID, sink.reports[0].ID)
}

func TestRunFullModeTriangulation(t *testing.T) {
	reasoner := &fakeReasoner{
		plan: datatypes.Plan{
			Subclaims: []datatypes.Subclaim{{ID: "C1", Text: "only subclaim"}},
			Queries:   []string{"q1"},
		},
		entailVote: datatypes.Vote{Label: datatypes.VoteSupports, Confidence: 0.8, Mode: "entail"},
		debateTrace: datatypes.DebateTrace{
			Analyst: "a", Skeptic: "s",
			Judge: datatypes.Verdict{Label: datatypes.LabelUnverified, Confidence: 0.55},
		},
	}
	retriever := &fakeRetriever{items: evidencePool(2)}

	fc, err := NewFactChecker(Options{
		Retriever: retriever,
		Reasoner:  reasoner,
		LowRPM:    false,
		DebateOn:  true,
	})
	require.NoError(t, err)

	report, err := fc.Run(context.Background(), Input{Text: "claim"})
	require.NoError(t, err)

	assert.Equal(t, 2, reasoner.entailCalls, "one entailment per source")
	assert.Equal(t, 1, reasoner.debateCalls)
	assert.Zero(t, reasoner.judgeCalls, "full mode never uses the single-call judge")

	require.Len(t, report.SubclaimResults, 1)
	assert.Equal(t, datatypes.LabelTrue, report.SubclaimResults[0].Label)
	assert.Equal(t, datatypes.LabelTrue, report.Verdict, "all-TRUE rule promotes the claim")
	assert.False(t, report.PartialEval)

	require.Len(t, report.ReasoningTrace, 1)
	assert.Len(t, report.ReasoningTrace[0].Votes, 2)
	assert.Equal(t, "Triangulation: multiple sources SUPPORT.", report.ReasoningTrace[0].Rule)

	// 1 planner + 1 subclaim * 2 sources + 3 debate calls.
	assert.Equal(t, 6, report.Meta.ModelCalls)
	assert.Equal(t, "a", report.Debate.Analyst)
}

func TestRunEmptyEvidenceResolvesUnverified(t *testing.T) {
	reasoner := &fakeReasoner{
		plan: datatypes.Plan{
			Subclaims: []datatypes.Subclaim{{ID: "C1", Text: "claim"}},
			Queries:   []string{"q"},
		},
		judge: datatypes.Verdict{Label: datatypes.LabelTrue, Confidence: 0.9},
	}
	retriever := &fakeRetriever{items: nil}

	fc, err := NewFactChecker(Options{
		Retriever:    retriever,
		Reasoner:     reasoner,
		LowRPM:       true,
		MaxSubclaims: 1,
	})
	require.NoError(t, err)

	report, err := fc.Run(context.Background(), Input{Text: "claim"})
	require.NoError(t, err)

	assert.Zero(t, reasoner.judgeCalls, "no evidence means no judge call")
	require.Len(t, report.SubclaimResults, 1)
	assert.Equal(t, datatypes.LabelUnverified, report.SubclaimResults[0].Label)
	assert.Equal(t, 0.55, report.SubclaimResults[0].Confidence)
	assert.Equal(t, "Signals insufficient or mixed.", report.SubclaimResults[0].Why)
	assert.Equal(t, datatypes.LabelUnverified, report.Verdict)
}

func TestRunNoUsableText(t *testing.T) {
	fc, err := NewFactChecker(Options{
		Retriever: &fakeRetriever{},
		Reasoner:  &fakeReasoner{},
	})
	require.NoError(t, err)

	_, err = fc.Run(context.Background(), Input{})
	assert.ErrorIs(t, err, ErrNoUsableText)
}

type fixedFetcher struct{ text string }

func (f fixedFetcher) FetchText(context.Context, string) (string, error) { return f.text, nil }

func TestRunURLIngestion(t *testing.T) {
	reasoner := &fakeReasoner{
		plan: datatypes.Plan{
			Subclaims: []datatypes.Subclaim{{ID: "C1", Text: "from the page"}},
			Queries:   []string{"q"},
		},
		judge: datatypes.Verdict{Label: datatypes.LabelUnverified, Confidence: 0.55},
	}
	fc, err := NewFactChecker(Options{
		Retriever:     &fakeRetriever{items: evidencePool(1)},
		Reasoner:      reasoner,
		LowRPM:        true,
		MaxSubclaims:  1,
		Collaborators: Collaborators{TextFetcher: fixedFetcher{text: "article body text"}},
	})
	require.NoError(t, err)

	report, err := fc.Run(context.Background(), Input{URL: "https://example.org/article"})
	require.NoError(t, err)
	assert.Equal(t, "url", report.Meta.Source)
}

type fixedOCR struct {
	text    string
	heatmap string
}

func (o fixedOCR) ImageText(context.Context, string) (string, error) { return o.text, nil }
func (o fixedOCR) Heatmap(context.Context, string) (string, error)   { return o.heatmap, nil }

func TestRunImageIngestionAndHeatmap(t *testing.T) {
	reasoner := &fakeReasoner{
		plan: datatypes.Plan{
			Subclaims: []datatypes.Subclaim{{ID: "C1", Text: "ocr claim"}},
			Queries:   []string{"q"},
		},
		entailVote: datatypes.Vote{Label: datatypes.VoteSupports, Confidence: 0.9},
		debateTrace: datatypes.DebateTrace{
			Judge: datatypes.Verdict{Label: datatypes.LabelUnverified, Confidence: 0.55},
		},
	}
	fc, err := NewFactChecker(Options{
		Retriever:     &fakeRetriever{items: evidencePool(2)},
		Reasoner:      reasoner,
		DebateOn:      true,
		Collaborators: Collaborators{OCR: fixedOCR{text: "claim in image", heatmap: "/tmp/ela.png"}},
	})
	require.NoError(t, err)

	report, err := fc.Run(context.Background(), Input{ImagePath: "/tmp/in.png"})
	require.NoError(t, err)
	assert.Equal(t, "image", report.Meta.Source)
	assert.Equal(t, "/tmp/ela.png", report.HeatmapPath)

	require.NotEmpty(t, report.ReasoningTrace)
	assert.Contains(t, report.ReasoningTrace[0].FusionNotes, "Image ELA heatmap generated")
}

func TestRunRetrieveErrorPropagates(t *testing.T) {
	boom := errors.New("search budget exhausted")
	fc, err := NewFactChecker(Options{
		Retriever: &fakeRetriever{err: boom},
		Reasoner: &fakeReasoner{plan: datatypes.Plan{
			Subclaims: []datatypes.Subclaim{{ID: "C1", Text: "c"}},
			Queries:   []string{"q"},
		}},
	})
	require.NoError(t, err)

	_, err = fc.Run(context.Background(), Input{Text: "claim"})
	assert.ErrorIs(t, err, boom)
}

func TestRunQueriesFlowToRetriever(t *testing.T) {
	retriever := &fakeRetriever{items: evidencePool(1)}
	reasoner := &fakeReasoner{
		plan: datatypes.Plan{
			Subclaims: []datatypes.Subclaim{{ID: "C1", Text: "c"}},
			Queries:   []string{"alpha", "beta"},
		},
		judge: datatypes.Verdict{Label: datatypes.LabelUnverified, Confidence: 0.55},
	}
	fc, err := NewFactChecker(Options{
		Retriever:    retriever,
		Reasoner:     reasoner,
		LowRPM:       true,
		MaxSubclaims: 1,
	})
	require.NoError(t, err)

	report, err := fc.Run(context.Background(), Input{Text: "claim"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, retriever.queries)
	assert.Equal(t, []string{"alpha", "beta"}, report.QueriesUsed)
}

func TestNewFactCheckerValidation(t *testing.T) {
	_, err := NewFactChecker(Options{Reasoner: &fakeReasoner{}})
	assert.Error(t, err)
	_, err = NewFactChecker(Options{Retriever: &fakeRetriever{}})
	assert.Error(t, err)
}
