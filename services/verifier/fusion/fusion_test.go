// Copyright (C) 2025 Agentra AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentra-ai/factcheck/services/verifier/datatypes"
)

func vote(label string, conf float64) datatypes.Vote {
	return datatypes.Vote{Label: label, Confidence: conf}
}

func TestTriangulateSupports(t *testing.T) {
	v, rule := Triangulate([]datatypes.Vote{
		vote(datatypes.VoteSupports, 0.8),
		vote(datatypes.VoteSupports, 0.7),
		vote(datatypes.VoteNeutral, 0.9),
	}, nil)
	assert.Equal(t, datatypes.LabelTrue, v.Label)
	assert.Equal(t, supportRule, rule)
	// 0.6 + 0.2*2 + 0.2*0.75 = 1.15, capped.
	assert.Equal(t, 0.95, v.Confidence)
}

func TestTriangulateRefutes(t *testing.T) {
	v, rule := Triangulate([]datatypes.Vote{
		vote(datatypes.VoteRefutes, 0.7),
		vote(datatypes.VoteRefutes, 0.66),
	}, nil)
	assert.Equal(t, datatypes.LabelFake, v.Label)
	assert.Equal(t, refuteRule, rule)
}

func TestTriangulateSingleVoteIsNotEnough(t *testing.T) {
	v, rule := Triangulate([]datatypes.Vote{vote(datatypes.VoteSupports, 0.99)}, nil)
	assert.Equal(t, datatypes.LabelUnverified, v.Label)
	assert.Equal(t, 0.55, v.Confidence)
	assert.Equal(t, insufficientRule, rule)
}

func TestTriangulateWeakAgreementIsNotEnough(t *testing.T) {
	v, _ := Triangulate([]datatypes.Vote{
		vote(datatypes.VoteSupports, 0.6),
		vote(datatypes.VoteSupports, 0.6),
	}, nil)
	assert.Equal(t, datatypes.LabelUnverified, v.Label)
}

func TestTriangulateMixedSignals(t *testing.T) {
	v, _ := Triangulate([]datatypes.Vote{
		vote(datatypes.VoteSupports, 0.9),
		vote(datatypes.VoteRefutes, 0.9),
	}, nil)
	assert.Equal(t, datatypes.LabelUnverified, v.Label)
}

func TestTriangulateVisualNotesInRationale(t *testing.T) {
	v, _ := Triangulate([]datatypes.Vote{
		vote(datatypes.VoteSupports, 0.8),
		vote(datatypes.VoteSupports, 0.8),
	}, []string{"n1", "n2", "n3", "n4"})
	assert.Contains(t, v.Rationale, supportRule)
	assert.Contains(t, v.Rationale, "n1 | n2 | n3")
	assert.NotContains(t, v.Rationale, "n4", "at most three notes are folded in")
}

func TestVisualNoteEmpty(t *testing.T) {
	assert.Empty(t, VisualNote(nil))
}

func sub(label string, conf float64) datatypes.SubclaimResult {
	return datatypes.SubclaimResult{Label: label, Confidence: conf}
}

func TestCombineAllTrue(t *testing.T) {
	judge := datatypes.Verdict{Label: datatypes.LabelUnverified, Confidence: 0.55}
	v, _ := Combine([]datatypes.SubclaimResult{
		sub(datatypes.LabelTrue, 0.9),
		sub(datatypes.LabelTrue, 0.8),
	}, 2, judge, nil)
	assert.Equal(t, datatypes.LabelTrue, v.Label)
	assert.Equal(t, 0.85, v.Confidence)
}

func TestCombineAllTrueCapped(t *testing.T) {
	v, _ := Combine([]datatypes.SubclaimResult{
		sub(datatypes.LabelTrue, 0.99),
		sub(datatypes.LabelTrue, 0.99),
	}, 2, datatypes.Verdict{}, nil)
	assert.Equal(t, 0.95, v.Confidence)
}

func TestCombinePartialEvalDefersToJudge(t *testing.T) {
	judge := datatypes.Verdict{Label: datatypes.LabelUnverified, Confidence: 0.55, Rationale: "Judge view."}
	// Two planned subclaims, only one evaluated: the TRUE rule must not fire.
	v, _ := Combine([]datatypes.SubclaimResult{sub(datatypes.LabelTrue, 0.9)}, 2, judge, nil)
	assert.Equal(t, datatypes.LabelUnverified, v.Label)
	assert.Equal(t, 0.55, v.Confidence)
}

func TestCombineStrongFakeWins(t *testing.T) {
	judge := datatypes.Verdict{Label: datatypes.LabelTrue, Confidence: 0.9}
	v, _ := Combine([]datatypes.SubclaimResult{
		sub(datatypes.LabelTrue, 0.9),
		sub(datatypes.LabelFake, 0.8),
		sub(datatypes.LabelFake, 0.75),
	}, 3, judge, nil)
	assert.Equal(t, datatypes.LabelFake, v.Label)
	assert.Equal(t, 0.8, v.Confidence, "highest qualifying FAKE confidence wins")
}

func TestCombineStrongFakeAppliesUnderPartialEval(t *testing.T) {
	v, _ := Combine([]datatypes.SubclaimResult{sub(datatypes.LabelFake, 0.85)}, 3,
		datatypes.Verdict{Label: datatypes.LabelUnverified, Confidence: 0.55}, nil)
	assert.Equal(t, datatypes.LabelFake, v.Label)
}

func TestCombineWeakFakeDefersToJudge(t *testing.T) {
	judge := datatypes.Verdict{Label: datatypes.LabelUnverified, Confidence: 0.6, Rationale: "Mixed."}
	v, _ := Combine([]datatypes.SubclaimResult{
		sub(datatypes.LabelTrue, 0.9),
		sub(datatypes.LabelFake, 0.6),
	}, 2, judge, nil)
	assert.Equal(t, datatypes.LabelUnverified, v.Label)
	assert.Equal(t, 0.6, v.Confidence)
}

func TestCombineEmptyResultsUsesJudge(t *testing.T) {
	judge := datatypes.Verdict{Label: datatypes.LabelFake, Confidence: 0.7}
	v, _ := Combine(nil, 0, judge, nil)
	assert.Equal(t, datatypes.LabelFake, v.Label)
}

func TestCombineMissingJudgeDefaultsUnverified(t *testing.T) {
	v, _ := Combine(nil, 0, datatypes.Verdict{}, nil)
	assert.Equal(t, datatypes.LabelUnverified, v.Label)
	assert.Equal(t, 0.55, v.Confidence)
}

func TestCombineTemporalOverrideDowngradesTrue(t *testing.T) {
	subs := []datatypes.SubclaimResult{sub(datatypes.LabelTrue, 0.9)}
	checks := []datatypes.TemporalCheck{{
		Field: "year", Status: "mismatch",
		ClaimYear: 1938, EvidenceConsensus: 1937,
		Confidence:     0.8,
		SuggestedClaim: "The bridge opened in 1937.",
	}}

	v, corr := Combine(subs, 1, datatypes.Verdict{}, checks)
	assert.Equal(t, datatypes.LabelUnverified, v.Label)
	assert.Equal(t, 0.55, v.Confidence)
	assert.Contains(t, v.Rationale, "1937")

	if assert.Len(t, corr, 1) {
		assert.Equal(t, "year", corr[0].Type)
		assert.Equal(t, 1938, corr[0].From)
		assert.Equal(t, 1937, corr[0].To)
		assert.Equal(t, "The bridge opened in 1937.", corr[0].ProposedClaim)
	}
}

func TestCombineWeakTemporalMismatchKeepsVerdict(t *testing.T) {
	subs := []datatypes.SubclaimResult{sub(datatypes.LabelTrue, 0.9)}
	checks := []datatypes.TemporalCheck{{
		Field: "year", Status: "mismatch",
		ClaimYear: 1938, EvidenceConsensus: 1937,
		Confidence: 0.5,
	}}

	v, corr := Combine(subs, 1, datatypes.Verdict{}, checks)
	assert.Equal(t, datatypes.LabelTrue, v.Label, "sub-threshold mismatch does not override")
	assert.Len(t, corr, 1, "correction is still surfaced")
}

func TestCombineTemporalOverrideOnlyTargetsTrue(t *testing.T) {
	subs := []datatypes.SubclaimResult{sub(datatypes.LabelFake, 0.8)}
	checks := []datatypes.TemporalCheck{{
		Field: "year", Status: "mismatch",
		ClaimYear: 1938, EvidenceConsensus: 1937, Confidence: 0.9,
	}}

	v, _ := Combine(subs, 1, datatypes.Verdict{}, checks)
	assert.Equal(t, datatypes.LabelFake, v.Label)
}
