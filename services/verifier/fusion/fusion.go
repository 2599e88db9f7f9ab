// Copyright (C) 2025 Agentra AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package fusion turns per-source votes and per-subclaim verdicts into one
// final report verdict. It is pure bookkeeping: no model calls, no I/O.
package fusion

import (
	"fmt"
	"math"
	"strings"

	"github.com/agentra-ai/factcheck/services/verifier/datatypes"
)

const (
	// Triangulation thresholds.
	minAgreeingVotes  = 2
	minAgreeingConf   = 0.65
	triangulationCap  = 0.95
	unverifiedConf    = 0.55
	strongFakeConf    = 0.7
	temporalOverride  = 0.7
	maxVisualNotes    = 3
	insufficientRule  = "Signals insufficient or mixed."
	supportRule       = "Triangulation: multiple sources SUPPORT."
	refuteRule        = "Triangulation: multiple sources REFUTE."
	unverifiedDefault = "Insufficient or mixed signals across subclaims."
)

// Triangulate folds per-source entailment votes for one subclaim into a
// verdict. At least two agreeing votes averaging 0.65 confidence decide the
// label; anything weaker stays UNVERIFIED at 0.55. Visual notes, when
// present, are appended to the rationale but never shift the label.
func Triangulate(votes []datatypes.Vote, visualNotes []string) (datatypes.Verdict, string) {
	var sup, ref []float64
	for _, v := range votes {
		switch v.Label {
		case datatypes.VoteSupports:
			sup = append(sup, v.Confidence)
		case datatypes.VoteRefutes:
			ref = append(ref, v.Confidence)
		}
	}

	label, conf, rule := datatypes.LabelUnverified, unverifiedConf, insufficientRule
	switch {
	case len(sup) >= minAgreeingVotes && mean(sup) >= minAgreeingConf:
		label = datatypes.LabelTrue
		conf = math.Min(triangulationCap, 0.6+0.2*float64(len(sup))+0.2*mean(sup))
		rule = supportRule
	case len(ref) >= minAgreeingVotes && mean(ref) >= minAgreeingConf:
		label = datatypes.LabelFake
		conf = math.Min(triangulationCap, 0.6+0.2*float64(len(ref))+0.2*mean(ref))
		rule = refuteRule
	}

	rationale := rule
	if note := VisualNote(visualNotes); note != "" {
		rationale = rule + " " + note
	}
	return datatypes.Verdict{
		Label:      label,
		Confidence: round3(conf),
		Rationale:  rationale,
	}, rule
}

// VisualNote formats keyframe analysis notes the way triangulation folds
// them into rationales. Empty input yields an empty string.
func VisualNote(notes []string) string {
	if len(notes) == 0 {
		return ""
	}
	if len(notes) > maxVisualNotes {
		notes = notes[:maxVisualNotes]
	}
	return "Visual analysis notes considered: " + strings.Join(notes, " | ")
}

// Combine resolves the final verdict from per-subclaim results, the debate
// judge's holistic view, and temporal checks, in strict precedence order:
//
//  1. Every evaluated subclaim is TRUE, and no planned subclaim was skipped:
//     TRUE at the mean subclaim confidence, capped at 0.95. Skipped
//     subclaims (partial evaluation) disqualify this rule so a partial set
//     can never declare the whole claim true.
//  2. Any subclaim is FAKE with confidence at least 0.7: FAKE at the highest
//     such confidence. This rule applies even under partial evaluation.
//  3. Otherwise the judge's verdict stands.
//  4. A year mismatch with confidence at least 0.7 downgrades a TRUE result
//     to UNVERIFIED at 0.55.
//
// Every year mismatch also yields a SuggestedCorrection regardless of its
// confidence or the final label.
func Combine(subResults []datatypes.SubclaimResult, plannedCount int, judge datatypes.Verdict, temporal []datatypes.TemporalCheck) (datatypes.Verdict, []datatypes.SuggestedCorrection) {
	partialEval := len(subResults) < plannedCount

	final := judge
	if final.Label == "" {
		final = datatypes.Verdict{
			Label:      datatypes.LabelUnverified,
			Confidence: unverifiedConf,
			Rationale:  unverifiedDefault,
		}
	}

	switch {
	case !partialEval && len(subResults) > 0 && allTrue(subResults):
		total := 0.0
		for _, r := range subResults {
			total += r.Confidence
		}
		final = datatypes.Verdict{
			Label:      datatypes.LabelTrue,
			Confidence: math.Min(triangulationCap, total/float64(len(subResults))),
			Rationale:  "All evaluated subclaims verified as TRUE.",
		}
	case strongestFake(subResults) > 0:
		final = datatypes.Verdict{
			Label:      datatypes.LabelFake,
			Confidence: strongestFake(subResults),
			Rationale:  "At least one subclaim refuted with high confidence.",
		}
	}

	var corrections []datatypes.SuggestedCorrection
	for _, c := range temporal {
		if c.Field != "year" || c.Status != "mismatch" {
			continue
		}
		corrections = append(corrections, datatypes.SuggestedCorrection{
			Type:          "year",
			From:          c.ClaimYear,
			To:            c.EvidenceConsensus,
			ProposedClaim: c.SuggestedClaim,
			Confidence:    c.Confidence,
			Sources:       c.SupportingSources,
		})
		if c.Confidence >= temporalOverride && final.Label == datatypes.LabelTrue {
			final = datatypes.Verdict{
				Label:      datatypes.LabelUnverified,
				Confidence: unverifiedConf,
				Rationale: fmt.Sprintf(
					"Evidence consensus places the year at %d, not %d.",
					c.EvidenceConsensus, c.ClaimYear),
			}
		}
	}

	final.Confidence = round3(final.Confidence)
	return final, corrections
}

func allTrue(results []datatypes.SubclaimResult) bool {
	for _, r := range results {
		if strings.ToUpper(r.Label) != datatypes.LabelTrue {
			return false
		}
	}
	return true
}

// strongestFake returns the highest confidence among FAKE subclaims at or
// above the override threshold, or 0 when none qualifies.
func strongestFake(results []datatypes.SubclaimResult) float64 {
	best := 0.0
	for _, r := range results {
		if strings.ToUpper(r.Label) == datatypes.LabelFake && r.Confidence >= strongFakeConf && r.Confidence > best {
			best = r.Confidence
		}
	}
	return best
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total / float64(len(xs))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
