// Copyright (C) 2025 Agentra AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package temporal detects mismatches between explicit years in a claim
// and the year consensus found in retrieved evidence.
//
// A check only fires when the claim names exactly one year, the evidence
// majority year differs, and at least two evidence mentions back the
// consensus. Fusion uses high-confidence mismatches to downgrade TRUE
// verdicts.
package temporal

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"

	"github.com/agentra-ai/factcheck/services/verifier/datatypes"
)

var yearRE = regexp.MustCompile(`\b(19|20)\d{2}\b`)

const (
	minYear = 1900
	maxYear = 2100

	// minConsensusSupport is the least number of evidence mentions that
	// can establish a consensus year.
	minConsensusSupport = 2

	// maxSupportingSources caps how many source URLs a check cites.
	maxSupportingSources = 3
)

// ExtractYears returns all plausible years (1900..2100) mentioned in text,
// in order of appearance.
func ExtractYears(text string) []int {
	if text == "" {
		return nil
	}
	var out []int
	for _, match := range yearRE.FindAllString(text, -1) {
		y, err := strconv.Atoi(match)
		if err != nil {
			continue
		}
		if y >= minYear && y <= maxYear {
			out = append(out, y)
		}
	}
	return out
}

// evidenceYears harvests year mentions across the evidence set. The
// published field gets a strict date parse first; titles, snippets, and
// unparseable published strings fall back to the year regex.
func evidenceYears(evidence []datatypes.EvidenceItem) []int {
	var years []int
	for _, ev := range evidence {
		if ev.Published != "" {
			if parsed, err := dateparse.ParseAny(ev.Published); err == nil {
				if y := parsed.Year(); y >= minYear && y <= maxYear {
					years = append(years, y)
					years = append(years, ExtractYears(ev.Title)...)
					years = append(years, ExtractYears(ev.Snippet)...)
					continue
				}
			}
		}
		years = append(years, ExtractYears(ev.Published)...)
		years = append(years, ExtractYears(ev.Title)...)
		years = append(years, ExtractYears(ev.Snippet)...)
	}
	return years
}

// consensusYear returns the most frequent year and its count. Ties resolve
// to the year first reaching the winning count, keeping the result stable
// for a fixed evidence order.
func consensusYear(years []int) (year, count int, ok bool) {
	if len(years) == 0 {
		return 0, 0, false
	}
	counts := make(map[int]int, len(years))
	for _, y := range years {
		counts[y]++
		if counts[y] > count {
			year, count = y, counts[y]
		}
	}
	return year, count, true
}

// Checks compares the claim's explicit year against the evidence consensus
// year and returns mismatch checks. Empty when the claim has zero or
// multiple explicit years, when the evidence names no years, or when the
// consensus is too weak (fewer than two supporting mentions).
//
// Confidence is freq/max(3, totalYearMentions): one agreeing source can
// never push a mismatch past the fusion override threshold by itself.
func Checks(claimText string, evidence []datatypes.EvidenceItem) []datatypes.TemporalCheck {
	claimYears := ExtractYears(claimText)
	if len(claimYears) != 1 {
		return nil
	}
	years := evidenceYears(evidence)
	if len(years) == 0 {
		return nil
	}

	claimYear := claimYears[0]
	topYear, freq, ok := consensusYear(years)
	if !ok || topYear == claimYear || freq < minConsensusSupport {
		return nil
	}

	confidence := float64(freq) / float64(max(3, len(years)))

	var supporting []string
	needle := strconv.Itoa(topYear)
	for _, ev := range evidence {
		if len(supporting) >= maxSupportingSources {
			break
		}
		hay := fmt.Sprintf("%s %s %s", ev.Published, ev.Title, ev.Snippet)
		if strings.Contains(hay, needle) && ev.URL != "" {
			supporting = append(supporting, ev.URL)
		}
	}

	return []datatypes.TemporalCheck{{
		Field:             "year",
		Status:            "mismatch",
		ClaimYear:         claimYear,
		EvidenceConsensus: topYear,
		SupportingSources: supporting,
		Confidence:        round3(confidence),
		SuggestedClaim:    replaceFirstYear(claimText, topYear),
	}}
}

// replaceFirstYear substitutes the first year occurrence in text with year.
func replaceFirstYear(text string, year int) string {
	replaced := false
	return yearRE.ReplaceAllStringFunc(text, func(match string) string {
		if replaced {
			return match
		}
		replaced = true
		return strconv.Itoa(year)
	})
}

func round3(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}
