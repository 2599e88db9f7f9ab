// Copyright (C) 2025 Agentra AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package evidence scores, ranks, and deduplicates search results.
//
// Scoring is a deterministic pure function over (item, query); the same
// inputs always produce the same score. The composite is
//
//	score = 0.55*credibility + 0.25*freshness + 0.20*keyword_overlap
//
// with every factor in [0,1].
package evidence

import (
	"math"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/agentra-ai/factcheck/services/verifier/datatypes"
)

const (
	weightCredibility = 0.55
	weightFreshness   = 0.25
	weightOverlap     = 0.20

	defaultCredibility = 0.70
)

// domainCredibility holds static credibility priors keyed by domain suffix.
// Lookup is longest-suffix-match against the item host.
var domainCredibility = map[string]float64{
	// science / gov
	"nasa.gov": 1.00, "who.int": 0.98, "cdc.gov": 0.98, "esa.int": 0.96,
	"nih.gov": 0.96, "noaa.gov": 0.95,
	// major news
	"reuters.com": 0.93, "apnews.com": 0.92, "bbc.com": 0.92, "nytimes.com": 0.91,
	"washingtonpost.com": 0.90, "theguardian.com": 0.90,
	// knowledge bases
	"wikipedia.org": 0.85, "britannica.com": 0.88, "nature.com": 0.95, "sciencedirect.com": 0.93,
}

var whitespaceRE = regexp.MustCompile(`\s+`)

// cleanText collapses all runs of whitespace to single spaces.
func cleanText(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// Score enriches item with credibility/freshness/overlap factors and the
// composite score for the given query. The input is not mutated; the
// enriched copy is returned. now anchors the freshness decay so repeated
// scoring inside one retrieval pass stays consistent.
func Score(item datatypes.EvidenceItem, query string, now time.Time) datatypes.EvidenceItem {
	host := hostOf(item.URL)
	cred := credibility(host)
	fresh := freshness(item.Published, now)
	over := keywordOverlap(query, item.Title, item.Snippet)

	enriched := item
	enriched.Score = round4(weightCredibility*cred + weightFreshness*fresh + weightOverlap*over)
	enriched.Credibility = round3(cred)
	enriched.Freshness = round3(fresh)
	enriched.Overlap = round3(over)
	enriched.Host = host
	enriched.QueryMatched = query
	return enriched
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// credibility returns the prior for the longest matching domain suffix, or
// the default when no entry matches.
func credibility(host string) float64 {
	best := defaultCredibility
	bestLen := 0
	for domain, weight := range domainCredibility {
		if strings.HasSuffix(host, domain) && len(domain) > bestLen {
			best = weight
			bestLen = len(domain)
		}
	}
	return best
}

// freshness maps the published date onto a piecewise decay: 1.0 under 30
// days, 0.9 under 180, 0.8 under 365, 0.7 under 730, else 0.5. An
// unparseable date scores 0.6, an absent one 0.5.
func freshness(published string, now time.Time) float64 {
	if published == "" {
		return 0.5
	}
	parsed, err := dateparse.ParseAny(published)
	if err != nil {
		return 0.6
	}
	ageDays := now.Sub(parsed).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	switch {
	case ageDays < 30:
		return 1.0
	case ageDays < 180:
		return 0.9
	case ageDays < 365:
		return 0.8
	case ageDays < 730:
		return 0.7
	default:
		return 0.5
	}
}

// keywordOverlap measures token-set intersection between the query and the
// title+snippet haystack, mapped to 0.3 + 0.7*(|common| / |query tokens|)
// and clamped to 1.0. A query with no tokens scores the 0.3 floor.
func keywordOverlap(query, title, snippet string) float64 {
	queryTokens := tokenSet(query)
	if len(queryTokens) == 0 {
		return 0.3
	}
	hay := tokenSet(title + " " + snippet)
	common := 0
	for tok := range queryTokens {
		if _, ok := hay[tok]; ok {
			common++
		}
	}
	return math.Min(1.0, 0.3+0.7*float64(common)/float64(len(queryTokens)))
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(cleanText(s)))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
