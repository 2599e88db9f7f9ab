// Copyright (C) 2025 Agentra AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evidence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentra-ai/factcheck/services/verifier/datatypes"
)

// fakeSearcher returns canned items per query and records the queries it
// was asked for.
type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][]datatypes.EvidenceItem
	stale   map[string]bool
	err     map[string]error
	asked   []string
}

func (f *fakeSearcher) Search(_ context.Context, query string, _ int) ([]datatypes.EvidenceItem, bool, error) {
	f.mu.Lock()
	f.asked = append(f.asked, query)
	f.mu.Unlock()
	if err := f.err[query]; err != nil {
		return nil, false, err
	}
	return f.results[query], f.stale[query], nil
}

func newFixedRetriever(s Searcher) *Retriever {
	r := NewRetriever(s, nil)
	r.now = func() time.Time { return scoreNow }
	return r
}

func TestRetrieve_CapsAtFiveQueries(t *testing.T) {
	s := &fakeSearcher{results: map[string][]datatypes.EvidenceItem{}}
	r := newFixedRetriever(s)

	queries := []string{"q1", "q2", "q3", "q4", "q5", "q6", "q7"}
	_, trace, err := r.Retrieve(context.Background(), queries, 4, 10)
	require.NoError(t, err)

	assert.Len(t, s.asked, 5)
	assert.Equal(t, []string{"q1", "q2", "q3", "q4", "q5"}, trace.Queries)
}

func TestRetrieve_DedupeKeepsMaxScore(t *testing.T) {
	// The same URL surfaces for two queries; the second query overlaps the
	// title fully so its scored copy wins.
	shared := datatypes.EvidenceItem{
		Title:   "mars rover landing",
		URL:     "https://www.nasa.gov/rover",
		Snippet: "nasa statement",
	}
	s := &fakeSearcher{results: map[string][]datatypes.EvidenceItem{
		"unrelated terms":    {shared},
		"mars rover landing": {shared},
	}}
	r := newFixedRetriever(s)

	ranked, trace, err := r.Retrieve(context.Background(), []string{"unrelated terms", "mars rover landing"}, 4, 10)
	require.NoError(t, err)

	require.Len(t, ranked, 1, "duplicate URL collapsed")
	assert.Equal(t, "mars rover landing", ranked[0].QueryMatched, "higher-scoring copy kept")
	assert.Len(t, trace.Raw, 2, "raw trace keeps the pre-dedup pool")
}

func TestRetrieve_RankingStableAndTruncated(t *testing.T) {
	items := []datatypes.EvidenceItem{
		{Title: "first", URL: "https://a.example/1"},
		{Title: "second", URL: "https://a.example/2"},
		{Title: "third", URL: "https://a.example/3"},
	}
	s := &fakeSearcher{results: map[string][]datatypes.EvidenceItem{"q": items}}
	r := newFixedRetriever(s)

	ranked, _, err := r.Retrieve(context.Background(), []string{"q"}, 4, 10)
	require.NoError(t, err)
	require.Len(t, ranked, 3)

	// All three items score identically (same host, no dates, no overlap),
	// so insertion order must be preserved.
	assert.Equal(t, "https://a.example/1", ranked[0].URL)
	assert.Equal(t, "https://a.example/2", ranked[1].URL)
	assert.Equal(t, "https://a.example/3", ranked[2].URL)

	top2, _, err := r.Retrieve(context.Background(), []string{"q"}, 4, 2)
	require.NoError(t, err)
	assert.Len(t, top2, 2)
}

func TestRetrieve_TraceFields(t *testing.T) {
	s := &fakeSearcher{
		results: map[string][]datatypes.EvidenceItem{
			"q": {{Title: "t", URL: "https://a.example/1", Source: "SomeWire"}},
		},
		stale: map[string]bool{"q": true},
	}
	r := newFixedRetriever(s)

	_, trace, err := r.Retrieve(context.Background(), []string{"q"}, 4, 10)
	require.NoError(t, err)

	assert.Equal(t, scoreFormula, trace.Explanations)
	assert.Equal(t, "stale", trace.CacheNote)
	require.Len(t, trace.Ranked, 1)
	assert.Empty(t, trace.Ranked[0].Source, "ranked trace projection drops provider attribution")
	require.Len(t, trace.Raw, 1)
	assert.NotZero(t, trace.Raw[0].Score, "raw entries are scored")
}

func TestRetrieve_SearchErrorPropagates(t *testing.T) {
	boom := errors.New("provider down")
	s := &fakeSearcher{
		results: map[string][]datatypes.EvidenceItem{"ok": {{Title: "t", URL: "https://a.example/1"}}},
		err:     map[string]error{"bad": boom},
	}
	r := newFixedRetriever(s)

	_, _, err := r.Retrieve(context.Background(), []string{"ok", "bad"}, 4, 10)
	assert.ErrorIs(t, err, boom)
}

func TestDedupeMaxScore_Idempotent(t *testing.T) {
	pool := []datatypes.EvidenceItem{
		{URL: "https://a.example/1", Score: 0.9},
		{URL: "https://a.example/2", Score: 0.8},
		{URL: "https://a.example/1", Score: 0.95},
		{URL: "https://a.example/1", Score: 0.95},
		{URL: "", Score: 0.99},
	}
	once := dedupeMaxScore(pool)
	twice := dedupeMaxScore(once)

	assert.Equal(t, once, twice, "dedupe must be idempotent")
	require.Len(t, once, 2, "empty URL dropped, duplicates collapsed")
	assert.Equal(t, 0.95, once[0].Score, "max score wins for the duplicate URL")
	assert.Equal(t, "https://a.example/1", once[0].URL, "first-seen position retained")
}

func TestRank_FullRoundTrip(t *testing.T) {
	pool := []datatypes.EvidenceItem{
		{URL: "u1", Score: 0.5},
		{URL: "u2", Score: 0.9},
		{URL: "u3", Score: 0.9},
		{URL: "u4", Score: 0.1},
	}
	out := rank(pool, len(pool))
	require.Len(t, out, len(pool))
	assert.Equal(t, "u2", out[0].URL)
	assert.Equal(t, "u3", out[1].URL, "equal scores keep insertion order")
	assert.Equal(t, "u1", out[2].URL)
	assert.Equal(t, "u4", out[3].URL)
}
