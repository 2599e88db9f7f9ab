// Copyright (C) 2025 Agentra AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evidence

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/agentra-ai/factcheck/services/verifier/datatypes"
)

// maxQueries caps how many planner queries one retrieval pass will spend
// search budget on.
const maxQueries = 5

// scoreFormula is emitted in every trace for auditability. It is prose for
// humans; nothing re-parses it.
const scoreFormula = "score = 0.55*credibility + 0.25*freshness + 0.20*keyword_overlap"

// Searcher is the slice of the search client the retriever needs. The
// boolean reports whether results were served from the stale fallback
// cache.
type Searcher interface {
	Search(ctx context.Context, query string, count int) ([]datatypes.EvidenceItem, bool, error)
}

// Retriever fans queries through the search client, scores every hit, and
// returns a deduplicated, ranked evidence list with an audit trace.
type Retriever struct {
	searcher Searcher
	logger   *slog.Logger

	// now anchors freshness scoring; injected for deterministic tests.
	now func() time.Time
}

// NewRetriever builds a Retriever over the given searcher.
func NewRetriever(searcher Searcher, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{searcher: searcher, logger: logger, now: time.Now}
}

// Retrieve searches the first five queries (perQuery results each),
// scores every returned item against the query that produced it, dedupes
// across the pool by URL keeping the max-score copy (first seen wins on
// exact ties), and returns the topK items sorted by score descending with
// stable tie order, plus the audit trace.
//
// Queries run concurrently; results are pooled in query submission order
// so ranking ties break deterministically.
func (r *Retriever) Retrieve(ctx context.Context, queries []string, perQuery, topK int) ([]datatypes.EvidenceItem, datatypes.RetrievalTrace, error) {
	if len(queries) > maxQueries {
		queries = queries[:maxQueries]
	}
	trace := datatypes.RetrievalTrace{
		Queries:      append([]string{}, queries...),
		Explanations: scoreFormula,
	}

	now := r.now()
	perQueryItems := make([][]datatypes.EvidenceItem, len(queries))
	perQueryErr := make([]error, len(queries))
	staleServed := false

	var staleMu sync.Mutex
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(idx int, query string) {
			defer wg.Done()
			items, stale, err := r.searcher.Search(ctx, query, perQuery)
			if err != nil {
				perQueryErr[idx] = fmt.Errorf("retrieve %q: %w", query, err)
				return
			}
			scored := make([]datatypes.EvidenceItem, 0, len(items))
			for _, item := range items {
				scored = append(scored, Score(item, query, now))
			}
			perQueryItems[idx] = scored
			if stale {
				staleMu.Lock()
				staleServed = true
				staleMu.Unlock()
			}
		}(i, q)
	}
	wg.Wait()

	for _, err := range perQueryErr {
		if err != nil {
			return nil, trace, err
		}
	}

	var pool []datatypes.EvidenceItem
	for _, items := range perQueryItems {
		pool = append(pool, items...)
	}
	trace.Raw = append([]datatypes.EvidenceItem{}, pool...)
	if staleServed {
		trace.CacheNote = "stale"
	}

	ranked := rank(dedupeMaxScore(pool), topK)
	trace.Ranked = project(ranked)

	r.logger.Debug("retrieval complete",
		"queries", len(queries), "raw", len(pool), "ranked", len(ranked))
	return ranked, trace, nil
}

// dedupeMaxScore collapses URL duplicates keeping the strictly higher
// score; the first-seen copy survives exact ties and keeps its insertion
// position. Idempotent: applying it to its own output is a no-op.
func dedupeMaxScore(items []datatypes.EvidenceItem) []datatypes.EvidenceItem {
	kept := make([]datatypes.EvidenceItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		if item.URL == "" {
			continue
		}
		if at, seen := index[item.URL]; seen {
			if item.Score > kept[at].Score {
				kept[at] = item
			}
			continue
		}
		index[item.URL] = len(kept)
		kept = append(kept, item)
	}
	return kept
}

// rank sorts descending by score with stable tie order and truncates to
// topK (topK <= 0 returns everything).
func rank(items []datatypes.EvidenceItem, topK int) []datatypes.EvidenceItem {
	out := append([]datatypes.EvidenceItem{}, items...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// project restricts ranked trace entries to the documented field set; the
// raw provider source attribution is dropped.
func project(items []datatypes.EvidenceItem) []datatypes.EvidenceItem {
	out := make([]datatypes.EvidenceItem, len(items))
	for i, item := range items {
		projected := item
		projected.Source = ""
		out[i] = projected
	}
	return out
}
