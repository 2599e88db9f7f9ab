// Copyright (C) 2025 Agentra AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/agentra-ai/factcheck/services/verifier/datatypes"
)

// responseCache is the two-tier TTL cache in front of the search provider.
// Two keys are written per successful fetch: an exact key covering
// (query, count, whitelist), and a wildcard key that drops count and acts
// as a stale-but-available fallback when the provider is down.
//
// Entries expire after the TTL and the store is size-bounded; both
// evictions are handled by the expirable LRU. Entries are never updated in
// place, only overwritten wholesale on refresh.
type responseCache struct {
	store *expirable.LRU[string, []datatypes.EvidenceItem]
}

func newResponseCache(ttl time.Duration, maxItems int) *responseCache {
	if maxItems <= 0 {
		maxItems = 1024
	}
	return &responseCache{
		store: expirable.NewLRU[string, []datatypes.EvidenceItem](maxItems, nil, ttl),
	}
}

func (c *responseCache) get(key string) ([]datatypes.EvidenceItem, bool) {
	return c.store.Get(key)
}

func (c *responseCache) set(key string, items []datatypes.EvidenceItem) {
	c.store.Add(key, items)
}

// exactKey covers the full request shape. A changed whitelist must never
// serve results filtered under a different one.
func exactKey(query string, count int, whitelist []string) string {
	return cacheKey(fmt.Sprintf("%s|%d|%s", query, count, strings.Join(whitelist, ",")))
}

// wildcardKey ignores count so any prior fetch for the query can serve as a
// degraded fallback.
func wildcardKey(query string, whitelist []string) string {
	return cacheKey(fmt.Sprintf("%s|*|%s", query, strings.Join(whitelist, ",")))
}

func cacheKey(material string) string {
	sum := sha1.Sum([]byte(material))
	return "brv:" + hex.EncodeToString(sum[:])
}
