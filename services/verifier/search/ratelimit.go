// Copyright (C) 2025 Agentra AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// pollInterval is how long a denied caller sleeps before re-attempting
// admission. Callers poll rather than blocking inside the limiter so a
// cancelled context is honored between attempts.
const pollInterval = 50 * time.Millisecond

// Limiter admits outbound search calls through a token bucket: Burst tokens
// are available immediately, then tokens refill at RPS per second up to
// Burst. Safe for concurrent use; the underlying rate.Limiter serializes
// all token accounting internally, so concurrent TryAcquire calls can never
// lose a decrement or exceed capacity.
type Limiter struct {
	bucket *rate.Limiter
}

// NewLimiter builds a Limiter with the given refill rate and burst
// capacity. The refill rate has a 0.1 tokens/second floor and the capacity
// a floor of 1, matching the search provider's minimum usable budget.
func NewLimiter(rps float64, burst int) *Limiter {
	if rps < 0.1 {
		rps = 0.1
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(rps), burst)}
}

// TryAcquire consumes one token if available. Non-blocking.
func (l *Limiter) TryAcquire() bool {
	return l.bucket.Allow()
}

// tryAcquireAt is TryAcquire evaluated at an explicit instant. Tests use it
// to exercise refill behavior without real sleeps.
func (l *Limiter) tryAcquireAt(t time.Time) bool {
	return l.bucket.AllowN(t, 1)
}

// Acquire polls TryAcquire until a token is granted or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		if l.TryAcquire() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
