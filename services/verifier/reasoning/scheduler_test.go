// Copyright (C) 2025 Agentra AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reasoning

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentra-ai/factcheck/services/llm"
)

// fakeClock substitutes the scheduler's time hooks so spacing assertions
// run instantly and deterministically.
type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
	return nil
}

func (c *fakeClock) recorded() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

func newTestScheduler(t *testing.T, cfg SchedulerConfig) (*Scheduler, *fakeClock) {
	t.Helper()
	s := NewScheduler(cfg)
	clk := newFakeClock()
	s.now = clk.now
	s.sleep = clk.sleep
	return s, clk
}

func TestIntervalFromRPM(t *testing.T) {
	cases := []struct {
		rpm  int
		want time.Duration
	}{
		{rpm: 3, want: 21 * time.Second},
		{rpm: 60, want: 2 * time.Second},
		{rpm: 0, want: 61 * time.Second}, // floors to 1 RPM
		{rpm: 7, want: 9 * time.Second},  // floor(60/7)=8, +1
	}
	for _, tc := range cases {
		s := NewScheduler(SchedulerConfig{RPM: tc.rpm, Throttled: true})
		assert.Equal(t, tc.want, s.Interval(), "rpm=%d", tc.rpm)
	}
}

func TestDoUnthrottledSkipsSpacing(t *testing.T) {
	s, clk := newTestScheduler(t, SchedulerConfig{RPM: 3, Throttled: false})
	for i := 0; i < 3; i++ {
		out, err := s.Do(context.Background(), "plan", func(context.Context) (string, error) {
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
	}
	assert.Empty(t, clk.recorded())
}

func TestDoThrottledSpacesCalls(t *testing.T) {
	s, clk := newTestScheduler(t, SchedulerConfig{RPM: 60, Throttled: true})
	interval := s.Interval()

	// Clock only advances inside sleep, so each call after the first
	// must wait out one full interval.
	for i := 0; i < 3; i++ {
		_, err := s.Do(context.Background(), "judge", func(context.Context) (string, error) {
			return "ok", nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, []time.Duration{interval, interval}, clk.recorded())
}

func TestDoRetriesOnceOnThrottle(t *testing.T) {
	s, clk := newTestScheduler(t, SchedulerConfig{RPM: 60, Throttled: true})

	calls := 0
	out, err := s.Do(context.Background(), "entail", func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", llm.ErrThrottled
		}
		return "second", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "second", out)
	assert.Equal(t, 2, calls)
	assert.Contains(t, clk.recorded(), s.Interval()+time.Second)
}

func TestDoSecondThrottleFails(t *testing.T) {
	s, _ := newTestScheduler(t, SchedulerConfig{RPM: 60, Throttled: true})

	calls := 0
	_, err := s.Do(context.Background(), "plan", func(context.Context) (string, error) {
		calls++
		return "", llm.ErrThrottled
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)

	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "plan", serr.Stage)
	assert.ErrorIs(t, err, llm.ErrThrottled)
}

func TestDoNonThrottleErrorDoesNotRetry(t *testing.T) {
	s, _ := newTestScheduler(t, SchedulerConfig{RPM: 60, Throttled: true})

	boom := errors.New("model exploded")
	calls := 0
	_, err := s.Do(context.Background(), "judge", func(context.Context) (string, error) {
		calls++
		return "", boom
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, boom)
}

func TestDoCanceledContext(t *testing.T) {
	s := NewScheduler(SchedulerConfig{RPM: 3, Throttled: true})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Do(ctx, "plan", func(context.Context) (string, error) {
		t.Fatal("call must not run after cancellation")
		return "", nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentCallsNeverShareSlot(t *testing.T) {
	s, clk := newTestScheduler(t, SchedulerConfig{RPM: 60, Throttled: true, MaxParallel: 8})
	interval := s.Interval()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Do(context.Background(), "entail", func(context.Context) (string, error) {
				return "ok", nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// 4 callers, first slot is free, so at most 3 sleeps happen and the
	// reservation bookkeeping must have spread them one interval apart.
	sleeps := clk.recorded()
	assert.LessOrEqual(t, len(sleeps), 3)
	for _, d := range sleeps {
		assert.Zero(t, d%interval, "sleep %v is not a whole number of intervals", d)
	}
}
