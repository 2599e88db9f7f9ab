// Copyright (C) 2025 Agentra AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package reasoning drives the staged external reasoning calls: planning,
// entailment judging, and the adversarial debate, all admitted through a
// shared scheduler that respects the provider's requests-per-minute
// ceiling.
package reasoning

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/agentra-ai/factcheck/services/llm"
	"github.com/agentra-ai/factcheck/services/verifier/observability"
)

// Error is the typed failure surfaced when a reasoning call dies after its
// retry budget. The pipeline never converts it into a default verdict.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("reasoning %s call failed: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// SchedulerConfig configures call admission.
type SchedulerConfig struct {
	// RPM is the provider's requests-per-minute ceiling, used only in
	// throttled mode. Floor 1.
	RPM int

	// Throttled serializes calls with an inter-call interval of
	// floor(60/RPM)+1 seconds. When false, calls proceed immediately and
	// only the semaphore bounds concurrency.
	Throttled bool

	// MaxParallel bounds simultaneous in-flight calls. Default 4.
	MaxParallel int64

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Scheduler serializes logical reasoning calls under an RPM budget.
//
// State machine per call: Idle -> Waiting(until slot) -> InFlight ->
// {Success | Throttled -> Waiting -> InFlight (exactly once) | Failed}.
//
// Safe for concurrent use. In throttled mode concurrent callers reserve
// slots under a mutex, so two calls can never share one interval.
type Scheduler struct {
	cfg      SchedulerConfig
	interval time.Duration
	sem      *semaphore.Weighted
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu       sync.Mutex
	nextSlot time.Time

	// Injectable time hooks for deterministic tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewScheduler builds a Scheduler from cfg.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.RPM < 1 {
		cfg.RPM = 1
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		cfg: cfg,
		// The +1s buffer absorbs clock skew against the provider's window.
		interval: time.Duration(60/cfg.RPM+1) * time.Second,
		sem:      semaphore.NewWeighted(cfg.MaxParallel),
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Interval reports the inter-call spacing applied in throttled mode.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Do admits one reasoning call. In throttled mode it waits for the next
// RPM slot first. A throttle-shaped failure earns exactly one retry after
// a full interval plus one second; any other failure, or a second
// failure, propagates as a *Error.
func (s *Scheduler) Do(ctx context.Context, stage string, call func(context.Context) (string, error)) (string, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return "", &Error{Stage: stage, Err: err}
	}
	defer s.sem.Release(1)

	if err := s.awaitSlot(ctx); err != nil {
		return "", &Error{Stage: stage, Err: err}
	}

	out, err := call(ctx)
	if err == nil {
		s.count(stage, "success")
		return out, nil
	}
	if !llm.IsThrottled(err) {
		s.count(stage, "error")
		return "", &Error{Stage: stage, Err: err}
	}

	s.count(stage, "throttle_retry")
	s.logger.Warn("reasoning call throttled, retrying once",
		"stage", stage, "sleep", s.interval+time.Second)
	if serr := s.sleep(ctx, s.interval+time.Second); serr != nil {
		return "", &Error{Stage: stage, Err: serr}
	}
	s.resetSlot()

	out, err = call(ctx)
	if err != nil {
		s.count(stage, "error")
		return "", &Error{Stage: stage, Err: err}
	}
	s.count(stage, "success")
	return out, nil
}

// awaitSlot reserves the next RPM slot and sleeps until it. Reservation
// happens under the lock so the sleep itself does not serialize unrelated
// bookkeeping.
func (s *Scheduler) awaitSlot(ctx context.Context) error {
	if !s.cfg.Throttled {
		return nil
	}
	s.mu.Lock()
	now := s.now()
	wait := time.Duration(0)
	if s.nextSlot.After(now) {
		wait = s.nextSlot.Sub(now)
	}
	s.nextSlot = now.Add(wait + s.interval)
	s.mu.Unlock()

	if wait > 0 {
		s.logger.Debug("waiting for RPM slot", "wait", wait)
		return s.sleep(ctx, wait)
	}
	return nil
}

// resetSlot rebases the slot clock after an unscheduled throttle sleep.
func (s *Scheduler) resetSlot() {
	s.mu.Lock()
	s.nextSlot = s.now().Add(s.interval)
	s.mu.Unlock()
}

func (s *Scheduler) count(stage, status string) {
	if s.metrics != nil {
		s.metrics.ReasoningCallsTotal.WithLabelValues(stage, status).Inc()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
