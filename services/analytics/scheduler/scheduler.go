// Copyright (C) 2025 Cairn Health (oss@cairnhealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package scheduler runs the engine's periodic recomputation jobs.
//
// Each job runs once shortly after startup (a staggered initial delay lets
// the benchmark refresh land before the first insight generation) and then
// on a fixed interval. A failed run is logged and never cancels future
// runs. Each job carries an in-flight guard: if a run is still going when
// the next tick or an on-demand trigger arrives, that tick is skipped
// rather than overlapped.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrUnknownJob is returned by Trigger for a job name never registered.
var ErrUnknownJob = errors.New("unknown job")

// ErrJobBusy is returned by Trigger when the job's previous run has not
// finished.
var ErrJobBusy = errors.New("job already running")

// Job describes one periodic task.
type Job struct {
	// Name identifies the job in logs and metrics.
	Name string

	// InitialDelay postpones the first run after Start.
	InitialDelay time.Duration

	// Interval is the period between run starts.
	Interval time.Duration

	// Run executes one cycle. A returned error marks the run failed;
	// it does not affect future runs.
	Run func(ctx context.Context) error
}

type jobState struct {
	job      Job
	inFlight atomic.Bool
}

// Scheduler owns a set of jobs and their goroutines.
//
// Thread Safety: Start and Stop are safe to call once each from any
// goroutine; Trigger is safe for concurrent use after Start.
type Scheduler struct {
	jobs   map[string]*jobState
	order  []string
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// New creates a scheduler over the given jobs.
func New(logger *slog.Logger, jobs ...Job) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		jobs:   make(map[string]*jobState, len(jobs)),
		logger: logger,
	}
	for _, j := range jobs {
		s.jobs[j.Name] = &jobState{job: j}
		s.order = append(s.order, j.Name)
	}
	return s
}

// Start launches one goroutine per job.
//
// Each goroutine waits the job's initial delay, runs once, and then runs on
// every interval tick. The supplied context bounds all runs; Stop (or
// cancelling ctx) ends the goroutines after any in-flight run returns.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return // already started
	}

	ctx, s.cancel = context.WithCancel(ctx)
	for _, name := range s.order {
		state := s.jobs[name]
		s.wg.Add(1)
		go s.runLoop(ctx, state)
	}
}

// Stop cancels all job loops and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Trigger runs the named job once, outside its schedule.
//
// Outputs:
//
//	error - ErrUnknownJob for an unregistered name, ErrJobBusy if a run is
//	already in flight, else the job's own result.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	state, ok := s.jobs[name]
	if !ok {
		return ErrUnknownJob
	}
	return s.runOnce(ctx, state, "on-demand")
}

// JobNames returns the registered job names in registration order.
func (s *Scheduler) JobNames() []string {
	return append([]string(nil), s.order...)
}

func (s *Scheduler) runLoop(ctx context.Context, state *jobState) {
	defer s.wg.Done()

	if state.job.InitialDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(state.job.InitialDelay):
		}
	}

	// First run immediately after the startup delay.
	s.logRun(state, s.runOnce(ctx, state, "startup"))

	ticker := time.NewTicker(state.job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.logRun(state, s.runOnce(ctx, state, "scheduled"))
		}
	}
}

// runOnce executes one cycle under the in-flight guard.
func (s *Scheduler) runOnce(ctx context.Context, state *jobState, reason string) error {
	if !state.inFlight.CompareAndSwap(false, true) {
		jobSkips.WithLabelValues(state.job.Name).Inc()
		s.logger.Warn("skipping job run, previous run still in flight",
			slog.String("job", state.job.Name),
			slog.String("reason", reason))
		return ErrJobBusy
	}
	defer state.inFlight.Store(false)

	start := time.Now()
	err := state.job.Run(ctx)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "failure"
	}
	jobRuns.WithLabelValues(state.job.Name, status).Inc()
	jobDuration.WithLabelValues(state.job.Name).Observe(duration.Seconds())
	return err
}

// logRun records the outcome of a scheduled run. Trigger callers receive
// the error directly and log at their own boundary.
func (s *Scheduler) logRun(state *jobState, err error) {
	switch {
	case err == nil:
		s.logger.Info("scheduled job completed", slog.String("job", state.job.Name))
	case errors.Is(err, ErrJobBusy):
		// Already logged by runOnce.
	case errors.Is(err, context.Canceled):
		s.logger.Info("scheduled job cancelled during shutdown", slog.String("job", state.job.Name))
	default:
		s.logger.Error("scheduled job failed, next run unaffected",
			slog.String("job", state.job.Name),
			slog.String("error", err.Error()))
	}
}
