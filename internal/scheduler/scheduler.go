// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package scheduler is the Scheduler (C6): a cadence ticker that
// periodically scans for registered Domains due for a fresh WHOIS/RDAP
// check and enqueues a whois_check Job for them. It is adapted from the
// source engine's events scheduler, which repeated an event every
// RepeatEvery interval; here the repeat target is fixed to one
// recurring scan rather than an arbitrary event graph, since the
// scheduler never executes work itself.
//
// The scheduler only ever enqueues; it never claims or processes a
// batch itself. That split is deliberate: the source engine blurred
// scheduling and execution by letting an event's Action run inline on
// the scheduler's own goroutine. domainwatch forbids that here so
// batches are only ever claimed through store.Claim (by the Worker Pool
// or the Job API's process endpoint), which is what keeps
// Job.Processed monotonic under concurrent workers. The scheduler does
// not start any processing of the Jobs it enqueues.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/domainwatch/engine/internal/model"
	"github.com/domainwatch/engine/internal/store"
)

// Scheduler periodically enqueues whois_check Jobs for stale Domains.
type Scheduler struct {
	store    *store.Store
	interval time.Duration
	batch    int
	horizon  time.Duration
	systemID uint64
	log      *slog.Logger
}

// Options configures a Scheduler.
type Options struct {
	Store *store.Store
	// Interval is how often the scan runs.
	Interval time.Duration
	// Batch bounds how many stale domains one scan enqueues.
	Batch int
	// Horizon is how long since LastChecked before a domain is stale.
	Horizon time.Duration
	// SystemUserID attributes scheduler-created Jobs to a system user
	// row, since a whois_check Job still needs a UserID foreign key.
	SystemUserID uint64
	Log          *slog.Logger
}

// New builds a Scheduler. It does not start ticking until Run is called.
func New(opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Batch <= 0 {
		opts.Batch = 500
	}
	if opts.Horizon <= 0 {
		opts.Horizon = 24 * time.Hour
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Scheduler{
		store:    opts.Store,
		interval: opts.Interval,
		batch:    opts.Batch,
		horizon:  opts.Horizon,
		systemID: opts.SystemUserID,
		log:      opts.Log,
	}
}

// Run ticks every Interval until ctx is cancelled, enqueueing one
// whois_check Job per tick for whatever Domains are due. A tick that
// finds nothing stale enqueues nothing; it is not an error.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				s.log.Error("scheduler tick failed", "error", err)
			}
		}
	}
}

// tick unions two selections into one whois_check Job: domains that
// have already expired (the system's actual availability-detection
// trigger, regardless of how recently they were last checked) and
// domains merely stale by LastChecked. Either selection alone may be
// empty; only their union being empty skips the tick.
func (s *Scheduler) tick(ctx context.Context) error {
	expiring, err := s.store.ExpiringDomains(ctx)
	if err != nil {
		return err
	}
	stale, err := s.store.StaleDomains(ctx, s.batch, s.horizon)
	if err != nil {
		return err
	}

	seen := make(map[uint64]struct{}, len(expiring)+len(stale))
	ids := make([]uint64, 0, len(expiring)+len(stale))
	for _, d := range expiring {
		if _, ok := seen[d.ID]; ok {
			continue
		}
		seen[d.ID] = struct{}{}
		ids = append(ids, d.ID)
	}
	for _, d := range stale {
		if _, ok := seen[d.ID]; ok {
			continue
		}
		seen[d.ID] = struct{}{}
		ids = append(ids, d.ID)
	}
	if len(ids) == 0 {
		return nil
	}

	job, err := s.store.CreateJob(ctx, s.systemID, model.CheckPayload(ids))
	if err != nil {
		return err
	}
	s.log.Info("scheduler enqueued whois_check job", "job_id", job.ID, "expiring", len(expiring), "stale", len(stale))
	return nil
}
