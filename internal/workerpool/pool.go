// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package workerpool is the Worker Pool (C5): N goroutines, each
// running an independent claim loop against one given Job that claims a
// batch, dispatches it to a domainwatch.Handler, and loops until the
// Job is exhausted or the pool is stopped. The pool does not pick Jobs
// off the queue itself: it drains only the Job passed to Run, and
// domainwatchd calls Run only for a Job resumed through the Job API's
// POST /jobs/{id}/resume. Exactly one loop ever holds
// a given claimed range at a time, enforced by the store's serializable
// claim transaction rather than by any in-process lock, matching the
// worker-pool-per-process shape used by the job-queue worker in the
// wider example pack, adapted here to our own claim/flush semantics
// instead of a lease-row claim query.
package workerpool

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	domainwatch "github.com/domainwatch/engine"
	"github.com/domainwatch/engine/internal/claimctx"
	"github.com/domainwatch/engine/internal/model"
	"github.com/domainwatch/engine/internal/store"
)

// observer records one claim failure per failed claim attempt and one
// batch-handling duration per claimed batch.
type observer interface {
	IncClaimFailure()
	ObserveBatchDuration(kind string, seconds float64)
}

// RetryPolicy controls the backoff a claim loop applies after a failed
// claim attempt (e.g. a transient database error), rather than busy-
// looping against a database that is temporarily unavailable.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      time.Duration
}

// DefaultRetryPolicy is the explicit claim-retry policy: up to 15
// attempts with a total backoff budget on the order of one second, so a
// worker re-engages a flaky database quickly instead of stalling a batch
// behind a multi-second sleep.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 15, BaseDelay: 10 * time.Millisecond, Jitter: 20 * time.Millisecond}
}

// Pool runs Workers claim loops concurrently against a single Store.
type Pool struct {
	store     *store.Store
	progress  *claimctx.Manager
	workers   int
	batchSize int
	pollEvery time.Duration
	retry     RetryPolicy
	log       *slog.Logger
	obs       observer

	mu      sync.Mutex
	cancels []context.CancelFunc
	wg      sync.WaitGroup
}

// Options configures a Pool.
type Options struct {
	Store     *store.Store
	Progress  *claimctx.Manager
	Workers   int
	BatchSize int
	PollEvery time.Duration
	Retry     RetryPolicy
	Log       *slog.Logger
	Metrics   observer
}

// New builds a Pool. It does not start claiming until Run is called.
func New(opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.PollEvery <= 0 {
		opts.PollEvery = time.Second
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Progress == nil {
		opts.Progress = claimctx.NewManager()
	}
	return &Pool{
		store:     opts.Store,
		progress:  opts.Progress,
		workers:   opts.Workers,
		batchSize: opts.BatchSize,
		pollEvery: opts.PollEvery,
		retry:     opts.Retry,
		log:       opts.Log,
		obs:       opts.Metrics,
	}
}

// Run launches the configured number of claim-loop goroutines against
// jobID and blocks until every batch is claimed and processed or ctx is
// cancelled. Multiple workers draining the same Job concurrently is
// exactly the case the store's serializable Claim transaction exists
// to serialize.
func (p *Pool) Run(ctx context.Context, jobID uint64, h domainwatch.Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancels = append(p.cancels, cancel)
	p.mu.Unlock()
	defer cancel()

	errs := make(chan error, p.workers)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			errs <- p.claimLoop(ctx, id, jobID, h)
		}(i)
	}

	p.wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil && !errors.Is(err, store.ErrNoWork) && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	p.progress.Clear(jobID)
	return nil
}

// claimLoop repeatedly claims the next unclaimed range of jobID until
// the job is exhausted, ctx is cancelled, or the retry policy is
// exhausted after repeated claim failures.
func (p *Pool) claimLoop(ctx context.Context, workerID int, jobID uint64, h domainwatch.Handler) error {
	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		claim, err := p.store.Claim(ctx, jobID, p.batchSize)
		if err != nil {
			if errors.Is(err, store.ErrNoWork) {
				return nil
			}
			failures++
			if p.obs != nil {
				p.obs.IncClaimFailure()
			}
			if p.retry.MaxAttempts > 0 && failures >= p.retry.MaxAttempts {
				return err
			}
			p.log.Warn("claim failed, backing off", "worker", workerID, "job_id", jobID, "error", err, "attempt", failures)
			time.Sleep(backoff(p.retry, failures))
			continue
		}
		failures = 0

		p.progress.Report(claimctx.Progress{JobID: jobID, Start: claim.Start, End: claim.End})

		batch := domainwatch.Batch{JobID: jobID}
		switch claim.Kind {
		case model.JobKindImport:
			batch.Names = claim.Payload.SliceNames(claim.Start, claim.End)
		case model.JobKindWhoisCheck:
			batch.IDs = claim.Payload.SliceIDs(claim.Start, claim.End)
		}

		// The claimed range is already counted in Processed, so the batch
		// runs to the end of its flush even if ctx is cancelled meanwhile.
		started := time.Now()
		_, err = h.Handle(context.WithoutCancel(ctx), batch)
		if p.obs != nil {
			p.obs.ObserveBatchDuration(string(claim.Kind), time.Since(started).Seconds())
		}
		if err != nil {
			p.log.Error("batch handling failed", "worker", workerID, "job_id", jobID, "error", err)
		}
	}
}

// backoff computes the delay for the given failure count: the
// configured base delay times the attempt number, plus a random jitter
// below Jitter.
func backoff(r RetryPolicy, attempt int) time.Duration {
	d := r.BaseDelay * time.Duration(attempt)
	if r.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(r.Jitter)))
	}
	return d
}

// Stop cancels every running claim loop and waits for them to return.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancels := p.cancels
	p.cancels = nil
	p.mu.Unlock()

	for _, c := range cancels {
		c()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
