// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	domainwatch "github.com/domainwatch/engine"
	"github.com/domainwatch/engine/internal/model"
	"github.com/domainwatch/engine/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.DialectSQLite, "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPoolDrainsJobToCompletion(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := openTestStore(t)
	user := &model.User{Email: "a@b.com", PasswordHash: "x"}
	if err := s.DB.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	names := []string{"one.com", "two.com", "three.com", "four.com", "five.com"}
	job, err := s.CreateJob(ctx, user.ID, model.ImportPayload(names))
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	var processed int64
	handler := domainwatch.HandlerFunc(func(_ context.Context, b domainwatch.Batch) ([]model.LookupResult, error) {
		atomic.AddInt64(&processed, int64(len(b.Names)))
		results := make([]model.LookupResult, len(b.Names))
		for i, n := range b.Names {
			results[i] = model.LookupResult{Name: n, IsRegistered: true, Source: model.SourceRDAP}
		}
		if _, err := s.FlushImport(ctx, job.ID, results); err != nil {
			return nil, err
		}
		return results, nil
	})

	pool := New(Options{Store: s, Workers: 3, BatchSize: 2, PollEvery: 10 * time.Millisecond, Retry: DefaultRetryPolicy()})
	if err := pool.Run(ctx, job.ID, handler); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := atomic.LoadInt64(&processed); got != int64(len(names)) {
		t.Fatalf("processed %d names across workers, want %d", got, len(names))
	}

	final, err := s.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if final.Processed != final.Total {
		t.Fatalf("expected processed==total, got %d/%d", final.Processed, final.Total)
	}
}
