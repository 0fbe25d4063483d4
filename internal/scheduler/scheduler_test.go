// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/domainwatch/engine/internal/model"
	"github.com/domainwatch/engine/internal/store"
)

func TestTickEnqueuesWhoisCheckForStaleDomains(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(store.DialectSQLite, "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	user := &model.User{Email: "system@domainwatch.local", PasswordHash: "x"}
	if err := s.DB.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	old := time.Now().UTC().Add(-48 * time.Hour)
	if err := s.DB.Create(&model.Domain{Name: "stale.com", IsRegistered: true, LastChecked: &old}).Error; err != nil {
		t.Fatalf("seed domain: %v", err)
	}

	sched := New(Options{Store: s, Batch: 10, Horizon: time.Hour, SystemUserID: user.ID})
	if err := sched.tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	jobs, err := s.ListJobs(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Kind != model.JobKindWhoisCheck {
		t.Fatalf("expected one enqueued whois_check job, got %+v", jobs)
	}
}

func TestTickEnqueuesWhoisCheckForExpiredDomains(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(store.DialectSQLite, "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	user := &model.User{Email: "system@domainwatch.local", PasswordHash: "x"}
	if err := s.DB.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	justChecked := time.Now().UTC()
	if err := s.DB.Create(&model.Domain{
		Name: "expired.com", IsRegistered: true,
		ExpiryDate: &yesterday, LastChecked: &justChecked,
	}).Error; err != nil {
		t.Fatalf("seed domain: %v", err)
	}

	// Horizon set so the recent LastChecked does not also make this
	// domain stale: the enqueue must come from the expiry selection
	// alone.
	sched := New(Options{Store: s, Batch: 10, Horizon: 24 * time.Hour, SystemUserID: user.ID})
	if err := sched.tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	jobs, err := s.ListJobs(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Kind != model.JobKindWhoisCheck || jobs[0].Total != 1 {
		t.Fatalf("expected one enqueued whois_check job for the expired domain, got %+v", jobs)
	}
}

func TestTickIsNoOpWhenNothingStale(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(store.DialectSQLite, "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	user := &model.User{Email: "system@domainwatch.local", PasswordHash: "x"}
	s.DB.Create(user)

	sched := New(Options{Store: s, Batch: 10, Horizon: time.Hour, SystemUserID: user.ID})
	if err := sched.tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	jobs, _ := s.ListJobs(ctx, user.ID)
	if len(jobs) != 0 {
		t.Fatalf("expected no jobs enqueued, got %d", len(jobs))
	}
}
