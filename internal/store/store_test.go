// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"testing"
	"time"

	"github.com/domainwatch/engine/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(DialectSQLite, "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedUser(t *testing.T, s *Store) uint64 {
	t.Helper()
	u := &model.User{Email: "owner@example.com", PasswordHash: "x"}
	if err := s.DB.Create(u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u.ID
}

func TestCreateJobAndClaimPartitionsRanges(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	userID := seedUser(t, s)

	job, err := s.CreateJob(ctx, userID, model.ImportPayload([]string{"a.com", "b.com", "c.com", "d.com", "e.com"}))
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	c1, err := s.Claim(ctx, job.ID, 2)
	if err != nil {
		t.Fatalf("Claim 1: %v", err)
	}
	if c1.Start != 0 || c1.End != 2 {
		t.Fatalf("got [%d,%d), want [0,2)", c1.Start, c1.End)
	}

	c2, err := s.Claim(ctx, job.ID, 2)
	if err != nil {
		t.Fatalf("Claim 2: %v", err)
	}
	if c2.Start != 2 || c2.End != 4 {
		t.Fatalf("got [%d,%d), want [2,4)", c2.Start, c2.End)
	}

	c3, err := s.Claim(ctx, job.ID, 2)
	if err != nil {
		t.Fatalf("Claim 3: %v", err)
	}
	if c3.Start != 4 || c3.End != 5 {
		t.Fatalf("got [%d,%d), want [4,5) for the trailing partial batch", c3.Start, c3.End)
	}

	if _, err := s.Claim(ctx, job.ID, 2); err != ErrNoWork {
		t.Fatalf("expected ErrNoWork once the job is fully claimed, got %v", err)
	}
}

func TestFlushImportIsIdempotentOnReimport(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	userID := seedUser(t, s)

	job, _ := s.CreateJob(ctx, userID, model.ImportPayload([]string{"dup.com"}))

	results := []model.LookupResult{{Name: "dup.com", IsRegistered: true, Source: model.SourceRDAP}}
	if _, err := s.FlushImport(ctx, job.ID, results); err != nil {
		t.Fatalf("first flush: %v", err)
	}
	if _, err := s.FlushImport(ctx, job.ID, results); err != nil {
		t.Fatalf("second flush: %v", err)
	}

	var count int64
	s.DB.Model(&model.Domain{}).Where("name = ?", "dup.com").Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly one domain row after reimport, got %d", count)
	}
}

func TestFlushImportRefreshesExpiryOnReimport(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	userID := seedUser(t, s)

	job, _ := s.CreateJob(ctx, userID, model.ImportPayload([]string{"renew.com"}))

	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := s.FlushImport(ctx, job.ID, []model.LookupResult{
		{Name: "renew.com", IsRegistered: true, ExpiryDate: &first, Source: model.SourceRDAP},
	}); err != nil {
		t.Fatalf("first flush: %v", err)
	}

	second := time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC)
	if _, err := s.FlushImport(ctx, job.ID, []model.LookupResult{
		{Name: "renew.com", IsRegistered: true, ExpiryDate: &second, Source: model.SourceRDAP},
	}); err != nil {
		t.Fatalf("second flush: %v", err)
	}

	var dom model.Domain
	if err := s.DB.Where("name = ?", "renew.com").First(&dom).Error; err != nil {
		t.Fatalf("load domain: %v", err)
	}
	if dom.ExpiryDate == nil || !dom.ExpiryDate.Equal(second) {
		t.Fatalf("expected expiry_date refreshed to %v, got %v", second, dom.ExpiryDate)
	}
}

func TestFlushImportReportsTransitionOnReimport(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	userID := seedUser(t, s)

	job, _ := s.CreateJob(ctx, userID, model.ImportPayload([]string{"goes-away.com"}))
	if _, err := s.FlushImport(ctx, job.ID, []model.LookupResult{
		{Name: "goes-away.com", IsRegistered: true, Source: model.SourceRDAP},
	}); err != nil {
		t.Fatalf("first flush: %v", err)
	}

	job2, _ := s.CreateJob(ctx, userID, model.ImportPayload([]string{"goes-away.com"}))
	transitions, err := s.FlushImport(ctx, job2.ID, []model.LookupResult{
		{Name: "goes-away.com", IsRegistered: false, Source: model.SourceWHOIS},
	})
	if err != nil {
		t.Fatalf("second flush: %v", err)
	}
	if len(transitions) != 1 || transitions[0].Name != "goes-away.com" {
		t.Fatalf("expected one availability transition on reimport, got %+v", transitions)
	}
}

func TestFlushImportExcludesInvalidNameResults(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	userID := seedUser(t, s)

	job, _ := s.CreateJob(ctx, userID, model.ImportPayload([]string{"foo"}))
	if _, err := s.FlushImport(ctx, job.ID, []model.LookupResult{
		{Name: "foo", Error: "invalid-name"},
	}); err != nil {
		t.Fatalf("FlushImport: %v", err)
	}

	var count int64
	s.DB.Model(&model.Domain{}).Where("name = ?", "foo").Count(&count)
	if count != 0 {
		t.Fatalf("expected no domain row for an invalid-name result, got %d", count)
	}

	gotJob, err := s.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if gotJob.Errors != 1 {
		t.Fatalf("expected errors=1, got %d", gotJob.Errors)
	}
}

func TestCompletionWriteMarksCompletedWhenProcessedReachesTotal(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	userID := seedUser(t, s)

	job, _ := s.CreateJob(ctx, userID, model.ImportPayload([]string{"a.com"}))
	if _, err := s.Claim(ctx, job.ID, 10); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := s.CompletionWrite(ctx, job.ID); err != nil {
		t.Fatalf("CompletionWrite: %v", err)
	}

	got, err := s.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != model.JobStatusCompleted {
		t.Fatalf("expected status completed once processed == total, got %q", got.Status)
	}
}

func TestCompletionWriteLeavesJobProcessingBeforeTotalReached(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	userID := seedUser(t, s)

	job, _ := s.CreateJob(ctx, userID, model.ImportPayload([]string{"a.com", "b.com"}))
	if _, err := s.Claim(ctx, job.ID, 1); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := s.CompletionWrite(ctx, job.ID); err != nil {
		t.Fatalf("CompletionWrite: %v", err)
	}

	got, err := s.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != model.JobStatusProcessing {
		t.Fatalf("expected status to remain processing before processed == total, got %q", got.Status)
	}
}

func TestCompletionWriteMarksFailedForUnknownKind(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	userID := seedUser(t, s)

	job, _ := s.CreateJob(ctx, userID, model.ImportPayload([]string{"a.com"}))
	if err := s.DB.Model(&model.Job{}).Where("id = ?", job.ID).
		Update("kind", "bogus_kind").Error; err != nil {
		t.Fatalf("corrupt kind: %v", err)
	}

	if err := s.CompletionWrite(ctx, job.ID); err != nil {
		t.Fatalf("CompletionWrite: %v", err)
	}

	got, err := s.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != model.JobStatusFailed {
		t.Fatalf("expected status failed for an unrecognized kind, got %q", got.Status)
	}
}

func TestExpiringDomainsOrdersByExpiryAscending(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	soon := time.Now().UTC().Add(-1 * time.Hour)
	sooner := time.Now().UTC().Add(-48 * time.Hour)
	future := time.Now().UTC().Add(48 * time.Hour)
	s.DB.Create(&model.Domain{Name: "expires-soon.com", IsRegistered: true, ExpiryDate: &soon})
	s.DB.Create(&model.Domain{Name: "expired-longer-ago.com", IsRegistered: true, ExpiryDate: &sooner})
	s.DB.Create(&model.Domain{Name: "not-yet.com", IsRegistered: true, ExpiryDate: &future})
	s.DB.Create(&model.Domain{Name: "unregistered-but-old.com", IsRegistered: false, ExpiryDate: &sooner})

	expiring, err := s.ExpiringDomains(ctx)
	if err != nil {
		t.Fatalf("ExpiringDomains: %v", err)
	}
	if len(expiring) != 2 {
		t.Fatalf("expected 2 expired registered domains, got %d: %+v", len(expiring), expiring)
	}
	if expiring[0].Name != "expired-longer-ago.com" || expiring[1].Name != "expires-soon.com" {
		t.Fatalf("expected ascending expiry_date order, got %+v", expiring)
	}
}

func TestFlushCheckReportsAvailabilityTransition(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	now := time.Now().UTC()
	dom := &model.Domain{Name: "expiring.com", IsRegistered: true, LastChecked: &now}
	if err := s.DB.Create(dom).Error; err != nil {
		t.Fatalf("seed domain: %v", err)
	}

	transitions, err := s.FlushCheck(ctx, 0, []model.LookupResult{
		{Name: "expiring.com", IsRegistered: false, Source: model.SourceWHOIS},
	})
	if err != nil {
		t.Fatalf("FlushCheck: %v", err)
	}
	if len(transitions) != 1 || transitions[0].Name != "expiring.com" {
		t.Fatalf("expected one availability transition for expiring.com, got %+v", transitions)
	}
}

func TestStaleDomainsOrdersNullsFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	old := time.Now().UTC().Add(-48 * time.Hour)
	s.DB.Create(&model.Domain{Name: "never-checked.com", IsRegistered: true})
	s.DB.Create(&model.Domain{Name: "stale.com", IsRegistered: true, LastChecked: &old})
	fresh := time.Now().UTC()
	s.DB.Create(&model.Domain{Name: "fresh.com", IsRegistered: true, LastChecked: &fresh})

	stale, err := s.StaleDomains(ctx, 10, time.Hour)
	if err != nil {
		t.Fatalf("StaleDomains: %v", err)
	}
	if len(stale) != 2 {
		t.Fatalf("expected 2 stale domains, got %d: %+v", len(stale), stale)
	}
}
