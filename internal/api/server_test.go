// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	domainwatch "github.com/domainwatch/engine"
	"github.com/domainwatch/engine/internal/claimctx"
	"github.com/domainwatch/engine/internal/model"
	"github.com/domainwatch/engine/internal/store"
	"github.com/domainwatch/engine/internal/workerpool"
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

func newTestServer(t *testing.T) (*Server, *httptest.Server, *store.Store) {
	t.Helper()
	s := openTestStore(t)

	resolved := domainwatch.HandlerFunc(func(_ context.Context, b domainwatch.Batch) ([]model.LookupResult, error) {
		out := make([]model.LookupResult, 0, len(b.Names))
		for _, n := range b.Names {
			out = append(out, model.LookupResult{Name: n, IsRegistered: true, Source: model.SourceRDAP})
		}
		return out, nil
	})
	chain := store.NewFlushHandler(s, nil, resolved)

	pool := workerpool.New(workerpool.Options{
		Store: s, Workers: 1, BatchSize: 10,
		PollEvery: 10 * time.Millisecond, Retry: workerpool.DefaultRetryPolicy(),
	})

	srv := NewServer(Options{
		Store:    s,
		Pool:     pool,
		Progress: claimctx.NewManager(),
		Handler:  chain,
	})
	ts := httptest.NewServer(srv.srv.Handler)
	t.Cleanup(ts.Close)
	return srv, ts, s
}

func TestCreateAndGetJob(t *testing.T) {
	_, ts, s := newTestServer(t)
	userID := uint64(1)
	s.DB.Create(&model.User{ID: userID, Email: "a@example.com", PasswordHash: "x"})

	body, _ := json.Marshal(createJobRequest{UserID: userID, Kind: "import", Names: []string{"one.com", "two.com"}})
	resp, err := http.Post(ts.URL+"/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /jobs: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var job model.Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.Total != 2 {
		t.Fatalf("expected total 2, got %d", job.Total)
	}

	getResp, err := http.Get(ts.URL + "/jobs/" + itoa(job.ID))
	if err != nil {
		t.Fatalf("GET /jobs/{id}: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", getResp.StatusCode)
	}
}

func TestProcessJobRunsOneCycleAndCompletesAcrossCalls(t *testing.T) {
	_, ts, s := newTestServer(t)
	userID := uint64(1)
	s.DB.Create(&model.User{ID: userID, Email: "b@example.com", PasswordHash: "x"})

	job, err := s.CreateJob(context.Background(), userID, model.ImportPayload([]string{"three.com", "four.com", "five.com"}))
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	body, _ := json.Marshal(processJobRequest{BatchSize: 1})
	first, err := http.Post(ts.URL+"/jobs/"+itoa(job.ID)+"/process", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST process: %v", err)
	}
	defer first.Body.Close()
	if first.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.StatusCode)
	}
	var firstResp processJobResponse
	if err := json.NewDecoder(first.Body).Decode(&firstResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if firstResp.NoWork {
		t.Fatalf("first call should have found work")
	}
	if firstResp.Job == nil || firstResp.Job.Processed != 1 {
		t.Fatalf("expected exactly one name processed by the first call, got %+v", firstResp.Job)
	}
	if firstResp.Job.Status != model.JobStatusProcessing {
		t.Fatalf("expected status processing after a partial cycle, got %q", firstResp.Job.Status)
	}

	var last *model.Job
	for i := 0; i < 10; i++ {
		resp, err := http.Post(ts.URL+"/jobs/"+itoa(job.ID)+"/process", "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("POST process: %v", err)
		}
		var out processJobResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			resp.Body.Close()
			t.Fatalf("decode: %v", err)
		}
		resp.Body.Close()
		if out.NoWork {
			last = out.Job
			break
		}
		last = out.Job
	}
	if last == nil || last.Status != model.JobStatusCompleted {
		t.Fatalf("expected job to reach completed status, got %+v", last)
	}
	if last.Processed != last.Total {
		t.Fatalf("expected processed == total once completed, got %d/%d", last.Processed, last.Total)
	}
}

func TestProcessJobReportsNoWorkOnceExhausted(t *testing.T) {
	_, ts, s := newTestServer(t)
	userID := uint64(1)
	s.DB.Create(&model.User{ID: userID, Email: "c@example.com", PasswordHash: "x"})

	job, err := s.CreateJob(context.Background(), userID, model.ImportPayload([]string{"six.com"}))
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	resp, err := http.Post(ts.URL+"/jobs/"+itoa(job.ID)+"/process", "application/json", nil)
	if err != nil {
		t.Fatalf("POST process: %v", err)
	}
	resp.Body.Close()

	second, err := http.Post(ts.URL+"/jobs/"+itoa(job.ID)+"/process", "application/json", nil)
	if err != nil {
		t.Fatalf("POST process: %v", err)
	}
	defer second.Body.Close()
	if second.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", second.StatusCode)
	}
	var out processJobResponse
	if err := json.NewDecoder(second.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.NoWork {
		t.Fatalf("expected no_work once the job is fully claimed, got %+v", out)
	}
	if out.Job == nil || out.Job.Status != model.JobStatusCompleted {
		t.Fatalf("expected the no_work response to still carry the completed job, got %+v", out.Job)
	}
}

func TestGetUnknownJobReturns404(t *testing.T) {
	_, ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/jobs/999999")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func itoa(id uint64) string {
	return strconv.FormatUint(id, 10)
}
