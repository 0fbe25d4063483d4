// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package api is the Job API (C8): a plain REST surface over the Job
// queue, adapted from the source engine's GraphQL server down to a
// ServeMux of JSON handlers since the spec needs CRUD-plus-watch, not a
// query language. The websocket progress stream keeps the source
// server's gorilla/websocket transport even though the GraphQL
// subscription machinery it rode on here is gone.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"gorm.io/gorm"

	domainwatch "github.com/domainwatch/engine"
	"github.com/domainwatch/engine/internal/claimctx"
	"github.com/domainwatch/engine/internal/metrics"
	"github.com/domainwatch/engine/internal/model"
	"github.com/domainwatch/engine/internal/store"
	"github.com/domainwatch/engine/internal/workerpool"
)

type key string

const keyServerAddr key = "serverAddr"

// Server is the Job API's http.Server plus everything its handlers
// close over.
type Server struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	srv    *http.Server

	store     *store.Store
	pool      *workerpool.Pool
	progress  *claimctx.Manager
	handler   domainwatch.Handler
	metrics   *metrics.Metrics
	log       *slog.Logger
	batchSize int
}

// Options configures a Server.
type Options struct {
	Addr     string
	Store    *store.Store
	Pool     *workerpool.Pool
	Progress *claimctx.Manager
	// Handler is the full claim-to-flush chain (jobkind.Registry wrapped
	// in store.FlushHandler) the pool hands each claimed batch to.
	Handler domainwatch.Handler
	Metrics *metrics.Metrics
	Log     *slog.Logger
	// BatchSize is the claim size POST /jobs/{id}/process uses when the
	// request omits batch_size. Matches workerpool.New's own default.
	BatchSize int
}

// NewServer builds a Server listening on opts.Addr. It does not start
// listening until Start is called.
func NewServer(opts Options) *Server {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}

	s := &Server{
		store:     opts.Store,
		pool:      opts.Pool,
		progress:  opts.Progress,
		handler:   opts.Handler,
		metrics:   opts.Metrics,
		log:       opts.Log,
		batchSize: opts.BatchSize,
		done:      make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /jobs", s.handleCreateJob)
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	mux.HandleFunc("DELETE /jobs/{id}", s.handleDeleteJob)
	mux.HandleFunc("POST /jobs/{id}/process", s.handleProcessJob)
	mux.HandleFunc("POST /jobs/{id}/resume", s.handleResumeJob)
	mux.HandleFunc("GET /jobs/{id}/watch", s.handleWatchJob)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics.Handler())
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.ctx = ctx
	s.cancel = cancel
	s.srv = &http.Server{
		Addr:    opts.Addr,
		Handler: mux,
		BaseContext: func(l net.Listener) context.Context {
			return context.WithValue(ctx, keyServerAddr, l.Addr().String())
		},
	}
	return s
}

// Start blocks serving HTTP until Shutdown is called or ListenAndServe
// fails.
func (s *Server) Start() error {
	err := s.srv.ListenAndServe()
	s.cancel()
	close(s.done)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := s.store.DB.DB()
	if err != nil || sqlDB.PingContext(r.Context()) != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createJobRequest struct {
	UserID uint64   `json:"user_id"`
	Kind   string   `json:"kind"`
	Names  []string `json:"names,omitempty"`
	IDs    []uint64 `json:"ids,omitempty"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}

	var payload model.Payload
	switch model.JobKind(req.Kind) {
	case model.JobKindImport:
		if len(req.Names) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "import jobs require at least one name"})
			return
		}
		payload = model.ImportPayload(req.Names)
	case model.JobKindWhoisCheck:
		if len(req.IDs) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "whois_check jobs require at least one id"})
			return
		}
		payload = model.CheckPayload(req.IDs)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "kind must be import or whois_check"})
		return
	}

	job, err := s.store.CreateJob(r.Context(), req.UserID, payload)
	if err != nil {
		s.log.Error("create job failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create job"})
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseUint(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id query parameter is required"})
		return
	}
	jobs, err := s.store.ListJobs(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list jobs"})
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDFromPath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load job"})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDFromPath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.store.DeleteJob(r.Context(), id); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete job"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type processJobRequest struct {
	BatchSize int `json:"batch_size,omitempty"`
}

// processJobResponse is the post-flush job row, plus NoWork when the
// job had no unclaimed range left to give this call: either it was
// already complete, or every remaining slice had already been claimed
// by a concurrent caller.
type processJobResponse struct {
	Job    *model.Job `json:"job,omitempty"`
	NoWork bool       `json:"no_work,omitempty"`
}

// handleProcessJob synchronously runs exactly one claim+lookup+flush
// cycle against this Job and returns the post-flush row over this same
// request, for an active client driving work without a long-lived
// worker. It never touches the Worker Pool; that component exists to
// drive jobs unattended, this endpoint to drive one on demand.
func (s *Server) handleProcessJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDFromPath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var req processJobRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
			return
		}
	}
	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = s.batchSize
	}

	claim, err := s.store.Claim(r.Context(), id, batchSize)
	if err != nil {
		if errors.Is(err, store.ErrNoWork) {
			job, gerr := s.store.GetJob(r.Context(), id)
			if gerr != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load job"})
				return
			}
			writeJSON(w, http.StatusOK, processJobResponse{Job: job, NoWork: true})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "claim failed"})
		return
	}

	s.progress.Report(claimctx.Progress{JobID: id, Start: claim.Start, End: claim.End})

	batch := domainwatch.Batch{JobID: id}
	switch claim.Kind {
	case model.JobKindImport:
		batch.Names = claim.Payload.SliceNames(claim.Start, claim.End)
	case model.JobKindWhoisCheck:
		batch.IDs = claim.Payload.SliceIDs(claim.Start, claim.End)
	}

	if _, err := s.handler.Handle(r.Context(), batch); err != nil {
		s.log.Error("synchronous job processing failed", "job_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "batch processing failed"})
		return
	}

	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load job"})
		return
	}
	writeJSON(w, http.StatusOK, processJobResponse{Job: job})
}

func (s *Server) handleResumeJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDFromPath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	job, err := s.store.Resume(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to resume job"})
		return
	}
	go func() {
		if err := s.pool.Run(s.ctx, job.ID, s.handler); err != nil {
			s.log.Error("resumed job processing ended with an error", "job_id", job.ID, "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, job)
}

func jobIDFromPath(r *http.Request) (uint64, error) {
	return strconv.ParseUint(r.PathValue("id"), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
