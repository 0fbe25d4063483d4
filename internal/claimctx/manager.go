// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package claimctx tracks the most recent claim reported for each Job,
// so the Job API's websocket progress stream can report the end of the
// range last claimed rather than only the committed Processed count.
// It is a thread-safe map manager adapted from the
// source engine's session manager, keyed by Job ID instead of a
// session UUID.
package claimctx

import "sync"

// Progress is the live view of a single worker's current claim.
type Progress struct {
	JobID     uint64
	Start     int
	End       int
	Completed bool
}

// Manager tracks the most recent Progress reported for each Job
// currently being worked, independent of what's committed to storage.
type Manager struct {
	mu    sync.RWMutex
	byJob map[uint64]Progress
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{byJob: make(map[uint64]Progress)}
}

// Report records p as the latest known progress for its Job.
func (m *Manager) Report(p Progress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byJob[p.JobID] = p
}

// Get returns the latest Progress recorded for jobID, if any.
func (m *Manager) Get(jobID uint64) (Progress, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byJob[jobID]
	return p, ok
}

// Clear drops a Job's tracked progress once it completes or fails,
// since storage is the durable record from that point on.
func (m *Manager) Clear(jobID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byJob, jobID)
}
