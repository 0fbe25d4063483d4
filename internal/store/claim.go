// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/domainwatch/engine/internal/model"
)

// ErrNoWork is returned by Claim when a Job has no unclaimed range left.
var ErrNoWork = errors.New("store: no unclaimed work remains")

// Claim is one worker's exclusive slice of a Job's payload: the
// half-open range [Start, End) of Payload.Names or Payload.IDs it alone
// is responsible for processing and flushing.
type Claim struct {
	JobID   uint64
	Kind    model.JobKind
	Payload model.Payload
	Start   int
	End     int
}

// Claim atomically advances job.Processed by up to batchSize and hands
// the caller the range it now exclusively owns, using a serializable
// transaction so two workers racing on the same job never receive
// overlapping ranges. The row lock is SELECT ... FOR UPDATE under
// Postgres/MySQL and SQLite's own single-writer serialization under
// sqlite; both are expressed through the same gorm.DB.Transaction call.
func (s *Store) Claim(ctx context.Context, jobID uint64, batchSize int) (*Claim, error) {
	var claim *Claim

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var job model.Job
		if err := tx.Clauses(lockingClause(s.dialect)).
			Where("id = ?", jobID).
			First(&job).Error; err != nil {
			return fmt.Errorf("claim: load job %d: %w", jobID, err)
		}

		if job.Status == model.JobStatusCompleted || job.Status == model.JobStatusFailed {
			return ErrNoWork
		}
		if job.Processed >= job.Total {
			return ErrNoWork
		}

		payload, err := model.UnmarshalPayload(job.Payload)
		if err != nil {
			return fmt.Errorf("claim: unmarshal payload for job %d: %w", jobID, err)
		}

		start := job.Processed
		end := start + batchSize
		if end > job.Total {
			end = job.Total
		}

		job.Processed = end
		job.Status = model.JobStatusProcessing
		if err := tx.Model(&model.Job{}).Where("id = ?", jobID).
			Updates(map[string]any{
				"processed": job.Processed,
				"status":    job.Status,
			}).Error; err != nil {
			return fmt.Errorf("claim: advance job %d: %w", jobID, err)
		}

		claim = &Claim{
			JobID:   jobID,
			Kind:    job.Kind,
			Payload: payload,
			Start:   start,
			End:     end,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// lockingClause returns the row-lock clause appropriate for dialect.
// SQLite has no SELECT ... FOR UPDATE syntax of its own; gorm's sqlite
// driver accepts the clause and relies on the engine's single-writer
// transaction serialization to provide the same exclusivity.
func lockingClause(_ Dialect) clause.Expression {
	return clause.Locking{Strength: "UPDATE"}
}
