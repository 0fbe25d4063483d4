// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm/clause"

	"github.com/domainwatch/engine/internal/model"
)

// Transition is a Domain whose registration state flipped from
// registered to available between its previous row and this flush, the
// trigger for the Notifier Sink.
type Transition struct {
	DomainID uint64
	Name     string
}

// FlushImport writes a batch of import LookupResults as upsert-by-name
// Domain rows: a name seen for the first time gets a new row; a name
// already present has its registration state refreshed in the same
// statement, so a re-imported name picks up whatever the new lookup
// observed rather than keeping a stale row. Results carrying
// error="invalid-name" never reached a lookup and are excluded; they
// still count against the Job's errors via recordErrors.
func (s *Store) FlushImport(ctx context.Context, jobID uint64, results []model.LookupResult) ([]Transition, error) {
	if len(results) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	rows := make([]model.Domain, 0, len(results))
	prior := make(map[string]model.Domain, len(results))

	for _, r := range results {
		if r.Error != "" {
			continue
		}
		rows = append(rows, model.Domain{
			Name:         r.Name,
			IsRegistered: r.IsRegistered,
			ExpiryDate:   r.ExpiryDate,
			LastChecked:  &now,
		})

		// The existing-name filter answers "definitely new" for the
		// common case at import scale, letting most names skip the
		// SQL round trip entirely; only names it flags as possibly
		// present are worth querying for their prior state.
		if s.existing == nil || s.existing.MaybeExists(r.Name) {
			var before model.Domain
			err := s.DB.WithContext(ctx).
				Select("id", "name", "is_registered").
				Where("name = ?", r.Name).First(&before).Error
			if err == nil {
				prior[r.Name] = before
			}
		}
	}

	if len(rows) > 0 {
		if err := s.DB.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "name"}},
				DoUpdates: clause.AssignmentColumns([]string{"is_registered", "expiry_date", "last_checked"}),
			}).
			CreateInBatches(rows, 500).Error; err != nil {
			return nil, err
		}
	}

	var transitions []Transition
	for _, r := range results {
		if r.Error != "" {
			continue
		}
		before, ok := prior[r.Name]
		if !ok {
			if s.existing != nil {
				s.existing.Observe(r.Name)
			}
			continue
		}
		if before.IsRegistered && !r.IsRegistered {
			transitions = append(transitions, Transition{DomainID: before.ID, Name: r.Name})
		}
	}

	return transitions, s.recordErrors(ctx, jobID, results)
}

// FlushCheck writes a batch of whois_check LookupResults back onto
// their existing Domain rows by name, returning the set of domains
// whose registration flipped from registered to available so the
// caller can notify on them.
func (s *Store) FlushCheck(ctx context.Context, jobID uint64, results []model.LookupResult) ([]Transition, error) {
	if len(results) == 0 {
		return nil, nil
	}

	var transitions []Transition
	var merr *multierror.Error

	now := time.Now().UTC()
	for _, r := range results {
		var existing model.Domain
		if err := s.DB.WithContext(ctx).Where("name = ?", r.Name).First(&existing).Error; err != nil {
			merr = multierror.Append(merr, err)
			continue
		}

		wasRegistered := existing.IsRegistered
		updates := map[string]any{
			"is_registered": r.IsRegistered,
			"expiry_date":   r.ExpiryDate,
			"last_checked":  &now,
		}
		if err := s.DB.WithContext(ctx).Model(&model.Domain{}).
			Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
			merr = multierror.Append(merr, err)
			continue
		}

		if wasRegistered && !r.IsRegistered {
			transitions = append(transitions, Transition{DomainID: existing.ID, Name: existing.Name})
		}
	}

	if err := s.recordErrors(ctx, jobID, results); err != nil {
		merr = multierror.Append(merr, err)
	}

	return transitions, merr.ErrorOrNil()
}

// recordErrors increments the Job's error counter by the number of
// results that failed to resolve, so the Job API can report a non-zero
// errors count even though those names were never written as rows.
func (s *Store) recordErrors(ctx context.Context, jobID uint64, results []model.LookupResult) error {
	var failed int
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Model(&model.Job{}).
		Where("id = ?", jobID).
		UpdateColumn("errors", clause.Expr{SQL: "errors + ?", Vars: []any{failed}}).Error
}

// CompletionWrite marks a Job completed once its Processed count has
// reached Total; it is a no-op otherwise. A Job is marked failed
// instead, regardless of Processed/Total, when its Kind is not one the
// worker knows how to interpret — the only condition spec'd to produce
// a failed job, as opposed to a completed job carrying a nonzero
// errors count. The write is idempotent: re-applying it to an already
// completed or failed Job is harmless.
func (s *Store) CompletionWrite(ctx context.Context, jobID uint64) error {
	var job model.Job
	if err := s.DB.WithContext(ctx).First(&job, jobID).Error; err != nil {
		return err
	}

	switch job.Kind {
	case model.JobKindImport, model.JobKindWhoisCheck:
		if job.Processed < job.Total {
			return nil
		}
		return s.DB.WithContext(ctx).Model(&model.Job{}).Where("id = ?", jobID).
			Update("status", model.JobStatusCompleted).Error
	default:
		return s.DB.WithContext(ctx).Model(&model.Job{}).Where("id = ?", jobID).
			Update("status", model.JobStatusFailed).Error
	}
}
