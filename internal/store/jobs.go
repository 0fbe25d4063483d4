// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"time"

	"github.com/domainwatch/engine/internal/model"
)

// CreateJob inserts a new pending Job carrying payload, returning the
// row with its assigned ID.
func (s *Store) CreateJob(ctx context.Context, userID uint64, payload model.Payload) (*model.Job, error) {
	raw, err := payload.Marshal()
	if err != nil {
		return nil, err
	}

	job := &model.Job{
		UserID:  userID,
		Kind:    payload.Kind,
		Status:  model.JobStatusPending,
		Total:   payload.Len(),
		Payload: raw,
	}
	if err := s.DB.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

// GetJob loads a single Job by id.
func (s *Store) GetJob(ctx context.Context, id uint64) (*model.Job, error) {
	var job model.Job
	if err := s.DB.WithContext(ctx).First(&job, id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns every Job belonging to userID, most recent first.
func (s *Store) ListJobs(ctx context.Context, userID uint64) ([]model.Job, error) {
	var jobs []model.Job
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").Find(&jobs).Error
	return jobs, err
}

// DeleteJob removes a Job row outright; it does not touch any Domain
// rows the job may have already written.
func (s *Store) DeleteJob(ctx context.Context, id uint64) error {
	return s.DB.WithContext(ctx).Delete(&model.Job{}, id).Error
}

// Resume resets a processing Job whose owning process crashed back to
// pending, leaving Processed untouched: the next claim loop picks up
// exactly where the crashed one left off, since Processed only ever
// advances inside the same serializable transaction that reads it.
func (s *Store) Resume(ctx context.Context, id uint64) (*model.Job, error) {
	if err := s.DB.WithContext(ctx).Model(&model.Job{}).
		Where("id = ? AND status = ?", id, model.JobStatusProcessing).
		Update("status", model.JobStatusPending).Error; err != nil {
		return nil, err
	}
	return s.GetJob(ctx, id)
}

// NamesByID loads the Name column for a batch of Domain ids, in the
// order sqlite/postgres/mysql happen to return them; callers that need
// id-to-result correlation should match back on the name, not position.
func (s *Store) NamesByID(ctx context.Context, ids []uint64) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var names []string
	err := s.DB.WithContext(ctx).Model(&model.Domain{}).
		Where("id IN ?", ids).
		Pluck("name", &names).Error
	return names, err
}

// StaleDomains returns up to limit registered Domain rows whose
// LastChecked is older than horizon (or never set), for the
// scheduler's periodic whois_check enqueue. The threshold is computed
// in Go rather than with a dialect-specific date function, since the
// three supported dialects don't agree on one.
func (s *Store) StaleDomains(ctx context.Context, limit int, horizon time.Duration) ([]model.Domain, error) {
	threshold := time.Now().UTC().Add(-horizon)

	var domains []model.Domain
	err := s.DB.WithContext(ctx).
		Where("is_registered = ? AND (last_checked IS NULL OR last_checked < ?)", true, threshold).
		Order("(last_checked IS NULL) DESC, last_checked ASC").
		Limit(limit).
		Find(&domains).Error
	return domains, err
}

// ExpiringDomains returns every registered Domain row whose ExpiryDate
// has already passed, ordered soonest-expired first: the scheduler's
// primary availability-detection trigger, independent of how recently
// the row was last checked.
func (s *Store) ExpiringDomains(ctx context.Context) ([]model.Domain, error) {
	today := time.Now().UTC()

	var domains []model.Domain
	err := s.DB.WithContext(ctx).
		Where("is_registered = ? AND expiry_date IS NOT NULL AND expiry_date <= ?", true, today).
		Order("expiry_date ASC").
		Find(&domains).Error
	return domains, err
}
