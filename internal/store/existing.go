// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"strings"
	"sync"

	boom "github.com/tylertreat/BoomFilters"
)

// ExistingFilter is a fast, approximate pre-filter in front of the
// Domain table's unique name index: at import scale (hundreds of
// thousands of names) it is cheaper to skip the obviously-new majority
// of a batch's prior-state read with a bloom filter than to round-trip
// every name through SQL before FlushImport's upsert does the
// authoritative write.
type ExistingFilter struct {
	mu     sync.RWMutex
	filter *boom.BloomFilter
}

// NewExistingFilter builds a filter sized for roughly capacity domains
// and primes it with every name already in the domains table.
func NewExistingFilter(ctx context.Context, s *Store, capacity uint) (*ExistingFilter, error) {
	f := &ExistingFilter{filter: boom.NewBloomFilter(capacity, 0.01)}

	rows, err := s.DB.WithContext(ctx).Table("domains").Select("name").Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var name string
	for rows.Next() {
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		f.filter.Add([]byte(strings.ToLower(name)))
	}
	return f, nil
}

// MaybeExists reports whether name might already be a tracked Domain.
// A false answer is certain for every name present when the filter was
// primed or observed through this Store since — FlushImport skips the
// prior-state read for it; a true answer still needs that read against
// the database to confirm.
func (f *ExistingFilter) MaybeExists(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.filter.Test([]byte(strings.ToLower(name)))
}

// Observe records name as now-existing, keeping the filter current
// after a successful import without requiring a full rebuild.
func (f *ExistingFilter) Observe(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter.Add([]byte(strings.ToLower(name)))
}
