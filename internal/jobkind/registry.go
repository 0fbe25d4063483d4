// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package jobkind maps a model.JobKind to the Lookup Engine call that
// knows how to resolve its batch shape (raw names for an import, ids
// already in storage for a whois_check), the same registry-of-functions
// keyed by a request type the source engine used for its script
// handlers, adapted here to the two fixed kinds the Job queue carries
// instead of the source engine's arbitrary request-type scripts.
package jobkind

import (
	"context"
	"fmt"

	domainwatch "github.com/domainwatch/engine"
	"github.com/domainwatch/engine/internal/model"
	"github.com/domainwatch/engine/internal/store"
)

// Resolver looks up a batch of names, the shape both the Lookup Engine
// and an import-only test double both satisfy.
type Resolver interface {
	Resolve(ctx context.Context, names []string) []model.LookupResult
}

// Registry dispatches a Batch to the Resolver and, for whois_check
// batches, first translates the claimed Domain ids back into names.
type Registry struct {
	resolver Resolver
	store    *store.Store
}

// New builds a Registry over resolver, using store to translate
// whois_check id batches back into names before resolving them.
func New(resolver Resolver, s *store.Store) *Registry {
	return &Registry{resolver: resolver, store: s}
}

// Handler returns a domainwatch.Handler that dispatches each Batch by
// its populated field: Names for an import, IDs for a whois_check.
func (r *Registry) Handler() domainwatch.Handler {
	return domainwatch.HandlerFunc(func(ctx context.Context, b domainwatch.Batch) ([]model.LookupResult, error) {
		switch {
		case len(b.Names) > 0:
			return r.resolver.Resolve(ctx, b.Names), nil
		case len(b.IDs) > 0:
			names, err := r.store.NamesByID(ctx, b.IDs)
			if err != nil {
				return nil, fmt.Errorf("jobkind: resolve ids for job %d: %w", b.JobID, err)
			}
			return r.resolver.Resolve(ctx, names), nil
		default:
			return nil, nil
		}
	})
}
