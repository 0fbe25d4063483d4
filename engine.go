// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package engine declares the chain-of-responsibility Handler each
// claimed Job batch flows through: resolve, persist, notify. Storage
// and notification are wired in as Handler decorators around the
// Lookup Engine the same way the source engine wired its DatabaseWriter
// handler around request resolution.
package engine

import (
	"context"

	"github.com/domainwatch/engine/internal/model"
)

// Batch is one claimed slice of a Job: the names or ids a worker just
// pulled off the queue, ready for the Lookup Engine.
type Batch struct {
	JobID uint64
	Names []string
	IDs   []uint64
}

// Handler processes a claimed Batch and produces LookupResults. Each
// concern (resolving, persisting, notifying) wraps the next Handler in
// the chain rather than reaching into the others directly.
type Handler interface {
	Handle(ctx context.Context, b Batch) ([]model.LookupResult, error)
}

// HandlerFunc lets a plain function satisfy Handler.
type HandlerFunc func(ctx context.Context, b Batch) ([]model.LookupResult, error)

func (f HandlerFunc) Handle(ctx context.Context, b Batch) ([]model.LookupResult, error) {
	return f(ctx, b)
}
