// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"time"

	domainwatch "github.com/domainwatch/engine"
	"github.com/domainwatch/engine/internal/model"
)

// Notifier is the minimal surface the store needs from the Notifier
// Sink: fire-and-forget delivery of a registered-to-available
// transition. The store never blocks a flush on notification delivery.
type Notifier interface {
	Notify(model.NotificationEvent)
}

// FlushHandler wraps the Lookup Engine's Handler with the persistence
// step: every batch of LookupResults is flushed to storage, and any
// availability transitions it produced are handed to a Notifier. This
// mirrors the source engine's DatabaseWriter, which decorated a Handler
// with a database-flush step ahead of calling the next Handler in the
// chain; here there is no next Handler; the chain ends at persistence.
type FlushHandler struct {
	store    *Store
	notifier Notifier
	next     domainwatch.Handler
}

// NewFlushHandler builds a FlushHandler that resolves each batch with
// next, persists the results, and emits transitions to notifier.
func NewFlushHandler(store *Store, notifier Notifier, next domainwatch.Handler) *FlushHandler {
	return &FlushHandler{store: store, notifier: notifier, next: next}
}

func (h *FlushHandler) Handle(ctx context.Context, b domainwatch.Batch) ([]model.LookupResult, error) {
	results, err := h.next.Handle(ctx, b)
	if err != nil {
		return nil, err
	}

	var transitions []Transition
	if len(b.IDs) > 0 {
		transitions, err = h.store.FlushCheck(ctx, b.JobID, results)
	} else {
		transitions, err = h.store.FlushImport(ctx, b.JobID, results)
	}
	if err != nil {
		return results, err
	}

	if err := h.store.CompletionWrite(ctx, b.JobID); err != nil {
		return results, err
	}

	if h.notifier != nil {
		now := time.Now().UTC()
		for _, t := range transitions {
			h.notifier.Notify(model.NotificationEvent{
				DomainID:   t.DomainID,
				Name:       t.Name,
				Kind:       "available",
				ObservedAt: now,
			})
		}
	}
	return results, nil
}
