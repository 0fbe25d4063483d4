// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package notifier is the Notifier Sink (C7): a bounded, buffered
// channel fed by store.FlushHandler and drained by a single dispatch
// goroutine that delivers each availability transition to the
// configured Sinks (ntfy push, SMTP email). Delivery is fire-and-forget
// from the caller's perspective, the same publish-to-a-buffered-channel
// shape the source engine used for its log pubsub, except a full
// channel here drops the event rather than blocking the flush path,
// since a dropped notification is far cheaper than stalling storage.
package notifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/domainwatch/engine/internal/model"
)

// Sink delivers a single NotificationEvent to an external system.
type Sink interface {
	Send(ctx context.Context, ev model.NotificationEvent) error
}

// observer receives one (sink, ok) pair per delivery attempt.
type observer interface {
	ObserveNotification(sink string, ok bool)
}

// Notifier buffers NotificationEvents and fans them out to every
// configured Sink from a dedicated goroutine.
type Notifier struct {
	events chan model.NotificationEvent
	sinks  []Sink
	log    *slog.Logger
	done   chan struct{}
	obs    observer
}

// New builds a Notifier with the given buffer capacity and sinks. A
// capacity of 0 defaults to 256, matching the source pubsub logger's
// own fixed buffer depth scaled up for notification fan-out rather than
// line-by-line log messages.
func New(capacity int, log *slog.Logger, sinks ...Sink) *Notifier {
	if capacity <= 0 {
		capacity = 256
	}
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		events: make(chan model.NotificationEvent, capacity),
		sinks:  sinks,
		log:    log,
		done:   make(chan struct{}),
	}
}

// WithMetrics attaches an observer that records one counter increment
// per sink delivery attempt, returning n for chaining at construction.
func (n *Notifier) WithMetrics(obs observer) *Notifier {
	n.obs = obs
	return n
}

// Notify enqueues ev for delivery. If the buffer is full, ev is dropped
// and logged rather than blocking the caller, since Notify is always
// called from the storage flush path.
func (n *Notifier) Notify(ev model.NotificationEvent) {
	select {
	case n.events <- ev:
	default:
		n.log.Warn("notification dropped, buffer full", "domain", ev.Name, "kind", ev.Kind)
	}
}

// Run drains events and dispatches them to every sink until ctx is
// cancelled. It is meant to run on its own goroutine for the lifetime
// of the daemon process.
func (n *Notifier) Run(ctx context.Context) {
	defer close(n.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-n.events:
			n.dispatch(ctx, ev)
		}
	}
}

func (n *Notifier) dispatch(ctx context.Context, ev model.NotificationEvent) {
	for _, sink := range n.sinks {
		err := sink.Send(ctx, ev)
		if err != nil {
			n.log.Error("notification delivery failed", "domain", ev.Name, "error", err)
		}
		if n.obs != nil {
			n.obs.ObserveNotification(fmt.Sprintf("%T", sink), err == nil)
		}
	}
}

// Wait blocks until Run has returned, for graceful shutdown ordering.
func (n *Notifier) Wait() {
	<-n.done
}
