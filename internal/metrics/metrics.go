// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes the daemon's Prometheus instrumentation, a
// dedicated registry rather than the global default so tests can spin
// up an isolated Metrics value without colliding on repeated
// registration.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

// Metrics bundles every counter and histogram the daemon records, all
// registered on its own Registry.
type Metrics struct {
	registry *prometheus.Registry

	LookupsTotal        *prometheus.CounterVec
	NotificationsTotal  *prometheus.CounterVec
	ClaimFailuresTotal  prometheus.Counter
	JobsCompletedTotal  *prometheus.CounterVec
	BatchLookupDuration *prometheus.HistogramVec
}

// New builds a Metrics value with every collector registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		LookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "domainwatch",
			Name:      "lookups_total",
			Help:      "Name resolutions performed, by source and outcome.",
		}, []string{"source", "outcome"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "domainwatch",
			Name:      "notifications_total",
			Help:      "Availability notifications dispatched, by sink and result.",
		}, []string{"sink", "result"}),
		ClaimFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "domainwatch",
			Name:      "claim_failures_total",
			Help:      "Batch claim attempts that errored before exhausting their retry budget.",
		}),
		JobsCompletedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "domainwatch",
			Name:      "jobs_completed_total",
			Help:      "Jobs that reached a terminal status, by kind and status.",
		}, []string{"kind", "status"}),
		BatchLookupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "domainwatch",
			Name:      "batch_lookup_duration_seconds",
			Help:      "Wall time spent resolving one claimed batch.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.LookupsTotal,
		m.NotificationsTotal,
		m.ClaimFailuresTotal,
		m.JobsCompletedTotal,
		m.BatchLookupDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the http.Handler that serves this Metrics' Registry in
// the Prometheus exposition format, meant to be mounted at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveLookup records one name resolution outcome.
func (m *Metrics) ObserveLookup(source, outcome string) {
	m.LookupsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveNotification records one sink delivery attempt.
func (m *Metrics) ObserveNotification(sink string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.NotificationsTotal.WithLabelValues(sink, result).Inc()
}

// ObserveJobCompletion records a Job reaching a terminal status.
func (m *Metrics) ObserveJobCompletion(kind, status string) {
	m.JobsCompletedTotal.WithLabelValues(kind, status).Inc()
}

// IncClaimFailure records one claim attempt that errored before a batch
// could be handed to the handler.
func (m *Metrics) IncClaimFailure() {
	m.ClaimFailuresTotal.Inc()
}

// ObserveBatchDuration records the wall time spent handling one claimed
// batch of the given kind.
func (m *Metrics) ObserveBatchDuration(kind string, seconds float64) {
	m.BatchLookupDuration.WithLabelValues(kind).Observe(seconds)
}
