// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package model

import "time"

// LookupSource records which layer of the lookup engine produced a
// LookupResult, so callers can tell an authoritative RDAP/WHOIS answer
// apart from an under-approximated synthesized miss.
type LookupSource string

const (
	SourceRDAP            LookupSource = "rdap"
	SourceWHOIS           LookupSource = "whois"
	SourceSynthesizedMiss LookupSource = "synthesized-miss"
	SourceRDAPUnroutable  LookupSource = "rdap-unroutable"
)

// LookupResult is the in-memory outcome of resolving a single name.
// The Lookup Engine never writes these to storage; the worker pool does.
type LookupResult struct {
	Name         string
	IsRegistered bool
	ExpiryDate   *time.Time
	Registrar    string
	Source       LookupSource
	Error        string
}

// NotificationEvent is the transient fire-and-forget payload handed to
// the notifier sink on a registered->available transition.
type NotificationEvent struct {
	DomainID   uint64
	Name       string
	Kind       string
	ObservedAt time.Time
}
