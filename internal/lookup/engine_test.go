// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package lookup

import (
	"context"
	"testing"

	"github.com/domainwatch/engine/internal/model"
	"github.com/domainwatch/engine/internal/whois"
)

func TestTryWhoisReportsSynthesizedMissOverCap(t *testing.T) {
	e := New(Options{
		Concurrency:      1,
		WhoisFallbackCap: 1,
		WhoisClient:      &whois.Client{},
	})

	exhausted := newBudget(1)
	if !exhausted.take() {
		t.Fatalf("setup: expected budget to have one slot")
	}

	res := e.tryWhois(context.Background(), "over-cap.example", exhausted)
	if res.Source != model.SourceSynthesizedMiss {
		t.Fatalf("expected synthesized-miss source, got %q", res.Source)
	}
	if res.IsRegistered {
		t.Fatalf("synthesized miss must report is_registered=false")
	}
	if res.Error != "" {
		t.Fatalf("synthesized miss must not carry an error, got %q", res.Error)
	}
}

func TestTryWhoisSkipsWithoutClient(t *testing.T) {
	e := New(Options{Concurrency: 1})

	res := e.tryWhois(context.Background(), "no-client.example", newBudget(0))
	if res.Source != model.SourceRDAPUnroutable {
		t.Fatalf("expected rdap-unroutable source, got %q", res.Source)
	}
}

func TestResolveRejectsNameWithoutDot(t *testing.T) {
	e := New(Options{Concurrency: 1})

	results := e.Resolve(context.Background(), []string{"foo"})
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	if results[0].Error != "invalid-name" {
		t.Fatalf("expected error=invalid-name, got %q", results[0].Error)
	}
	if results[0].IsRegistered {
		t.Fatalf("an invalid name must never report is_registered=true")
	}
}

func TestResolveCleansSchemeWwwAndTrailingSlash(t *testing.T) {
	e := New(Options{Concurrency: 1})

	results := e.Resolve(context.Background(), []string{"HTTPS://WWW.Example.com/"})
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	if results[0].Name != "example.com" {
		t.Fatalf("expected cleaned name %q, got %q", "example.com", results[0].Name)
	}
	if results[0].Error == "invalid-name" {
		t.Fatalf("cleaned name should retain its dot and not be rejected")
	}
}

func TestBudgetExhausts(t *testing.T) {
	b := newBudget(2)
	if !b.take() || !b.take() {
		t.Fatalf("expected first two takes to succeed")
	}
	if b.take() {
		t.Fatalf("expected budget to be exhausted")
	}
}

func TestBudgetUnbounded(t *testing.T) {
	b := newBudget(0)
	for i := 0; i < 1000; i++ {
		if !b.take() {
			t.Fatalf("unbounded budget should never refuse")
		}
	}
}

func TestRollingWindowBounds(t *testing.T) {
	w := newRollingWindow(2)
	w.acquire()
	w.acquire()

	done := make(chan struct{})
	go func() {
		w.acquire()
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("third acquire should have blocked at concurrency 2")
	default:
	}

	w.release()
	<-done
}
