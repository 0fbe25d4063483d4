// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package lookup is the Lookup Engine (C2): it resolves a batch of
// names to model.LookupResult, querying RDAP through a tldrouter.Router
// with a bounded fan-out, and falling back to WHOIS for names whose TLD
// has no RDAP server or whose RDAP request errored. The RDAP-then-WHOIS
// decision procedure is the one the reference domain-lookup tool uses;
// the bounded fan-out and dedup are adapted from the source engine's
// in-memory request loop.
package lookup

import (
	"context"
	"strings"
	"sync"

	"github.com/caffix/stringset"
	"github.com/openrdap/rdap"
	"go.uber.org/ratelimit"

	"github.com/domainwatch/engine/internal/model"
	"github.com/domainwatch/engine/internal/tldrouter"
	"github.com/domainwatch/engine/internal/whois"
)

// observer receives one (source, outcome) pair per resolved name. It is
// satisfied by *metrics.Metrics without this package importing metrics
// directly, since metrics already depends on nothing lookup needs.
type observer interface {
	ObserveLookup(source, outcome string)
}

// Engine resolves batches of names concurrently.
type Engine struct {
	router   *tldrouter.Router
	whois    *whois.Client
	window   *rollingWindow
	limiter  ratelimit.Limiter
	fallback int
	obs      observer
}

// Options configures an Engine.
type Options struct {
	// Concurrency bounds simultaneous in-flight RDAP requests.
	Concurrency int
	// WhoisFallbackCap bounds the number of WHOIS fallback queries
	// issued per Resolve call; beyond the cap, remaining names are
	// reported as SourceSynthesizedMiss (is_registered=false, no error)
	// without contacting a WHOIS server. Zero or less means no cap.
	WhoisFallbackCap int
	Router           *tldrouter.Router
	WhoisClient      *whois.Client
	// Metrics records per-lookup counters; nil disables instrumentation.
	Metrics observer
}

// New builds an Engine. WHOIS queries are paced to one per second
// regardless of Concurrency, since unlike RDAP the legacy WHOIS
// protocol has no well-behaved concurrent-client convention and most
// registries rate-limit or block bursty TCP/43 traffic.
func New(opts Options) *Engine {
	return &Engine{
		router:   opts.Router,
		whois:    opts.WhoisClient,
		window:   newRollingWindow(opts.Concurrency),
		limiter:  ratelimit.New(1),
		fallback: opts.WhoisFallbackCap,
		obs:      opts.Metrics,
	}
}

func (e *Engine) observe(source model.LookupSource, outcome string) {
	if e.obs != nil {
		e.obs.ObserveLookup(string(source), outcome)
	}
}

// Resolve looks up every name in names, deduplicating repeats within
// the batch with caffix/stringset before issuing any requests, and
// returns one LookupResult per unique cleaned input name. A name that
// does not contain a dot after cleaning is a hard error and never
// reaches RDAP or WHOIS.
func (e *Engine) Resolve(ctx context.Context, names []string) []model.LookupResult {
	set := stringset.New()
	defer set.Close()

	unique := make([]string, 0, len(names))
	for _, n := range names {
		n = cleanName(n)
		if n == "" || set.Has(n) {
			continue
		}
		set.Insert(n)
		unique = append(unique, n)
	}

	results := make([]model.LookupResult, len(unique))
	var wg sync.WaitGroup
	var whoisBudget = newBudget(e.fallback)

	for i, name := range unique {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			if !strings.Contains(name, ".") {
				results[i] = model.LookupResult{Name: name, Error: "invalid-name"}
				return
			}
			results[i] = e.resolveOne(ctx, name, whoisBudget)
		}(i, name)
	}
	wg.Wait()
	return results
}

// cleanName normalizes a raw, user-supplied name the way the Worker
// Pool's import step does: lowercase, strip a leading scheme and
// "www." label, and drop a trailing slash. It does not validate the
// result; callers check for the required dot separately so the
// rejection shows up as a LookupResult, not a silent drop.
func cleanName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimPrefix(name, "https://")
	name = strings.TrimPrefix(name, "http://")
	name = strings.TrimPrefix(name, "www.")
	name = strings.TrimSuffix(name, "/")
	return name
}

func (e *Engine) resolveOne(ctx context.Context, name string, budget *budget) model.LookupResult {
	if e.router != nil && !e.router.ShouldSkipRDAP(name) {
		if res, ok := e.tryRDAP(ctx, name); ok {
			return res
		}
	}
	return e.tryWhois(ctx, name, budget)
}

func (e *Engine) tryRDAP(ctx context.Context, name string) (model.LookupResult, bool) {
	e.window.acquire()
	defer e.window.release()

	req := rdap.NewRequest(rdap.DomainRequest, name)
	req = req.WithContext(ctx)

	resp, err := e.router.Client().Do(req)
	if err != nil {
		// Only the bootstrap registry having no server for this TLD is
		// remembered; other errors fall back to WHOIS for this name only.
		if ce, ok := err.(*rdap.ClientError); ok && ce.Type == rdap.BootstrapNoMatch {
			e.router.RecordOutcome(name, false)
		}
		e.observe(model.SourceRDAP, "miss")
		return model.LookupResult{}, false
	}
	e.router.RecordOutcome(name, true)

	dom, ok := resp.Object.(*rdap.Domain)
	if !ok {
		e.observe(model.SourceRDAP, "error")
		return model.LookupResult{
			Name:   name,
			Source: model.SourceRDAP,
			Error:  "rdap response did not carry a domain object",
		}, true
	}
	e.observe(model.SourceRDAP, "ok")

	result := model.LookupResult{
		Name:         name,
		IsRegistered: true,
		Source:       model.SourceRDAP,
	}
	// RDAP reports the expiration in its events array; registrar name
	// is left to the WHOIS path, whose free-text format carries it
	// consistently where RDAP's vcard entity encoding does not.
	for _, ev := range dom.Events {
		if strings.EqualFold(ev.Action, "expiration") {
			t := ev.Date.Time
			result.ExpiryDate = &t
			break
		}
	}
	return result, true
}

func (e *Engine) tryWhois(ctx context.Context, name string, budget *budget) model.LookupResult {
	if e.whois == nil {
		e.observe(model.SourceRDAPUnroutable, "skipped")
		return model.LookupResult{Name: name, Source: model.SourceRDAPUnroutable}
	}
	if !budget.take() {
		// Over the per-batch WHOIS fallback cap: report an
		// under-approximated miss rather than blocking the batch on
		// rate-sensitive, socket-heavy WHOIS traffic. The caller may
		// retry these names in a later batch.
		e.observe(model.SourceSynthesizedMiss, "capped")
		return model.LookupResult{Name: name, IsRegistered: false, Source: model.SourceSynthesizedMiss}
	}

	e.limiter.Take()
	res, err := e.whois.Query(ctx, name)
	if err != nil {
		e.observe(model.SourceWHOIS, "error")
		return model.LookupResult{Name: name, Source: model.SourceWHOIS, Error: err.Error()}
	}
	e.observe(model.SourceWHOIS, "ok")

	return model.LookupResult{
		Name:         name,
		IsRegistered: res.IsRegistered,
		ExpiryDate:   res.ExpiryDate,
		Registrar:    res.Registrar,
		Source:       model.SourceWHOIS,
	}
}

// budget is a simple concurrency-safe decrementing counter used to cap
// WHOIS fallback queries per batch.
type budget struct {
	mu  sync.Mutex
	n   int
	inf bool
}

func newBudget(n int) *budget {
	if n <= 0 {
		return &budget{inf: true}
	}
	return &budget{n: n}
}

func (b *budget) take() bool {
	if b.inf {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.n <= 0 {
		return false
	}
	b.n--
	return true
}
