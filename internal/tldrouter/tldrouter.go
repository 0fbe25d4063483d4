// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package tldrouter decides, for a given domain name, whether the
// Lookup Engine should query RDAP or fall straight through to WHOIS.
// It wraps an *rdap.Client configured with the IANA bootstrap service
// (github.com/openrdap/rdap/bootstrap), the same construction used by
// the reference openrdap CLI, and layers a tldcache.Cache in front of
// it so a TLD the bootstrap registry has no RDAP server for (.corp,
// some ccTLDs) is remembered instead of re-queried on every lookup.
package tldrouter

import (
	"net/url"
	"strings"

	"github.com/openrdap/rdap"
	"github.com/openrdap/rdap/bootstrap"
	"github.com/openrdap/rdap/bootstrap/cache"

	"github.com/domainwatch/engine/internal/tldcache"
)

// ErrNoRDAPServer means the bootstrap registry has no RDAP server for
// the domain's TLD; the caller should fall back to WHOIS.
type ErrNoRDAPServer struct{ TLD string }

func (e *ErrNoRDAPServer) Error() string {
	return "no RDAP server bootstrapped for TLD " + e.TLD
}

// Router resolves names to RDAP clients pre-wired with the correct
// bootstrap server, memoizing negative results in a tldcache.Cache.
type Router struct {
	client    *rdap.Client
	bootstrap *bootstrap.Client
	cache     *tldcache.Cache
}

// Options configures a Router.
type Options struct {
	// BootstrapURL overrides the IANA bootstrap service base URL.
	// Empty uses bootstrap.DefaultBaseURL.
	BootstrapURL string
	// CacheSize bounds the in-memory TLD cache; 0 uses tldcache's default.
	CacheSize int
	// UserAgent is sent on every RDAP HTTP request.
	UserAgent string
}

// New builds a Router. The bootstrap client uses an in-memory cache
// rather than openrdap's on-disk default, since the daemon process
// already keeps its own tldcache.Cache and has no need for a second,
// file-backed layer underneath it.
func New(opts Options) (*Router, error) {
	c, err := tldcache.New(opts.CacheSize)
	if err != nil {
		return nil, err
	}

	bs := &bootstrap.Client{Cache: cache.NewMemoryCache()}
	if opts.BootstrapURL != "" {
		u, err := url.Parse(opts.BootstrapURL)
		if err != nil {
			return nil, err
		}
		bs.BaseURL = u
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = "domainwatch/1.0"
	}

	return &Router{
		client:    &rdap.Client{Bootstrap: bs, UserAgent: ua},
		bootstrap: bs,
		cache:     c,
	}, nil
}

// Client returns the underlying *rdap.Client, for the Lookup Engine to
// issue the actual domain query against.
func (r *Router) Client() *rdap.Client {
	return r.client
}

// ShouldSkipRDAP reports whether name's TLD was previously recorded as
// having no RDAP server, letting the caller skip straight to WHOIS
// without paying for another failed bootstrap round-trip.
func (r *Router) ShouldSkipRDAP(name string) bool {
	return r.cache.IsMiss(tld(name))
}

// RecordOutcome remembers whether RDAP had a usable server for name's
// TLD, so future lookups for the same TLD can consult the cache first.
// hadServer is false when the bootstrap registry returned no RDAP
// server for the TLD; it is not used to record transient network
// failures, only the registry's own coverage.
func (r *Router) RecordOutcome(name string, hadServer bool) {
	t := tld(name)
	if hadServer {
		base := bootstrap.DefaultBaseURL
		if r.bootstrap.BaseURL != nil {
			base = r.bootstrap.BaseURL.String()
		}
		r.cache.Set(t, base)
	} else {
		r.cache.SetMiss(t)
	}
}

func tld(name string) string {
	name = strings.TrimSuffix(strings.ToLower(name), ".")
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}
