// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package tldcache wraps the TLD Router's bootstrap lookups in an
// in-memory LRU, including a negative entry for TLDs the bootstrap
// registry has no RDAP server for. This mirrors the cache-in-front-of-a-
// slower-backend shape of the source system's asset cache, swapping its
// hand-rolled map-of-maps for hashicorp/golang-lru/v2.
package tldcache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// entry holds either a resolved RDAP base URL or a recorded miss.
type entry struct {
	url string
	neg bool
}

// Cache is a fixed-capacity, thread-safe TLD -> RDAP base URL cache.
// golang-lru/v2 already serializes its own accesses, so Cache needs no
// additional locking of its own.
type Cache struct {
	lru *lru.Cache[string, entry]
}

// New builds a Cache holding at most size entries. A size of 0 falls
// back to a sensible default rather than failing, since an unsized
// bootstrap table (the IANA registry carries roughly 1500 TLDs) is the
// common case.
func New(size int) (*Cache, error) {
	if size <= 0 {
		size = 2048
	}
	c, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

// Get returns the cached RDAP base URL for tld. found is true for both
// positive and negative hits; callers distinguish a negative hit by an
// empty url.
func (c *Cache) Get(tld string) (url string, found bool) {
	e, ok := c.lru.Get(tld)
	if !ok {
		return "", false
	}
	if e.neg {
		return "", true
	}
	return e.url, true
}

// Set records a resolved RDAP base URL for tld.
func (c *Cache) Set(tld, url string) {
	c.lru.Add(tld, entry{url: url})
}

// IsMiss reports whether tld is cached as a confirmed negative: the
// bootstrap registry has no RDAP server for it. It returns false both
// when tld is uncached and when it is cached with a positive URL, so
// callers can use it directly as a WHOIS-skip-RDAP signal.
func (c *Cache) IsMiss(tld string) bool {
	e, ok := c.lru.Get(tld)
	return ok && e.neg
}

// SetMiss records that the bootstrap registry has no RDAP server for
// tld, so the TLD Router can short-circuit straight to the WHOIS
// fallback on the next lookup instead of re-querying the registry.
func (c *Cache) SetMiss(tld string) {
	c.lru.Add(tld, entry{neg: true})
}

// Len reports the current number of cached TLDs, positive and negative.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Purge clears the cache, forcing every subsequent lookup back to the
// bootstrap registry.
func (c *Cache) Purge() {
	c.lru.Purge()
}
