// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package whois is the legacy TCP/43 fallback the Lookup Engine uses
// when a TLD has no RDAP server, grounded on the same
// github.com/shlin168/go-whois client the reference domain-lookup tool
// uses, with its own date-extraction layer since go-whois's RawText is
// unstructured per-registry free text.
package whois

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	gowhois "github.com/shlin168/go-whois/whois"
)

// Result is the normalized outcome of a WHOIS query.
type Result struct {
	IsRegistered bool
	ExpiryDate   *time.Time
	Registrar    string
	RawText      string
}

// Client wraps the go-whois client with domainwatch's own availability
// and expiry-date inference, since the upstream library only classifies
// IsAvailable for a subset of registries and never extracts the
// expiration date at all.
type Client struct {
	c *gowhois.Client
}

// New builds a Client backed by the go-whois default TCP/43 transport.
func New() (*Client, error) {
	c, err := gowhois.NewClient()
	if err != nil {
		return nil, err
	}
	return &Client{c: c}, nil
}

// Query performs a WHOIS lookup for name, inferring registration status
// and expiry from the raw response text when go-whois itself leaves
// IsAvailable unset.
func (c *Client) Query(ctx context.Context, name string) (*Result, error) {
	raw, err := c.c.Query(ctx, name)
	if err != nil {
		return nil, err
	}

	res := &Result{RawText: raw.RawText}

	switch {
	case raw.IsAvailable != nil:
		res.IsRegistered = !*raw.IsAvailable
	case containsAny(raw.RawText, noMatchPhrases):
		res.IsRegistered = false
	default:
		res.IsRegistered = true
	}

	if res.IsRegistered {
		res.ExpiryDate = extractExpiry(raw.RawText)
		res.Registrar = extractRegistrar(raw.RawText)
	}
	return res, nil
}

// noMatchPhrases are the sentinel strings registries use in lieu of a
// structured "available" signal. Matched case-insensitively.
var noMatchPhrases = []string{
	"no match",
	"not found",
	"no data found",
	"no entries found",
	"status: available",
	"domain not found",
	"no object found",
}

func containsAny(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// expiryPatterns pairs a label regexp with the time layout its captured
// value uses. Checked in order; the first match wins. Registries are
// not consistent about this field's name or format, so domainwatch
// tries the common ones instead of depending on any single registry's
// output.
var expiryPatterns = []struct {
	re     *regexp.Regexp
	layout string
}{
	{regexp.MustCompile(`(?im)^\s*(?:Registry Expiry Date|Registrar Registration Expiration Date|Expiration Date|Expiry Date|paid-till):\s*(\d{4}-\d{2}-\d{2})T`), "2006-01-02"},
	{regexp.MustCompile(`(?im)^\s*(?:Registry Expiry Date|Registrar Registration Expiration Date|Expiration Date|Expiry Date|paid-till):\s*(\d{4}-\d{2}-\d{2})`), "2006-01-02"},
	{regexp.MustCompile(`(?im)^\s*(?:Registry Expiry Date|Expiration Date|Expiry Date):\s*(\d{2}-\w{3}-\d{4})`), "02-Jan-2006"},
	{regexp.MustCompile(`(?im)^\s*(?:Expiration Date|Expiry date):\s*(\d{2}/\d{2}/\d{4})`), "02/01/2006"},
}

func extractExpiry(text string) *time.Time {
	for _, p := range expiryPatterns {
		m := p.re.FindStringSubmatch(text)
		if len(m) != 2 {
			continue
		}
		t, err := time.Parse(p.layout, m[1])
		if err != nil {
			continue
		}
		return &t
	}
	return nil
}

var registrarPattern = regexp.MustCompile(`(?im)^\s*Registrar:\s*(.+)$`)

func extractRegistrar(text string) string {
	m := registrarPattern.FindStringSubmatch(text)
	if len(m) != 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// ErrUnsupportedTLD is returned by callers that cannot locate a WHOIS
// server for a name's TLD; go-whois itself returns its own error in
// that case, this is kept for callers that want a typed sentinel.
var ErrUnsupportedTLD = errors.New("whois: no server known for this TLD")
