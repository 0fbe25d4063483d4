// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"encoding/json"
	"fmt"
)

// Payload is the discriminated union carried by a Job's opaque payload
// column: a sequence of raw names for an import, or a sequence of
// Domain ids for a whois_check. It replaces the source system's
// loose-typed JSON job data (see the "Loose-typed JSON payloads" design
// note) with a tagged variant that (de)serializes to the same column.
type Payload struct {
	Kind  JobKind  `json:"kind"`
	Names []string `json:"names,omitempty"`
	IDs   []uint64 `json:"ids,omitempty"`
}

// ImportPayload builds the payload for an import Job.
func ImportPayload(names []string) Payload {
	return Payload{Kind: JobKindImport, Names: names}
}

// CheckPayload builds the payload for a whois_check Job.
func CheckPayload(ids []uint64) Payload {
	return Payload{Kind: JobKindWhoisCheck, IDs: ids}
}

// Len returns the total item count the Job claims against.
func (p Payload) Len() int {
	switch p.Kind {
	case JobKindImport:
		return len(p.Names)
	case JobKindWhoisCheck:
		return len(p.IDs)
	default:
		return 0
	}
}

// Marshal encodes the payload for storage in Job.Payload.
func (p Payload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalPayload decodes a Job.Payload blob back into a Payload.
func UnmarshalPayload(b []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return Payload{}, fmt.Errorf("unmarshal job payload: %w", err)
	}
	return p, nil
}

// SliceNames returns the half-open range [start, end) of an import
// payload's names, clamped to the payload's bounds; it returns nil for
// a whois_check payload. SliceIDs is its counterpart for whois_check ids.
func (p Payload) SliceNames(start, end int) []string {
	if p.Kind != JobKindImport {
		return nil
	}
	return clampSlice(p.Names, start, end)
}

func (p Payload) SliceIDs(start, end int) []uint64 {
	if p.Kind != JobKindWhoisCheck {
		return nil
	}
	return clampSlice(p.IDs, start, end)
}

func clampSlice[T any](s []T, start, end int) []T {
	if start < 0 {
		start = 0
	}
	if end > len(s) {
		end = len(s)
	}
	if start >= end {
		return nil
	}
	return s[start:end]
}
