// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package lookup

// rollingWindow bounds the number of concurrent RDAP requests an Engine
// has in flight, shared by every Resolve call on that Engine; WHOIS
// queries are paced by the Engine's rate limiter instead. It is the same
// buffered-channel-as-
// semaphore idiom the source engine used for bounding concurrent
// request handlers.
type rollingWindow struct {
	slots chan struct{}
}

func newRollingWindow(concurrency int) *rollingWindow {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &rollingWindow{slots: make(chan struct{}, concurrency)}
}

// acquire blocks until a slot is free.
func (w *rollingWindow) acquire() {
	w.slots <- struct{}{}
}

// release frees a slot acquired by acquire.
func (w *rollingWindow) release() {
	<-w.slots
}
