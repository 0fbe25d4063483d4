// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/domainwatch/engine/internal/model"
)

// NtfySink delivers notifications as plain-text POSTs to an ntfy.sh-
// compatible push server, one topic per deployment.
type NtfySink struct {
	BaseURL string
	Topic   string
	Client  *http.Client
}

// NewNtfySink builds a NtfySink posting to baseURL/topic.
func NewNtfySink(baseURL, topic string) *NtfySink {
	return &NtfySink{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Topic:   topic,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *NtfySink) Send(ctx context.Context, ev model.NotificationEvent) error {
	body := fmt.Sprintf("%s is now available (observed %s)", ev.Name, ev.ObservedAt.Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/"+s.Topic, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Title", "Domain available: "+ev.Name)
	req.Header.Set("Priority", "default")
	req.Header.Set("Tags", "globe_with_meridians")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy: server returned status %s", resp.Status)
	}
	return nil
}
