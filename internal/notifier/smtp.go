// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package notifier

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/domainwatch/engine/internal/model"
)

// SMTPSink delivers notifications as plain-text email over STARTTLS.
// It is disabled by leaving Host empty, rather than by a separate
// feature flag.
type SMTPSink struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

func (s *SMTPSink) Send(ctx context.Context, ev model.NotificationEvent) error {
	if s.Host == "" {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)

	subject := "Domain available: " + ev.Name
	body := fmt.Sprintf("%s became available at %s.\n", ev.Name, ev.ObservedAt.Format(time.RFC3339))

	msg := strings.Join([]string{
		"From: " + s.From,
		"To: " + s.To,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")

	return smtp.SendMail(addr, auth, s.From, []string{s.To}, []byte(msg))
}
