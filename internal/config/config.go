// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package config builds the single Config record threaded explicitly
// into the scheduler, worker pool, and lookup engine at startup. This
// replaces the source system's process-wide constants/global defines
// (see the design note in SPEC_FULL.md §9) with one value constructed
// once and passed down.
package config

import (
	"flag"
	"fmt"
	"time"
)

// Config parameterizes every component of the bulk domain-status
// pipeline. A zero Config is not valid; use New or Defaults.
type Config struct {
	// Concurrency is the Lookup Engine's rolling-window fan-out (C2).
	Concurrency int
	// Workers is the number of concurrent claim loops per process (C5).
	Workers int
	// BatchSize is the slice size claimed per claim-loop iteration.
	BatchSize int
	// StaleBatch bounds how many stale domains the scheduler scans per tick.
	StaleBatch int
	// StaleHorizon is how old last_checked must be before a domain is stale.
	StaleHorizon time.Duration
	// SchedulerInterval is the cadence of the expiry scanner tick (C6).
	SchedulerInterval time.Duration
	// WhoisFallbackCap bounds sequential WHOIS fallback queries per batch (C3).
	WhoisFallbackCap int

	// DatabaseDriver selects the persistence dialect: "sqlite", "postgres", "mysql".
	DatabaseDriver string
	// DatabaseDSN is the driver-specific connection string.
	DatabaseDSN string

	// NtfyServer and NtfyTopic address the push notification sink (C7).
	NtfyServer string
	NtfyTopic  string

	// SMTP settings for the optional email notification channel (C7).
	// Email delivery is disabled when SMTPHost is empty.
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	// RDAPBootstrapURL is the IANA RDAP bootstrap registry endpoint (C1).
	RDAPBootstrapURL string

	// SyslogAddr, when set, adds a syslog sink alongside the JSON log file.
	SyslogAddr string

	// HTTPAddr is the Job API's listen address (C8).
	HTTPAddr string
}

// Defaults returns a Config populated with the spec's defaults.
func Defaults() Config {
	return Config{
		Concurrency:       200,
		Workers:           4,
		BatchSize:         1000,
		StaleBatch:        500,
		StaleHorizon:      24 * time.Hour,
		SchedulerInterval: time.Minute,
		WhoisFallbackCap:  20,
		DatabaseDriver:    "sqlite",
		DatabaseDSN:       "domainwatch.db",
		RDAPBootstrapURL:  "https://data.iana.org/rdap/dns.json",
		HTTPAddr:          ":8080",
	}
}

// Validate enforces the bounds the spec places on each tunable.
func (c Config) Validate() error {
	if c.Concurrency < 10 || c.Concurrency > 1000 {
		return fmt.Errorf("concurrency must be in [10,1000], got %d", c.Concurrency)
	}
	if c.Workers < 1 || c.Workers > 32 {
		return fmt.Errorf("workers must be in [1,32], got %d", c.Workers)
	}
	if c.BatchSize < 1 || c.BatchSize > 5000 {
		return fmt.Errorf("batch_size must be in [1,5000], got %d", c.BatchSize)
	}
	if c.StaleBatch < 100 {
		return fmt.Errorf("stale_batch must be >= 100, got %d", c.StaleBatch)
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unknown database driver %q", c.DatabaseDriver)
	}
	return nil
}

// RegisterFlags binds the daemon's CLI surface (§6) onto cfg, layered
// over whatever defaults cfg already holds.
func (cfg *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "in-batch RDAP HTTP fan-out (10-1000)")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "process-level worker parallelism (1-32)")
	fs.IntVar(&cfg.BatchSize, "batch", cfg.BatchSize, "slice size claimed per iteration (1-5000)")
	fs.IntVar(&cfg.StaleBatch, "stale-batch", cfg.StaleBatch, "stale domains scanned per scheduler tick")
	fs.DurationVar(&cfg.StaleHorizon, "stale-horizon", cfg.StaleHorizon, "age of last_checked before a domain is stale")
	fs.DurationVar(&cfg.SchedulerInterval, "scheduler-interval", cfg.SchedulerInterval, "expiry scanner tick cadence")
	fs.IntVar(&cfg.WhoisFallbackCap, "whois-fallback-cap", cfg.WhoisFallbackCap, "sequential WHOIS fallback queries per batch")
	fs.StringVar(&cfg.DatabaseDriver, "db-driver", cfg.DatabaseDriver, "sqlite, postgres, or mysql")
	fs.StringVar(&cfg.DatabaseDSN, "db-dsn", cfg.DatabaseDSN, "driver-specific data source name")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "Job API listen address")
	fs.StringVar(&cfg.NtfyServer, "ntfy-server", cfg.NtfyServer, "ntfy push server base URL")
	fs.StringVar(&cfg.NtfyTopic, "ntfy-topic", cfg.NtfyTopic, "ntfy push topic")
	fs.StringVar(&cfg.SMTPHost, "smtp-host", cfg.SMTPHost, "SMTP host (email disabled if empty)")
	fs.IntVar(&cfg.SMTPPort, "smtp-port", cfg.SMTPPort, "SMTP port")
	fs.StringVar(&cfg.SMTPUser, "smtp-user", cfg.SMTPUser, "SMTP username")
	fs.StringVar(&cfg.SMTPPass, "smtp-pass", cfg.SMTPPass, "SMTP password")
	fs.StringVar(&cfg.SMTPFrom, "smtp-from", cfg.SMTPFrom, "SMTP from address")
	fs.StringVar(&cfg.RDAPBootstrapURL, "rdap-bootstrap-url", cfg.RDAPBootstrapURL, "IANA RDAP bootstrap endpoint")
	fs.StringVar(&cfg.SyslogAddr, "syslog-addr", cfg.SyslogAddr, "syslog server address (disabled if empty)")
}
