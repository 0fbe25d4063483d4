// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"log/syslog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	slogsyslog "github.com/samber/slog-syslog/v2"

	"github.com/domainwatch/engine/internal/api"
	"github.com/domainwatch/engine/internal/claimctx"
	"github.com/domainwatch/engine/internal/config"
	"github.com/domainwatch/engine/internal/jobkind"
	"github.com/domainwatch/engine/internal/lookup"
	"github.com/domainwatch/engine/internal/metrics"
	"github.com/domainwatch/engine/internal/notifier"
	"github.com/domainwatch/engine/internal/scheduler"
	"github.com/domainwatch/engine/internal/store"
	"github.com/domainwatch/engine/internal/tldrouter"
	"github.com/domainwatch/engine/internal/whois"
	"github.com/domainwatch/engine/internal/workerpool"
)

func main() {
	var logdir string
	flag.StringVar(&logdir, "log-dir", "", "path to the log directory")
	cfg := config.Defaults()
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, closeLog := buildLogger(logdir, cfg.SyslogAddr)
	defer closeLog()

	s, err := store.Open(store.Dialect(cfg.DatabaseDriver), cfg.DatabaseDSN)
	if err != nil {
		log.Error("failed to open the store", "error", err)
		os.Exit(1)
	}
	defer s.Close()

	router, err := tldrouter.New(tldrouter.Options{BootstrapURL: cfg.RDAPBootstrapURL})
	if err != nil {
		log.Error("failed to build the RDAP router", "error", err)
		os.Exit(1)
	}
	whoisClient, err := whois.New()
	if err != nil {
		log.Error("failed to build the WHOIS client", "error", err)
		os.Exit(1)
	}

	m := metrics.New()

	engine := lookup.New(lookup.Options{
		Concurrency:      cfg.Concurrency,
		WhoisFallbackCap: cfg.WhoisFallbackCap,
		Router:           router,
		WhoisClient:      whoisClient,
		Metrics:          m,
	})

	var sinks []notifier.Sink
	if cfg.NtfyServer != "" && cfg.NtfyTopic != "" {
		sinks = append(sinks, notifier.NewNtfySink(cfg.NtfyServer, cfg.NtfyTopic))
	}
	if cfg.SMTPHost != "" {
		sinks = append(sinks, &notifier.SMTPSink{
			Host: cfg.SMTPHost, Port: cfg.SMTPPort,
			Username: cfg.SMTPUser, Password: cfg.SMTPPass, From: cfg.SMTPFrom,
		})
	}
	notify := notifier.New(256, log, sinks...).WithMetrics(m)

	registry := jobkind.New(engine, s)
	chain := store.NewFlushHandler(s, notify, registry.Handler())

	progress := claimctx.NewManager()
	pool := workerpool.New(workerpool.Options{
		Store: s, Progress: progress, Workers: cfg.Workers,
		BatchSize: cfg.BatchSize, Retry: workerpool.DefaultRetryPolicy(),
		Log: log, Metrics: m,
	})

	sched := scheduler.New(scheduler.Options{
		Store: s, Interval: cfg.SchedulerInterval,
		Batch: cfg.StaleBatch, Horizon: cfg.StaleHorizon, Log: log,
	})

	httpServer := api.NewServer(api.Options{
		Addr: cfg.HTTPAddr, Store: s, Pool: pool, Progress: progress,
		Handler: chain, Metrics: m, Log: log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go notify.Run(ctx)
	go func() {
		if err := sched.Run(ctx); err != nil {
			log.Error("scheduler stopped", "error", err)
		}
	}()
	go func() {
		log.Info("Job API listening", "addr", cfg.HTTPAddr)
		if err := httpServer.Start(); err != nil {
			log.Error("Job API stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)
	<-quit

	log.Info("shutting down domainwatchd")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Job API shutdown did not complete cleanly", "error", err)
	}
	_ = pool.Stop(shutdownCtx)
	notify.Wait()
}

// buildLogger constructs the daemon's slog.Logger: JSON lines to a
// rotated-by-run log file, plus an optional syslog sink when
// syslogAddr is set.
func buildLogger(logdir, syslogAddr string) (*slog.Logger, func()) {
	var handlers []slog.Handler
	closeFns := []func(){}

	if logdir != "" {
		if err := os.MkdirAll(logdir, 0750); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create the log directory: %v\n", err)
		}
	}
	filename := fmt.Sprintf("domainwatchd_%s.log", time.Now().Format("2006-01-02T15:04:05"))
	f, err := os.OpenFile(filepath.Join(logdir, filename), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		handlers = append(handlers, slog.NewJSONHandler(os.Stderr, nil))
	} else {
		handlers = append(handlers, slog.NewJSONHandler(f, nil))
		closeFns = append(closeFns, func() { f.Close() })
	}

	if syslogAddr != "" {
		w, err := syslog.Dial("udp", syslogAddr, syslog.LOG_INFO, "domainwatchd")
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to dial syslog at %s: %v\n", syslogAddr, err)
		} else {
			handlers = append(handlers, slogsyslog.Option{Level: slog.LevelInfo, Writer: w}.NewSyslogHandler())
			closeFns = append(closeFns, func() { w.Close() })
		}
	}

	logger := slog.New(multiHandler{handlers: handlers})
	return logger, func() {
		for _, c := range closeFns {
			c()
		}
	}
}
