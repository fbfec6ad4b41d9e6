// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/beaver/pkg/logging"
	"github.com/AleutianAI/beaver/pkg/ux"
	"github.com/AleutianAI/beaver/services/beaver/config"
	"github.com/AleutianAI/beaver/services/beaver/runner"
	"github.com/AleutianAI/beaver/services/beaver/storage/badger"
	"github.com/AleutianAI/beaver/services/beaver/telemetry"
)

// globalOptions holds the persistent flags.
type globalOptions struct {
	configPath string
	logLevel   string
	jsonOutput bool
	storePath  string
}

// app is the wiring shared by every command.
type app struct {
	cfg      config.Config
	logger   *logging.Logger
	printer  *ux.Printer
	chain    *runner.Chain
	store    *badger.Store
	shutdown func(context.Context) error
}

// appOptions selects the parts of the wiring a command needs.
type appOptions struct {
	store   bool
	metrics bool
}

// newApp loads configuration and builds the shared wiring.
//
// Description:
//
//	Flags override the loaded configuration. Telemetry is initialized from
//	the telemetry section, except that the Prometheus exporter is only
//	installed for commands that serve /metrics. The store is opened only
//	when requested and configured.
//
// Outputs:
//
//	*app - Ready wiring. Must be closed.
//	error - Non-nil if configuration, telemetry or the store fail.
func newApp(cmd *cobra.Command, g *globalOptions, opts appOptions) (*app, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		level, err := logging.ParseLevel(g.logLevel)
		if err != nil {
			return nil, err
		}
		cfg.Logging.Level = level
	}
	if g.storePath != "" {
		cfg.Store.Path = g.storePath
	}
	cfg.Logging.Output = cmd.ErrOrStderr()

	a := &app{cfg: cfg, printer: ux.NewPrinter(cmd.OutOrStdout(), outputMode(cmd.OutOrStdout(), g.jsonOutput))}
	a.logger = logging.New(cfg.Logging)

	tcfg := cfg.Telemetry
	if !opts.metrics && tcfg.MetricExporter == telemetry.ExporterPrometheus {
		tcfg.MetricExporter = telemetry.ExporterNone
	}
	tcfg.Writer = cmd.ErrOrStderr()
	tcfg.Deciders = cfg.Deciders
	a.shutdown, err = telemetry.Init(cmd.Context(), tcfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.chain, err = runner.NewChain(runner.DefaultRegistry(), runner.ChainConfig{
		Deciders: cfg.Deciders,
		Budget:   cfg.Budget,
		Verify:   cfg.Runner.VerifyCertificates,
	}, a.logger.Slog())
	if err != nil {
		a.Close()
		return nil, err
	}

	if opts.store && cfg.Store.Enabled() {
		bcfg := badger.DefaultConfig(cfg.Store.Path)
		if cfg.Store.InMemory {
			bcfg = badger.InMemoryConfig()
		}
		bcfg.Logger = a.logger.Slog()
		db, err := badger.Open(bcfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.store = badger.NewStore(db, a.logger.Slog())
	}
	return a, nil
}

// Close releases the store, flushes telemetry and closes the log file.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close store", slog.String("error", err.Error()))
		}
	}
	if a.shutdown != nil {
		if err := a.shutdown(context.Background()); err != nil {
			a.logger.Warn("telemetry shutdown", slog.String("error", err.Error()))
		}
	}
	_ = a.logger.Close()
}

// certificateStore returns the store as a runner.CertificateStore, or nil
// when no store is open.
func (a *app) certificateStore() runner.CertificateStore {
	if a.store == nil {
		return nil
	}
	return a.store
}

// outputMode detects the mode for w, treating non-file writers as pipes.
func outputMode(w io.Writer, jsonOutput bool) ux.Mode {
	f, _ := w.(*os.File)
	return ux.DetectMode(f, jsonOutput)
}

// errNoStore is returned by commands that need a store when none is
// configured.
var errNoStore = errors.New("no certificate store configured (use --store or store.path)")
