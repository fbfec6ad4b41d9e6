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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/beaver/pkg/ux"
	"github.com/AleutianAI/beaver/services/beaver/api"
	"github.com/AleutianAI/beaver/services/beaver/config"
	"github.com/AleutianAI/beaver/services/beaver/decider"
	"github.com/AleutianAI/beaver/services/beaver/machine"
	"github.com/AleutianAI/beaver/services/beaver/runner"
	"github.com/AleutianAI/beaver/services/beaver/verify"
)

// errUndecided makes decide exit non-zero when --strict is set and a machine
// stays unknown.
var errUndecided = errors.New("some machines were not proven non-halting")

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	g := &globalOptions{}

	root := &cobra.Command{
		Use:           "beaver",
		Short:         "Prove Turing machines never halt",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file (YAML or JSON)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&g.jsonOutput, "json", false, "Write results as JSON lines")
	root.PersistentFlags().StringVar(&g.storePath, "store", "", "Certificate store directory")

	root.AddCommand(
		newDecideCmd(g),
		newBatchCmd(g),
		newVerifyCmd(g),
		newServeCmd(g),
	)
	return root
}

// =============================================================================
// decide
// =============================================================================

func newDecideCmd(g *globalOptions) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "decide <machine>...",
		Short: "Run the decider chain on one or more machines",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, g, appOptions{store: true})
			if err != nil {
				return err
			}
			defer a.Close()

			undecided := false
			for _, text := range args {
				m, err := machine.Parse(text)
				if err != nil {
					return err
				}
				res, err := a.chain.Decide(cmd.Context(), m)
				if err != nil {
					return err
				}
				if a.store != nil {
					if _, err := a.store.Put(cmd.Context(), m, res.Decision, ""); err != nil {
						return fmt.Errorf("store %s: %w", res.Machine, err)
					}
				}
				if !res.Decision.Proven() {
					undecided = true
				}
				if err := a.printer.Decision(decisionView(res)); err != nil {
					return err
				}
			}
			if strict && undecided {
				return errUndecided
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero unless every machine is proven")
	return cmd
}

// =============================================================================
// batch
// =============================================================================

func newBatchCmd(g *globalOptions) *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "batch <file|->",
		Short: "Decide every machine in a file, one per line",
		Long: `Reads one machine per line. Blank lines and lines starting with # are
skipped, and only the first field of a line is used. Results are printed in
input order.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, g, appOptions{store: true})
			if err != nil {
				return err
			}
			defer a.Close()

			src, closeSrc, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			defer closeSrc()

			if workers <= 0 {
				workers = a.cfg.Runner.Workers
			}
			b := runner.NewBatch(a.chain, runner.BatchConfig{Workers: workers, Store: a.certificateStore()}, a.logger.Slog())

			summary, err := b.Run(cmd.Context(), src, func(it runner.Item) error {
				if it.Err != nil {
					return a.printer.Failure(it.Input, it.Err)
				}
				return a.printer.Decision(decisionView(*it.Result))
			})
			if err != nil {
				return err
			}
			return a.printer.Summary(summaryView(summary))
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent machines (default from config)")
	return cmd
}

// =============================================================================
// verify
// =============================================================================

func newVerifyCmd(g *globalOptions) *cobra.Command {
	var certPath string
	cmd := &cobra.Command{
		Use:   "verify <machine>",
		Short: "Re-check a certificate independently of the deciders",
		Long: `Checks the certificate stored for the machine, or the certificate in
--certificate (a JSON file, or - for stdin). Exits non-zero when the
certificate does not hold.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, g, appOptions{store: certPath == ""})
			if err != nil {
				return err
			}
			defer a.Close()

			m, err := machine.Parse(args[0])
			if err != nil {
				return err
			}

			var cert *decider.Certificate
			if certPath != "" {
				src, closeSrc, err := openInput(cmd, certPath)
				if err != nil {
					return err
				}
				defer closeSrc()
				cert = &decider.Certificate{}
				if err := json.NewDecoder(src).Decode(cert); err != nil {
					return fmt.Errorf("decode certificate: %w", err)
				}
			} else {
				if a.store == nil {
					return errNoStore
				}
				rec, err := a.store.Get(cmd.Context(), m)
				if err != nil {
					return err
				}
				if rec.Decision.Certificate == nil {
					return fmt.Errorf("%s: stored decision %q has no certificate", rec.Machine, rec.Decision.Verdict)
				}
				cert = rec.Decision.Certificate
			}

			checkErr := verify.Check(cmd.Context(), m, cert, verify.LimitsFor(a.cfg.Budget))
			if err := a.printer.Verified(m.String(), checkErr); err != nil {
				return err
			}
			return checkErr
		},
	}
	cmd.Flags().StringVar(&certPath, "certificate", "", "Certificate JSON file instead of the store")
	return cmd
}

// =============================================================================
// serve
// =============================================================================

func newServeCmd(g *globalOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the decide and verify HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, g, appOptions{store: true, metrics: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			var store api.RecordStore
			if a.store != nil {
				store = a.store
			}
			srv := api.NewServer(a.chain, store, config.Validator(), api.Config{
				RequestsPerSecond: a.cfg.Server.RequestsPerSecond,
				Burst:             a.cfg.Server.Burst,
				Deciders:          a.cfg.Deciders,
			}, a.logger.Slog())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a.logger.Info("starting beaver server", slog.String("addr", addr), slog.Bool("store", store != nil))
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}

// =============================================================================
// Helpers
// =============================================================================

// openInput opens path, or the command's stdin for "-".
func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func decisionView(r runner.Result) ux.DecisionView {
	d := r.Decision
	return ux.DecisionView{
		Machine:  r.Machine,
		Verdict:  string(d.Verdict),
		Decider:  string(d.Decider),
		Reason:   string(d.Reason),
		Steps:    d.Steps,
		Witness:  describe(d.Certificate),
		Duration: r.Duration,
		Proven:   d.Proven(),
	}
}

func summaryView(s runner.Summary) ux.SummaryView {
	by := make(map[string]int, len(s.ByDecider))
	for k, n := range s.ByDecider {
		by[string(k)] = n
	}
	return ux.SummaryView{
		RunID:      s.RunID,
		Total:      s.Total,
		NonHalting: s.NonHalting,
		Unknown:    s.Unknown,
		Failed:     s.Failed,
		ByDecider:  by,
		Duration:   s.Duration,
	}
}

// describe summarizes a certificate's witness in one line.
func describe(c *decider.Certificate) string {
	switch {
	case c == nil:
		return ""
	case c.Cycler != nil:
		w := c.Cycler
		return fmt.Sprintf("repeats steps %d..%d (period %d)", w.Start, w.End, w.Period())
	case c.TCycler != nil:
		w := c.TCycler
		return fmt.Sprintf("state %s repeats steps %d..%d shifted %+d (window %d)", w.State, w.Start, w.End, w.Shift, w.WindowRadius)
	case c.Bouncer != nil:
		w := c.Bouncer
		return fmt.Sprintf("bounces in state %s towards %s, %d records per cycle, tape %s", w.State, w.Side, w.Period, w.Formula)
	case c.Backward != nil:
		w := c.Backward
		if w.Mode == decider.BackwardTree {
			return fmt.Sprintf("backward tree dies at depth %d after %d nodes", w.Depth, w.Nodes)
		}
		return fmt.Sprintf("start %s excluded, %d pairs can reach a halt", w.Start, len(w.Reachable))
	case c.Inductive != nil:
		w := c.Inductive
		return fmt.Sprintf("closed set of %d classes at width %d", len(w.Classes), w.Width)
	}
	return ""
}
