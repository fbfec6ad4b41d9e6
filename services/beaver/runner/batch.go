// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/beaver/services/beaver/decider"
	"github.com/AleutianAI/beaver/services/beaver/machine"
	"github.com/AleutianAI/beaver/services/beaver/storage/badger"
	"github.com/AleutianAI/beaver/services/beaver/telemetry"
)

var meter = otel.Meter("beaver.runner")

// CertificateStore persists decisions. *badger.Store implements it.
type CertificateStore interface {
	Put(ctx context.Context, m *machine.Machine, d decider.Decision, runID string) (badger.Record, error)
}

// Item is one line of batch input and its outcome.
type Item struct {
	// Line is the 1-based input line number.
	Line int `json:"line"`

	// Input is the machine text as read.
	Input string `json:"input"`

	// Result is set when the machine was parsed and decided.
	Result *Result `json:"result,omitempty"`

	// Err is set when the line could not be parsed or decided.
	Err error `json:"-"`
}

// Summary aggregates a batch run.
type Summary struct {
	RunID      string               `json:"run_id"`
	Total      int                  `json:"total"`
	NonHalting int                  `json:"non_halting"`
	Unknown    int                  `json:"unknown"`
	Failed     int                  `json:"failed"`
	ByDecider  map[decider.Kind]int `json:"by_decider"`
	Duration   time.Duration        `json:"duration_ns"`
}

func (s *Summary) add(it Item) {
	s.Total++
	switch {
	case it.Err != nil:
		s.Failed++
	case it.Result.Decision.Proven():
		s.NonHalting++
		s.ByDecider[it.Result.Decision.Decider]++
	default:
		s.Unknown++
	}
}

// BatchConfig configures a Batch.
type BatchConfig struct {
	// Workers bounds concurrently decided machines. Values below 1 mean 1.
	Workers int

	// Store receives every decision when non-nil.
	Store CertificateStore
}

// Batch decides many machines concurrently.
//
// Thread Safety: Safe for concurrent use. Each Run gets its own run ID.
type Batch struct {
	chain   *Chain
	workers int
	store   CertificateStore
	logger  *slog.Logger

	// Metrics (initialized lazily)
	metricsOnce   sync.Once
	machinesTotal metric.Int64Counter
	provenTotal   metric.Int64Counter
	batchLatency  metric.Float64Histogram
}

// NewBatch creates a batch runner around chain.
//
// Inputs:
//   - chain: The chain run on every machine. Must not be nil.
//   - cfg: Worker count and optional store.
//   - logger: Logger for run logs. If nil, uses slog.Default().
func NewBatch(chain *Chain, cfg BatchConfig, logger *slog.Logger) *Batch {
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Batch{
		chain:   chain,
		workers: workers,
		store:   cfg.Store,
		logger:  logger.With("component", "batch"),
	}
}

// initMetrics lazily initializes metrics.
// Logs errors if metric creation fails but continues execution.
func (b *Batch) initMetrics() {
	b.metricsOnce.Do(func() {
		var initErrors []string

		var err error
		b.machinesTotal, err = meter.Int64Counter("beaver_batch_machines_total",
			metric.WithDescription("Machines processed by batch runs"),
		)
		if err != nil {
			initErrors = append(initErrors, "machines_total: "+err.Error())
		}

		b.provenTotal, err = meter.Int64Counter("beaver_batch_proven_total",
			metric.WithDescription("Machines proven non-halting by batch runs"),
		)
		if err != nil {
			initErrors = append(initErrors, "proven_total: "+err.Error())
		}

		b.batchLatency, err = meter.Float64Histogram("beaver_batch_duration_seconds",
			metric.WithDescription("Wall time of a batch run"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "batch_latency: "+err.Error())
		}

		if len(initErrors) > 0 {
			b.logger.Error("failed to initialize some batch metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// Run decides every machine in src and calls emit for each in input order.
//
// Description:
//
//	src holds one machine per line. Blank lines and lines starting with '#'
//	are skipped, and only the first whitespace separated field of a line is
//	read. Lines that fail to parse are emitted with Err set and do not stop
//	the run. A decider hard error or an emit error cancels the remaining
//	work and is returned.
//
// Inputs:
//   - ctx: Cancels the run.
//   - src: Line-oriented machine source.
//   - emit: Called from the calling goroutine, in input order.
//
// Outputs:
//   - Summary: Counts over the emitted items.
//   - error: The first hard error, emit error, or read error.
func (b *Batch) Run(ctx context.Context, src io.Reader, emit func(Item) error) (Summary, error) {
	b.initMetrics()
	start := time.Now()
	runID := uuid.NewString()
	sum := Summary{RunID: runID, ByDecider: make(map[decider.Kind]int)}

	items, err := readItems(src)
	if err != nil {
		return sum, err
	}

	ctx, span := telemetry.StartBatchSpan(ctx, runID, len(items))
	defer span.End()

	b.logger.InfoContext(ctx, "batch started",
		slog.String("run_id", runID),
		slog.Int("machines", len(items)),
		slog.Int("workers", b.workers),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	ready := make([]chan struct{}, len(items))
	for i := range ready {
		ready[i] = make(chan struct{})
	}

	waitErr := make(chan error, 1)
	go func() {
		for i := range items {
			g.Go(func() error {
				defer close(ready[i])
				return b.decideItem(gctx, runID, &items[i])
			})
		}
		waitErr <- g.Wait()
	}()

	var emitErr error
	for i := range items {
		<-ready[i]
		if emitErr != nil || skipped(items[i]) {
			continue
		}
		sum.add(items[i])
		if err := emit(items[i]); err != nil {
			emitErr = fmt.Errorf("emit line %d: %w", items[i].Line, err)
			cancel()
		}
	}
	runErr := <-waitErr

	sum.Duration = time.Since(start)
	b.machinesTotal.Add(ctx, int64(sum.Total))
	b.provenTotal.Add(ctx, int64(sum.NonHalting))
	b.batchLatency.Record(ctx, sum.Duration.Seconds())

	err = emitErr
	if err == nil {
		err = runErr
	}
	if err == nil {
		// The parent context may be cancelled with no task left to notice.
		err = ctx.Err()
	}
	if err != nil {
		telemetry.RecordError(span, err)
		b.logger.WarnContext(ctx, "batch stopped",
			slog.String("run_id", runID),
			slog.Int("emitted", sum.Total),
			slog.String("error", err.Error()),
		)
		return sum, err
	}

	b.logger.InfoContext(ctx, "batch completed",
		slog.String("run_id", runID),
		slog.Int("total", sum.Total),
		slog.Int("non_halting", sum.NonHalting),
		slog.Int("unknown", sum.Unknown),
		slog.Int("failed", sum.Failed),
		slog.Duration("duration", sum.Duration),
	)
	return sum, nil
}

// decideItem parses and decides one item in place. Only hard errors are
// returned; parse errors stay on the item.
func (b *Batch) decideItem(ctx context.Context, runID string, it *Item) error {
	if err := ctx.Err(); err != nil {
		it.Err = err
		return nil
	}
	m, err := machine.Parse(it.Input)
	if err != nil {
		it.Err = err
		return nil
	}
	res, err := b.chain.Decide(ctx, m)
	if err != nil {
		it.Err = err
		return err
	}
	it.Result = &res

	if b.store != nil {
		if _, err := b.store.Put(ctx, m, res.Decision, runID); err != nil {
			b.logger.Warn("store write failed",
				slog.String("machine", res.Machine),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// skipped reports whether the item was never decided because the run was
// cancelled first. Parse failures and hard errors are still emitted.
func skipped(it Item) bool {
	return it.Result == nil && (errors.Is(it.Err, context.Canceled) || errors.Is(it.Err, context.DeadlineExceeded))
}

// readItems reads the machine lines of src.
func readItems(src io.Reader) ([]Item, error) {
	var items []Item
	sc := bufio.NewScanner(src)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		items = append(items, Item{Line: line, Input: strings.Fields(text)[0]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read machines: %w", err)
	}
	return items, nil
}
