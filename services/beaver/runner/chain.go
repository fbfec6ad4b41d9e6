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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/beaver/services/beaver/decider"
	"github.com/AleutianAI/beaver/services/beaver/machine"
	"github.com/AleutianAI/beaver/services/beaver/telemetry"
	"github.com/AleutianAI/beaver/services/beaver/verify"
)

// ErrNoDeciders is returned by NewChain for an empty decider list.
var ErrNoDeciders = errors.New("no deciders configured")

// ChainConfig configures a Chain.
type ChainConfig struct {
	// Deciders is the order deciders are tried in. Empty means
	// decider.DefaultOrder.
	Deciders []decider.Kind

	// Budget is passed to every decider.
	Budget decider.Budget

	// Verify re-checks certificates before they are returned.
	Verify bool
}

// Result is the outcome of running a Chain on one machine.
type Result struct {
	// Machine is the compact text form of the machine.
	Machine string `json:"machine"`

	// Decision is the first non-halting decision, or the last Unknown when
	// no decider succeeded.
	Decision decider.Decision `json:"decision"`

	// Attempts holds every decision in the order the deciders ran,
	// including withheld ones.
	Attempts []decider.Decision `json:"attempts"`

	// Duration is the wall time of the whole chain.
	Duration time.Duration `json:"duration_ns"`
}

// Chain tries deciders in order on a single machine.
//
// Thread Safety: Chain is read-only after NewChain and safe for concurrent
// use.
type Chain struct {
	deciders []decider.Decider
	budget   decider.Budget
	verify   bool
	limits   verify.Limits
	logger   *slog.Logger
}

// NewChain builds a chain from a registry.
//
// Inputs:
//   - reg: Registry to look deciders up in.
//   - cfg: Order, budget and verification switch.
//   - logger: Logger for attempt logs. If nil, uses slog.Default().
//
// Outputs:
//   - *Chain: The chain.
//   - error: Wraps decider.ErrInvalidBudget or decider.ErrUnknownDecider.
func NewChain(reg *decider.Registry, cfg ChainConfig, logger *slog.Logger) (*Chain, error) {
	if err := cfg.Budget.Validate(); err != nil {
		return nil, err
	}
	kinds := cfg.Deciders
	if len(kinds) == 0 {
		kinds = decider.DefaultOrder
	}
	ds, err := reg.Select(kinds)
	if err != nil {
		return nil, err
	}
	if len(ds) == 0 {
		return nil, ErrNoDeciders
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		deciders: ds,
		budget:   cfg.Budget,
		verify:   cfg.Verify,
		limits:   verify.LimitsFor(cfg.Budget),
		logger:   logger.With("component", "runner"),
	}, nil
}

// Budget returns the budget the chain runs deciders with.
func (c *Chain) Budget() decider.Budget {
	return c.budget
}

// Decide runs the chain on m.
//
// Description:
//
//	Each decider runs in its own span. The first proven decision whose
//	certificate passes verification (when enabled) ends the chain. A
//	certificate that fails verification is logged at error level, counted,
//	and replaced by Unknown with reason "unverified".
//
// Outputs:
//   - Result: The chain result. Valid even when error is non-nil, holding
//     the attempts made so far.
//   - error: A decider's hard error (invariant violation or cancellation).
//
// Thread Safety: Safe for concurrent use.
func (c *Chain) Decide(ctx context.Context, m *machine.Machine) (Result, error) {
	start := time.Now()
	res := Result{Machine: m.String()}

	ctx, span := telemetry.StartChainSpan(ctx, res.Machine, len(c.deciders))
	defer span.End()

	for _, d := range c.deciders {
		dec, err := c.attempt(ctx, d, m)
		if err != nil {
			res.Duration = time.Since(start)
			telemetry.RecordError(span, err, telemetry.AttrDecider.String(string(d.Kind())))
			return res, fmt.Errorf("%s on %s: %w", d.Kind(), res.Machine, err)
		}
		res.Attempts = append(res.Attempts, dec)
		res.Decision = dec
		if dec.Proven() {
			break
		}
	}

	res.Duration = time.Since(start)
	telemetry.RecordDecision(span, res.Decision)
	return res, nil
}

// attempt runs one decider and applies verification.
func (c *Chain) attempt(ctx context.Context, d decider.Decider, m *machine.Machine) (decider.Decision, error) {
	kind := d.Kind()
	ctx, span := telemetry.StartDeciderSpan(ctx, kind, m.String())
	defer span.End()

	start := time.Now()
	dec, err := d.Decide(ctx, m, c.budget)
	elapsed := time.Since(start)
	if err != nil {
		telemetry.RecordError(span, err)
		return decider.Decision{}, err
	}

	if dec.Proven() && c.verify {
		if verr := verify.Check(ctx, m, dec.Certificate, c.limits); verr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return decider.Decision{}, ctxErr
			}
			c.logger.ErrorContext(ctx, "certificate failed verification",
				slog.String("machine", m.String()),
				slog.String("decider", string(kind)),
				slog.String("error", verr.Error()),
			)
			telemetry.RecordRejected(span, kind, verr)
			recordVerificationFailure(kind)
			dec = decider.Unknown(kind, decider.ReasonUnverified, dec.Steps)
		}
	}

	recordAttempt(dec, elapsed.Seconds())
	telemetry.RecordDecision(span, dec)
	c.logger.DebugContext(ctx, "decider attempt",
		slog.String("machine", m.String()),
		slog.String("decider", string(kind)),
		slog.String("verdict", string(dec.Verdict)),
		slog.String("reason", string(dec.Reason)),
		slog.Int64("steps", dec.Steps),
		slog.Duration("elapsed", elapsed),
	)
	return dec, nil
}
