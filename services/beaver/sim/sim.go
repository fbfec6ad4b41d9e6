// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sim runs a machine step by step from the blank tape.
//
// The simulator is the only place machine semantics are executed. Every
// decider replays its evidence through it and the certificate verifier does
// the same, so a bug here cannot be hidden by one decider agreeing with
// another.
package sim

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/beaver/services/beaver/machine"
	"github.com/AleutianAI/beaver/services/beaver/tape"
)

// ErrNegativeBudget is returned by Run when the step budget is negative.
var ErrNegativeBudget = errors.New("negative step budget")

// =============================================================================
// Configuration
// =============================================================================

// Configuration is a snapshot of a running machine.
type Configuration struct {
	// State is the current state.
	State machine.State

	// Head is the absolute head position. The machine starts at 0.
	Head int64

	// Step counts transitions applied so far.
	Step int64

	// Tape holds the cells, anchored at the head.
	Tape *tape.Tape
}

// Initial returns the start configuration: state A, head 0, blank tape.
func Initial() *Configuration {
	return &Configuration{State: machine.Start, Tape: tape.New()}
}

// Clone returns an independent copy.
func (c *Configuration) Clone() *Configuration {
	return &Configuration{State: c.State, Head: c.Head, Step: c.Step, Tape: c.Tape.Clone()}
}

// Pair returns the (state, symbol) pair the next transition looks up.
func (c *Configuration) Pair() machine.Pair {
	return machine.Pair{State: c.State, Symbol: c.Tape.Read()}
}

// String renders the configuration for logs and test failures.
func (c *Configuration) String() string {
	return fmt.Sprintf("step=%d state=%s head=%d tape=%s", c.Step, c.State, c.Head, c.Tape)
}

// =============================================================================
// Single step
// =============================================================================

// Result describes one attempted transition.
type Result struct {
	// Halted is true when the looked-up cell is a halting cell. The
	// configuration is left unchanged in that case.
	Halted bool

	// Outcome is the applied transition.
	Outcome machine.Outcome
}

// Step applies one transition of m to c in place.
//
// Description:
//
//	Reads the symbol under the head, looks up the outcome and either reports a
//	halt or writes, moves and changes state. Step, Head and Tape advance
//	together, so a configuration never holds a half applied transition.
//
// Outputs:
//
//	Result - Whether the machine halted and which outcome was applied.
//	error - Wraps machine.ErrUndefinedTransition. Callers treat this as a
//	  fatal invariant violation, never as a decision.
func Step(m *machine.Machine, c *Configuration) (Result, error) {
	o, err := m.Transition(c.State, c.Tape.Read())
	if err != nil {
		return Result{}, fmt.Errorf("step %d: %w", c.Step, err)
	}
	if o.Halt {
		return Result{Halted: true, Outcome: o}, nil
	}
	c.Tape.Write(o.Write)
	c.Tape.Move(o.Move)
	c.Head += o.Move.Delta()
	c.State = o.Next
	c.Step++
	return Result{Outcome: o}, nil
}

// =============================================================================
// Simulator
// =============================================================================

// Outcome summarises a bounded run.
type Outcome struct {
	// Steps is the number of transitions applied during the run.
	Steps int64

	// Halted is true when the machine reached a halting cell.
	Halted bool

	// Stopped is true when the visit callback ended the run.
	Stopped bool

	// Exhausted is true when the budget ran out first.
	Exhausted bool
}

// Simulator owns a configuration and advances it.
//
// Thread Safety: Not safe for concurrent use. Use one Simulator per
// goroutine; the Machine itself may be shared.
type Simulator struct {
	m   *machine.Machine
	cfg *Configuration
}

// New returns a Simulator positioned at the initial configuration.
func New(m *machine.Machine) *Simulator {
	return &Simulator{m: m, cfg: Initial()}
}

// Machine returns the simulated machine.
func (s *Simulator) Machine() *machine.Machine {
	return s.m
}

// Config returns the live configuration. Callers that keep it across steps
// must Clone it.
func (s *Simulator) Config() *Configuration {
	return s.cfg
}

// Reset rewinds to the initial configuration.
func (s *Simulator) Reset() {
	s.cfg = Initial()
}

// Step applies one transition.
func (s *Simulator) Step() (Result, error) {
	return Step(s.m, s.cfg)
}

// Run applies up to budget transitions.
//
// Description:
//
//	visit is called with the live configuration before the first transition
//	and again after every applied transition. Returning false ends the run
//	with Stopped set. A nil visit is allowed.
//
// Inputs:
//
//	budget - Maximum transitions to apply. Must be >= 0.
//	visit - Optional observer; it must not retain the configuration.
//
// Outputs:
//
//	Outcome - How the run ended and how many steps it applied.
//	error - ErrNegativeBudget or a wrapped machine.ErrUndefinedTransition.
func (s *Simulator) Run(budget int64, visit func(*Configuration) bool) (Outcome, error) {
	if budget < 0 {
		return Outcome{}, ErrNegativeBudget
	}
	var out Outcome
	if visit != nil && !visit(s.cfg) {
		out.Stopped = true
		return out, nil
	}
	for out.Steps < budget {
		r, err := Step(s.m, s.cfg)
		if err != nil {
			return out, err
		}
		if r.Halted {
			out.Halted = true
			return out, nil
		}
		out.Steps++
		if visit != nil && !visit(s.cfg) {
			out.Stopped = true
			return out, nil
		}
	}
	out.Exhausted = true
	return out, nil
}

// RunTo advances until the configuration reaches step n. It reports false if
// the machine halts first.
func (s *Simulator) RunTo(n int64) (bool, error) {
	for s.cfg.Step < n {
		r, err := Step(s.m, s.cfg)
		if err != nil {
			return false, err
		}
		if r.Halted {
			return false, nil
		}
	}
	return true, nil
}
