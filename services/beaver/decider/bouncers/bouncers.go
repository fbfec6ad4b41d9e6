// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bouncers proves non-halting for machines that sweep back and forth
// over a tape that grows by a regular pattern.
//
// The decider collects head records, grouped by side and state. For each
// group it looks for four records spaced a fixed number of records apart
// whose step and position follow low order polynomials and whose tapes
// behind the head grow by the same amount each time. A formula with
// repeaters is fitted to the first three tapes, checked against the fourth,
// and finally proven by formula.ProveCycle to carry the tape for n to the
// tape for n+1 forever.
package bouncers

import (
	"context"

	"github.com/AleutianAI/beaver/services/beaver/decider"
	"github.com/AleutianAI/beaver/services/beaver/formula"
	"github.com/AleutianAI/beaver/services/beaver/machine"
	"github.com/AleutianAI/beaver/services/beaver/sim"
)

// Decider is the bouncer decider.
//
// Thread Safety: Safe for concurrent use; Decide keeps all state local.
type Decider struct {
	limits formula.Limits
}

// New returns a Bouncers decider using formula.DefaultLimits for the
// symbolic proof.
func New() *Decider {
	return &Decider{limits: formula.DefaultLimits()}
}

// Kind implements decider.Decider.
func (*Decider) Kind() decider.Kind {
	return decider.KindBouncers
}

type record struct {
	step int64
	head int64

	// tape holds the cells behind the head, far end first, as seen from
	// the record's side, without leading blanks.
	tape []machine.Symbol
}

type sideState struct {
	dir  machine.Direction
	best int64
}

type search struct {
	m        *machine.Machine
	mirrored *machine.Machine
	budget   decider.Budget
	limits   formula.Limits

	sides  [2]sideState
	groups map[groupKey][]record
	total  int

	witness  *decider.BouncerWitness
	orderHit bool
	full     bool
	err      error
}

type groupKey struct {
	dir   machine.Direction
	state machine.State
}

// Decide looks for a bouncer among the head records of the first
// b.MaxSteps steps.
//
// Description:
//
//	Every new record is tried as the fourth record of a cycle with each
//	period up to b.MaxPeriod. A candidate is only accepted once its formula
//	survives the symbolic proof, so a bad fit costs time but never
//	soundness. Abstains with ReasonOrderBudget when some candidate's step or
//	position model needed an order above b.MaxPolynomialOrder, and with
//	ReasonRecordBudget when more than b.MaxRecords records were seen.
//
// Inputs:
//   - ctx: Checked every decider.CheckInterval steps.
//   - m: The machine.
//   - b: Budget; uses MaxSteps, MaxRecords, MaxPeriod and
//     MaxPolynomialOrder.
//
// Outputs:
//   - decider.Decision: NonHalting with a BouncerWitness, or Unknown.
//   - error: Invalid budget, context cancellation or a broken transition
//     table.
func (d *Decider) Decide(ctx context.Context, m *machine.Machine, b decider.Budget) (decider.Decision, error) {
	if err := b.Validate(); err != nil {
		return decider.Decision{}, err
	}
	s := &search{
		m:        m,
		mirrored: m.Mirror(),
		budget:   b,
		limits:   d.limits,
		sides:    [2]sideState{{dir: machine.Right}, {dir: machine.Left}},
		groups:   make(map[groupKey][]record),
	}

	var ctxErr error
	out, err := sim.New(m).Run(b.MaxSteps, func(c *sim.Configuration) bool {
		if c.Step%decider.CheckInterval == 0 {
			if ctxErr = ctx.Err(); ctxErr != nil {
				return false
			}
		}
		return s.observe(c)
	})
	switch {
	case err != nil:
		return decider.Decision{}, err
	case s.err != nil:
		return decider.Decision{}, s.err
	case ctxErr != nil:
		return decider.Decision{}, ctxErr
	case s.witness != nil:
		cert := &decider.Certificate{Decider: decider.KindBouncers, Machine: m.String(), Bouncer: s.witness}
		return decider.NonHalting(cert, out.Steps), nil
	case out.Halted:
		return decider.Unknown(decider.KindBouncers, decider.ReasonHalted, out.Steps), nil
	case s.full:
		return decider.Unknown(decider.KindBouncers, decider.ReasonRecordBudget, out.Steps), nil
	case s.orderHit:
		return decider.Unknown(decider.KindBouncers, decider.ReasonOrderBudget, out.Steps), nil
	default:
		return decider.Unknown(decider.KindBouncers, decider.ReasonStepBudget, out.Steps), nil
	}
}

func (s *search) observe(c *sim.Configuration) bool {
	for i := range s.sides {
		sd := &s.sides[i]
		pos := sd.dir.Delta() * c.Head
		if c.Step > 0 && pos <= sd.best {
			continue
		}
		sd.best = pos
		if s.total >= s.budget.MaxRecords {
			s.full = true
			return false
		}
		s.total++

		key := groupKey{dir: sd.dir, state: c.State}
		g := append(s.groups[key], record{step: c.Step, head: c.Head, tape: Behind(c, sd.dir)})
		if keep := 3*s.budget.MaxPeriod + 1; len(g) > keep {
			g = append(g[:0], g[len(g)-keep:]...)
		}
		s.groups[key] = g

		if s.try(key, g) {
			return false
		}
	}
	return true
}

// try tests the newest record of g as the end of a cycle of each period.
func (s *search) try(key groupKey, g []record) bool {
	n := len(g)
	for p := 1; p <= s.budget.MaxPeriod && 3*p < n; p++ {
		recs := [4]record{g[n-1-3*p], g[n-1-2*p], g[n-1-p], g[n-1]}

		var steps, heads [4]int64
		var lengths [4]int
		for k, r := range recs {
			steps[k], heads[k], lengths[k] = r.step, r.head, len(r.tape)
		}
		stepModel, ok := s.model(steps[:])
		if !ok {
			continue
		}
		posModel, ok := s.model(heads[:])
		if !ok {
			continue
		}
		delta := lengths[1] - lengths[0]
		if delta <= 0 || lengths[2]-lengths[1] != delta || lengths[3]-lengths[2] != delta {
			continue
		}

		mm := s.m
		if key.dir == machine.Left {
			mm = s.mirrored
		}
		for _, repeaterFirst := range []bool{false, true} {
			f, ok := Fit(recs[0].tape, recs[1].tape, recs[2].tape, repeaterFirst)
			if !ok || !sameCells(f.Expand(4), recs[3].tape) {
				continue
			}
			if err := formula.ProveCycle(mm, f, key.state, p, s.limits); err != nil {
				if isFatal(err) {
					s.err = err
					return true
				}
				continue
			}
			s.witness = &decider.BouncerWitness{
				Side:          key.dir,
				State:         key.state,
				Period:        p,
				Records:       []int64{steps[0], steps[1], steps[2], steps[3]},
				StepModel:     stepModel,
				PositionModel: posModel,
				Formula:       f,
			}
			return true
		}
	}
	return false
}

// model fits a polynomial through four values, accepting it only when the
// fourth value was predicted rather than fitted and the order is within
// budget.
func (s *search) model(values []int64) (formula.Polynomial, bool) {
	p := formula.Interpolate(values)
	if p.Order >= len(values)-1 {
		return p, false
	}
	if p.Order > s.budget.MaxPolynomialOrder {
		s.orderHit = true
		return p, false
	}
	return p, true
}

// Behind returns the cells behind the head as seen from side dir, far end
// first, without leading blanks.
func Behind(c *sim.Configuration, dir machine.Direction) []machine.Symbol {
	lo, hi := c.Tape.Extent()
	var cells []machine.Symbol
	if dir == machine.Right {
		cells = c.Tape.Segment(lo, -1)
	} else {
		cells = c.Tape.Segment(1, hi)
		for i, j := 0, len(cells)-1; i < j; i, j = i+1, j-1 {
			cells[i], cells[j] = cells[j], cells[i]
		}
	}
	for len(cells) > 0 && cells[0] == machine.Blank {
		cells = cells[1:]
	}
	return cells
}

func sameCells(a, b []machine.Symbol) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
