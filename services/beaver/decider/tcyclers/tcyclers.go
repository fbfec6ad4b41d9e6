// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tcyclers proves non-halting by finding a configuration that repeats
// up to a translation of the head.
//
// Candidates are head records: steps at which the head reaches a position
// further right (or left) than ever before, step 0 counting for both sides.
// At a right record everything right of the head is blank, so the run from a
// record i only ever depends on the cells from m, the lowest head position
// before the next matching record j, up to the head. If record j is in the
// same state and shows the same cells from m+d up to its head, where d is the
// shift between the two heads, the run from j replays the run from i shifted
// by d, forever.
package tcyclers

import (
	"context"

	"github.com/AleutianAI/beaver/services/beaver/decider"
	"github.com/AleutianAI/beaver/services/beaver/machine"
	"github.com/AleutianAI/beaver/services/beaver/sim"
)

// Decider is the translated cycle decider.
//
// Thread Safety: Safe for concurrent use; Decide keeps all state local.
type Decider struct{}

// New returns a TCyclers decider.
func New() *Decider {
	return &Decider{}
}

// Kind implements decider.Decider.
func (*Decider) Kind() decider.Kind {
	return decider.KindTCyclers
}

// record is a head record seen from one side. Positions are oriented so that
// records always increase.
type record struct {
	step  int64
	pos   int64
	state machine.State

	// low is the lowest oriented position after the previous record, up to
	// and including this one.
	low int64

	// window[k] is the cell k positions behind the head.
	window []machine.Symbol
}

// side tracks the records of one direction.
type side struct {
	dir     machine.Direction
	best    int64
	low     int64
	records []record
}

type search struct {
	radius     int
	maxRecords int
	sides      [2]*side
	total      int

	witness   *decider.TCyclerWitness
	truncated bool // a pair was skipped for exceeding the radius
	full      bool
}

// Decide looks for head records i < j that match up to translation.
//
// Description:
//
//	For every new record j it checks the earlier records of the same side
//	from the oldest, so the certificate has the smallest j and, for that j,
//	the smallest i. Pairs whose comparison window would exceed
//	b.MaxWindowRadius are skipped; if nothing else matches the decision
//	reports ReasonWindowBudget.
//
// Inputs:
//   - ctx: Checked every decider.CheckInterval steps.
//   - m: The machine.
//   - b: Budget; uses MaxSteps, MaxWindowRadius and MaxRecords.
//
// Outputs:
//   - decider.Decision: NonHalting with a TCyclerWitness, or Unknown.
//   - error: Invalid budget, context cancellation or a broken transition
//     table.
func (d *Decider) Decide(ctx context.Context, m *machine.Machine, b decider.Budget) (decider.Decision, error) {
	if err := b.Validate(); err != nil {
		return decider.Decision{}, err
	}
	s := &search{
		radius:     b.MaxWindowRadius,
		maxRecords: b.MaxRecords,
		sides:      [2]*side{{dir: machine.Right}, {dir: machine.Left}},
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
	case ctxErr != nil:
		return decider.Decision{}, ctxErr
	case s.witness != nil:
		cert := &decider.Certificate{Decider: decider.KindTCyclers, Machine: m.String(), TCycler: s.witness}
		return decider.NonHalting(cert, out.Steps), nil
	case out.Halted:
		return decider.Unknown(decider.KindTCyclers, decider.ReasonHalted, out.Steps), nil
	case s.full:
		return decider.Unknown(decider.KindTCyclers, decider.ReasonRecordBudget, out.Steps), nil
	case s.truncated:
		return decider.Unknown(decider.KindTCyclers, decider.ReasonWindowBudget, out.Steps), nil
	default:
		return decider.Unknown(decider.KindTCyclers, decider.ReasonStepBudget, out.Steps), nil
	}
}

// observe updates both sides with one configuration and reports whether the
// run should continue.
func (s *search) observe(c *sim.Configuration) bool {
	for _, sd := range s.sides {
		pos := sd.dir.Delta() * c.Head
		if pos < sd.low {
			sd.low = pos
		}
		if c.Step > 0 && pos <= sd.best {
			continue
		}
		if s.total >= s.maxRecords {
			s.full = true
			return false
		}
		rec := record{step: c.Step, pos: pos, state: c.State, low: sd.low, window: s.window(c, sd.dir)}
		sd.best, sd.low = pos, pos
		if w := s.match(sd, rec, c); w != nil {
			s.witness = w
			return false
		}
		sd.records = append(sd.records, rec)
		s.total++
	}
	return true
}

func (s *search) window(c *sim.Configuration, dir machine.Direction) []machine.Symbol {
	w := make([]machine.Symbol, s.radius+1)
	for k := range w {
		w[k] = c.Tape.At(-dir.Delta() * int64(k))
	}
	return w
}

// match finds the earliest record on sd that j translates.
func (s *search) match(sd *side, j record, c *sim.Configuration) *decider.TCyclerWitness {
	n := len(sd.records)
	if n == 0 {
		return nil
	}
	// lows[k] is the lowest oriented position from record k through j.
	lows := make([]int64, n)
	m := j.low
	for k := n - 1; k >= 0; k-- {
		i := sd.records[k]
		lows[k] = min(m, i.pos)
		m = min(m, i.low)
	}
	for k, i := range sd.records {
		if i.state != j.state {
			continue
		}
		radius := i.pos - lows[k]
		if radius > int64(s.radius) {
			s.truncated = true
			continue
		}
		if !sameWindow(i.window, c, sd.dir, radius) {
			continue
		}
		return &decider.TCyclerWitness{
			Start:        i.step,
			End:          j.step,
			Shift:        sd.dir.Delta() * (j.pos - i.pos),
			WindowRadius: radius,
			State:        j.state,
		}
	}
	return nil
}

func sameWindow(w []machine.Symbol, c *sim.Configuration, dir machine.Direction, radius int64) bool {
	for k := int64(0); k <= radius; k++ {
		if w[k] != c.Tape.At(-dir.Delta()*k) {
			return false
		}
	}
	return true
}
