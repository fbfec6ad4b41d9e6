// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cyclers proves non-halting by finding a configuration that repeats
// exactly.
//
// Configurations are indexed by state, absolute head position and tape
// contents as they are simulated. The first configuration already in the
// index gives the certificate: j is the earliest step that repeats anything
// and i the step it repeats, which is also the smallest i that repeats at all
// since a deterministic machine that revisits a configuration cycles from
// then on.
package cyclers

import (
	"context"
	"encoding/binary"
	"hash/maphash"

	"github.com/AleutianAI/beaver/services/beaver/decider"
	"github.com/AleutianAI/beaver/services/beaver/machine"
	"github.com/AleutianAI/beaver/services/beaver/sim"
)

// Decider is the exact cycle decider.
//
// Thread Safety: Safe for concurrent use; Decide keeps all state local.
type Decider struct{}

// New returns a Cyclers decider.
func New() *Decider {
	return &Decider{}
}

// Kind implements decider.Decider.
func (*Decider) Kind() decider.Kind {
	return decider.KindCyclers
}

// Decide looks for steps i < j with identical configurations.
//
// Description:
//
//	Simulates up to b.MaxSteps steps, indexing at most b.MaxHistory
//	configurations. Abstains with ReasonHalted if the machine halts,
//	ReasonMemoryBudget if the index fills and ReasonStepBudget if the steps
//	run out.
//
// Inputs:
//   - ctx: Checked every decider.CheckInterval steps.
//   - m: The machine.
//   - b: Budget; uses MaxSteps and MaxHistory.
//
// Outputs:
//   - decider.Decision: NonHalting with a CyclerWitness, or Unknown.
//   - error: Invalid budget, context cancellation or a broken transition
//     table.
func (d *Decider) Decide(ctx context.Context, m *machine.Machine, b decider.Budget) (decider.Decision, error) {
	if err := b.Validate(); err != nil {
		return decider.Decision{}, err
	}

	// The index holds 64-bit hashes of configuration keys, so its size is
	// bounded by MaxHistory and not by tape length. A hash hit is confirmed
	// by replaying to the earlier step.
	seed := maphash.MakeSeed()
	seen := make(map[uint64][]int64)
	var (
		key     []byte
		entries int
		witness *decider.CyclerWitness
		full    bool
		ctxErr  error
		hardErr error
	)
	replay := sim.New(m)
	s := sim.New(m)
	out, err := s.Run(b.MaxSteps, func(c *sim.Configuration) bool {
		if c.Step%decider.CheckInterval == 0 {
			if ctxErr = ctx.Err(); ctxErr != nil {
				return false
			}
		}
		key = Key(key[:0], c)
		h := maphash.Bytes(seed, key)
		for _, i := range seen[h] {
			same, err := sameAs(replay, i, c)
			if err != nil {
				hardErr = err
				return false
			}
			if same {
				witness = &decider.CyclerWitness{Start: i, End: c.Step}
				return false
			}
		}
		if c.Step >= b.MaxSteps {
			// Last visit: no later configuration can repeat it.
			return true
		}
		if entries >= b.MaxHistory {
			full = true
			return false
		}
		seen[h] = append(seen[h], c.Step)
		entries++
		return true
	})
	if err == nil {
		err = hardErr
	}
	switch {
	case err != nil:
		return decider.Decision{}, err
	case ctxErr != nil:
		return decider.Decision{}, ctxErr
	case witness != nil:
		cert := &decider.Certificate{Decider: decider.KindCyclers, Machine: m.String(), Cycler: witness}
		return decider.NonHalting(cert, out.Steps), nil
	case out.Halted:
		return decider.Unknown(decider.KindCyclers, decider.ReasonHalted, out.Steps), nil
	case full:
		return decider.Unknown(decider.KindCyclers, decider.ReasonMemoryBudget, out.Steps), nil
	default:
		return decider.Unknown(decider.KindCyclers, decider.ReasonStepBudget, out.Steps), nil
	}
}

// sameAs reports whether the configuration at step i equals c. r is rewound
// when it is already past i.
func sameAs(r *sim.Simulator, i int64, c *sim.Configuration) (bool, error) {
	if r.Config().Step > i {
		r.Reset()
	}
	ok, err := r.RunTo(i)
	if err != nil || !ok {
		return false, err
	}
	p := r.Config()
	return p.State == c.State && p.Head == c.Head && p.Tape.Equal(c.Tape), nil
}

// Key appends the identity of a configuration: state, absolute head
// position and tape contents. The step count is not part of it.
func Key(buf []byte, c *sim.Configuration) []byte {
	buf = append(buf, byte(c.State))
	buf = binary.AppendVarint(buf, c.Head)
	return c.Tape.AppendKey(buf)
}
