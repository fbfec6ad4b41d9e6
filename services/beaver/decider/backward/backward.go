// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package backward proves non-halting by reasoning backward from the halting
// cells, without simulating the machine.
//
// The static stage computes the pairs that may lead to a halt: the halting
// pairs, and every pair whose transition enters a state that has such a pair.
// The set is a fixed point over the finite transition table. If the start
// pair is outside it, the machine can never enter a state from which a halt
// is possible.
//
// When the static stage cannot exclude the start pair, the tree stage
// explores backward from each halting configuration with the tape cells it
// depends on. If every branch runs into a contradiction before the tree
// reaches the blank start configuration, no run from the start configuration
// can halt.
package backward

import (
	"context"
	"sort"

	"github.com/AleutianAI/beaver/services/beaver/decider"
	"github.com/AleutianAI/beaver/services/beaver/machine"
)

// Decider is the backward reasoning decider.
//
// Thread Safety: Safe for concurrent use; Decide keeps all state local.
type Decider struct{}

// New returns a Backward decider.
func New() *Decider {
	return &Decider{}
}

// Kind implements decider.Decider.
func (*Decider) Kind() decider.Kind {
	return decider.KindBackward
}

// Decide runs the static stage and then, if needed, the tree stage.
//
// Outputs:
//   - decider.Decision: NonHalting with a BackwardWitness, or Unknown with
//     ReasonNoProof (a branch reached the start configuration) or
//     ReasonDepthBudget (the tree outgrew b.MaxBackwardDepth or
//     b.MaxBackwardNodes). Steps is always 0.
//   - error: Invalid budget, context cancellation or a broken transition
//     table.
func (d *Decider) Decide(ctx context.Context, m *machine.Machine, b decider.Budget) (decider.Decision, error) {
	if err := b.Validate(); err != nil {
		return decider.Decision{}, err
	}
	start := machine.Pair{State: machine.Start, Symbol: machine.Blank}

	reach, err := Reachable(m)
	if err != nil {
		return decider.Decision{}, err
	}
	if !contains(reach, start) {
		cert := &decider.Certificate{
			Decider:  decider.KindBackward,
			Machine:  m.String(),
			Backward: &decider.BackwardWitness{Mode: decider.BackwardStatic, Reachable: reach, Start: start},
		}
		return decider.NonHalting(cert, 0), nil
	}

	res, err := ExpandTree(ctx, m, b.MaxBackwardDepth, b.MaxBackwardNodes)
	if err != nil {
		return decider.Decision{}, err
	}
	switch {
	case res.Died:
		cert := &decider.Certificate{
			Decider:  decider.KindBackward,
			Machine:  m.String(),
			Backward: &decider.BackwardWitness{
				Mode:   decider.BackwardTree,
				Start:  start,
				Depth:  res.Depth,
				Nodes:  res.Nodes,
				Levels: res.Levels,
			},
		}
		return decider.NonHalting(cert, 0), nil
	case res.ReachedStart:
		return decider.Unknown(decider.KindBackward, decider.ReasonNoProof, 0), nil
	default:
		return decider.Unknown(decider.KindBackward, decider.ReasonDepthBudget, 0), nil
	}
}

// =============================================================================
// Static stage
// =============================================================================

// Reachable returns, sorted, the pairs from which a halt may follow.
//
// Description:
//
//	Worklist fixed point over states. A state becomes live when one of its
//	pairs is in the set; every pair whose transition enters a live state
//	then joins the set. Each state goes live at most once, so the loop runs
//	at most states times.
func Reachable(m *machine.Machine) ([]machine.Pair, error) {
	// into[s] lists the pairs whose transition enters s.
	into := make([][]machine.Pair, m.States())
	for s := 0; s < m.States(); s++ {
		for a := 0; a < m.Symbols(); a++ {
			p := machine.Pair{State: machine.State(s), Symbol: machine.Symbol(a)}
			o, err := m.Transition(p.State, p.Symbol)
			if err != nil {
				return nil, err
			}
			if !o.Halt {
				into[o.Next] = append(into[o.Next], p)
			}
		}
	}

	in := make(map[machine.Pair]bool)
	live := make([]bool, m.States())
	var work []machine.State
	add := func(p machine.Pair) {
		if in[p] {
			return
		}
		in[p] = true
		if !live[p.State] {
			live[p.State] = true
			work = append(work, p.State)
		}
	}
	for _, p := range m.HaltingPairs() {
		add(p)
	}
	for len(work) > 0 {
		s := work[0]
		work = work[1:]
		for _, p := range into[s] {
			add(p)
		}
	}

	out := make([]machine.Pair, 0, len(in))
	for p := range in {
		out = append(out, p)
	}
	SortPairs(out)
	return out, nil
}

// SortPairs orders pairs by state, then symbol.
func SortPairs(ps []machine.Pair) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].State != ps[j].State {
			return ps[i].State < ps[j].State
		}
		return ps[i].Symbol < ps[j].Symbol
	})
}

func contains(ps []machine.Pair, p machine.Pair) bool {
	for _, q := range ps {
		if q == p {
			return true
		}
	}
	return false
}
