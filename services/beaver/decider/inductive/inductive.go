// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package inductive proves non-halting by finding a finite set of
// configuration classes that contains the start configuration, is closed
// under one step and contains no halting class.
//
// The search is a worklist fixed point from the initial class. It is tried
// with window widths 0, 1, ... up to the budget; narrow windows give small
// sets when they work, wider windows keep more of the tape exact when the
// narrow abstraction is too coarse and lets a halting class in.
package inductive

import (
	"context"

	"github.com/AleutianAI/beaver/services/beaver/classes"
	"github.com/AleutianAI/beaver/services/beaver/decider"
	"github.com/AleutianAI/beaver/services/beaver/machine"
)

// Decider is the inductive class decider.
//
// Thread Safety: Safe for concurrent use; Decide keeps all state local.
type Decider struct{}

// New returns an Inductive decider.
func New() *Decider {
	return &Decider{}
}

// Kind implements decider.Decider.
func (*Decider) Kind() decider.Kind {
	return decider.KindInductive
}

// Decide searches each width in turn.
//
// Description:
//
//	A width fails when a halting class is reached, when the set would grow
//	past b.MaxClasses or when b.MaxFixpointIterations classes have been
//	expanded without closing the set. The first width that closes gives the
//	certificate. If every width fails, the reason is the budget that stopped
//	the widest attempt, or ReasonNoProof when every attempt met a halting
//	class.
//
// Outputs:
//   - decider.Decision: NonHalting with an InductiveWitness, or Unknown.
//     Steps is always 0.
//   - error: Invalid budget, context cancellation or a broken transition
//     table.
func (d *Decider) Decide(ctx context.Context, m *machine.Machine, b decider.Budget) (decider.Decision, error) {
	if err := b.Validate(); err != nil {
		return decider.Decision{}, err
	}
	reason := decider.ReasonNoProof
	for width := 0; width <= b.MaxPatternWidth; width++ {
		w, r, err := Search(ctx, m, width, b.MaxClasses, b.MaxFixpointIterations)
		if err != nil {
			return decider.Decision{}, err
		}
		if w != nil {
			cert := &decider.Certificate{Decider: decider.KindInductive, Machine: m.String(), Inductive: w}
			return decider.NonHalting(cert, 0), nil
		}
		if r != decider.ReasonNoProof {
			reason = r
		}
	}
	return decider.Unknown(decider.KindInductive, reason, 0), nil
}

// Search runs one fixed-point attempt at the given width.
//
// Outputs:
//   - *decider.InductiveWitness: The closed set, or nil.
//   - decider.Reason: Why the attempt failed: ReasonNoProof for a halting
//     class, ReasonClassBudget or ReasonIterationBudget.
//   - error: Context cancellation or a broken transition table.
func Search(ctx context.Context, m *machine.Machine, width, maxClasses, maxIterations int) (*decider.InductiveWitness, decider.Reason, error) {
	if maxClasses < 1 {
		return nil, decider.ReasonClassBudget, nil
	}
	init := classes.Initial()
	found := []classes.Class{init}
	index := map[string]int{init.String(): 0}
	var succ [][]int

	for next := 0; next < len(found); next++ {
		if next >= maxIterations {
			return nil, decider.ReasonIterationBudget, nil
		}
		if next%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, decider.ReasonNoProof, err
			}
		}
		c := found[next]
		halts, err := c.Halts(m)
		if err != nil {
			return nil, decider.ReasonNoProof, err
		}
		if halts {
			return nil, decider.ReasonNoProof, nil
		}
		out, err := classes.Successors(m, c, width)
		if err != nil {
			return nil, decider.ReasonNoProof, err
		}
		ids := make([]int, 0, len(out))
		for _, s := range out {
			key := s.String()
			id, ok := index[key]
			if !ok {
				if len(found) >= maxClasses {
					return nil, decider.ReasonClassBudget, nil
				}
				id = len(found)
				index[key] = id
				found = append(found, s)
			}
			ids = append(ids, id)
		}
		succ = append(succ, ids)
	}
	return &decider.InductiveWitness{Width: width, Classes: found, Successors: succ}, decider.ReasonNone, nil
}
