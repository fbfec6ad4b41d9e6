// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package verify re-checks non-halting certificates.
//
// Verification is deliberately separate from the deciders: it only replays
// a bounded prefix of the run named by the certificate, or re-checks a fixed
// point, and never repeats a search. A certificate that passes here is a
// proof on its own, whatever produced it.
package verify

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/beaver/services/beaver/classes"
	"github.com/AleutianAI/beaver/services/beaver/decider"
	"github.com/AleutianAI/beaver/services/beaver/formula"
	"github.com/AleutianAI/beaver/services/beaver/machine"
	"github.com/AleutianAI/beaver/services/beaver/sim"
)

// Limits bounds the work of one verification.
type Limits struct {
	// MaxReplaySteps bounds the steps replayed for simulation witnesses.
	MaxReplaySteps int64

	// MaxTreeNodes bounds the backward tree re-expansion.
	MaxTreeNodes int

	// MaxClasses bounds the size of an inductive class set.
	MaxClasses int

	// Symbolic bounds the bouncer cycle proof.
	Symbolic formula.Limits
}

// DefaultLimits returns limits comfortably above what the default decider
// budgets can produce.
func DefaultLimits() Limits {
	return Limits{
		MaxReplaySteps: 50_000_000,
		MaxTreeNodes:   1_000_000,
		MaxClasses:     1_000_000,
		Symbolic:       formula.DefaultLimits(),
	}
}

// LimitsFor returns DefaultLimits raised to cover anything a decider running
// under b can certify.
func LimitsFor(b decider.Budget) Limits {
	lim := DefaultLimits()
	if b.MaxSteps > lim.MaxReplaySteps {
		lim.MaxReplaySteps = b.MaxSteps
	}
	if b.MaxBackwardNodes > lim.MaxTreeNodes {
		lim.MaxTreeNodes = b.MaxBackwardNodes
	}
	if b.MaxClasses > lim.MaxClasses {
		lim.MaxClasses = b.MaxClasses
	}
	return lim
}

// Certificate checks cert against m with DefaultLimits.
func Certificate(ctx context.Context, m *machine.Machine, cert *decider.Certificate) error {
	return Check(ctx, m, cert, DefaultLimits())
}

// Check verifies that cert proves m never halts.
//
// Description:
//
//	Validates the certificate's shape and machine identity, then dispatches
//	on the witness kind. Simulation witnesses are replayed from step 0 with a
//	fresh simulator; Backward and Inductive witnesses are re-checked as fixed
//	points.
//
// Outputs:
//   - error: nil when the certificate holds. Otherwise wraps
//     ErrCertificateMismatch, ErrReplayLimit,
//     decider.ErrMalformedCertificate, or reports cancellation.
//
// Thread Safety: Safe for concurrent use.
func Check(ctx context.Context, m *machine.Machine, cert *decider.Certificate, lim Limits) error {
	if err := cert.Validate(); err != nil {
		return err
	}
	if cert.Machine != m.String() {
		return mismatch("certificate is for %s, not %s", cert.Machine, m)
	}
	switch cert.Decider {
	case decider.KindCyclers:
		return cycler(ctx, m, cert.Cycler, lim)
	case decider.KindTCyclers:
		return tcycler(ctx, m, cert.TCycler, lim)
	case decider.KindBouncers:
		return bouncer(ctx, m, cert.Bouncer, lim)
	case decider.KindBackward:
		return backwardWitness(ctx, m, cert.Backward, lim)
	default:
		return inductiveWitness(ctx, m, cert.Inductive, lim)
	}
}

func mismatch(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCertificateMismatch, fmt.Sprintf(format, args...))
}

// replayer steps a simulator forward with periodic context checks.
type replayer struct {
	ctx context.Context
	s   *sim.Simulator
	lim int64
}

func newReplayer(ctx context.Context, m *machine.Machine, lim Limits) *replayer {
	return &replayer{ctx: ctx, s: sim.New(m), lim: lim.MaxReplaySteps}
}

// to advances to step n, calling each after every step.
func (r *replayer) to(n int64, each func(*sim.Configuration)) error {
	if n > r.lim {
		return fmt.Errorf("%w: step %d", ErrReplayLimit, n)
	}
	c := r.s.Config()
	for c.Step < n {
		if c.Step%decider.CheckInterval == 0 {
			if err := r.ctx.Err(); err != nil {
				return err
			}
		}
		res, err := r.s.Step()
		if err != nil {
			return err
		}
		if res.Halted {
			return mismatch("machine halts at step %d", c.Step)
		}
		if each != nil {
			each(c)
		}
	}
	return nil
}

// =============================================================================
// Simulation witnesses
// =============================================================================

func cycler(ctx context.Context, m *machine.Machine, w *decider.CyclerWitness, lim Limits) error {
	if w.Start < 0 || w.End <= w.Start {
		return mismatch("cycle (%d, %d) is empty", w.Start, w.End)
	}
	r := newReplayer(ctx, m, lim)
	if err := r.to(w.Start, nil); err != nil {
		return err
	}
	first := r.s.Config().Clone()
	if err := r.to(w.End, nil); err != nil {
		return err
	}
	last := r.s.Config()
	if first.State != last.State || first.Head != last.Head || !first.Tape.Equal(last.Tape) {
		return mismatch("configurations at %d and %d differ", w.Start, w.End)
	}
	return nil
}

func tcycler(ctx context.Context, m *machine.Machine, w *decider.TCyclerWitness, lim Limits) error {
	if w.Start < 0 || w.End <= w.Start || w.Shift == 0 || w.WindowRadius < 0 {
		return mismatch("translated cycle (%d, %d, %d) is degenerate", w.Start, w.End, w.Shift)
	}
	dir := machine.Right
	if w.Shift < 0 {
		dir = machine.Left
	}
	r := newReplayer(ctx, m, lim)
	if err := r.to(w.Start, nil); err != nil {
		return err
	}
	first := r.s.Config().Clone()
	low := dir.Delta() * first.Head
	if err := r.to(w.End, func(c *sim.Configuration) {
		low = min(low, dir.Delta()*c.Head)
	}); err != nil {
		return err
	}
	last := r.s.Config()

	switch {
	case first.State != w.State || last.State != w.State:
		return mismatch("states %s and %s, want %s", first.State, last.State, w.State)
	case last.Head-first.Head != w.Shift:
		return mismatch("shift is %d, not %d", last.Head-first.Head, w.Shift)
	case !first.Tape.BlankBeyond(dir) || !last.Tape.BlankBeyond(dir):
		return mismatch("tape ahead of the head is not blank")
	}
	radius := dir.Delta()*first.Head - low
	if radius != w.WindowRadius {
		return mismatch("window radius is %d, not %d", radius, w.WindowRadius)
	}
	for k := int64(0); k <= radius; k++ {
		off := -dir.Delta() * k
		if first.Tape.At(off) != last.Tape.At(off) {
			return mismatch("windows differ %d cells behind the head", k)
		}
	}
	return nil
}

func bouncer(ctx context.Context, m *machine.Machine, w *decider.BouncerWitness, lim Limits) error {
	if w.Side != machine.Left && w.Side != machine.Right {
		return mismatch("side %d", w.Side)
	}
	if w.Period < 1 || len(w.Records) != 4 || w.Formula.Repeaters() == 0 {
		return mismatch("bouncer witness is incomplete")
	}
	if int(w.State) >= m.States() {
		return mismatch("state %s out of range", w.State)
	}
	r := newReplayer(ctx, m, lim)
	for k, step := range w.Records {
		if k > 0 && step <= w.Records[k-1] {
			return mismatch("records are not increasing")
		}
		if err := r.to(step, nil); err != nil {
			return err
		}
		c := r.s.Config()
		if c.State != w.State {
			return mismatch("record %d is in state %s", k, c.State)
		}
		if c.Tape.Read() != machine.Blank || !c.Tape.BlankBeyond(w.Side) {
			return mismatch("record %d is not at a blank frontier", k)
		}
		if got, want := behind(c, w.Side), w.Formula.Expand(k+1); !sameCells(got, want) {
			return mismatch("record %d tape %v does not expand %s", k, got, w.Formula)
		}
		if w.StepModel.Eval(int64(k)) != step || w.PositionModel.Eval(int64(k)) != c.Head {
			return mismatch("record %d does not follow the models", k)
		}
	}

	mm := m
	if w.Side == machine.Left {
		mm = m.Mirror()
	}
	if err := formula.ProveCycle(mm, w.Formula, w.State, w.Period, lim.Symbolic); err != nil {
		return mismatch("cycle proof: %v", err)
	}
	return nil
}

// behind returns the cells behind the head as seen from side, far end
// first, without leading blanks.
func behind(c *sim.Configuration, side machine.Direction) []machine.Symbol {
	lo, hi := c.Tape.Extent()
	var out []machine.Symbol
	if side == machine.Right {
		for k := lo; k < 0; k++ {
			out = append(out, c.Tape.At(k))
		}
	} else {
		for k := hi; k > 0; k-- {
			out = append(out, c.Tape.At(k))
		}
	}
	for len(out) > 0 && out[0] == machine.Blank {
		out = out[1:]
	}
	return out
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

// =============================================================================
// Fixed-point witnesses
// =============================================================================

func backwardWitness(ctx context.Context, m *machine.Machine, w *decider.BackwardWitness, lim Limits) error {
	start := machine.Pair{State: machine.Start, Symbol: machine.Blank}
	if w.Start != start {
		return mismatch("start pair %s", w.Start)
	}
	switch w.Mode {
	case decider.BackwardStatic:
		return staticSet(m, w.Reachable, start)
	case decider.BackwardTree:
		return backwardTree(ctx, m, w, lim)
	default:
		return mismatch("backward mode %q", w.Mode)
	}
}

// backwardTree checks the tree levels locally: level 0 holds every halting
// configuration, each predecessor of level i is listed in level i+1, the
// last level has no consistent predecessor, and no node agrees with the
// blank start configuration.
func backwardTree(ctx context.Context, m *machine.Machine, w *decider.BackwardWitness, lim Limits) error {
	total := 0
	for _, level := range w.Levels {
		total += len(level)
	}
	if total > lim.MaxTreeNodes {
		return fmt.Errorf("%w: %d tree nodes", ErrReplayLimit, total)
	}
	if len(w.Levels) == 0 || w.Depth != len(w.Levels) || w.Nodes != total {
		return mismatch("backward tree of %d levels and %d nodes, witness claims %d and %d", len(w.Levels), total, w.Depth, w.Nodes)
	}

	first := treeSet(w.Levels[0])
	for _, p := range m.HaltingPairs() {
		halt := decider.TreeNode{State: p.State, Cells: []decider.TreeCell{{Pos: 0, Symbol: p.Symbol}}}
		if !first[treeKey(halt)] {
			return mismatch("halting pair %s missing from tree level 0", p)
		}
	}

	for i, level := range w.Levels {
		if err := ctx.Err(); err != nil {
			return err
		}
		var next map[string]bool
		if i+1 < len(w.Levels) {
			next = treeSet(w.Levels[i+1])
		}
		for _, n := range level {
			if err := treeNodeValid(m, n); err != nil {
				return err
			}
			if treeStart(n) {
				return mismatch("tree level %d: state %s node agrees with the blank start", i, n.State)
			}
			for s := 0; s < m.States(); s++ {
				for a := 0; a < m.Symbols(); a++ {
					from := machine.Pair{State: machine.State(s), Symbol: machine.Symbol(a)}
					o, err := m.Transition(from.State, from.Symbol)
					if err != nil {
						return err
					}
					if o.Halt || o.Next != n.State {
						continue
					}
					p, ok := treePredecessor(n, from, o)
					if ok && !next[treeKey(p)] {
						return mismatch("tree level %d: predecessor via %s of a state %s node is not listed", i, from, n.State)
					}
				}
			}
		}
	}
	return nil
}

// treePredecessor undoes one step taken from pair from. The step wrote
// o.Write at the cell left behind, so a node constraining that cell to a
// different symbol has no predecessor through it.
func treePredecessor(n decider.TreeNode, from machine.Pair, o machine.Outcome) (decider.TreeNode, bool) {
	h := n.Head - o.Move.Delta()
	cells := make([]decider.TreeCell, 0, len(n.Cells)+1)
	placed := false
	for _, c := range n.Cells {
		if c.Pos == h {
			if c.Symbol != o.Write {
				return decider.TreeNode{}, false
			}
			c.Symbol = from.Symbol
			placed = true
		}
		if !placed && c.Pos > h {
			cells = append(cells, decider.TreeCell{Pos: h, Symbol: from.Symbol})
			placed = true
		}
		cells = append(cells, c)
	}
	if !placed {
		cells = append(cells, decider.TreeCell{Pos: h, Symbol: from.Symbol})
	}
	return decider.TreeNode{State: from.State, Head: h, Cells: cells}, true
}

func treeNodeValid(m *machine.Machine, n decider.TreeNode) error {
	if int(n.State) >= m.States() {
		return mismatch("tree node state %d", n.State)
	}
	for i, c := range n.Cells {
		if int(c.Symbol) >= m.Symbols() {
			return mismatch("tree node symbol %d", c.Symbol)
		}
		if i > 0 && n.Cells[i-1].Pos >= c.Pos {
			return mismatch("tree node cells out of order at %d", c.Pos)
		}
	}
	return nil
}

func treeStart(n decider.TreeNode) bool {
	if n.State != machine.Start {
		return false
	}
	for _, c := range n.Cells {
		if c.Symbol != machine.Blank {
			return false
		}
	}
	return true
}

func treeKey(n decider.TreeNode) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d@%d", n.State, n.Head)
	for _, c := range n.Cells {
		fmt.Fprintf(&sb, ",%d:%d", c.Pos, c.Symbol)
	}
	return sb.String()
}

func treeSet(level []decider.TreeNode) map[string]bool {
	set := make(map[string]bool, len(level))
	for _, n := range level {
		set[treeKey(n)] = true
	}
	return set
}

// staticSet checks that reach holds every halting pair, is closed under
// "enters a state with a pair in reach", and excludes start.
func staticSet(m *machine.Machine, reach []machine.Pair, start machine.Pair) error {
	in := make(map[machine.Pair]bool, len(reach))
	live := make([]bool, m.States())
	for _, p := range reach {
		if int(p.State) >= m.States() || int(p.Symbol) >= m.Symbols() {
			return mismatch("pair %s out of range", p)
		}
		in[p] = true
		live[p.State] = true
	}
	if in[start] {
		return mismatch("start pair %s is in the set", start)
	}
	for s := 0; s < m.States(); s++ {
		for a := 0; a < m.Symbols(); a++ {
			p := machine.Pair{State: machine.State(s), Symbol: machine.Symbol(a)}
			o, err := m.Transition(p.State, p.Symbol)
			if err != nil {
				return err
			}
			switch {
			case o.Halt && !in[p]:
				return mismatch("halting pair %s is missing", p)
			case !o.Halt && live[o.Next] && !in[p]:
				return mismatch("pair %s enters %s but is missing", p, o.Next)
			}
		}
	}
	return nil
}

func inductiveWitness(ctx context.Context, m *machine.Machine, w *decider.InductiveWitness, lim Limits) error {
	n := len(w.Classes)
	switch {
	case n == 0:
		return mismatch("no classes")
	case n > lim.MaxClasses:
		return fmt.Errorf("%w: %d classes", ErrReplayLimit, n)
	case len(w.Successors) != n:
		return mismatch("%d successor lists for %d classes", len(w.Successors), n)
	case w.Width < 0:
		return mismatch("width %d", w.Width)
	case w.Classes[0].String() != classes.Initial().String():
		return mismatch("first class %s is not the initial class", w.Classes[0])
	}
	for i, c := range w.Classes {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		halts, err := c.Halts(m)
		if err != nil {
			return mismatch("class %d: %v", i, err)
		}
		if halts {
			return mismatch("class %d %s halts", i, c)
		}
		succ, err := classes.Successors(m, c, w.Width)
		if err != nil {
			return err
		}
		ids := w.Successors[i]
		if len(ids) != len(succ) {
			return mismatch("class %d has %d successors, certificate lists %d", i, len(succ), len(ids))
		}
		for k, s := range succ {
			id := ids[k]
			if id < 0 || id >= n || w.Classes[id].String() != s.String() {
				return mismatch("class %d successor %s is not class %d", i, s, id)
			}
		}
	}
	return nil
}
