// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package formula

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/beaver/services/beaver/machine"
)

var (
	// ErrHalts means the symbolic run reached a halting cell.
	ErrHalts = errors.New("symbolic run halts")

	// ErrNoShiftRule means the head met a repeater it could not cross.
	ErrNoShiftRule = errors.New("no shift rule")

	// ErrLimit means the symbolic run exceeded its step limits.
	ErrLimit = errors.New("symbolic step limit")

	// ErrMismatch means the run ended on a tape other than the next formula.
	ErrMismatch = errors.New("formula mismatch")
)

// Limits bounds a symbolic run.
type Limits struct {
	// MaxSteps bounds machine transitions applied to literal cells.
	MaxSteps int

	// MaxRuleSteps bounds the transitions spent deriving one shift rule.
	MaxRuleSteps int
}

// DefaultLimits returns the limits used by Bouncers and by verification.
func DefaultLimits() Limits {
	return Limits{MaxSteps: 200000, MaxRuleSteps: 10000}
}

// ProveCycle shows that the machine turns every tape of f into the matching
// tape of f.Next().
//
// Description:
//
//	The run starts in state q with the head on a fresh blank cell to the right
//	of f and nothing but blanks further right. It is simulated over the
//	formula itself: literal cells are stepped as usual and a repeater u^n is
//	crossed in one go by a shift rule, found by running the machine on u
//	alone and requiring it to leave u on the far side in the state it entered
//	with. Repeaters the head cannot cross are slid past an equal neighbouring
//	cell when possible. The run ends at the period-th time the head steps
//	onto a fresh cell at the right end in state q, where the tape left of the
//	head must have the canonical form of f.Next().
//
//	Since every rule holds for all n >= 0, success means that for every n the
//	configuration (q, f at n) reaches (q, f at n+1) without halting.
//
//	Records seen from the left are handled by passing the mirrored machine
//	and the mirrored tape.
//
// Inputs:
//   - m: The machine.
//   - f: The tape left of the head, far end first.
//   - q: The state at each record.
//   - period: Fresh right cells entered in state q per cycle, >= 1.
//   - lim: Step limits.
//
// Outputs:
//   - error: nil on success; otherwise wraps ErrHalts, ErrNoShiftRule,
//     ErrLimit or ErrMismatch, or a transition lookup error.
func ProveCycle(m *machine.Machine, f Formula, q machine.State, period int, lim Limits) error {
	if period < 1 {
		return fmt.Errorf("%w: period %d", ErrMismatch, period)
	}
	r := &run{m: m, lim: lim, state: q}
	for _, s := range f {
		if s.Repeat {
			r.left = append(r.left, s.clone())
			continue
		}
		for _, x := range s.Word {
			r.left = append(r.left, Literal(x))
		}
	}

	seen := 0
	for steps := 0; ; steps++ {
		if steps >= lim.MaxSteps {
			return fmt.Errorf("%w: %d steps", ErrLimit, steps)
		}
		o, err := m.Transition(r.state, r.head)
		if err != nil {
			return err
		}
		if o.Halt {
			return fmt.Errorf("%w: %s%d after %d steps", ErrHalts, r.state, r.head, steps)
		}
		r.state = o.Next
		fresh, err := r.move(o.Write, o.Move)
		if err != nil {
			return err
		}
		if !fresh || o.Move != machine.Right || r.state != q {
			continue
		}
		seen++
		if seen < period {
			continue
		}
		got := Formula(r.left).Canonical()
		want := f.Next().Canonical()
		if !got.Equal(want) {
			return fmt.Errorf("%w: reached %s, want %s", ErrMismatch, got, want)
		}
		return nil
	}
}

// run is the symbolic configuration. Both stacks hold segments nearest the
// head last, with each word in left-to-right tape order. Literal segments
// hold a single cell.
type run struct {
	m     *machine.Machine
	lim   Limits
	state machine.State
	head  machine.Symbol
	left  []Segment
	right []Segment
}

// move writes w, moves the head and pulls the next head cell. It reports
// whether the head stepped beyond every cell the run has seen on that side.
func (r *run) move(w machine.Symbol, d machine.Direction) (bool, error) {
	near, far := &r.left, &r.right
	if d == machine.Left {
		near, far = &r.right, &r.left
	}
	*near = append(*near, Literal(w))

	for {
		n := len(*far)
		if n == 0 {
			r.head = machine.Blank
			return true, nil
		}
		top := (*far)[n-1]
		if !top.Repeat {
			*far = (*far)[:n-1]
			r.head = top.Word[0]
			return false, nil
		}
		if v, ok := r.shiftRule(top.Word, d); ok {
			*far = (*far)[:n-1]
			*near = append(*near, Repeater(v...))
			continue
		}
		if !slide(far, d) {
			return false, fmt.Errorf("%w: %s entering %s moving %s", ErrNoShiftRule, r.state, Formula{top}, d)
		}
	}
}

// shiftRule runs the machine on u alone, entering from the edge facing the
// head. It returns the rewritten word when the head leaves u on the far edge
// in the state it entered with.
func (r *run) shiftRule(u []machine.Symbol, d machine.Direction) ([]machine.Symbol, bool) {
	w := clone(u)
	pos := 0
	if d == machine.Left {
		pos = len(w) - 1
	}
	s := r.state
	for i := 0; i < r.lim.MaxRuleSteps; i++ {
		o, err := r.m.Transition(s, w[pos])
		if err != nil || o.Halt {
			return nil, false
		}
		w[pos] = o.Write
		pos += int(o.Move.Delta())
		s = o.Next
		switch {
		case pos == len(w):
			return w, d == machine.Right && s == r.state
		case pos < 0:
			return w, d == machine.Left && s == r.state
		}
	}
	return nil, false
}

// slide rewrites the repeater on top of far so that a single cell faces the
// head, using u^n a = a (x a)^n for u = a x when entering from the left and
// b u^n = (b x)^n b for u = x b when entering from the right. The far end of
// an empty stack is blank.
func slide(far *[]Segment, d machine.Direction) bool {
	n := len(*far)
	u := (*far)[n-1].Word
	var edge machine.Symbol
	var rotated []machine.Symbol
	if d == machine.Right {
		edge = u[0]
		rotated = append(clone(u[1:]), edge)
	} else {
		edge = u[len(u)-1]
		rotated = append([]machine.Symbol{edge}, u[:len(u)-1]...)
	}

	rest := (*far)[:n-1]
	switch {
	case len(rest) == 0:
		if edge != machine.Blank {
			return false
		}
	case rest[len(rest)-1].Repeat || rest[len(rest)-1].Word[0] != edge:
		return false
	default:
		rest = rest[:len(rest)-1]
	}
	*far = append(rest, Repeater(rotated...), Literal(edge))
	return true
}
