// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bouncers

import (
	"errors"

	"github.com/AleutianAI/beaver/services/beaver/formula"
	"github.com/AleutianAI/beaver/services/beaver/machine"
)

// Fit finds a formula f with f.Expand(1) = a, f.Expand(2) = b and
// f.Expand(3) = c.
//
// Description:
//
//	Walks the three tapes together. A literal cell advances each tape by
//	one; a repeater x advances a by |x|, b by 2|x| and c by 3|x|, so the
//	position in c is always 2j - i for positions i in a and j in b. Failed
//	(i, j) states are memoised. With repeaterFirst the walk prefers opening
//	a repeater over matching a literal, which changes which of several valid
//	formulas is returned.
//
// Outputs:
//   - formula.Formula: The fitted formula, with at least one repeater.
//   - bool: False if no formula fits.
func Fit(a, b, c []machine.Symbol, repeaterFirst bool) (formula.Formula, bool) {
	delta := len(b) - len(a)
	if delta <= 0 || len(c)-len(b) != delta {
		return nil, false
	}
	ft := &fitter{a: a, b: b, c: c, delta: delta, repeaterFirst: repeaterFirst, failed: make(map[[2]int]bool)}
	segs, ok := ft.walk(0, 0)
	if !ok {
		return nil, false
	}
	var f formula.Formula
	for _, s := range segs {
		if n := len(f); !s.Repeat && n > 0 && !f[n-1].Repeat {
			f[n-1].Word = append(f[n-1].Word, s.Word...)
			continue
		}
		f = append(f, s)
	}
	return f, true
}

type fitter struct {
	a, b, c       []machine.Symbol
	delta         int
	repeaterFirst bool
	failed        map[[2]int]bool
}

// walk returns the segments matching a[i:], b[j:] and c[2j-i:].
func (ft *fitter) walk(i, j int) ([]formula.Segment, bool) {
	if i == len(ft.a) && j == len(ft.b) {
		return nil, true
	}
	if ft.failed[[2]int{i, j}] {
		return nil, false
	}
	tries := []func() ([]formula.Segment, bool){ft.literal(i, j), ft.repeaters(i, j)}
	if ft.repeaterFirst {
		tries[0], tries[1] = tries[1], tries[0]
	}
	for _, try := range tries {
		if segs, ok := try(); ok {
			return segs, true
		}
	}
	ft.failed[[2]int{i, j}] = true
	return nil, false
}

func (ft *fitter) literal(i, j int) func() ([]formula.Segment, bool) {
	return func() ([]formula.Segment, bool) {
		k := 2*j - i
		if i >= len(ft.a) || j >= len(ft.b) || k >= len(ft.c) {
			return nil, false
		}
		x := ft.a[i]
		if ft.b[j] != x || ft.c[k] != x {
			return nil, false
		}
		rest, ok := ft.walk(i+1, j+1)
		if !ok {
			return nil, false
		}
		return append([]formula.Segment{formula.Literal(x)}, rest...), true
	}
}

func (ft *fitter) repeaters(i, j int) func() ([]formula.Segment, bool) {
	return func() ([]formula.Segment, bool) {
		k := 2*j - i
		for l := 1; (j-i)+l <= ft.delta && i+l <= len(ft.a); l++ {
			if j+2*l > len(ft.b) || k+3*l > len(ft.c) {
				break
			}
			x := ft.a[i : i+l]
			if !repeats(ft.b[j:j+2*l], x) || !repeats(ft.c[k:k+3*l], x) {
				continue
			}
			rest, ok := ft.walk(i+l, j+2*l)
			if !ok {
				continue
			}
			w := append([]machine.Symbol(nil), x...)
			return append([]formula.Segment{formula.Repeater(w...)}, rest...), true
		}
		return nil, false
	}
}

// repeats reports whether s is x repeated.
func repeats(s, x []machine.Symbol) bool {
	for i := range s {
		if s[i] != x[i%len(x)] {
			return false
		}
	}
	return true
}

// isFatal separates broken transition tables from ordinary proof failures.
func isFatal(err error) bool {
	return errors.Is(err, machine.ErrUndefinedTransition)
}
