// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package formula works with tapes described symbolically: words some of
// which repeat n times for a free parameter n.
//
// The formula 1(10)0 stands for the family of tapes 1 (10)^n 0, n >= 0.
// Bouncers fit such a formula to the far side of the tape at successive head
// records and ProveCycle shows, by running the machine over the formula
// itself, that the tape for n always turns into the tape for n+1.
package formula

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/beaver/services/beaver/machine"
)

// ErrInvalidFormula indicates unparseable formula text.
var ErrInvalidFormula = errors.New("invalid formula")

// Segment is a word, repeated n times when Repeat is set.
type Segment struct {
	Word   []machine.Symbol
	Repeat bool
}

// Formula is a sequence of segments in tape order.
type Formula []Segment

// Literal returns a non-repeating segment.
func Literal(w ...machine.Symbol) Segment {
	return Segment{Word: w}
}

// Repeater returns a repeating segment.
func Repeater(w ...machine.Symbol) Segment {
	return Segment{Word: w, Repeat: true}
}

// Repeaters counts repeating segments.
func (f Formula) Repeaters() int {
	n := 0
	for _, s := range f {
		if s.Repeat {
			n++
		}
	}
	return n
}

// Expand returns the concrete tape for parameter n.
func (f Formula) Expand(n int) []machine.Symbol {
	var out []machine.Symbol
	for _, s := range f {
		k := 1
		if s.Repeat {
			k = n
		}
		for i := 0; i < k; i++ {
			out = append(out, s.Word...)
		}
	}
	return out
}

// Next returns a formula whose expansion at n is f's expansion at n+1: each
// repeater u becomes u^n followed by a literal u.
func (f Formula) Next() Formula {
	out := make(Formula, 0, len(f)+f.Repeaters())
	for _, s := range f {
		out = append(out, s.clone())
		if s.Repeat {
			out = append(out, Literal(clone(s.Word)...))
		}
	}
	return out
}

// Equal reports whether the formulas are segment for segment identical.
func (f Formula) Equal(o Formula) bool {
	if len(f) != len(o) {
		return false
	}
	for i := range f {
		if f[i].Repeat != o[i].Repeat || !equalWords(f[i].Word, o[i].Word) {
			return false
		}
	}
	return true
}

// Canonical returns a normal form with the same expansions, read as the far
// side of a tape that is blank beyond its start.
//
// Description:
//
//	Adjacent literals are merged and empty segments dropped. Leading blanks
//	and leading all-blank repeaters are removed, since they only extend the
//	blank region. Each repeater is then slid left as far as possible using
//	L c (x c)^n = L (c x)^n c. Formulas with equal canonical forms have equal
//	expansions for every n; the converse does not hold.
func (f Formula) Canonical() Formula {
	merged := stripLeadingBlanks(mergeLiterals(f))

	var out Formula
	appendLiteral := func(w []machine.Symbol) {
		if len(w) == 0 {
			return
		}
		if n := len(out); n > 0 && !out[n-1].Repeat {
			out[n-1].Word = append(out[n-1].Word, w...)
			return
		}
		out = append(out, Literal(clone(w)...))
	}
	for _, s := range merged {
		if !s.Repeat {
			appendLiteral(s.Word)
			continue
		}
		u := clone(s.Word)
		var moved []machine.Symbol
		for n := len(out); n > 0 && !out[n-1].Repeat; n = len(out) {
			lit := out[n-1].Word
			c := lit[len(lit)-1]
			if c != u[len(u)-1] {
				break
			}
			out[n-1].Word = lit[:len(lit)-1]
			if len(out[n-1].Word) == 0 {
				out = out[:n-1]
			}
			u = append([]machine.Symbol{c}, u[:len(u)-1]...)
			moved = append([]machine.Symbol{c}, moved...)
		}
		out = append(out, Repeater(u...))
		appendLiteral(moved)
	}
	return out
}

func mergeLiterals(f Formula) Formula {
	var out Formula
	for _, s := range f {
		if len(s.Word) == 0 {
			continue
		}
		if !s.Repeat && len(out) > 0 && !out[len(out)-1].Repeat {
			out[len(out)-1].Word = append(out[len(out)-1].Word, s.Word...)
			continue
		}
		out = append(out, s.clone())
	}
	return out
}

func stripLeadingBlanks(f Formula) Formula {
	for len(f) > 0 {
		s := f[0]
		i := 0
		for i < len(s.Word) && s.Word[i] == machine.Blank {
			i++
		}
		switch {
		case i == len(s.Word):
			f = f[1:]
		case s.Repeat:
			return f
		default:
			f[0].Word = s.Word[i:]
			return f
		}
	}
	return f
}

// String renders the formula with repeaters in parentheses, e.g. "1(10)0".
func (f Formula) String() string {
	var sb strings.Builder
	for _, s := range f {
		if s.Repeat {
			sb.WriteByte('(')
		}
		for _, x := range s.Word {
			sb.WriteByte('0' + byte(x))
		}
		if s.Repeat {
			sb.WriteByte(')')
		}
	}
	return sb.String()
}

// Parse reads the format produced by String.
func Parse(text string) (Formula, error) {
	var f Formula
	var lit []machine.Symbol
	for i := 0; i < len(text); i++ {
		switch ch := text[i]; {
		case ch >= '0' && ch <= '9':
			lit = append(lit, machine.Symbol(ch-'0'))
		case ch == '(':
			end := strings.IndexByte(text[i:], ')')
			if end < 2 {
				return nil, fmt.Errorf("%w: unclosed or empty repeater at %d in %q", ErrInvalidFormula, i, text)
			}
			if len(lit) > 0 {
				f = append(f, Literal(lit...))
				lit = nil
			}
			var w []machine.Symbol
			for _, c := range []byte(text[i+1 : i+end]) {
				if c < '0' || c > '9' {
					return nil, fmt.Errorf("%w: %q in repeater", ErrInvalidFormula, c)
				}
				w = append(w, machine.Symbol(c-'0'))
			}
			f = append(f, Repeater(w...))
			i += end
		default:
			return nil, fmt.Errorf("%w: unexpected %q in %q", ErrInvalidFormula, ch, text)
		}
	}
	if len(lit) > 0 {
		f = append(f, Literal(lit...))
	}
	return f, nil
}

// MarshalText implements encoding.TextMarshaler.
func (f Formula) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Formula) UnmarshalText(text []byte) error {
	p, err := Parse(string(text))
	if err != nil {
		return err
	}
	*f = p
	return nil
}

func (s Segment) clone() Segment {
	return Segment{Word: clone(s.Word), Repeat: s.Repeat}
}

func clone(w []machine.Symbol) []machine.Symbol {
	return append([]machine.Symbol(nil), w...)
}

func equalWords(a, b []machine.Symbol) bool {
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
