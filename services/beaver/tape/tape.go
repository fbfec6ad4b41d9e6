// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tape implements the bi-infinite tape as two stacks anchored at the
// head.
//
// Cells to the left of the head live in one slice and cells to the right in
// another, each ordered so that the cell adjacent to the head is the last
// element. Moving the head is a push onto one stack and a pop from the other,
// so both directions cost O(1) and no cell ever needs to be shifted. The two
// stacks only ever hold visited cells; everything beyond them is blank.
package tape

import (
	"strings"

	"github.com/AleutianAI/beaver/services/beaver/machine"
)

// Tape is a bi-infinite tape of symbols, blank outside a finite region.
//
// The zero value is an all-blank tape.
//
// Thread Safety: Not safe for concurrent use.
type Tape struct {
	left  []machine.Symbol
	right []machine.Symbol
	head  machine.Symbol
}

// New returns an all-blank tape.
func New() *Tape {
	return &Tape{}
}

// Read returns the symbol under the head.
func (t *Tape) Read() machine.Symbol {
	return t.head
}

// Write replaces the symbol under the head.
func (t *Tape) Write(a machine.Symbol) {
	t.head = a
}

// Move shifts the head one cell in direction d.
func (t *Tape) Move(d machine.Direction) {
	if d == machine.Right {
		t.left = append(t.left, t.head)
		t.head, t.right = pop(t.right)
		return
	}
	t.right = append(t.right, t.head)
	t.head, t.left = pop(t.left)
}

func pop(s []machine.Symbol) (machine.Symbol, []machine.Symbol) {
	if len(s) == 0 {
		return machine.Blank, s
	}
	n := len(s) - 1
	return s[n], s[:n]
}

// At returns the symbol at offset k from the head (negative is left).
func (t *Tape) At(k int64) machine.Symbol {
	switch {
	case k == 0:
		return t.head
	case k > 0:
		if k > int64(len(t.right)) {
			return machine.Blank
		}
		return t.right[int64(len(t.right))-k]
	default:
		if -k > int64(len(t.left)) {
			return machine.Blank
		}
		return t.left[int64(len(t.left))+k]
	}
}

// Extent returns the offsets of the leftmost and rightmost visited cells
// relative to the head. Every cell outside [lo, hi] is blank.
func (t *Tape) Extent() (lo, hi int64) {
	return -int64(len(t.left)), int64(len(t.right))
}

// Segment returns a copy of the cells at offsets from..to inclusive.
func (t *Tape) Segment(from, to int64) []machine.Symbol {
	if to < from {
		return nil
	}
	out := make([]machine.Symbol, 0, to-from+1)
	for k := from; k <= to; k++ {
		out = append(out, t.At(k))
	}
	return out
}

// BlankBeyond reports whether every cell strictly beyond the head in
// direction d is blank.
func (t *Tape) BlankBeyond(d machine.Direction) bool {
	s := t.right
	if d == machine.Left {
		s = t.left
	}
	for _, a := range s {
		if a != machine.Blank {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the tape.
func (t *Tape) Clone() *Tape {
	return &Tape{
		left:  append([]machine.Symbol(nil), t.left...),
		right: append([]machine.Symbol(nil), t.right...),
		head:  t.head,
	}
}

// AppendKey appends a canonical encoding of the tape contents relative to the
// head. Blank cells at the far ends are trimmed, so two tapes have equal keys
// exactly when they hold the same symbols at every offset.
func (t *Tape) AppendKey(buf []byte) []byte {
	l := trimFar(t.left)
	r := trimFar(t.right)
	buf = appendUvarint(buf, uint64(len(l)))
	for _, a := range l {
		buf = append(buf, byte(a))
	}
	buf = append(buf, byte(t.head))
	for i := len(r) - 1; i >= 0; i-- {
		buf = append(buf, byte(r[i]))
	}
	return buf
}

// trimFar drops blank cells at the far end of a stack (its low indices).
func trimFar(s []machine.Symbol) []machine.Symbol {
	i := 0
	for i < len(s) && s[i] == machine.Blank {
		i++
	}
	return s[i:]
}

func appendUvarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

// Equal reports whether two tapes hold the same symbols at every offset from
// their heads.
func (t *Tape) Equal(o *Tape) bool {
	return string(t.AppendKey(nil)) == string(o.AppendKey(nil))
}

// String renders the visited region with the head cell in brackets.
func (t *Tape) String() string {
	var sb strings.Builder
	for _, a := range t.left {
		sb.WriteByte('0' + byte(a))
	}
	sb.WriteByte('[')
	sb.WriteByte('0' + byte(t.head))
	sb.WriteByte(']')
	for i := len(t.right) - 1; i >= 0; i-- {
		sb.WriteByte('0' + byte(t.right[i]))
	}
	return sb.String()
}
