// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package classes describes sets of configurations by a bounded window around
// the head plus a coarse description of each far side of the tape.
//
// A Class fixes the state, the head symbol and up to width cells on each side
// of the head. Cells beyond a window are summarised by a Tail:
//
//	0*   blank forever
//	r*   some number (possibly zero) of r, then blank forever
//	?    anything at all
//
// Every operation over-approximates: the successor classes of a class cover
// the successor of every configuration in it. A finite set of classes that
// contains the initial class, is closed under Successors and holds no
// halting class therefore proves that the machine never halts.
package classes

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/beaver/services/beaver/machine"
)

var (
	// ErrHaltingClass is returned by Successors for a class whose head pair
	// halts.
	ErrHaltingClass = errors.New("halting class")

	// ErrInvalidClass indicates unparseable class text.
	ErrInvalidClass = errors.New("invalid class")
)

// =============================================================================
// Tail
// =============================================================================

// Tail summarises the cells beyond a window.
type Tail struct {
	// Any means the cells are unconstrained.
	Any bool

	// Repeat is r in r*. Repeat 0 is the all-blank tail.
	Repeat machine.Symbol
}

// BlankTail is the tail of the initial configuration.
var BlankTail = Tail{}

// absorb returns a tail covering c followed by t.
func (t Tail) absorb(c machine.Symbol) Tail {
	switch {
	case t.Any:
		return t
	case t.Repeat == machine.Blank:
		return Tail{Repeat: c}
	case c == t.Repeat:
		return t
	default:
		return Tail{Any: true}
	}
}

// pull lists the (next cell, remaining tail) pairs a tail can produce.
func (t Tail) pull(symbols int) []pulled {
	switch {
	case t.Any:
		out := make([]pulled, symbols)
		for x := 0; x < symbols; x++ {
			out[x] = pulled{cell: machine.Symbol(x), rest: t}
		}
		return out
	case t.Repeat == machine.Blank:
		return []pulled{{cell: machine.Blank, rest: BlankTail}}
	default:
		return []pulled{
			{cell: machine.Blank, rest: BlankTail},
			{cell: t.Repeat, rest: t},
		}
	}
}

type pulled struct {
	cell machine.Symbol
	rest Tail
}

// String renders the tail as "0*", "r*" or "?".
func (t Tail) String() string {
	if t.Any {
		return "?"
	}
	return fmt.Sprintf("%d*", t.Repeat)
}

func parseTail(s string) (Tail, error) {
	if s == "?" {
		return Tail{Any: true}, nil
	}
	if len(s) != 2 || s[1] != '*' || s[0] < '0' || s[0] > '9' {
		return Tail{}, fmt.Errorf("%w: tail %q", ErrInvalidClass, s)
	}
	return Tail{Repeat: machine.Symbol(s[0] - '0')}, nil
}

// =============================================================================
// Class
// =============================================================================

// Class is a set of configurations.
//
// Left and Right list window cells nearest the head first.
type Class struct {
	State     machine.State
	Head      machine.Symbol
	Left      []machine.Symbol
	Right     []machine.Symbol
	LeftTail  Tail
	RightTail Tail
}

// Initial returns the class holding exactly the start configuration.
func Initial() Class {
	return Class{State: machine.Start, Head: machine.Blank}
}

// Halts reports whether configurations in c are about to halt.
func (c Class) Halts(m *machine.Machine) (bool, error) {
	o, err := m.Transition(c.State, c.Head)
	if err != nil {
		return false, err
	}
	return o.Halt, nil
}

// Successors returns classes covering one step from every configuration in
// c, with windows truncated to width.
//
// Description:
//
//	The written symbol is pushed onto the window the head leaves. If that
//	window grows past width its farthest cell is absorbed into the tail. The
//	new head cell is pulled from the other window, or from its tail when the
//	window is empty, which may yield several classes.
//
// Outputs:
//   - []Class: Successor classes in a deterministic order.
//   - error: ErrHaltingClass if c halts, or a transition lookup error.
func Successors(m *machine.Machine, c Class, width int) ([]Class, error) {
	o, err := m.Transition(c.State, c.Head)
	if err != nil {
		return nil, err
	}
	if o.Halt {
		return nil, fmt.Errorf("%w: %s", ErrHaltingClass, c)
	}

	near, nearTail := c.Left, c.LeftTail
	far, farTail := c.Right, c.RightTail
	if o.Move == machine.Left {
		near, nearTail = c.Right, c.RightTail
		far, farTail = c.Left, c.LeftTail
	}

	// The side the head leaves gains the written cell.
	pushed := make([]machine.Symbol, 0, len(near)+1)
	pushed = append(pushed, o.Write)
	pushed = append(pushed, near...)
	if len(pushed) > width {
		for i := len(pushed) - 1; i >= width; i-- {
			nearTail = nearTail.absorb(pushed[i])
		}
		pushed = pushed[:width]
	}

	var pulls []pulled
	var rest []machine.Symbol
	if len(far) > 0 {
		pulls = []pulled{{cell: far[0], rest: farTail}}
		rest = far[1:]
	} else {
		pulls = farTail.pull(m.Symbols())
	}

	out := make([]Class, 0, len(pulls))
	for _, p := range pulls {
		n := Class{State: o.Next, Head: p.cell}
		if o.Move == machine.Right {
			n.Left, n.LeftTail = pushed, nearTail
			n.Right, n.RightTail = rest, p.rest
		} else {
			n.Right, n.RightTail = pushed, nearTail
			n.Left, n.LeftTail = rest, p.rest
		}
		out = append(out, n.normalize())
	}
	return out, nil
}

// normalize gives empty windows a nil slice so equal classes compare equal
// with reflect.DeepEqual as well as by key.
func (c Class) normalize() Class {
	if len(c.Left) == 0 {
		c.Left = nil
	} else {
		c.Left = append([]machine.Symbol(nil), c.Left...)
	}
	if len(c.Right) == 0 {
		c.Right = nil
	} else {
		c.Right = append([]machine.Symbol(nil), c.Right...)
	}
	return c
}

// String renders the class as "A:0*|10[1]0|1*": state, left tail, left
// window far to near, head, right window near to far, right tail. The text
// is also the identity of the class.
func (c Class) String() string {
	var sb strings.Builder
	sb.WriteString(c.State.String())
	sb.WriteByte(':')
	sb.WriteString(c.LeftTail.String())
	sb.WriteByte('|')
	for i := len(c.Left) - 1; i >= 0; i-- {
		sb.WriteByte('0' + byte(c.Left[i]))
	}
	sb.WriteByte('[')
	sb.WriteByte('0' + byte(c.Head))
	sb.WriteByte(']')
	for _, x := range c.Right {
		sb.WriteByte('0' + byte(x))
	}
	sb.WriteByte('|')
	sb.WriteString(c.RightTail.String())
	return sb.String()
}

// Parse reads the format produced by String.
func Parse(s string) (Class, error) {
	colon := strings.IndexByte(s, ':')
	open := strings.IndexByte(s, '[')
	closing := strings.IndexByte(s, ']')
	if colon != 1 || open < 0 || closing != open+2 {
		return Class{}, fmt.Errorf("%w: %q", ErrInvalidClass, s)
	}
	var c Class
	if s[0] < 'A' || s[0] > 'Z' {
		return Class{}, fmt.Errorf("%w: state in %q", ErrInvalidClass, s)
	}
	c.State = machine.State(s[0] - 'A')

	leftPart := strings.SplitN(s[colon+1:open], "|", 2)
	rightPart := strings.SplitN(s[closing+1:], "|", 2)
	if len(leftPart) != 2 || len(rightPart) != 2 {
		return Class{}, fmt.Errorf("%w: %q", ErrInvalidClass, s)
	}
	var err error
	if c.LeftTail, err = parseTail(leftPart[0]); err != nil {
		return Class{}, err
	}
	if c.RightTail, err = parseTail(rightPart[1]); err != nil {
		return Class{}, err
	}
	head, err := digits(s[open+1 : closing])
	if err != nil {
		return Class{}, err
	}
	c.Head = head[0]
	left, err := digits(leftPart[1])
	if err != nil {
		return Class{}, err
	}
	for i := len(left) - 1; i >= 0; i-- {
		c.Left = append(c.Left, left[i])
	}
	if c.Right, err = digits(rightPart[0]); err != nil {
		return Class{}, err
	}
	return c.normalize(), nil
}

func digits(s string) ([]machine.Symbol, error) {
	out := make([]machine.Symbol, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return nil, fmt.Errorf("%w: symbol %q", ErrInvalidClass, s[i])
		}
		out = append(out, machine.Symbol(s[i]-'0'))
	}
	return out, nil
}

// MarshalText implements encoding.TextMarshaler.
func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Class) UnmarshalText(text []byte) error {
	p, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = p
	return nil
}
