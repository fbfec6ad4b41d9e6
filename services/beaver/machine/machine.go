// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package machine defines the immutable Turing machine model analysed by the
// deciders.
//
// A Machine has states A, B, C... (numbered from 0, state 0 is the start
// state) and symbols 0..K-1 where 0 is the blank. Every (state, symbol) pair
// maps to an Outcome which is either a halt or a move. Pairs the source format
// leaves undefined are stored as explicit halts, so a constructed Machine is
// total over its alphabet.
//
// # Text Format
//
// The compact text format lists one row per state separated by "_". Each row
// holds one three character cell per symbol:
//
//	1RB1LB_1LA---
//	│││
//	││└─ next state letter (A..), Z or H for an explicit halt
//	│└── direction L or R
//	└─── symbol to write
//
// A cell of "---" is a halting cell.
//
// # Thread Safety
//
// Machine is read-only after construction and safe to share between
// goroutines.
package machine

import (
	"fmt"
	"strings"
)

// =============================================================================
// Alphabet
// =============================================================================

// Symbol is a tape symbol. Symbol 0 is the blank.
type Symbol uint8

// Blank is the symbol every unvisited cell holds.
const Blank Symbol = 0

// State is a machine state. State 0 is the start state.
type State uint8

// Start is the state the machine starts in.
const Start State = 0

// String returns the state letter ("A", "B", ...).
func (s State) String() string {
	if int(s) < MaxStates {
		return string(rune('A' + s))
	}
	return fmt.Sprintf("S%d", s)
}

// Direction is a head movement.
type Direction int8

const (
	// Left moves the head one cell towards negative positions.
	Left Direction = -1

	// Right moves the head one cell towards positive positions.
	Right Direction = 1
)

// Delta returns the head displacement for the direction.
func (d Direction) Delta() int64 {
	return int64(d)
}

// Opposite returns the mirrored direction.
func (d Direction) Opposite() Direction {
	return -d
}

// String returns "L" or "R".
func (d Direction) String() string {
	if d == Left {
		return "L"
	}
	return "R"
}

// Limits on machine size. The encodings use one letter per state and one
// digit per symbol.
const (
	MaxStates  = 26
	MaxSymbols = 10
)

// =============================================================================
// Outcome
// =============================================================================

// Outcome is the result of looking up a (state, symbol) pair.
type Outcome struct {
	// Halt is true for halting cells. The remaining fields are zero then.
	Halt bool

	// Write is the symbol written under the head.
	Write Symbol

	// Move is the direction the head moves after writing.
	Move Direction

	// Next is the state entered after the move.
	Next State
}

// HaltOutcome is the outcome stored for halting cells.
var HaltOutcome = Outcome{Halt: true}

// String renders the outcome as a three character cell.
func (o Outcome) String() string {
	if o.Halt {
		return "---"
	}
	return fmt.Sprintf("%d%s%s", o.Write, o.Move, o.Next)
}

// Pair identifies a transition table cell.
type Pair struct {
	State  State  `json:"state"`
	Symbol Symbol `json:"symbol"`
}

// String renders the pair as "A0".
func (p Pair) String() string {
	return fmt.Sprintf("%s%d", p.State, p.Symbol)
}

// =============================================================================
// Machine
// =============================================================================

// Machine is an immutable transition table.
type Machine struct {
	states  int
	symbols int
	table   []Outcome
}

// New builds a Machine from a row-major table of states*symbols outcomes.
//
// Description:
//
//	Validates the table dimensions, every written symbol, every direction and
//	every next-state reference. The table is copied, so later changes to the
//	argument do not leak into the Machine.
//
// Inputs:
//
//	states - Number of non-halting states, 1..MaxStates.
//	symbols - Alphabet size including the blank, 2..MaxSymbols.
//	table - Outcomes indexed by state*symbols + symbol.
//
// Outputs:
//
//	*Machine - The validated machine.
//	error - Wraps ErrInvalidMachine when the table is malformed.
func New(states, symbols int, table []Outcome) (*Machine, error) {
	if states < 1 || states > MaxStates {
		return nil, fmt.Errorf("%w: %d states (want 1..%d)", ErrInvalidMachine, states, MaxStates)
	}
	if symbols < 2 || symbols > MaxSymbols {
		return nil, fmt.Errorf("%w: %d symbols (want 2..%d)", ErrInvalidMachine, symbols, MaxSymbols)
	}
	if len(table) != states*symbols {
		return nil, fmt.Errorf("%w: table has %d cells, want %d", ErrInvalidMachine, len(table), states*symbols)
	}
	for i, o := range table {
		if o.Halt {
			continue
		}
		cell := Pair{State: State(i / symbols), Symbol: Symbol(i % symbols)}
		if int(o.Write) >= symbols {
			return nil, fmt.Errorf("%w: %s writes symbol %d", ErrInvalidMachine, cell, o.Write)
		}
		if o.Move != Left && o.Move != Right {
			return nil, fmt.Errorf("%w: %s has direction %d", ErrInvalidMachine, cell, o.Move)
		}
		if int(o.Next) >= states {
			return nil, fmt.Errorf("%w: %s refers to undefined state %d", ErrInvalidMachine, cell, o.Next)
		}
	}
	t := make([]Outcome, len(table))
	for i, o := range table {
		if o.Halt {
			o = HaltOutcome
		}
		t[i] = o
	}
	return &Machine{states: states, symbols: symbols, table: t}, nil
}

// MustParse is Parse for literals in tests and examples. It panics on error.
func MustParse(text string) *Machine {
	m, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return m
}

// States returns the number of non-halting states.
func (m *Machine) States() int {
	return m.states
}

// Symbols returns the alphabet size including the blank.
func (m *Machine) Symbols() int {
	return m.symbols
}

// Transition looks up the outcome of reading symbol a in state s.
//
// A lookup outside the table is an invariant violation: the loader guarantees
// every reachable pair is defined, so callers treat the error as fatal rather
// than as a decision outcome.
func (m *Machine) Transition(s State, a Symbol) (Outcome, error) {
	if int(s) >= m.states || int(a) >= m.symbols {
		return Outcome{}, fmt.Errorf("%w: %s", ErrUndefinedTransition, Pair{State: s, Symbol: a})
	}
	return m.table[int(s)*m.symbols+int(a)], nil
}

// HaltingPairs returns every pair whose outcome is a halt, in table order.
func (m *Machine) HaltingPairs() []Pair {
	var out []Pair
	for i, o := range m.table {
		if o.Halt {
			out = append(out, Pair{State: State(i / m.symbols), Symbol: Symbol(i % m.symbols)})
		}
	}
	return out
}

// Mirror returns the machine with every direction reversed.
//
// Running the mirror on the reversed tape is the same computation seen in a
// mirror, which lets leftward analyses reuse rightward code.
func (m *Machine) Mirror() *Machine {
	t := make([]Outcome, len(m.table))
	for i, o := range m.table {
		if !o.Halt {
			o.Move = o.Move.Opposite()
		}
		t[i] = o
	}
	return &Machine{states: m.states, symbols: m.symbols, table: t}
}

// String returns the compact text format, which also serves as the machine
// identity recorded in certificates.
func (m *Machine) String() string {
	var sb strings.Builder
	sb.Grow(m.states * (m.symbols*3 + 1))
	for s := 0; s < m.states; s++ {
		if s > 0 {
			sb.WriteByte('_')
		}
		for a := 0; a < m.symbols; a++ {
			sb.WriteString(m.table[s*m.symbols+a].String())
		}
	}
	return sb.String()
}
