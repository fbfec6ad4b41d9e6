// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package machine

import (
	"fmt"
	"strings"
)

// Parse reads the compact text format.
//
// Description:
//
//	Rows are separated by "_" and must all hold the same number of cells.
//	Each cell is "<digit><L|R><letter>". The letter Z or H, or a cell of
//	"---", marks a halting cell. Any other letter must name one of the rows,
//	otherwise the machine has a dangling reference and is rejected.
//
// Inputs:
//
//	text - The machine, e.g. "1RB1LB_1LA---". Surrounding space is ignored.
//
// Outputs:
//
//	*Machine - The parsed machine.
//	error - Wraps ErrInvalidMachine on malformed input.
func Parse(text string) (*Machine, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidMachine)
	}
	rows := strings.Split(text, "_")
	width := len(rows[0])
	if width == 0 || width%3 != 0 {
		return nil, fmt.Errorf("%w: row %q is not a whole number of cells", ErrInvalidMachine, rows[0])
	}
	symbols := width / 3
	table := make([]Outcome, 0, len(rows)*symbols)
	for r, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has length %d, want %d", ErrInvalidMachine, r, len(row), width)
		}
		for c := 0; c < symbols; c++ {
			o, err := parseCell(row[3*c:3*c+3], len(rows))
			if err != nil {
				return nil, fmt.Errorf("%w: row %d cell %d: %v", ErrInvalidMachine, r, c, err)
			}
			table = append(table, o)
		}
	}
	return New(len(rows), symbols, table)
}

func parseCell(cell string, states int) (Outcome, error) {
	if cell == "---" {
		return HaltOutcome, nil
	}
	w, d, n := cell[0], cell[1], cell[2]
	if n == 'Z' || n == 'H' {
		return HaltOutcome, nil
	}
	if w < '0' || w > '9' {
		return Outcome{}, fmt.Errorf("bad symbol %q", w)
	}
	var move Direction
	switch d {
	case 'L':
		move = Left
	case 'R':
		move = Right
	default:
		return Outcome{}, fmt.Errorf("bad direction %q", d)
	}
	if n < 'A' || int(n-'A') >= states {
		return Outcome{}, fmt.Errorf("dangling state %q", n)
	}
	return Outcome{Write: Symbol(w - '0'), Move: move, Next: State(n - 'A')}, nil
}
