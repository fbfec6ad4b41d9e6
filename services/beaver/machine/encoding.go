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

import "fmt"

// Binary layout: two header bytes (states, symbols) followed by three bytes
// per cell in row-major order: write, direction (0 = R, 1 = L), next state
// plus one. A next byte of 0 marks a halting cell.
const cellBytes = 3

// MarshalBinary encodes the machine in the fixed-width binary layout.
func (m *Machine) MarshalBinary() ([]byte, error) {
	out := make([]byte, 2, 2+len(m.table)*cellBytes)
	out[0], out[1] = byte(m.states), byte(m.symbols)
	for _, o := range m.table {
		if o.Halt {
			out = append(out, 0, 0, 0)
			continue
		}
		dir := byte(0)
		if o.Move == Left {
			dir = 1
		}
		out = append(out, byte(o.Write), dir, byte(o.Next)+1)
	}
	return out, nil
}

// UnmarshalBinary decodes the fixed-width binary layout into m.
func (m *Machine) UnmarshalBinary(data []byte) error {
	if len(data) < 2 {
		return fmt.Errorf("%w: short header", ErrInvalidMachine)
	}
	states, symbols := int(data[0]), int(data[1])
	body := data[2:]
	if len(body) != states*symbols*cellBytes {
		return fmt.Errorf("%w: body has %d bytes, want %d", ErrInvalidMachine, len(body), states*symbols*cellBytes)
	}
	table := make([]Outcome, states*symbols)
	for i := range table {
		c := body[i*cellBytes : (i+1)*cellBytes]
		if c[2] == 0 {
			table[i] = HaltOutcome
			continue
		}
		if c[1] > 1 {
			return fmt.Errorf("%w: cell %d has direction byte %d", ErrInvalidMachine, i, c[1])
		}
		move := Right
		if c[1] == 1 {
			move = Left
		}
		table[i] = Outcome{Write: Symbol(c[0]), Move: move, Next: State(c[2] - 1)}
	}
	built, err := New(states, symbols, table)
	if err != nil {
		return err
	}
	*m = *built
	return nil
}
