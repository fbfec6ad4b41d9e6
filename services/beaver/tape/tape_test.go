// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tape

import (
	"testing"

	"github.com/AleutianAI/beaver/services/beaver/machine"
)

func TestTape_MoveAndRead(t *testing.T) {
	tp := New()
	tp.Write(1)
	tp.Move(machine.Right)
	tp.Write(2)
	tp.Move(machine.Right)
	tp.Move(machine.Left)
	tp.Move(machine.Left)

	if got := tp.Read(); got != 1 {
		t.Errorf("Read() = %d, want 1", got)
	}
	if got := tp.At(1); got != 2 {
		t.Errorf("At(1) = %d, want 2", got)
	}
	if got := tp.At(2); got != 0 {
		t.Errorf("At(2) = %d, want 0", got)
	}
	if got := tp.At(-5); got != 0 {
		t.Errorf("At(-5) = %d, want 0", got)
	}
	if lo, hi := tp.Extent(); lo != 0 || hi != 2 {
		t.Errorf("Extent() = %d, %d, want 0, 2", lo, hi)
	}
	if got := tp.String(); got != "[1]20" {
		t.Errorf("String() = %q", got)
	}
}

func TestTape_Segment(t *testing.T) {
	tp := New()
	for _, a := range []machine.Symbol{1, 0, 1, 1} {
		tp.Write(a)
		tp.Move(machine.Right)
	}
	got := tp.Segment(-4, 0)
	want := []machine.Symbol{1, 0, 1, 1, 0}
	if len(got) != len(want) {
		t.Fatalf("Segment length = %d", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Segment[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	if tp.Segment(1, 0) != nil {
		t.Error("empty range should return nil")
	}
}

func TestTape_KeyIgnoresVisitedBlanks(t *testing.T) {
	a := New()
	a.Write(1)

	b := New()
	b.Move(machine.Left)
	b.Move(machine.Left)
	b.Move(machine.Right)
	b.Move(machine.Right)
	b.Move(machine.Right)
	b.Move(machine.Left)
	b.Write(1)

	if !a.Equal(b) {
		t.Errorf("tapes %s and %s should be equal", a, b)
	}

	b.Move(machine.Right)
	if a.Equal(b) {
		t.Error("tapes with different head alignment should differ")
	}
}

func TestTape_CloneIsIndependent(t *testing.T) {
	a := New()
	a.Write(1)
	a.Move(machine.Right)
	b := a.Clone()
	b.Write(2)
	b.Move(machine.Left)
	b.Write(3)
	if a.Read() != 0 || a.At(-1) != 1 {
		t.Errorf("original mutated: %s", a)
	}
}

func TestTape_BlankBeyond(t *testing.T) {
	tp := New()
	tp.Move(machine.Right)
	tp.Move(machine.Right)
	tp.Move(machine.Left)
	if !tp.BlankBeyond(machine.Right) || !tp.BlankBeyond(machine.Left) {
		t.Error("visited blank cells should count as blank")
	}
	tp.Move(machine.Left)
	tp.Write(1)
	tp.Move(machine.Right)
	if tp.BlankBeyond(machine.Left) {
		t.Error("left side holds a 1")
	}
}
