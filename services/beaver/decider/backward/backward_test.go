// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package backward

import (
	"context"
	"reflect"
	"testing"

	"github.com/AleutianAI/beaver/services/beaver/decider"
	"github.com/AleutianAI/beaver/services/beaver/machine"
)

func TestDecide(t *testing.T) {
	ctx := context.Background()
	budget := decider.DefaultBudget()

	t.Run("static: halting state unreachable", func(t *testing.T) {
		// B holds the only halting cell and nothing ever enters B from A.
		m := machine.MustParse("1RA1RA_---1LB")
		got, err := New().Decide(ctx, m, budget)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Proven() || got.Steps != 0 {
			t.Fatalf("Decision = %s", got)
		}
		w := got.Certificate.Backward
		want := []machine.Pair{{State: 1, Symbol: 0}, {State: 1, Symbol: 1}}
		if w.Mode != decider.BackwardStatic || !reflect.DeepEqual(w.Reachable, want) {
			t.Errorf("witness = %+v", w)
		}
	})

	t.Run("tree: halting symbol never under the head", func(t *testing.T) {
		// B halts on 1, but B is only entered moving right onto a cell
		// that every route into it leaves blank.
		m := machine.MustParse("1RB0LA_0LA---")
		got, err := New().Decide(ctx, m, budget)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Proven() || got.Steps != 0 {
			t.Fatalf("Decision = %s", got)
		}
		w := got.Certificate.Backward
		if w.Mode != decider.BackwardTree || w.Depth != 2 || w.Nodes != 2 {
			t.Errorf("witness = %+v", w)
		}
		if len(w.Levels) != 2 {
			t.Fatalf("levels = %+v", w.Levels)
		}
		halt := decider.TreeNode{State: 1, Cells: []decider.TreeCell{{Pos: 0, Symbol: 1}}}
		if !reflect.DeepEqual(w.Levels[0], []decider.TreeNode{halt}) {
			t.Errorf("level 0 = %+v", w.Levels[0])
		}
		pred := decider.TreeNode{State: 0, Head: -1, Cells: []decider.TreeCell{{Pos: -1, Symbol: 0}, {Pos: 0, Symbol: 1}}}
		if !reflect.DeepEqual(w.Levels[1], []decider.TreeNode{pred}) {
			t.Errorf("level 1 = %+v", w.Levels[1])
		}
	})

	t.Run("halts immediately", func(t *testing.T) {
		got, err := New().Decide(ctx, machine.MustParse("---1RA"), budget)
		if err != nil {
			t.Fatal(err)
		}
		if got.Reason != decider.ReasonNoProof {
			t.Errorf("Decision = %s", got)
		}
	})

	t.Run("halting machine", func(t *testing.T) {
		got, err := New().Decide(ctx, machine.MustParse("1RB1LB_1LA---"), budget)
		if err != nil {
			t.Fatal(err)
		}
		if got.Proven() {
			t.Errorf("certified a halting machine: %s", got)
		}
	})

	t.Run("unbounded tree", func(t *testing.T) {
		got, err := New().Decide(ctx, machine.MustParse("1RA---"), budget)
		if err != nil {
			t.Fatal(err)
		}
		if got.Reason != decider.ReasonDepthBudget {
			t.Errorf("Decision = %s", got)
		}
	})
}

func TestReachable(t *testing.T) {
	m := machine.MustParse("1RB1LB_1LA---")
	got, err := Reachable(m)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Errorf("Reachable = %v, want every pair", got)
	}

	none, err := Reachable(machine.MustParse("1RA1LA"))
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("Reachable = %v, want empty", none)
	}
}

func TestExpandTree(t *testing.T) {
	ctx := context.Background()
	m := machine.MustParse("1RB0LA_0LA---")

	res, err := ExpandTree(ctx, m, 1, 100)
	if err != nil {
		t.Fatal(err)
	}
	if res.Died || res.Depth != 1 {
		t.Errorf("depth-capped result = %+v", res)
	}

	res, err = ExpandTree(ctx, m, 10, 100)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Died || res.Depth != 2 || res.Nodes != 2 {
		t.Errorf("result = %+v", res)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := ExpandTree(cctx, m, 10, 100); err == nil {
		t.Error("expected cancellation error")
	}
}
