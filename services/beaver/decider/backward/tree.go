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
	"sort"

	"github.com/AleutianAI/beaver/services/beaver/decider"
	"github.com/AleutianAI/beaver/services/beaver/machine"
)

// cell is a tape constraint at a position relative to the halting head.
type cell struct {
	pos int64
	sym machine.Symbol
}

// node is a partial configuration: a state, a head position and the cells
// the path to the halt depends on, sorted by position. The head cell is
// always constrained.
type node struct {
	state machine.State
	head  int64
	cells []cell
}

// TreeResult describes a bounded backward tree expansion.
type TreeResult struct {
	// Died is true when a level came out empty.
	Died bool

	// ReachedStart is true when a node matched the blank start
	// configuration.
	ReachedStart bool

	// Depth is the index of the last level expanded; when Died it is the
	// first empty level.
	Depth int

	// Nodes counts nodes over all expanded levels.
	Nodes int

	// Levels holds the expanded non-empty levels, halting configurations
	// first.
	Levels [][]decider.TreeNode
}

// ExpandTree expands predecessors of every halting configuration level by
// level.
//
// Description:
//
//	Level 0 holds one node per halting pair: the head on the pair's symbol.
//	A node (q, h, T) has a predecessor through each pair (s, b) whose
//	transition writes w, moves by dir and enters q, provided T does not
//	contradict w at h - dir. The predecessor is (s, h - dir, T with b at
//	h - dir). Expansion stops when a level is empty, when a node is in state
//	A with only blank cells, or when maxDepth levels or maxNodes nodes have
//	been produced. The result is deterministic.
//
// Thread Safety: Safe for concurrent use.
func ExpandTree(ctx context.Context, m *machine.Machine, maxDepth, maxNodes int) (TreeResult, error) {
	type edge struct {
		from machine.Pair
		out  machine.Outcome
	}
	into := make([][]edge, m.States())
	for s := 0; s < m.States(); s++ {
		for a := 0; a < m.Symbols(); a++ {
			p := machine.Pair{State: machine.State(s), Symbol: machine.Symbol(a)}
			o, err := m.Transition(p.State, p.Symbol)
			if err != nil {
				return TreeResult{}, err
			}
			if !o.Halt {
				into[o.Next] = append(into[o.Next], edge{from: p, out: o})
			}
		}
	}

	var level []node
	for _, p := range m.HaltingPairs() {
		level = append(level, node{state: p.State, cells: []cell{{pos: 0, sym: p.Symbol}}})
	}

	var res TreeResult
	for depth := 0; ; depth++ {
		res.Depth = depth
		if len(level) == 0 {
			res.Died = true
			return res, nil
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Nodes += len(level)
		res.Levels = append(res.Levels, witnessLevel(level))
		for _, n := range level {
			if n.isStart() {
				res.ReachedStart = true
				return res, nil
			}
		}
		if depth >= maxDepth || res.Nodes > maxNodes {
			return res, nil
		}

		var next []node
		for _, n := range level {
			for _, e := range into[n.state] {
				if p, ok := n.predecessor(e.from, e.out); ok {
					next = append(next, p)
				}
			}
		}
		level = next
	}
}

func (n node) isStart() bool {
	if n.state != machine.Start {
		return false
	}
	for _, c := range n.cells {
		if c.sym != machine.Blank {
			return false
		}
	}
	return true
}

// predecessor returns the node that reaches n by applying o from pair from.
func (n node) predecessor(from machine.Pair, o machine.Outcome) (node, bool) {
	h := n.head - o.Move.Delta()
	cells := make([]cell, 0, len(n.cells)+1)
	placed := false
	for _, c := range n.cells {
		if c.pos == h {
			if c.sym != o.Write {
				return node{}, false
			}
			cells = append(cells, cell{pos: h, sym: from.Symbol})
			placed = true
			continue
		}
		cells = append(cells, c)
	}
	if !placed {
		cells = append(cells, cell{pos: h, sym: from.Symbol})
		sort.Slice(cells, func(i, j int) bool { return cells[i].pos < cells[j].pos })
	}
	return node{state: from.State, head: h, cells: cells}, true
}

// witnessLevel converts a level to its certificate form.
func witnessLevel(level []node) []decider.TreeNode {
	out := make([]decider.TreeNode, len(level))
	for i, n := range level {
		cells := make([]decider.TreeCell, len(n.cells))
		for j, c := range n.cells {
			cells[j] = decider.TreeCell{Pos: c.pos, Symbol: c.sym}
		}
		out[i] = decider.TreeNode{State: n.state, Head: n.head, Cells: cells}
	}
	return out
}
