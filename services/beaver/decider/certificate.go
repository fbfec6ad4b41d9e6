// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package decider

import (
	"fmt"

	"github.com/AleutianAI/beaver/services/beaver/classes"
	"github.com/AleutianAI/beaver/services/beaver/formula"
	"github.com/AleutianAI/beaver/services/beaver/machine"
)

// Certificate is the evidence behind a NonHalting decision.
//
// Exactly one witness is set, the one matching Decider. Certificates are
// values: once returned they are never modified.
type Certificate struct {
	Decider Kind `json:"decider"`

	// Machine is the machine in compact text format.
	Machine string `json:"machine"`

	Cycler    *CyclerWitness    `json:"cycler,omitempty"`
	TCycler   *TCyclerWitness   `json:"tcycler,omitempty"`
	Bouncer   *BouncerWitness   `json:"bouncer,omitempty"`
	Backward  *BackwardWitness  `json:"backward,omitempty"`
	Inductive *InductiveWitness `json:"inductive,omitempty"`
}

// CyclerWitness states that the configurations at Start and End are equal.
type CyclerWitness struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Period returns End - Start.
func (w CyclerWitness) Period() int64 {
	return w.End - w.Start
}

// TCyclerWitness states that the configuration at End repeats the one at
// Start shifted by Shift cells, judged on WindowRadius cells behind the head
// plus the blank side ahead of it.
type TCyclerWitness struct {
	Start        int64         `json:"start"`
	End          int64         `json:"end"`
	Shift        int64         `json:"shift"`
	WindowRadius int64         `json:"window_radius"`
	State        machine.State `json:"state"`
}

// BouncerWitness states that the far side of the tape at the head records in
// Records follows Formula at n = 1, 2, ... and that one more cycle of Period
// records in State takes the tape for n to the tape for n+1.
type BouncerWitness struct {
	// Side is the direction the records extend the tape in.
	Side   machine.Direction `json:"side"`
	State  machine.State     `json:"state"`
	Period int               `json:"period"`

	// Records are the steps of the matched records, Period records apart.
	Records []int64 `json:"records"`

	// StepModel and PositionModel fit the step and head position of
	// successive matched records.
	StepModel     formula.Polynomial `json:"step_model"`
	PositionModel formula.Polynomial `json:"position_model"`

	// Formula describes the tape behind the head, far end first, in the
	// orientation of Side.
	Formula formula.Formula `json:"formula"`
}

// BackwardMode names the backward stage that produced a witness.
type BackwardMode string

const (
	// BackwardStatic excludes the start pair by a fixed point over the
	// transition table.
	BackwardStatic BackwardMode = "static"

	// BackwardTree shows every backward path from a halting configuration
	// dies out before reaching the start configuration.
	BackwardTree BackwardMode = "tree"
)

// BackwardWitness carries either stage's evidence.
type BackwardWitness struct {
	Mode BackwardMode `json:"mode"`

	// Reachable is the closed set of pairs that may lead to a halt (static).
	Reachable []machine.Pair `json:"reachable,omitempty"`

	// Start is the excluded start pair (static).
	Start machine.Pair `json:"start"`

	// Depth is the first empty tree level and Nodes the nodes expanded
	// before it (tree).
	Depth int `json:"depth,omitempty"`
	Nodes int `json:"nodes,omitempty"`

	// Levels holds every non-empty tree level, halting configurations
	// first. Level i+1 covers every predecessor of level i and the
	// predecessors of the last level are all inconsistent (tree).
	Levels [][]TreeNode `json:"levels,omitempty"`
}

// TreeNode is a partial configuration in the backward tree. Positions are
// relative to the head of the halting configuration the path started from.
type TreeNode struct {
	State machine.State `json:"state"`
	Head  int64         `json:"head"`

	// Cells are the tape constraints, sorted by position.
	Cells []TreeCell `json:"cells"`
}

// TreeCell constrains one tape cell.
type TreeCell struct {
	Pos    int64          `json:"pos"`
	Symbol machine.Symbol `json:"symbol"`
}

// InductiveWitness is a closed set of configuration classes.
type InductiveWitness struct {
	// Width is the window width the classes were built with.
	Width int `json:"width"`

	// Classes starts with the initial class.
	Classes []classes.Class `json:"classes"`

	// Successors[i] lists the indices of the successors of Classes[i].
	Successors [][]int `json:"successors"`
}

// Validate checks that exactly the witness named by Decider is present.
func (c *Certificate) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil", ErrMalformedCertificate)
	}
	set := 0
	for _, present := range []bool{c.Cycler != nil, c.TCycler != nil, c.Bouncer != nil, c.Backward != nil, c.Inductive != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: %d witnesses", ErrMalformedCertificate, set)
	}
	var ok bool
	switch c.Decider {
	case KindCyclers:
		ok = c.Cycler != nil
	case KindTCyclers:
		ok = c.TCycler != nil
	case KindBouncers:
		ok = c.Bouncer != nil
	case KindBackward:
		ok = c.Backward != nil
	case KindInductive:
		ok = c.Inductive != nil
	}
	if !ok {
		return fmt.Errorf("%w: tag %q does not match witness", ErrMalformedCertificate, c.Decider)
	}
	return nil
}
