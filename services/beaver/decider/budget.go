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

import "fmt"

// Budget bounds the work a single Decide call may do.
//
// Every limit is checked at a well defined point (after a simulated step,
// after a fixed-point iteration, after a tree level) and exceeding one
// yields an Unknown decision. Raising any limit never turns a NonHalting
// decision into Unknown.
type Budget struct {
	// MaxSteps bounds simulated steps for every simulating decider.
	MaxSteps int64 `yaml:"max_steps" json:"max_steps" validate:"gte=0"`

	// MaxHistory bounds the configurations Cyclers keeps in its index.
	MaxHistory int `yaml:"max_history" json:"max_history" validate:"gte=0"`

	// MaxWindowRadius bounds the tape window TCyclers compares.
	MaxWindowRadius int `yaml:"max_window_radius" json:"max_window_radius" validate:"gte=0"`

	// MaxPolynomialOrder caps the order of the Bouncers growth models.
	MaxPolynomialOrder int `yaml:"max_polynomial_order" json:"max_polynomial_order" validate:"gte=0,lte=2"`

	// MaxRecords bounds the head records TCyclers and Bouncers collect.
	MaxRecords int `yaml:"max_records" json:"max_records" validate:"gte=0"`

	// MaxPeriod bounds the record period Bouncers tries.
	MaxPeriod int `yaml:"max_period" json:"max_period" validate:"gte=1"`

	// MaxClasses bounds the class set Inductive may build.
	MaxClasses int `yaml:"max_classes" json:"max_classes" validate:"gte=0"`

	// MaxFixpointIterations bounds worklist iterations per Inductive attempt.
	MaxFixpointIterations int `yaml:"max_fixpoint_iterations" json:"max_fixpoint_iterations" validate:"gte=0"`

	// MaxPatternWidth bounds the window width of Inductive classes.
	MaxPatternWidth int `yaml:"max_pattern_width" json:"max_pattern_width" validate:"gte=0"`

	// MaxBackwardDepth bounds the levels of the backward tree.
	MaxBackwardDepth int `yaml:"max_backward_depth" json:"max_backward_depth" validate:"gte=0"`

	// MaxBackwardNodes bounds the nodes of the backward tree.
	MaxBackwardNodes int `yaml:"max_backward_nodes" json:"max_backward_nodes" validate:"gte=0"`
}

// DefaultBudget returns limits that decide most small machines in well
// under a second each.
func DefaultBudget() Budget {
	return Budget{
		MaxSteps:              20000,
		MaxHistory:            20000,
		MaxWindowRadius:       256,
		MaxPolynomialOrder:    2,
		MaxRecords:            4096,
		MaxPeriod:             4,
		MaxClasses:            1024,
		MaxFixpointIterations: 20000,
		MaxPatternWidth:       4,
		MaxBackwardDepth:      32,
		MaxBackwardNodes:      10000,
	}
}

// Validate checks that every limit is in range.
func (b Budget) Validate() error {
	switch {
	case b.MaxSteps < 0:
		return fmt.Errorf("%w: max_steps %d", ErrInvalidBudget, b.MaxSteps)
	case b.MaxHistory < 0:
		return fmt.Errorf("%w: max_history %d", ErrInvalidBudget, b.MaxHistory)
	case b.MaxWindowRadius < 0:
		return fmt.Errorf("%w: max_window_radius %d", ErrInvalidBudget, b.MaxWindowRadius)
	case b.MaxPolynomialOrder < 0 || b.MaxPolynomialOrder > 2:
		return fmt.Errorf("%w: max_polynomial_order %d (want 0..2)", ErrInvalidBudget, b.MaxPolynomialOrder)
	case b.MaxRecords < 0:
		return fmt.Errorf("%w: max_records %d", ErrInvalidBudget, b.MaxRecords)
	case b.MaxPeriod < 1:
		return fmt.Errorf("%w: max_period %d", ErrInvalidBudget, b.MaxPeriod)
	case b.MaxClasses < 0:
		return fmt.Errorf("%w: max_classes %d", ErrInvalidBudget, b.MaxClasses)
	case b.MaxFixpointIterations < 0:
		return fmt.Errorf("%w: max_fixpoint_iterations %d", ErrInvalidBudget, b.MaxFixpointIterations)
	case b.MaxPatternWidth < 0:
		return fmt.Errorf("%w: max_pattern_width %d", ErrInvalidBudget, b.MaxPatternWidth)
	case b.MaxBackwardDepth < 0:
		return fmt.Errorf("%w: max_backward_depth %d", ErrInvalidBudget, b.MaxBackwardDepth)
	case b.MaxBackwardNodes < 0:
		return fmt.Errorf("%w: max_backward_nodes %d", ErrInvalidBudget, b.MaxBackwardNodes)
	}
	return nil
}
