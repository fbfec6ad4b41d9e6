// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cyclers

import (
	"context"
	"errors"
	"reflect"
	"runtime"
	"testing"

	"github.com/AleutianAI/beaver/services/beaver/decider"
	"github.com/AleutianAI/beaver/services/beaver/machine"
	"github.com/AleutianAI/beaver/services/beaver/sim"
)

func TestDecide(t *testing.T) {
	ctx := context.Background()
	budget := decider.DefaultBudget()
	budget.MaxSteps = 100

	tests := []struct {
		name    string
		machine string
		verdict decider.Verdict
		reason  decider.Reason
		start   int64
		end     int64
	}{
		{"pure period 2", "0RB---_0LA---", decider.VerdictNonHalting, "", 0, 2},
		{"preperiod 2", "1RB1RB_1LA1LA", decider.VerdictNonHalting, "", 2, 4},
		{"period 4", "1RB0RB_0LA---", decider.VerdictNonHalting, "", 0, 4},
		{"halts", "1RB1LB_1LA---", decider.VerdictUnknown, decider.ReasonHalted, 0, 0},
		{"drifts", "1RA---", decider.VerdictUnknown, decider.ReasonStepBudget, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New().Decide(ctx, machine.MustParse(tt.machine), budget)
			if err != nil {
				t.Fatalf("Decide: %v", err)
			}
			if got.Verdict != tt.verdict || got.Reason != tt.reason {
				t.Fatalf("Decision = %s", got)
			}
			if tt.verdict != decider.VerdictNonHalting {
				if got.Certificate != nil {
					t.Error("abstention carries a certificate")
				}
				return
			}
			w := got.Certificate.Cycler
			if w == nil || w.Start != tt.start || w.End != tt.end {
				t.Errorf("witness = %+v, want (%d, %d)", w, tt.start, tt.end)
			}
			if got.Certificate.Machine != tt.machine {
				t.Errorf("Machine = %q", got.Certificate.Machine)
			}
			if err := got.Certificate.Validate(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestDecide_Budgets(t *testing.T) {
	ctx := context.Background()
	m := machine.MustParse("1RB1RB_1LA1LA")

	t.Run("memory budget", func(t *testing.T) {
		b := decider.DefaultBudget()
		b.MaxHistory = 2
		got, err := New().Decide(ctx, m, b)
		if err != nil {
			t.Fatal(err)
		}
		if got.Reason != decider.ReasonMemoryBudget {
			t.Errorf("Decision = %s", got)
		}
	})

	t.Run("history sized to steps reports steps", func(t *testing.T) {
		b := decider.DefaultBudget()
		b.MaxSteps = 500
		b.MaxHistory = 500
		got, err := New().Decide(ctx, machine.MustParse("1RB---_1RA---"), b)
		if err != nil {
			t.Fatal(err)
		}
		if got.Reason != decider.ReasonStepBudget || got.Steps != 500 {
			t.Errorf("Decision = %s", got)
		}
	})

	t.Run("monotone in steps", func(t *testing.T) {
		for _, steps := range []int64{4, 5, 100, 10000} {
			b := decider.DefaultBudget()
			b.MaxSteps = steps
			got, err := New().Decide(ctx, m, b)
			if err != nil {
				t.Fatal(err)
			}
			if !got.Proven() {
				t.Errorf("MaxSteps=%d: %s", steps, got)
			}
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		a, _ := New().Decide(ctx, m, decider.DefaultBudget())
		b, _ := New().Decide(ctx, m, decider.DefaultBudget())
		if !reflect.DeepEqual(a, b) {
			t.Errorf("%+v != %+v", a, b)
		}
	})

	t.Run("invalid budget", func(t *testing.T) {
		b := decider.DefaultBudget()
		b.MaxSteps = -1
		if _, err := New().Decide(ctx, m, b); !errors.Is(err, decider.ErrInvalidBudget) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := New().Decide(cctx, m, decider.DefaultBudget()); !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v", err)
		}
	})
}

func TestDecide_IndexMemory(t *testing.T) {
	// The tape grows every step, so keeping whole tapes in the index would
	// cost hundreds of MiB here.
	m := machine.MustParse("1RB---_1RA---")
	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	got, err := New().Decide(context.Background(), m, decider.DefaultBudget())
	runtime.ReadMemStats(&after)
	if err != nil {
		t.Fatal(err)
	}
	if got.Reason != decider.ReasonStepBudget {
		t.Errorf("Decision = %s", got)
	}
	if alloc := after.TotalAlloc - before.TotalAlloc; alloc > 32<<20 {
		t.Errorf("allocated %d MiB", alloc>>20)
	}
}

func TestSameAs(t *testing.T) {
	m := machine.MustParse("1RB1RB_1LA1LA")
	live := sim.New(m)
	if _, err := live.RunTo(4); err != nil {
		t.Fatal(err)
	}
	r := sim.New(m)
	for _, tt := range []struct {
		step int64
		want bool
	}{{3, false}, {2, true}, {0, false}} {
		got, err := sameAs(r, tt.step, live.Config())
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("sameAs(step %d) = %v, want %v", tt.step, got, tt.want)
		}
	}
}
