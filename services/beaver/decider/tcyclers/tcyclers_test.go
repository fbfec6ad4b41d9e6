// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tcyclers

import (
	"context"
	"reflect"
	"testing"

	"github.com/AleutianAI/beaver/services/beaver/decider"
	"github.com/AleutianAI/beaver/services/beaver/decider/cyclers"
	"github.com/AleutianAI/beaver/services/beaver/machine"
)

func TestDecide(t *testing.T) {
	ctx := context.Background()
	budget := decider.DefaultBudget()
	budget.MaxSteps = 1000

	tests := []struct {
		name    string
		machine string
		want    *decider.TCyclerWitness
		reason  decider.Reason
	}{
		{
			name:    "drifts right",
			machine: "1RA---",
			want:    &decider.TCyclerWitness{Start: 0, End: 1, Shift: 1, WindowRadius: 0, State: 0},
		},
		{
			name:    "drifts left",
			machine: "1LA---",
			want:    &decider.TCyclerWitness{Start: 0, End: 1, Shift: -1, WindowRadius: 0, State: 0},
		},
		{
			name:    "two forward one back",
			machine: "1RB1RB_1LC---_---1RA",
			want:    &decider.TCyclerWitness{Start: 1, End: 4, Shift: 1, WindowRadius: 1, State: 1},
		},
		{
			name:    "halts",
			machine: "1RB1LB_1LA---",
			reason:  decider.ReasonHalted,
		},
		{
			name:    "growing block is not translated",
			machine: "1LB1RA_0RA1LB",
			reason:  decider.ReasonStepBudget,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New().Decide(ctx, machine.MustParse(tt.machine), budget)
			if err != nil {
				t.Fatalf("Decide: %v", err)
			}
			if tt.want == nil {
				if got.Verdict != decider.VerdictUnknown || got.Reason != tt.reason {
					t.Errorf("Decision = %s, want unknown (%s)", got, tt.reason)
				}
				return
			}
			if !got.Proven() {
				t.Fatalf("Decision = %s", got)
			}
			if !reflect.DeepEqual(got.Certificate.TCycler, tt.want) {
				t.Errorf("witness = %+v, want %+v", got.Certificate.TCycler, tt.want)
			}
		})
	}
}

func TestDecide_NotACycler(t *testing.T) {
	m := machine.MustParse("1RB1RB_1LC---_---1RA")
	b := decider.DefaultBudget()
	b.MaxSteps = 1000

	c, err := cyclers.New().Decide(context.Background(), m, b)
	if err != nil {
		t.Fatal(err)
	}
	if c.Proven() {
		t.Fatalf("cyclers decided a translated cycle: %s", c)
	}
	tc, err := New().Decide(context.Background(), m, b)
	if err != nil {
		t.Fatal(err)
	}
	if !tc.Proven() || tc.Certificate.TCycler.Shift == 0 {
		t.Errorf("Decision = %s", tc)
	}
}

func TestDecide_Budgets(t *testing.T) {
	ctx := context.Background()
	m := machine.MustParse("1RB1RB_1LC---_---1RA")

	t.Run("window budget", func(t *testing.T) {
		b := decider.DefaultBudget()
		b.MaxSteps = 50
		b.MaxWindowRadius = 0
		got, err := New().Decide(ctx, m, b)
		if err != nil {
			t.Fatal(err)
		}
		if got.Reason != decider.ReasonWindowBudget {
			t.Errorf("Decision = %s", got)
		}
	})

	t.Run("record budget", func(t *testing.T) {
		b := decider.DefaultBudget()
		b.MaxRecords = 2
		got, err := New().Decide(ctx, m, b)
		if err != nil {
			t.Fatal(err)
		}
		if got.Reason != decider.ReasonRecordBudget {
			t.Errorf("Decision = %s", got)
		}
	})

	t.Run("monotone in radius", func(t *testing.T) {
		for _, r := range []int{1, 2, 16, 256} {
			b := decider.DefaultBudget()
			b.MaxWindowRadius = r
			got, err := New().Decide(ctx, m, b)
			if err != nil {
				t.Fatal(err)
			}
			if !got.Proven() {
				t.Errorf("MaxWindowRadius=%d: %s", r, got)
			}
		}
	})
}
