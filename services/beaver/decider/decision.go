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

// Verdict is the outcome of a decision.
type Verdict string

const (
	// VerdictUnknown means the decider abstained.
	VerdictUnknown Verdict = "unknown"

	// VerdictNonHalting means the decider proved the machine never halts.
	VerdictNonHalting Verdict = "non_halting"

	// VerdictHalts is reserved for analyses outside this module. No decider
	// here produces it.
	VerdictHalts Verdict = "halts"
)

// Reason explains an Unknown decision.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonStepBudget      Reason = "step_budget"
	ReasonMemoryBudget    Reason = "memory_budget"
	ReasonWindowBudget    Reason = "window_budget"
	ReasonRecordBudget    Reason = "record_budget"
	ReasonOrderBudget     Reason = "order_budget"
	ReasonClassBudget     Reason = "class_budget"
	ReasonIterationBudget Reason = "iteration_budget"
	ReasonDepthBudget     Reason = "depth_budget"

	// ReasonHalted means the machine halted within the step budget.
	ReasonHalted Reason = "halted"

	// ReasonNoProof means the analysis finished without finding a proof.
	ReasonNoProof Reason = "no_proof"

	// ReasonUnverified means a certificate was produced but failed
	// independent verification and was withheld.
	ReasonUnverified Reason = "unverified"
)

// Decision is the result of one Decide call.
//
// Decisions are plain values: two runs with the same inputs produce Decisions
// that compare equal with reflect.DeepEqual.
type Decision struct {
	Verdict     Verdict      `json:"verdict"`
	Decider     Kind         `json:"decider"`
	Reason      Reason       `json:"reason,omitempty"`
	Certificate *Certificate `json:"certificate,omitempty"`

	// Steps is the number of simulated steps consumed. Static deciders
	// report 0.
	Steps int64 `json:"steps"`
}

// NonHalting returns a NonHalting decision for cert.
func NonHalting(cert *Certificate, steps int64) Decision {
	return Decision{Verdict: VerdictNonHalting, Decider: cert.Decider, Certificate: cert, Steps: steps}
}

// Unknown returns an abstaining decision.
func Unknown(k Kind, reason Reason, steps int64) Decision {
	return Decision{Verdict: VerdictUnknown, Decider: k, Reason: reason, Steps: steps}
}

// Proven reports whether the decision carries a non-halting proof.
func (d Decision) Proven() bool {
	return d.Verdict == VerdictNonHalting && d.Certificate != nil
}

// String renders the decision for logs.
func (d Decision) String() string {
	if d.Reason != ReasonNone {
		return fmt.Sprintf("%s by %s (%s, %d steps)", d.Verdict, d.Decider, d.Reason, d.Steps)
	}
	return fmt.Sprintf("%s by %s (%d steps)", d.Verdict, d.Decider, d.Steps)
}
