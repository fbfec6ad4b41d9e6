// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package decider defines what every non-halting decider shares: the Decider
// capability, resource budgets, decisions and certificates.
//
// A decider either proves that a machine never halts, returning a NonHalting
// decision with a Certificate, or abstains with an Unknown decision naming
// the limit it ran into. Deciders never claim that a machine halts. The error
// return of Decide is reserved for broken invariants (a transition lookup
// outside the table) and for context cancellation seen at a budget
// checkpoint; running out of budget is an Unknown decision, not an error.
//
// Implementations live in the subpackages cyclers, tcyclers, bouncers,
// backward and inductive. They share no mutable state, so one Machine can be
// decided by several deciders on different goroutines at once.
package decider

import (
	"context"
	"fmt"
	"sort"

	"github.com/AleutianAI/beaver/services/beaver/machine"
)

// Kind identifies a decider. It is the tag carried by certificates.
type Kind string

const (
	KindCyclers   Kind = "cyclers"
	KindTCyclers  Kind = "tcyclers"
	KindBouncers  Kind = "bouncers"
	KindBackward  Kind = "backward"
	KindInductive Kind = "inductive"
)

// DefaultOrder is the cheapest-first order deciders are tried in.
var DefaultOrder = []Kind{KindCyclers, KindTCyclers, KindBouncers, KindBackward, KindInductive}

// Valid reports whether k names one of the built-in deciders.
func (k Kind) Valid() bool {
	switch k {
	case KindCyclers, KindTCyclers, KindBouncers, KindBackward, KindInductive:
		return true
	}
	return false
}

// CheckInterval is how many simulated steps a decider may run between
// context checks.
const CheckInterval = 4096

// Decider attempts to prove that a machine never halts.
//
// Description:
//
//	Decide must be deterministic: the same machine and budget give the same
//	Decision. It must never return a NonHalting decision whose certificate
//	would fail verification, and must return Unknown for any machine it sees
//	halt.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Decider interface {
	// Kind returns the tag this decider puts on its certificates.
	Kind() Kind

	// Decide runs the decider on m within budget b.
	Decide(ctx context.Context, m *machine.Machine, b Budget) (Decision, error)
}

// =============================================================================
// Registry
// =============================================================================

// Registry maps kinds to decider implementations.
//
// Thread Safety: A Registry is read-only after NewRegistry returns.
type Registry struct {
	byKind map[Kind]Decider
}

// NewRegistry builds a registry from the given deciders.
//
// Outputs:
//   - *Registry: The registry.
//   - error: ErrDuplicateDecider if two deciders share a kind.
func NewRegistry(ds ...Decider) (*Registry, error) {
	r := &Registry{byKind: make(map[Kind]Decider, len(ds))}
	for _, d := range ds {
		if _, dup := r.byKind[d.Kind()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDecider, d.Kind())
		}
		r.byKind[d.Kind()] = d
	}
	return r, nil
}

// Get returns the decider registered for k.
func (r *Registry) Get(k Kind) (Decider, error) {
	d, ok := r.byKind[k]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDecider, k)
	}
	return d, nil
}

// Select returns the deciders for kinds, in the order given.
func (r *Registry) Select(kinds []Kind) ([]Decider, error) {
	out := make([]Decider, 0, len(kinds))
	for _, k := range kinds {
		d, err := r.Get(k)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []Kind {
	out := make([]Kind, 0, len(r.byKind))
	for k := range r.byKind {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
