// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package runner drives the deciders over machines.
//
// A Chain tries the configured deciders on one machine, cheapest first, and
// stops at the first non-halting proof. Every certificate is re-checked by
// the verifier before it leaves the chain; one that fails is withheld and the
// decision downgraded to Unknown. A Batch runs a Chain over many machines on
// a bounded worker pool and emits results in input order.
//
// The runner is the only layer that logs, traces and counts decisions. The
// deciders below it stay free of I/O.
package runner

import (
	"fmt"

	"github.com/AleutianAI/beaver/services/beaver/decider"
	"github.com/AleutianAI/beaver/services/beaver/decider/backward"
	"github.com/AleutianAI/beaver/services/beaver/decider/bouncers"
	"github.com/AleutianAI/beaver/services/beaver/decider/cyclers"
	"github.com/AleutianAI/beaver/services/beaver/decider/inductive"
	"github.com/AleutianAI/beaver/services/beaver/decider/tcyclers"
)

// DefaultRegistry returns a registry holding every built-in decider.
func DefaultRegistry() *decider.Registry {
	reg, err := decider.NewRegistry(
		cyclers.New(),
		tcyclers.New(),
		bouncers.New(),
		backward.New(),
		inductive.New(),
	)
	if err != nil {
		// The built-in kinds are distinct.
		panic(fmt.Sprintf("runner: %v", err))
	}
	return reg
}
