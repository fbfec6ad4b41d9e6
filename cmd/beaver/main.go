// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command beaver decides non-halting for Turing machines.
//
// Each machine runs through a chain of deciders (cyclers, translated cyclers,
// bouncers, backward reasoning and inductive closed sets). A non-halting
// verdict comes with a certificate that is re-checked before it is reported.
//
// Usage:
//
//	beaver decide 1RB1LB_1LA1RZ
//	beaver batch machines.txt --workers 8 --store ./certs
//	beaver verify 1RB1LB_1LA1RZ --store ./certs
//	beaver serve --addr :8080
//
// Configuration comes from --config (YAML or JSON), then BEAVER_* environment
// variables, then flags.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
