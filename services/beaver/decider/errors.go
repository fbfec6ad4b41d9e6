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

import "errors"

var (
	// ErrInvalidBudget indicates a budget with a negative or out of range
	// limit.
	ErrInvalidBudget = errors.New("invalid budget")

	// ErrUnknownDecider indicates a decider kind with no registered
	// implementation.
	ErrUnknownDecider = errors.New("unknown decider")

	// ErrDuplicateDecider indicates two deciders registered under one kind.
	ErrDuplicateDecider = errors.New("duplicate decider")

	// ErrMalformedCertificate indicates a certificate whose tag and witness
	// disagree.
	ErrMalformedCertificate = errors.New("malformed certificate")
)
