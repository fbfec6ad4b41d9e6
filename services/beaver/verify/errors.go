// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package verify

import "errors"

var (
	// ErrCertificateMismatch indicates a certificate that does not prove
	// what it claims for the given machine.
	ErrCertificateMismatch = errors.New("certificate does not verify")

	// ErrReplayLimit indicates a certificate that would need more replay
	// work than the verifier allows.
	ErrReplayLimit = errors.New("certificate exceeds replay limit")
)
