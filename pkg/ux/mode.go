// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Mode selects how a Printer formats output.
type Mode string

const (
	// ModeRich uses colors, icons and boxes.
	ModeRich Mode = "rich"

	// ModePlain writes tab separated text suitable for scripting.
	ModePlain Mode = "plain"

	// ModeJSON writes one JSON object per line.
	ModeJSON Mode = "json"
)

// ParseMode converts a string to a Mode. Unknown names give ModePlain.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rich", "full", "color":
		return ModeRich
	case "json":
		return ModeJSON
	default:
		return ModePlain
	}
}

// DetectMode picks the mode for output written to f.
//
// Description:
//
//	JSON wins when requested. Otherwise BEAVER_OUTPUT overrides detection,
//	and a terminal gets ModeRich while pipes and files get ModePlain.
//	NO_COLOR forces ModePlain on terminals.
func DetectMode(f *os.File, jsonOutput bool) Mode {
	if jsonOutput {
		return ModeJSON
	}
	if env := os.Getenv("BEAVER_OUTPUT"); env != "" {
		return ParseMode(env)
	}
	if os.Getenv("NO_COLOR") != "" {
		return ModePlain
	}
	if IsTerminal(f) {
		return ModeRich
	}
	return ModePlain
}

// IsTerminal reports whether f is a terminal, including Cygwin/MSYS ptys.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
