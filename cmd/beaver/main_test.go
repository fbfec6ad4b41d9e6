// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/beaver/pkg/ux"
	"github.com/AleutianAI/beaver/services/beaver/classes"
	"github.com/AleutianAI/beaver/services/beaver/decider"
)

const (
	cycler = "1RB1RB_1LA1LA"
	bb2    = "1RB1LB_1LA---"
)

// runCLI executes the command tree with captured streams.
func runCLI(t *testing.T, ctx context.Context, stdin string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("OTEL_TRACES_EXPORTER", "none")
	t.Setenv("OTEL_METRICS_EXPORTER", "none")
	t.Setenv("BEAVER_OUTPUT", "plain")

	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func jsonLines(t *testing.T, out string) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(out), "\n") {
		var v map[string]any
		require.NoError(t, json.Unmarshal([]byte(l), &v), l)
		lines = append(lines, v)
	}
	return lines
}

func TestDecide_Plain(t *testing.T) {
	out, _, err := runCLI(t, context.Background(), "", "decide", cycler)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, cycler+"\tnon_halting\tcyclers\t"), out)
}

func TestDecide_JSONAndStrict(t *testing.T) {
	out, _, err := runCLI(t, context.Background(), "", "decide", "--json", bb2)
	require.NoError(t, err)
	lines := jsonLines(t, out)
	require.Len(t, lines, 1)
	assert.Equal(t, "unknown", lines[0]["verdict"])
	assert.Equal(t, "inductive", lines[0]["decider"])
	assert.Equal(t, false, lines[0]["proven"])

	_, _, err = runCLI(t, context.Background(), "", "decide", "--strict", bb2)
	assert.ErrorIs(t, err, errUndecided)
}

func TestDecide_InvalidMachine(t *testing.T) {
	_, _, err := runCLI(t, context.Background(), "", "decide", "not-a-machine")
	assert.Error(t, err)

	_, _, err = runCLI(t, context.Background(), "", "decide")
	assert.Error(t, err, "missing argument")
}

func TestDecide_BadLogLevel(t *testing.T) {
	_, _, err := runCLI(t, context.Background(), "", "decide", "--log-level", "loud", cycler)
	assert.Error(t, err)
}

func TestBatch_Stdin(t *testing.T) {
	input := strings.Join([]string{"# header", cycler, "", "bogus", bb2}, "\n")
	out, _, err := runCLI(t, context.Background(), input, "batch", "--json", "--workers", "2", "-")
	require.NoError(t, err)

	lines := jsonLines(t, out)
	require.Len(t, lines, 4)
	assert.Equal(t, cycler, lines[0]["machine"])
	assert.Equal(t, "non_halting", lines[0]["verdict"])
	assert.Equal(t, "bogus", lines[1]["machine"])
	assert.Contains(t, lines[1], "error")
	assert.Equal(t, bb2, lines[2]["machine"])

	summary := lines[3]
	assert.EqualValues(t, 3, summary["total"])
	assert.EqualValues(t, 1, summary["non_halting"])
	assert.EqualValues(t, 1, summary["unknown"])
	assert.EqualValues(t, 1, summary["failed"])
}

func TestBatch_MissingFile(t *testing.T) {
	_, _, err := runCLI(t, context.Background(), "", "batch", filepath.Join(t.TempDir(), "none.txt"))
	assert.Error(t, err)
}

func TestVerify_FromStore(t *testing.T) {
	dir := t.TempDir()
	_, _, err := runCLI(t, context.Background(), "", "decide", "--store", dir, cycler, bb2)
	require.NoError(t, err)

	out, _, err := runCLI(t, context.Background(), "", "verify", "--store", dir, cycler)
	require.NoError(t, err)
	assert.Equal(t, cycler+"\tvalid\n", out)

	_, _, err = runCLI(t, context.Background(), "", "verify", "--store", dir, bb2)
	assert.ErrorContains(t, err, "no certificate")
}

func TestVerify_NoStore(t *testing.T) {
	t.Setenv("BEAVER_STORE_PATH", "")
	_, _, err := runCLI(t, context.Background(), "", "verify", cycler)
	assert.ErrorIs(t, err, errNoStore)
}

func TestVerify_CertificateFile(t *testing.T) {
	cert := decider.Certificate{
		Decider: decider.KindCyclers,
		Machine: cycler,
		Cycler:  &decider.CyclerWitness{Start: 0, End: 1},
	}
	data, err := json.Marshal(cert)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "cert.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	out, _, err := runCLI(t, context.Background(), "", "verify", "--certificate", path, cycler)
	assert.Error(t, err)
	assert.True(t, strings.HasPrefix(out, cycler+"\tinvalid\t"), out)

	_, _, err = runCLI(t, context.Background(), "{", "verify", "--certificate", "-", cycler)
	assert.ErrorContains(t, err, "decode certificate")
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, _, err := runCLI(t, ctx, "", "serve", "--addr", "127.0.0.1:0")
	assert.NoError(t, err)
}

func TestDescribe(t *testing.T) {
	assert.Empty(t, describe(nil))
	assert.Equal(t, "repeats steps 2..6 (period 4)",
		describe(&decider.Certificate{Cycler: &decider.CyclerWitness{Start: 2, End: 6}}))
	assert.Equal(t, "closed set of 3 classes at width 1",
		describe(&decider.Certificate{Inductive: &decider.InductiveWitness{Width: 1, Classes: make([]classes.Class, 3)}}))
	assert.Contains(t,
		describe(&decider.Certificate{Backward: &decider.BackwardWitness{Mode: decider.BackwardTree, Depth: 3, Nodes: 7}}),
		"depth 3 after 7 nodes")
}

func TestOutputMode_NonFileIsPlain(t *testing.T) {
	t.Setenv("BEAVER_OUTPUT", "")
	t.Setenv("NO_COLOR", "")
	assert.Equal(t, ux.ModePlain, outputMode(&bytes.Buffer{}, false))
	assert.Equal(t, ux.ModeJSON, outputMode(&bytes.Buffer{}, true))
}
