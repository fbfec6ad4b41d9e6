// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AleutianAI/beaver/services/beaver/decider"
	"github.com/AleutianAI/beaver/services/beaver/runner"
	"github.com/AleutianAI/beaver/services/beaver/storage/badger"
)

func newTestServer(t *testing.T, withStore bool, rps float64, burst int) http.Handler {
	t.Helper()
	chain, err := runner.NewChain(runner.DefaultRegistry(), runner.ChainConfig{Budget: decider.DefaultBudget(), Verify: true}, nil)
	require.NoError(t, err)

	var store RecordStore
	if withStore {
		db, err := badger.Open(badger.InMemoryConfig())
		require.NoError(t, err)
		s := badger.NewStore(db, nil)
		t.Cleanup(func() { _ = s.Close() })
		store = s
	}
	srv := NewServer(chain, store, nil, Config{RequestsPerSecond: rps, Burst: burst, Deciders: decider.DefaultOrder}, nil)
	return srv.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandleDecide(t *testing.T) {
	h := newTestServer(t, true, 100, 100)

	w := doJSON(t, h, http.MethodPost, "/v1/decide", DecideRequest{Machine: "1RB1RB_1LA1LA", Store: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var resp DecideResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, decider.VerdictNonHalting, resp.Result.Decision.Verdict)
	assert.Equal(t, decider.KindCyclers, resp.Result.Decision.Decider)
	assert.True(t, resp.Stored)
	assert.Equal(t, w.Header().Get("X-Request-ID"), resp.RequestID)

	w = doJSON(t, h, http.MethodGet, "/v1/records/1RB1RB_1LA1LA", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rec badger.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, resp.RequestID, rec.RunID)
}

func TestHandleDecide_TraceCorrelation(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	h := newTestServer(t, false, 100, 100)

	w := doJSON(t, h, http.MethodPost, "/v1/decide", DecideRequest{Machine: "1RB1RB_1LA1LA"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp DecideResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.TraceID)

	var chain, request sdktrace.ReadOnlySpan
	for _, sp := range sr.Ended() {
		switch sp.Name() {
		case "runner.Chain":
			chain = sp
		case "POST /v1/decide":
			request = sp
		}
	}
	require.NotNil(t, chain, "chain span")
	require.NotNil(t, request, "request span")
	assert.Equal(t, resp.TraceID, chain.SpanContext().TraceID().String())
	assert.Equal(t, request.SpanContext().SpanID(), chain.Parent().SpanID())
}

func TestHandleDecide_BadRequests(t *testing.T) {
	h := newTestServer(t, false, 100, 100)

	tests := []struct {
		name string
		body any
		code string
	}{
		{"malformed json", "not an object", "INVALID_REQUEST"},
		{"missing machine", map[string]any{}, "INVALID_REQUEST"},
		{"unparseable machine", DecideRequest{Machine: "1RB"}, "INVALID_MACHINE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, h, http.MethodPost, "/v1/decide", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestHandleVerify(t *testing.T) {
	h := newTestServer(t, false, 100, 100)

	w := doJSON(t, h, http.MethodPost, "/v1/decide", DecideRequest{Machine: "1RA---"})
	require.Equal(t, http.StatusOK, w.Code)
	var decided DecideResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decided))
	cert := decided.Result.Decision.Certificate
	require.NotNil(t, cert)

	w = doJSON(t, h, http.MethodPost, "/v1/verify", VerifyRequest{Machine: "1RA---", Certificate: cert})
	require.Equal(t, http.StatusOK, w.Code)
	var ok VerifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ok))
	assert.True(t, ok.Valid, ok.Reason)

	w = doJSON(t, h, http.MethodPost, "/v1/verify", VerifyRequest{Machine: "1LA---", Certificate: cert})
	require.Equal(t, http.StatusOK, w.Code)
	var rejected VerifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rejected))
	assert.False(t, rejected.Valid)
	assert.NotEmpty(t, rejected.Reason)

	w = doJSON(t, h, http.MethodPost, "/v1/verify", map[string]any{"machine": "1RA---"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleRecord(t *testing.T) {
	w := doJSON(t, newTestServer(t, false, 100, 100), http.MethodGet, "/v1/records/1RA---", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	h := newTestServer(t, true, 100, 100)
	w = doJSON(t, h, http.MethodGet, "/v1/records/1RA---", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, h, http.MethodGet, "/v1/records/zzz", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleHealth(t *testing.T) {
	w := doJSON(t, newTestServer(t, true, 100, 100), http.MethodGet, "/v1/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, decider.DefaultOrder, resp.Deciders)
	assert.True(t, resp.Store)
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(t, false, 0.001, 2)

	for i := 0; i < 2; i++ {
		w := doJSON(t, h, http.MethodPost, "/v1/decide", DecideRequest{Machine: "1RA---"})
		assert.Equal(t, http.StatusOK, w.Code)
	}
	w := doJSON(t, h, http.MethodPost, "/v1/decide", DecideRequest{Machine: "1RA---"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	w = doJSON(t, h, http.MethodGet, "/v1/health", nil)
	assert.Equal(t, http.StatusOK, w.Code, "health is not rate limited")
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := newTestServer(t, false, 100, 100)
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, false, 100, 100)
	_ = doJSON(t, h, http.MethodPost, "/v1/decide", DecideRequest{Machine: "1RA---"})

	w := doJSON(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "beaver_runner_decisions_total")
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	chain, err := runner.NewChain(runner.DefaultRegistry(), runner.ChainConfig{Budget: decider.DefaultBudget()}, nil)
	require.NoError(t, err)
	srv := NewServer(chain, nil, nil, Config{RequestsPerSecond: 1, Burst: 1}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()
	cancel()
	assert.NoError(t, <-done)
}
