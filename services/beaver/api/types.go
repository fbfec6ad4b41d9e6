// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes the decider chain and verifier over HTTP.
//
// Endpoints:
//
//	POST /v1/decide            - Decide one machine
//	POST /v1/verify            - Verify a certificate against a machine
//	GET  /v1/records/:machine  - Fetch a stored decision
//	GET  /v1/health            - Health check
//	GET  /metrics              - Prometheus metrics
//
// Decide and verify requests share a token bucket rate limiter.
package api

import (
	"github.com/AleutianAI/beaver/services/beaver/decider"
	"github.com/AleutianAI/beaver/services/beaver/runner"
)

// DecideRequest is the body of POST /v1/decide.
type DecideRequest struct {
	// Machine is the machine in compact text format.
	Machine string `json:"machine" validate:"required,max=512"`

	// Store persists the decision when the server has a store.
	Store bool `json:"store"`
}

// DecideResponse is the body returned by POST /v1/decide.
type DecideResponse struct {
	RequestID string        `json:"request_id"`
	TraceID   string        `json:"trace_id,omitempty"`
	Result    runner.Result `json:"result"`
	Stored    bool          `json:"stored"`
}

// VerifyRequest is the body of POST /v1/verify.
type VerifyRequest struct {
	Machine     string               `json:"machine" validate:"required,max=512"`
	Certificate *decider.Certificate `json:"certificate" validate:"required"`
}

// VerifyResponse is the body returned by POST /v1/verify.
type VerifyResponse struct {
	RequestID string `json:"request_id"`
	Valid     bool   `json:"valid"`

	// Reason explains a rejected certificate.
	Reason string `json:"reason,omitempty"`
}

// HealthResponse is the body returned by GET /v1/health.
type HealthResponse struct {
	Status   string         `json:"status"`
	Deciders []decider.Kind `json:"deciders"`
	Store    bool           `json:"store"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is a stable machine-readable error code.
	Code string `json:"code,omitempty"`

	RequestID string `json:"request_id,omitempty"`
}
