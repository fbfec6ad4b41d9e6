// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package runner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/beaver/services/beaver/decider"
)

// =============================================================================
// Prometheus Metrics for Decider Runs
// =============================================================================

var (
	// decisionsTotal counts decider attempts by outcome.
	// Labels: decider, verdict, reason
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beaver",
		Subsystem: "runner",
		Name:      "decisions_total",
		Help:      "Decider attempts by decider, verdict and reason",
	}, []string{"decider", "verdict", "reason"})

	// attemptLatency measures one Decide call.
	// Labels: decider
	attemptLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "beaver",
		Subsystem: "runner",
		Name:      "attempt_duration_seconds",
		Help:      "Time spent in one decider attempt",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"decider"})

	// attemptSteps tracks simulated steps per attempt.
	// Labels: decider
	attemptSteps = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "beaver",
		Subsystem: "runner",
		Name:      "attempt_steps",
		Help:      "Simulated steps consumed by one decider attempt",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 12),
	}, []string{"decider"})

	// verificationFailures counts certificates the verifier rejected.
	// Labels: decider
	verificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beaver",
		Subsystem: "runner",
		Name:      "verification_failures_total",
		Help:      "Certificates withheld because verification failed",
	}, []string{"decider"})
)

// =============================================================================
// Metrics Recording Functions
// =============================================================================

// recordAttempt records the outcome of one decider attempt.
func recordAttempt(d decider.Decision, seconds float64) {
	kind := string(d.Decider)
	decisionsTotal.WithLabelValues(kind, string(d.Verdict), string(d.Reason)).Inc()
	attemptLatency.WithLabelValues(kind).Observe(seconds)
	attemptSteps.WithLabelValues(kind).Observe(float64(d.Steps))
}

// recordVerificationFailure counts a withheld certificate.
func recordVerificationFailure(k decider.Kind) {
	verificationFailures.WithLabelValues(string(k)).Inc()
}
