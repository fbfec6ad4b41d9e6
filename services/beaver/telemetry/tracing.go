// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/beaver/services/beaver/decider"
)

// TracerName is the instrumentation scope of every decision span.
const TracerName = "beaver.runner"

// Span attribute keys. Chain and attempt spans share them so a trace backend
// can group attempts by decider and verdict.
const (
	AttrMachine  = attribute.Key("beaver.machine")
	AttrDecider  = attribute.Key("beaver.decider")
	AttrDeciders = attribute.Key("beaver.deciders")
	AttrVerdict  = attribute.Key("beaver.verdict")
	AttrReason   = attribute.Key("beaver.reason")
	AttrSteps    = attribute.Key("beaver.steps")
	AttrProven   = attribute.Key("beaver.proven")
	AttrRunID    = attribute.Key("beaver.run_id")
	AttrMachines = attribute.Key("beaver.machines")
)

// EventCertificateRejected is added to an attempt span when the verifier
// rejects the decider's certificate.
const EventCertificateRejected = "certificate.rejected"

// tracer is looked up per call so a provider installed after package init
// still receives spans.
func tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartChainSpan starts the span covering one machine's trip through the
// decider chain. The caller must End it.
//
// Thread Safety: Safe for concurrent use.
func StartChainSpan(ctx context.Context, machine string, deciders int) (context.Context, trace.Span) {
	return tracer().Start(ctx, "runner.Chain",
		trace.WithAttributes(
			AttrMachine.String(machine),
			AttrDeciders.Int(deciders),
		),
	)
}

// StartBatchSpan starts the span covering one batch run. The caller must End
// it.
func StartBatchSpan(ctx context.Context, runID string, machines int) (context.Context, trace.Span) {
	return tracer().Start(ctx, "runner.Batch",
		trace.WithAttributes(
			AttrRunID.String(runID),
			AttrMachines.Int(machines),
		),
	)
}

// StartDeciderSpan starts the span for one decider attempt, named
// "decider.<kind>". The caller must End it.
//
// Thread Safety: Safe for concurrent use.
func StartDeciderSpan(ctx context.Context, kind decider.Kind, machine string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "decider."+string(kind),
		trace.WithAttributes(
			AttrDecider.String(string(kind)),
			AttrMachine.String(machine),
		),
	)
}

// RecordDecision stamps dec onto span and marks it successful. The reason is
// only set for Unknown decisions. A nil span is a no-op.
func RecordDecision(span trace.Span, dec decider.Decision) {
	if span == nil {
		return
	}
	attrs := []attribute.KeyValue{
		AttrDecider.String(string(dec.Decider)),
		AttrVerdict.String(string(dec.Verdict)),
		AttrProven.Bool(dec.Proven()),
		AttrSteps.Int64(dec.Steps),
	}
	if dec.Reason != "" {
		attrs = append(attrs, AttrReason.String(string(dec.Reason)))
	}
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Ok, "")
}

// RecordRejected notes on span that kind's certificate failed verification.
// The span status is left alone: a rejected certificate degrades the
// decision to Unknown, it does not fail the attempt.
func RecordRejected(span trace.Span, kind decider.Kind, err error) {
	if span == nil || err == nil {
		return
	}
	span.AddEvent(EventCertificateRejected, trace.WithAttributes(
		AttrDecider.String(string(kind)),
		attribute.String("error", err.Error()),
	))
}

// RecordError records err on span and marks the span failed. A nil span or
// error is a no-op.
func RecordError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if span == nil || err == nil {
		return
	}
	opts := make([]trace.EventOption, 0, 1)
	if len(attrs) > 0 {
		opts = append(opts, trace.WithAttributes(attrs...))
	}
	span.RecordError(err, opts...)
	span.SetStatus(codes.Error, err.Error())
}

// TraceID returns the trace ID of the span in ctx, or "" if there is none.
// The API echoes it in responses for correlation.
func TraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
