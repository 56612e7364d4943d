package trace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CallSpan wraps the root span of one call session so the orchestrator
// can record lifecycle events without depending on otel types. All
// methods are safe on a nil receiver.
type CallSpan struct {
	span trace.Span
}

// StartCall opens the root span for a call session.
func StartCall(ctx context.Context, callID string, withVideo bool) (context.Context, *CallSpan) {
	ctx, span := StartSpan(ctx, "call.session",
		trace.WithAttributes(CallAttrs(callID, withVideo)...),
	)
	return ctx, &CallSpan{span: span}
}

// StateTransition records a call state transition.
func (s *CallSpan) StateTransition(from, to string) {
	if s == nil {
		return
	}
	s.span.AddEvent("call.state_change", trace.WithAttributes(
		attribute.String("call.old_state", from),
		attribute.String(AttrCallState, to),
	))
}

// VideoRevealed records the video surface becoming visible.
func (s *CallSpan) VideoRevealed() {
	if s == nil {
		return
	}
	s.span.AddEvent("call.video_revealed")
}

// Fallback records the switch to audio-only presentation.
func (s *CallSpan) Fallback(reason string) {
	if s == nil {
		return
	}
	s.span.AddEvent("call.fallback", trace.WithAttributes(
		attribute.String("call.fallback_reason", reason),
	))
}

// AdapterError records a classified adapter failure.
func (s *CallSpan) AdapterError(adapter string, err error, terminal bool) {
	if s == nil || err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
	s.span.AddEvent("adapter.error", trace.WithAttributes(
		attribute.String(AttrAdapterName, adapter),
		attribute.Bool("error.terminal", terminal),
	))
}

// TeardownStep records one completed teardown step.
func (s *CallSpan) TeardownStep(name string) {
	if s == nil {
		return
	}
	s.span.AddEvent("call.teardown_step", trace.WithAttributes(
		attribute.String("teardown.step", name),
	))
}

// End closes the span. Called once from teardown.
func (s *CallSpan) End(reason string) {
	if s == nil {
		return
	}
	s.span.SetAttributes(attribute.String("call.end_reason", reason))
	s.span.End()
}
