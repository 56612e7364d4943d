package trace

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(sdktrace.NewTracerProvider())
	})
	return recorder
}

func TestCallSpanLifecycle(t *testing.T) {
	recorder := newRecorder(t)

	_, span := StartCall(context.Background(), "call-1", true)
	span.StateTransition("initiating", "connecting")
	span.VideoRevealed()
	span.Fallback("sustained poor network")
	span.TeardownStep("stop ringback")
	span.End("user request")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "call.session", spans[0].Name())

	var events []string
	for _, ev := range spans[0].Events() {
		events = append(events, ev.Name)
	}
	assert.Equal(t, []string{
		"call.state_change",
		"call.video_revealed",
		"call.fallback",
		"call.teardown_step",
	}, events)
}

func TestCallSpanAdapterError(t *testing.T) {
	recorder := newRecorder(t)

	_, span := StartCall(context.Background(), "call-2", false)
	span.AdapterError("voice", errors.New("giving up after 3 attempts"), true)
	span.AdapterError("voice", nil, false)
	span.End("voice channel failed")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	var events []string
	for _, ev := range spans[0].Events() {
		events = append(events, ev.Name)
	}
	// One recorded exception plus the classified adapter event; the nil
	// error is ignored.
	assert.Equal(t, []string{"exception", "adapter.error"}, events)
}

func TestCallSpanNilReceiverSafe(t *testing.T) {
	var span *CallSpan
	span.StateTransition("connecting", "connected")
	span.VideoRevealed()
	span.Fallback("avatar terminal error")
	span.AdapterError("avatar", errors.New("quota exceeded"), true)
	span.TeardownStep("stop monitor")
	span.End("user request")
}
