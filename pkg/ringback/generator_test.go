package ringback

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.OnMs = 100
	cfg.OffMs = 100
	cfg.FrameMs = 10
	cfg.FadeMs = 10
	return cfg
}

func TestStartStopProducesTone(t *testing.T) {
	sink := NewMemorySink()
	g := NewGenerator(testConfig(), sink)

	g.Start()
	require.True(t, g.IsPlaying())

	time.Sleep(80 * time.Millisecond)
	g.Stop()
	assert.False(t, g.IsPlaying())

	frames := sink.Frames()
	require.NotEmpty(t, frames)

	// Somewhere in the on-window there must be non-silent PCM.
	loud := false
	for _, f := range frames {
		for _, b := range f {
			if b != 0 {
				loud = true
			}
		}
	}
	assert.True(t, loud, "no audible samples generated during on-window")
}

func TestStartIdempotent(t *testing.T) {
	sink := NewMemorySink()
	g := NewGenerator(testConfig(), sink)

	g.Start()
	g.Start()
	g.Start()
	assert.True(t, g.IsPlaying())

	g.Stop()
	// Exactly one generator ran: exactly one close.
	assert.Equal(t, 1, sink.CloseCount())
}

func TestStopIdempotent(t *testing.T) {
	sink := NewMemorySink()
	g := NewGenerator(testConfig(), sink)

	g.Start()
	g.Stop()
	before := len(sink.Frames())

	g.Stop()
	g.Stop()

	assert.Equal(t, before, len(sink.Frames()), "extra frames after repeated Stop")
	assert.Equal(t, 1, sink.CloseCount())
	assert.False(t, g.IsPlaying())
}

func TestStopWithoutStart(t *testing.T) {
	g := NewGenerator(testConfig(), NewMemorySink())
	g.Stop()
	assert.False(t, g.IsPlaying())
}

func TestStartAgainAfterStop(t *testing.T) {
	sink := NewMemorySink()
	g := NewGenerator(testConfig(), sink)

	g.Start()
	g.Stop()
	g.Start()
	assert.True(t, g.IsPlaying())
	g.Stop()
	assert.Equal(t, 2, sink.CloseCount())
}

func TestBackendUnavailableIsSilentNoOp(t *testing.T) {
	sink := NewMemorySink()
	sink.OpenErr = errors.New("no audio device")
	g := NewGenerator(testConfig(), sink)

	g.Start()
	assert.False(t, g.IsPlaying())

	// Stop after a failed Start must not panic or close the sink.
	g.Stop()
	assert.Equal(t, 0, sink.CloseCount())
}

func TestStopReturnsPromptly(t *testing.T) {
	sink := NewMemorySink()
	g := NewGenerator(testConfig(), sink)

	g.Start()
	time.Sleep(30 * time.Millisecond)

	start := time.Now()
	g.Stop()
	// One frame period plus fade window, with scheduling slack.
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}
