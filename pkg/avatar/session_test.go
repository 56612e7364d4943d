package avatar

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callkit-ai/callkit/pkg/connection"
)

// newTestSession builds a session whose outbound messages are captured
// instead of written to a socket.
func newTestSession(t *testing.T) (*Session, *[]clientMessage) {
	t.Helper()

	s, err := NewSession(Config{
		ServerURL: "wss://avatar.example.com/v1/session",
		APIKey:    "test-key",
		AvatarID:  "ava-1",
		VoiceID:   "voice-1",
	})
	require.NoError(t, err)

	var sent []clientMessage
	s.sendJSON = func(v interface{}) error {
		sent = append(sent, v.(clientMessage))
		return nil
	}
	return s, &sent
}

// recordingHandler captures events for assertions.
type recordingHandler struct {
	NoOpEventHandler
	states      []connection.State
	connected   int
	firstFrames int
	speaking    []bool
	errors      []*SessionError
}

func (h *recordingHandler) OnStateChange(state connection.State) { h.states = append(h.states, state) }
func (h *recordingHandler) OnConnected(stream *Stream)           { h.connected++ }
func (h *recordingHandler) OnFirstFrame()                        { h.firstFrames++ }
func (h *recordingHandler) OnSpeakingChanged(s bool)             { h.speaking = append(h.speaking, s) }
func (h *recordingHandler) OnSessionError(err *SessionError)     { h.errors = append(h.errors, err) }

func TestNewSessionValidation(t *testing.T) {
	t.Run("missing server url", func(t *testing.T) {
		_, err := NewSession(Config{APIKey: "k", AvatarID: "a"})
		require.Error(t, err)
		assert.Equal(t, ErrCodeInvalidConfig, err.(*SessionError).Code)
	})

	t.Run("missing api key", func(t *testing.T) {
		_, err := NewSession(Config{ServerURL: "wss://x", AvatarID: "a"})
		assert.Error(t, err)
	})

	t.Run("default quality", func(t *testing.T) {
		s, err := NewSession(Config{ServerURL: "wss://x", APIKey: "k", AvatarID: "a"})
		require.NoError(t, err)
		assert.Equal(t, "medium", s.cfg.Quality)
	})
}

func TestSendTextQueuesWhileSpeaking(t *testing.T) {
	s, sent := newTestSession(t)
	s.state = connection.StateConnected

	require.NoError(t, s.SendText("hello"))
	require.Len(t, *sent, 1)
	assert.Equal(t, "avatar.speak", (*sent)[0].Type)
	assert.True(t, s.IsSpeaking())

	// Speaking now; further texts must queue, not interrupt or drop.
	require.NoError(t, s.SendText("how are you"))
	require.NoError(t, s.SendText("today"))
	assert.Len(t, *sent, 1)

	// speak_ended drains exactly one queued entry.
	require.NoError(t, s.handleServerMessage(context.Background(), &serverMessage{Type: "avatar.speak_ended"}))
	require.Len(t, *sent, 2)
	assert.Equal(t, "how are you", (*sent)[1].Text)
	assert.True(t, s.IsSpeaking())

	require.NoError(t, s.handleServerMessage(context.Background(), &serverMessage{Type: "avatar.speak_ended"}))
	require.Len(t, *sent, 3)
	assert.Equal(t, "today", (*sent)[2].Text)
}

func TestSendTextBeforeConnectedQueues(t *testing.T) {
	s, sent := newTestSession(t)
	h := &recordingHandler{}
	s.RegisterEventHandler(h)

	require.NoError(t, s.SendText("early"))
	assert.Empty(t, *sent)

	// session.ready flips to connected and drains the queue.
	require.NoError(t, s.handleServerMessage(context.Background(), &serverMessage{Type: "session.ready"}))
	require.Len(t, *sent, 1)
	assert.Equal(t, "early", (*sent)[0].Text)
	assert.Equal(t, 1, h.connected)
}

func TestInterruptClearsQueue(t *testing.T) {
	s, sent := newTestSession(t)
	s.state = connection.StateConnected

	require.NoError(t, s.SendText("one"))
	require.NoError(t, s.SendText("two"))
	require.NoError(t, s.SendText("three"))

	s.Interrupt()
	require.Len(t, *sent, 2) // the first speak plus the interrupt
	assert.Equal(t, "avatar.interrupt", (*sent)[1].Type)

	// Nothing queued remains after the current speech ends.
	require.NoError(t, s.handleServerMessage(context.Background(), &serverMessage{Type: "avatar.speak_ended"}))
	assert.Len(t, *sent, 2)
}

func TestSpeakingEventsReachHandler(t *testing.T) {
	s, _ := newTestSession(t)
	h := &recordingHandler{}
	s.RegisterEventHandler(h)

	require.NoError(t, s.handleServerMessage(context.Background(), &serverMessage{Type: "avatar.speak_started"}))
	assert.True(t, s.IsSpeaking())
	require.NoError(t, s.handleServerMessage(context.Background(), &serverMessage{Type: "avatar.speak_ended"}))
	assert.False(t, s.IsSpeaking())

	assert.Equal(t, []bool{true, false}, h.speaking)
}

func TestVendorErrorClassification(t *testing.T) {
	s, _ := newTestSession(t)

	err := s.handleServerMessage(context.Background(), &serverMessage{
		Type:     "session.error",
		Code:     "quota_exceeded",
		Message:  "plan limit reached",
		Terminal: true,
	})
	require.Error(t, err)

	sessErr, ok := err.(*SessionError)
	require.True(t, ok)
	assert.Equal(t, ErrCodeQuotaExceeded, sessErr.Code)
	assert.True(t, sessErr.Terminal)
}

func TestFirstFrameIsOneShot(t *testing.T) {
	s, _ := newTestSession(t)
	h := &recordingHandler{}
	s.RegisterEventHandler(h)

	s.markFirstFrame()
	s.markFirstFrame()
	s.markFirstFrame()

	assert.Equal(t, 1, h.firstFrames)
}

func TestSendTextAfterTerminalStateFails(t *testing.T) {
	s, _ := newTestSession(t)
	s.state = connection.StateError

	assert.Error(t, s.SendText("hello"))
}

func TestUnknownEventIgnored(t *testing.T) {
	s, _ := newTestSession(t)
	assert.NoError(t, s.handleServerMessage(context.Background(), &serverMessage{Type: "vendor.analytics"}))
}

func TestStreamTrackAccessIsConcurrencySafe(t *testing.T) {
	// Tracks arrive on pion callbacks after the stream handle has been
	// handed to the view layer, so writers and readers overlap.
	stream := &Stream{}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			stream.setVideo(nil)
			stream.setAudio(nil)
		}
	}()

	for i := 0; i < 1000; i++ {
		stream.VideoTrack()
		stream.AudioTrack()
	}
	<-done
}
