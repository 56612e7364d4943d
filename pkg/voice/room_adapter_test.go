package voice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callkit-ai/callkit/pkg/connection"
)

type testSource struct {
	frames chan []byte
}

func (s *testSource) Frames() <-chan []byte { return s.frames }
func (s *testSource) SampleRate() int       { return DefaultRoomSampleRate }

type recordingHandler struct {
	NoOpEventHandler
	mu     sync.Mutex
	states []connection.State
	errors []*Error
	agent  []bool
}

func (h *recordingHandler) OnStateChange(state connection.State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, state)
}

func (h *recordingHandler) OnError(err *Error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, err)
}

func (h *recordingHandler) OnAgentSpeakingChanged(speaking bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.agent = append(h.agent, speaking)
}

func (h *recordingHandler) snapshot() ([]connection.State, []*Error, []bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]connection.State(nil), h.states...),
		append([]*Error(nil), h.errors...),
		append([]bool(nil), h.agent...)
}

func newTestAdapter(t *testing.T) *RoomAdapter {
	t.Helper()
	a, err := NewRoomAdapter(RoomConfig{
		SignalingURL: "ws://localhost:0/signal",
		AgentID:      "agent-1",
	})
	require.NoError(t, err)
	return a
}

func TestNewRoomAdapterValidation(t *testing.T) {
	_, err := NewRoomAdapter(RoomConfig{AgentID: "agent-1"})
	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidConfig, err.(*Error).Code)

	_, err = NewRoomAdapter(RoomConfig{SignalingURL: "ws://localhost:0"})
	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidConfig, err.(*Error).Code)
}

func TestStartCallWithoutMicrophone(t *testing.T) {
	a := newTestAdapter(t)
	handler := &recordingHandler{}
	a.RegisterEventHandler(handler)

	err := a.StartCall(context.Background(), false)
	require.NoError(t, err)

	states, errors, _ := handler.snapshot()
	assert.Equal(t, []connection.State{
		connection.StateCheckingPermissions,
		connection.StateError,
	}, states)
	require.Len(t, errors, 1)
	assert.Equal(t, ErrCodePermissionDenied, errors[0].Code)
	assert.True(t, errors[0].Terminal)
}

func TestToggleMuteQueuedBeforeConnected(t *testing.T) {
	a := newTestAdapter(t)

	a.ToggleMute(true)
	assert.True(t, a.IsMuted())

	// Last value wins.
	a.ToggleMute(false)
	a.ToggleMute(true)
	assert.True(t, a.IsMuted())
	assert.Equal(t, connection.StateIdle, a.State())
}

func TestHandleSignalActiveSpeakers(t *testing.T) {
	a := newTestAdapter(t)
	handler := &recordingHandler{}
	a.RegisterEventHandler(handler)

	require.NoError(t, a.handleSignal(&signalMessage{
		Type:     "active_speakers",
		Speakers: []string{"someone-else"},
	}))
	assert.True(t, a.IsAgentSpeaking())

	// Repeats do not re-fire the edge.
	require.NoError(t, a.handleSignal(&signalMessage{
		Type:     "active_speakers",
		Speakers: []string{"someone-else"},
	}))

	// Only the local peer speaking means the agent went quiet.
	require.NoError(t, a.handleSignal(&signalMessage{
		Type:     "active_speakers",
		Speakers: []string{a.peerID},
	}))
	assert.False(t, a.IsAgentSpeaking())

	_, _, agent := handler.snapshot()
	assert.Equal(t, []bool{true, false}, agent)
}

func TestHandleSignalError(t *testing.T) {
	a := newTestAdapter(t)

	err := a.handleSignal(&signalMessage{Type: "error", Code: "fatal", Message: "room closed"})
	require.Error(t, err)
	roomErr := err.(*Error)
	assert.Equal(t, ErrCodeRoomError, roomErr.Code)
	assert.True(t, roomErr.Terminal)
	assert.Equal(t, "room closed", roomErr.Message)

	err = a.handleSignal(&signalMessage{Type: "error", Code: "transient", Message: "hiccup"})
	require.Error(t, err)
	assert.False(t, err.(*Error).Terminal)
}

func TestHandleSignalUnknownTypeIgnored(t *testing.T) {
	a := newTestAdapter(t)
	assert.NoError(t, a.handleSignal(&signalMessage{Type: "ping"}))
}

func TestEndCallIdempotent(t *testing.T) {
	a := newTestAdapter(t)
	handler := &recordingHandler{}
	a.RegisterEventHandler(handler)

	a.EndCall()
	a.EndCall()

	assert.Equal(t, connection.StateDisconnected, a.State())
	states, _, _ := handler.snapshot()
	assert.Equal(t, []connection.State{connection.StateDisconnected}, states)
}

func TestPublishLoopScopedToAttempt(t *testing.T) {
	src := &testSource{frames: make(chan []byte, 4)}
	a, err := NewRoomAdapter(RoomConfig{
		SignalingURL: "ws://localhost:0/signal",
		AgentID:      "agent-1",
		Capture:      src,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	a.wg.Add(1)
	go a.publishLocalAudio(ctx)

	cancel()
	exited := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(exited)
	}()
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("publish loop survived its attempt")
	}

	// The next attempt's publisher must be the sole consumer of the
	// capture channel.
	src.frames <- make([]byte, 640)
	select {
	case <-src.frames:
	default:
		t.Fatal("frame consumed by a stale publisher")
	}
}

func TestPeerFailureBreaksSignalingRead(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	a := newTestAdapter(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	require.NoError(t, a.signal.dial(context.Background(), url, "agent-1", ""))

	readErr := make(chan error, 1)
	go func() {
		_, err := a.signal.read()
		readErr <- err
	}()

	// A failed media path leaves the signaling socket healthy; the
	// adapter has to abort the attempt itself so the retry budget runs.
	a.onPeerStateChange(webrtc.PeerConnectionStateFailed)

	select {
	case err := <-readErr:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("signaling read still blocked after peer failure")
	}
}

func TestStartCallTwiceRejected(t *testing.T) {
	a := newTestAdapter(t)
	require.NoError(t, a.StartCall(context.Background(), false))
	// First start ended in Error (no microphone); a second start from a
	// non-idle state is misuse.
	assert.Error(t, a.StartCall(context.Background(), false))
}
