// Package avatar wraps the external avatar-video service behind a
// small state-machine interface. The service renders the companion's
// face: it is driven by text cues and returns a live video stream plus
// discrete speaking events. Because the vendor bills per session,
// connect failures are surfaced distinctly from connected-but-idle so
// the orchestrator can decide whether to fall back to audio-only.
package avatar

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/callkit-ai/callkit/pkg/connection"
)

// Adapter is the avatar-video channel contract the orchestrator
// composes. Implementations: the vendor Session and the test Mock.
type Adapter interface {
	// StartSession opens a session with the avatar service. Completion
	// is reported through OnConnected / OnSessionError, never the return
	// value, which only covers immediate misuse.
	StartSession(ctx context.Context) error

	// StopSession tears the session down unconditionally. Idempotent,
	// and accepted mid-connect as an immediate abort.
	StopSession()

	// SendText drives the avatar to speak. Text sent while the avatar
	// is already speaking is queued, never dropped or interrupting.
	SendText(text string) error

	// Interrupt cuts off current speech and clears the queue.
	Interrupt()

	// State returns the adapter's connection state.
	State() connection.State

	// IsSpeaking reports whether the avatar is currently speaking.
	IsSpeaking() bool

	// RegisterEventHandler sets the event handler. Must be called before
	// StartSession.
	RegisterEventHandler(handler EventHandler)
}

// Stream is an attach-only handle to the avatar's live media. The view
// layer renders from it but never owns or releases the underlying
// tracks; the session does that on StopSession. Tracks land
// asynchronously after the handle has been given out, so access is
// synchronized.
type Stream struct {
	mu    sync.RWMutex
	video *webrtc.TrackRemote
	audio *webrtc.TrackRemote
}

// VideoTrack returns the remote video track, or nil before it arrives.
func (s *Stream) VideoTrack() *webrtc.TrackRemote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.video
}

// AudioTrack returns the remote audio track, or nil if the vendor sends
// video only.
func (s *Stream) AudioTrack() *webrtc.TrackRemote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.audio
}

func (s *Stream) setVideo(track *webrtc.TrackRemote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.video = track
}

func (s *Stream) setAudio(track *webrtc.TrackRemote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = track
}

// EventHandler receives session lifecycle events. Callbacks run on the
// session's event goroutine; handlers must not block.
type EventHandler interface {
	// OnStateChange is called on every connection state transition.
	OnStateChange(state connection.State)

	// OnConnected is called once the session is live, with the stream
	// handle for the view layer.
	OnConnected(stream *Stream)

	// OnFirstFrame fires exactly once per session, when the first video
	// frame has been received.
	OnFirstFrame()

	// OnSpeakingChanged reports speaking-state edges.
	OnSpeakingChanged(speaking bool)

	// OnSessionError reports a classified failure. Terminal errors mean
	// the session is gone and will not retry.
	OnSessionError(err *SessionError)
}

// NoOpEventHandler is a no-op implementation for convenience.
type NoOpEventHandler struct{}

func (h *NoOpEventHandler) OnStateChange(state connection.State) {}
func (h *NoOpEventHandler) OnConnected(stream *Stream)           {}
func (h *NoOpEventHandler) OnFirstFrame()                        {}
func (h *NoOpEventHandler) OnSpeakingChanged(speaking bool)      {}
func (h *NoOpEventHandler) OnSessionError(err *SessionError)     {}

var _ EventHandler = (*NoOpEventHandler)(nil)
