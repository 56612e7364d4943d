// Package voice owns the microphone-driven, bidirectional voice
// conversation channel with the external voice-room service. The room
// hosts the companion's voice agent; this adapter joins it, publishes
// the local microphone and surfaces the agent's audio plus speaking
// activity. The voice channel is load-bearing: its terminal failure
// ends the call, unlike the avatar channel.
package voice

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/callkit-ai/callkit/pkg/connection"
)

// Adapter is the voice-channel contract the orchestrator composes.
// Implementations: RoomAdapter (pion WebRTC room) and the test Mock.
type Adapter interface {
	// StartCall requests permissions and opens the voice channel.
	// Progress is reported through state-change events
	// (CheckingPermissions -> Connecting -> Connected, or Error); the
	// return value only covers immediate misuse.
	StartCall(ctx context.Context, withVideo bool) error

	// EndCall tears down from any state, including mid-connect, which
	// it treats as an immediate abort. Idempotent.
	EndCall()

	// ToggleMute sets the microphone mute state. Before the channel is
	// Connected the request is queued and the last value wins, applied
	// on the Connected transition.
	ToggleMute(muted bool)

	// IsMuted reports the effective (or queued) mute state.
	IsMuted() bool

	// IsAgentSpeaking reports remote voice activity.
	IsAgentSpeaking() bool

	// IsUserSpeaking reports local voice activity, used to drive
	// "listening" UI.
	IsUserSpeaking() bool

	// State returns the adapter's connection state.
	State() connection.State

	// RegisterEventHandler sets the event handler. Must be called
	// before StartCall.
	RegisterEventHandler(handler EventHandler)
}

// Track is an attach-only handle to a remote media track. The view
// layer attaches it to a playback surface; it never owns or releases
// the underlying track.
type Track struct {
	remote *webrtc.TrackRemote
}

// Kind returns the track kind ("audio" or "video").
func (t *Track) Kind() string {
	if t.remote == nil {
		return ""
	}
	return t.remote.Kind().String()
}

// ID returns the vendor track identifier.
func (t *Track) ID() string {
	if t.remote == nil {
		return ""
	}
	return t.remote.ID()
}

// Remote exposes the underlying track for playback attachment.
func (t *Track) Remote() *webrtc.TrackRemote { return t.remote }

// EventHandler receives voice-channel events. Callbacks run on adapter
// goroutines; handlers must not block.
type EventHandler interface {
	// OnStateChange is called on every connection state transition.
	OnStateChange(state connection.State)

	// OnTrackSubscribed is called when a remote track becomes
	// available for playback.
	OnTrackSubscribed(track *Track)

	// OnTrackUnsubscribed is called when a remote track goes away.
	OnTrackUnsubscribed(track *Track)

	// OnAgentSpeakingChanged reports remote speaking edges.
	OnAgentSpeakingChanged(speaking bool)

	// OnUserSpeakingChanged reports local speaking edges.
	OnUserSpeakingChanged(speaking bool)

	// OnError reports a classified failure. Terminal errors mean the
	// adapter has exhausted its retry budget.
	OnError(err *Error)
}

// NoOpEventHandler is a no-op implementation for convenience.
type NoOpEventHandler struct{}

func (h *NoOpEventHandler) OnStateChange(state connection.State) {}
func (h *NoOpEventHandler) OnTrackSubscribed(track *Track)       {}
func (h *NoOpEventHandler) OnTrackUnsubscribed(track *Track)     {}
func (h *NoOpEventHandler) OnAgentSpeakingChanged(speaking bool) {}
func (h *NoOpEventHandler) OnUserSpeakingChanged(speaking bool)  {}
func (h *NoOpEventHandler) OnError(err *Error)                   {}

var _ EventHandler = (*NoOpEventHandler)(nil)
