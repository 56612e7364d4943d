package call

import (
	"github.com/callkit-ai/callkit/pkg/avatar"
	"github.com/callkit-ai/callkit/pkg/connection"
	"github.com/callkit-ai/callkit/pkg/netmon"
	"github.com/callkit-ai/callkit/pkg/voice"
)

// Adapter callbacks and monitor signals are translated into these
// events at the boundary and serialized through the orchestrator's
// event loop. Nothing outside the loop mutates call state.
type event any

type voiceStateEvent struct {
	state connection.State
}

type voiceErrorEvent struct {
	err *voice.Error
}

type avatarStateEvent struct {
	state connection.State
}

type avatarConnectedEvent struct {
	stream *avatar.Stream
}

type avatarFirstFrameEvent struct{}

type avatarErrorEvent struct {
	err *avatar.SessionError
}

type qualityEvent struct {
	tier netmon.QualityTier
}

type fallbackEvent struct{}

type agentSpeakingEvent struct {
	speaking bool
}

type userSpeakingEvent struct {
	speaking bool
}

type slowConnectionEvent struct{}

type endEvent struct {
	reason string
}

// voiceEvents bridges voice.EventHandler into the event loop.
type voiceEvents struct {
	o *Orchestrator
}

var _ voice.EventHandler = (*voiceEvents)(nil)

func (h *voiceEvents) OnStateChange(state connection.State) {
	h.o.dispatch(voiceStateEvent{state: state})
}

func (h *voiceEvents) OnTrackSubscribed(track *voice.Track) {
	if h.o.cfg.OnVoiceTrack != nil {
		h.o.cfg.OnVoiceTrack(track)
	}
}

func (h *voiceEvents) OnTrackUnsubscribed(track *voice.Track) {}

func (h *voiceEvents) OnAgentSpeakingChanged(speaking bool) {
	h.o.dispatch(agentSpeakingEvent{speaking: speaking})
}

func (h *voiceEvents) OnUserSpeakingChanged(speaking bool) {
	h.o.dispatch(userSpeakingEvent{speaking: speaking})
}

func (h *voiceEvents) OnError(err *voice.Error) {
	h.o.dispatch(voiceErrorEvent{err: err})
}

// avatarEvents bridges avatar.EventHandler into the event loop.
type avatarEvents struct {
	o *Orchestrator
}

var _ avatar.EventHandler = (*avatarEvents)(nil)

func (h *avatarEvents) OnStateChange(state connection.State) {
	h.o.dispatch(avatarStateEvent{state: state})
}

func (h *avatarEvents) OnConnected(stream *avatar.Stream) {
	h.o.dispatch(avatarConnectedEvent{stream: stream})
	if h.o.cfg.OnAvatarStream != nil {
		h.o.cfg.OnAvatarStream(stream)
	}
}

func (h *avatarEvents) OnFirstFrame() {
	h.o.dispatch(avatarFirstFrameEvent{})
}

func (h *avatarEvents) OnSpeakingChanged(speaking bool) {
	h.o.dispatch(agentSpeakingEvent{speaking: speaking})
}

func (h *avatarEvents) OnSessionError(err *avatar.SessionError) {
	h.o.dispatch(avatarErrorEvent{err: err})
}
