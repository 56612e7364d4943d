// Package call composes the voice adapter, avatar adapter, quality
// monitor, ringback generator and local media manager into one call
// lifecycle. A single event loop owns the state machine: every adapter
// callback and monitor signal becomes a typed event processed in
// arrival order, so invariants hold under any interleaving.
package call

import (
	"fmt"
	"time"

	"github.com/callkit-ai/callkit/pkg/netmon"
)

// State is the single user-facing call state, owned by the
// orchestrator. One authoritative instance per call.
type State int

const (
	// StateInitiating is the moment the call opens, before the voice
	// channel has started connecting.
	StateInitiating State = iota

	// StateConnecting means the voice channel is being established.
	StateConnecting

	// StateBuffering means the call is live but media is stalled by
	// critical network conditions.
	StateBuffering

	// StateConnected means the voice channel is live.
	StateConnected

	// StateReconnecting means the voice channel dropped and is being
	// re-established.
	StateReconnecting

	// StateEnded is terminal; the call's resources are released.
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateInitiating:
		return "initiating"
	case StateConnecting:
		return "connecting"
	case StateBuffering:
		return "buffering"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// IsTerminal reports whether the state is final.
func (s State) IsTerminal() bool {
	return s == StateEnded
}

// Snapshot is the read-only view surface. The view layer polls or
// subscribes to it; intents on the Orchestrator are the only mutation
// path.
type Snapshot struct {
	State    State
	Duration time.Duration

	Muted             bool
	CameraOn          bool
	CameraUnavailable bool

	AgentSpeaking bool
	UserSpeaking  bool

	// SlowConnection turns on when the call has not connected within
	// the configured window. Informational only; it never changes State.
	SlowConnection bool

	// AudioOnly means avatar video is suppressed (quality fallback or
	// terminal avatar failure) while the voice channel continues.
	AudioOnly bool

	// VideoRevealed is true only while the voice channel is connected,
	// the avatar's first frame has arrived and the call is not
	// audio-only.
	VideoRevealed bool

	Quality      netmon.QualityTier
	OutputDevice string
}
