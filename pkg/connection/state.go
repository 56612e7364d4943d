// Package connection defines the connection-state vocabulary shared by
// the voice and avatar adapters. Each adapter owns and mutates its own
// state instance; the orchestrator only observes transitions through
// adapter events.
package connection

import "github.com/pion/webrtc/v4"

// State is the discrete lifecycle state of one adapter's channel.
type State int

const (
	// StateIdle - adapter created, nothing started yet
	StateIdle State = iota
	// StateCheckingPermissions - waiting on device/permission grants
	StateCheckingPermissions
	// StateConnecting - channel is being established
	StateConnecting
	// StateConnected - channel is established and ready
	StateConnected
	// StateReconnecting - channel temporarily lost, adapter retrying
	StateReconnecting
	// StateError - adapter gave up; terminal failure
	StateError
	// StateDisconnected - channel closed by user or server
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCheckingPermissions:
		return "checking_permissions"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transitions can occur.
func (s State) IsTerminal() bool {
	return s == StateError || s == StateDisconnected
}

// FromPeerConnectionState maps a pion peer connection state onto the
// adapter vocabulary. Disconnected maps to StateReconnecting because
// pion keeps trying ICE restarts in that state; only Failed is final.
func FromPeerConnectionState(s webrtc.PeerConnectionState) State {
	switch s {
	case webrtc.PeerConnectionStateNew:
		return StateIdle
	case webrtc.PeerConnectionStateConnecting:
		return StateConnecting
	case webrtc.PeerConnectionStateConnected:
		return StateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return StateReconnecting
	case webrtc.PeerConnectionStateFailed:
		return StateError
	case webrtc.PeerConnectionStateClosed:
		return StateDisconnected
	default:
		return StateError
	}
}
