package connection

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
)

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "reconnecting", StateReconnecting.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, StateIdle.IsTerminal())
	assert.False(t, StateConnecting.IsTerminal())
	assert.False(t, StateReconnecting.IsTerminal())
	assert.True(t, StateError.IsTerminal())
	assert.True(t, StateDisconnected.IsTerminal())
}

func TestFromPeerConnectionState(t *testing.T) {
	assert.Equal(t, StateConnected, FromPeerConnectionState(webrtc.PeerConnectionStateConnected))
	// pion's Disconnected is transient; it must not read as terminal.
	assert.Equal(t, StateReconnecting, FromPeerConnectionState(webrtc.PeerConnectionStateDisconnected))
	assert.Equal(t, StateError, FromPeerConnectionState(webrtc.PeerConnectionStateFailed))
	assert.Equal(t, StateDisconnected, FromPeerConnectionState(webrtc.PeerConnectionStateClosed))
}
