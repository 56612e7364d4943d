package voice

import (
	"context"
	"sync"

	"github.com/callkit-ai/callkit/pkg/connection"
)

// Mock is a scriptable Adapter for tests. Tests drive it with the
// Report* methods; the orchestrator under test observes the resulting
// events exactly as it would from the real room adapter.
type Mock struct {
	mu      sync.Mutex
	handler EventHandler
	state   connection.State

	muted         bool
	agentSpeaking bool
	userSpeaking  bool

	StartCalls int
	EndCalls   int
	MuteCalls  []bool

	// StartErr, when set, is returned from StartCall.
	StartErr error
}

var _ Adapter = (*Mock)(nil)

// NewMock creates a mock voice adapter in the Idle state.
func NewMock() *Mock {
	return &Mock{
		handler: &NoOpEventHandler{},
		state:   connection.StateIdle,
	}
}

func (m *Mock) StartCall(ctx context.Context, withVideo bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StartCalls++
	return m.StartErr
}

func (m *Mock) EndCall() {
	m.mu.Lock()
	m.EndCalls++
	first := m.EndCalls == 1
	m.mu.Unlock()

	if first {
		m.ReportState(connection.StateDisconnected)
	}
}

func (m *Mock) ToggleMute(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = muted
	m.MuteCalls = append(m.MuteCalls, muted)
}

func (m *Mock) IsMuted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

func (m *Mock) IsAgentSpeaking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.agentSpeaking
}

func (m *Mock) IsUserSpeaking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userSpeaking
}

func (m *Mock) State() connection.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Mock) RegisterEventHandler(handler EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// Ended reports whether EndCall has been called at least once.
func (m *Mock) Ended() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.EndCalls > 0
}

// ReportState transitions the mock and fires OnStateChange.
func (m *Mock) ReportState(state connection.State) {
	m.mu.Lock()
	if m.state == state {
		m.mu.Unlock()
		return
	}
	m.state = state
	h := m.handler
	m.mu.Unlock()

	h.OnStateChange(state)
}

// ReportTrack fires OnTrackSubscribed.
func (m *Mock) ReportTrack(track *Track) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	h.OnTrackSubscribed(track)
}

// ReportAgentSpeaking fires OnAgentSpeakingChanged.
func (m *Mock) ReportAgentSpeaking(speaking bool) {
	m.mu.Lock()
	m.agentSpeaking = speaking
	h := m.handler
	m.mu.Unlock()
	h.OnAgentSpeakingChanged(speaking)
}

// ReportUserSpeaking fires OnUserSpeakingChanged.
func (m *Mock) ReportUserSpeaking(speaking bool) {
	m.mu.Lock()
	m.userSpeaking = speaking
	h := m.handler
	m.mu.Unlock()
	h.OnUserSpeakingChanged(speaking)
}

// ReportError fires OnError.
func (m *Mock) ReportError(err *Error) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	h.OnError(err)
}
