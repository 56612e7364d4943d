package avatar

import (
	"context"
	"sync"

	"github.com/callkit-ai/callkit/pkg/connection"
)

// Mock is a scriptable Adapter for orchestrator tests. Tests drive it
// by calling the Report* methods to simulate vendor behavior.
type Mock struct {
	mu      sync.Mutex
	handler EventHandler
	state   connection.State

	speaking bool

	StartCalls     int
	StopCalls      int
	InterruptCalls int
	SentTexts      []string

	// StartErr, when set, is returned by StartSession.
	StartErr error
}

var _ Adapter = (*Mock)(nil)

// NewMock creates a mock adapter in the idle state.
func NewMock() *Mock {
	return &Mock{handler: &NoOpEventHandler{}, state: connection.StateIdle}
}

func (m *Mock) StartSession(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StartCalls++
	if m.StartErr != nil {
		return m.StartErr
	}
	m.state = connection.StateConnecting
	return nil
}

func (m *Mock) StopSession() {
	m.mu.Lock()
	m.StopCalls++
	m.state = connection.StateDisconnected
	m.mu.Unlock()
}

func (m *Mock) SendText(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentTexts = append(m.SentTexts, text)
	return nil
}

func (m *Mock) Interrupt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InterruptCalls++
}

func (m *Mock) State() connection.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Mock) IsSpeaking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speaking
}

func (m *Mock) RegisterEventHandler(handler EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// Sent returns a copy of every text sent so far.
func (m *Mock) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.SentTexts...)
}

// Stopped reports whether StopSession has been called.
func (m *Mock) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.StopCalls > 0
}

// ReportConnected simulates the vendor session going live.
func (m *Mock) ReportConnected(stream *Stream) {
	m.mu.Lock()
	m.state = connection.StateConnected
	h := m.handler
	m.mu.Unlock()
	h.OnStateChange(connection.StateConnected)
	h.OnConnected(stream)
}

// ReportFirstFrame simulates the first video frame arriving.
func (m *Mock) ReportFirstFrame() {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	h.OnFirstFrame()
}

// ReportReconnecting simulates a transient drop.
func (m *Mock) ReportReconnecting() {
	m.mu.Lock()
	m.state = connection.StateReconnecting
	h := m.handler
	m.mu.Unlock()
	h.OnStateChange(connection.StateReconnecting)
}

// ReportSpeaking simulates a speaking edge.
func (m *Mock) ReportSpeaking(speaking bool) {
	m.mu.Lock()
	m.speaking = speaking
	h := m.handler
	m.mu.Unlock()
	h.OnSpeakingChanged(speaking)
}

// ReportError simulates a classified session failure.
func (m *Mock) ReportError(err *SessionError) {
	m.mu.Lock()
	if err.Terminal {
		m.state = connection.StateError
	}
	h := m.handler
	m.mu.Unlock()
	if err.Terminal {
		h.OnStateChange(connection.StateError)
	}
	h.OnSessionError(err)
}
