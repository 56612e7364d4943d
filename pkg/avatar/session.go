package avatar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/callkit-ai/callkit/pkg/connection"
)

const (
	// Connection configuration
	maxRetryAttempts  = 3
	initialRetryDelay = 1 * time.Second
	maxRetryDelay     = 4 * time.Second
	connectTimeout    = 10 * time.Second
)

// Config holds the vendor session parameters.
type Config struct {
	// ServerURL is the vendor's websocket endpoint (required).
	ServerURL string

	// APIKey authenticates against the vendor (required).
	APIKey string

	// AvatarID selects the persona to render (required).
	AvatarID string

	// VoiceID selects the synthesis voice.
	VoiceID string

	// Quality is the requested stream quality tier ("high", "medium",
	// "low"). Default "medium".
	Quality string
}

// Session is the websocket-signaled, WebRTC-delivered vendor session.
type Session struct {
	cfg       Config
	sessionID string
	handler   EventHandler

	mu         sync.RWMutex
	state      connection.State
	ws         *websocket.Conn
	pc         *webrtc.PeerConnection
	stream     *Stream
	speaking   bool
	firstFrame bool
	// pending holds queued speak texts while the avatar is busy or the
	// session is still connecting. FIFO, drained one entry per
	// speak_ended event.
	pending []string

	// sendJSON is swapped out by tests to capture outbound messages.
	sendJSON func(v interface{}) error

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

var _ Adapter = (*Session)(nil)

// NewSession creates a session adapter.
func NewSession(cfg Config) (*Session, error) {
	if cfg.ServerURL == "" {
		return nil, &SessionError{Code: ErrCodeInvalidConfig, Message: "ServerURL is required", Terminal: true}
	}
	if cfg.APIKey == "" {
		return nil, &SessionError{Code: ErrCodeInvalidConfig, Message: "APIKey is required", Terminal: true}
	}
	if cfg.AvatarID == "" {
		return nil, &SessionError{Code: ErrCodeInvalidConfig, Message: "AvatarID is required", Terminal: true}
	}
	if cfg.Quality == "" {
		cfg.Quality = "medium"
	}

	s := &Session{
		cfg:       cfg,
		sessionID: uuid.NewString(),
		handler:   &NoOpEventHandler{},
		state:     connection.StateIdle,
	}
	s.sendJSON = s.writeWS
	return s, nil
}

// RegisterEventHandler implements Adapter.
func (s *Session) RegisterEventHandler(handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// State implements Adapter.
func (s *Session) State() connection.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsSpeaking implements Adapter.
func (s *Session) IsSpeaking() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speaking
}

// StartSession implements Adapter.
func (s *Session) StartSession(ctx context.Context) error {
	s.mu.Lock()
	if s.state != connection.StateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("session already started (state %s)", state)
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.setState(connection.StateConnecting)

	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

// StopSession implements Adapter.
func (s *Session) StopSession() {
	s.once.Do(func() {
		s.mu.Lock()
		cancel := s.cancel
		ws := s.ws
		pc := s.pc
		s.pending = nil
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if ws != nil {
			ws.Close()
		}
		if pc != nil {
			pc.Close()
		}
		s.wg.Wait()
		s.setState(connection.StateDisconnected)
		log.Printf("[Avatar %s] session stopped", s.sessionID)
	})
}

// SendText implements Adapter.
func (s *Session) SendText(text string) error {
	if text == "" {
		return fmt.Errorf("empty text")
	}

	s.mu.Lock()
	if s.state.IsTerminal() {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("session is %s", state)
	}
	// Busy or not yet live: queue rather than interrupt or drop.
	if s.speaking || s.state != connection.StateConnected {
		s.pending = append(s.pending, text)
		s.mu.Unlock()
		return nil
	}
	s.speaking = true
	s.mu.Unlock()

	return s.sendJSON(clientMessage{Type: "avatar.speak", SessionID: s.sessionID, Text: text})
}

// Interrupt implements Adapter.
func (s *Session) Interrupt() {
	s.mu.Lock()
	s.pending = nil
	terminal := s.state.IsTerminal()
	s.mu.Unlock()

	if terminal {
		return
	}
	if err := s.sendJSON(clientMessage{Type: "avatar.interrupt", SessionID: s.sessionID}); err != nil {
		log.Printf("[Avatar %s] interrupt send failed: %v", s.sessionID, err)
	}
}

// clientMessage is the outbound wire format.
type clientMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	AvatarID  string `json:"avatar_id,omitempty"`
	VoiceID   string `json:"voice_id,omitempty"`
	Quality   string `json:"quality,omitempty"`
	SDP       string `json:"sdp,omitempty"`
	Text      string `json:"text,omitempty"`
}

// serverMessage is the inbound wire format.
type serverMessage struct {
	Type     string `json:"type"`
	SDP      string `json:"sdp,omitempty"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
	Terminal bool   `json:"terminal,omitempty"`
}

func (s *Session) run(ctx context.Context) {
	defer s.wg.Done()

	delay := initialRetryDelay
	for attempt := 0; attempt < maxRetryAttempts; attempt++ {
		if attempt > 0 {
			s.setState(connection.StateReconnecting)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxRetryDelay {
				delay = maxRetryDelay
			}
		}

		err := s.connectAndServe(ctx)
		if err == nil || ctx.Err() != nil {
			// Clean shutdown.
			return
		}
		log.Printf("[Avatar %s] session attempt %d failed: %v", s.sessionID, attempt+1, err)

		var sessErr *SessionError
		if se, ok := err.(*SessionError); ok && se.Terminal {
			sessErr = se
		}
		if sessErr != nil {
			s.setState(connection.StateError)
			s.emitError(sessErr)
			return
		}
	}

	s.setState(connection.StateError)
	s.emitError(&SessionError{
		Code:     ErrCodeConnectFailed,
		Message:  fmt.Sprintf("giving up after %d attempts", maxRetryAttempts),
		Terminal: true,
	})
}

func (s *Session) connectAndServe(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: connectTimeout}
	header := map[string][]string{"Authorization": {"Bearer " + s.cfg.APIKey}}

	ws, _, err := dialer.DialContext(ctx, s.cfg.ServerURL, header)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	s.mu.Lock()
	s.ws = ws
	s.mu.Unlock()
	defer func() {
		ws.Close()
		s.mu.Lock()
		s.ws = nil
		s.mu.Unlock()
	}()

	start := clientMessage{
		Type:      "session.start",
		SessionID: s.sessionID,
		AvatarID:  s.cfg.AvatarID,
		VoiceID:   s.cfg.VoiceID,
		Quality:   s.cfg.Quality,
	}
	if err := s.sendJSON(start); err != nil {
		return fmt.Errorf("session.start send failed: %w", err)
	}

	for {
		var msg serverMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) || err == io.EOF {
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		}
		if err := s.handleServerMessage(ctx, &msg); err != nil {
			return err
		}
	}
}

// handleServerMessage dispatches one vendor event. Split out so tests
// can drive exact event sequences without a live socket.
func (s *Session) handleServerMessage(ctx context.Context, msg *serverMessage) error {
	switch msg.Type {
	case "session.offer":
		return s.acceptOffer(ctx, msg.SDP)

	case "session.ready":
		s.setState(connection.StateConnected)
		s.mu.RLock()
		handler := s.handler
		stream := s.stream
		s.mu.RUnlock()
		handler.OnConnected(stream)
		s.drainQueue()
		return nil

	case "avatar.speak_started":
		s.setSpeaking(true)
		return nil

	case "avatar.speak_ended":
		s.setSpeaking(false)
		s.drainQueue()
		return nil

	case "session.error":
		return &SessionError{
			Code:     mapVendorErrorCode(msg.Code),
			Message:  msg.Message,
			Terminal: msg.Terminal,
		}

	default:
		log.Printf("[Avatar %s] ignoring unknown event %q", s.sessionID, msg.Type)
		return nil
	}
}

func (s *Session) acceptOffer(ctx context.Context, sdp string) error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return &SessionError{Code: ErrCodeVendorError, Message: "failed to create peer connection", Terminal: true, Err: err}
	}

	stream := &Stream{}
	s.mu.Lock()
	s.pc = pc
	s.stream = stream
	s.mu.Unlock()

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Printf("[Avatar %s] OnTrack: %v, codec: %v", s.sessionID, track.ID(), track.Codec().MimeType)
		switch track.Kind() {
		case webrtc.RTPCodecTypeVideo:
			stream.setVideo(track)
		case webrtc.RTPCodecTypeAudio:
			stream.setAudio(track)
		}

		if track.Kind() == webrtc.RTPCodecTypeVideo {
			s.wg.Add(1)
			go s.watchFirstFrame(ctx, track)
		}
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return &SessionError{Code: ErrCodeVendorError, Message: "failed to set remote description", Terminal: true, Err: err}
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return &SessionError{Code: ErrCodeVendorError, Message: "failed to create answer", Terminal: true, Err: err}
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return &SessionError{Code: ErrCodeVendorError, Message: "failed to set local description", Terminal: true, Err: err}
	}

	return s.sendJSON(clientMessage{Type: "session.answer", SessionID: s.sessionID, SDP: answer.SDP})
}

// watchFirstFrame reads the video track until the first RTP packet
// lands, then reports the one-shot first-frame event.
func (s *Session) watchFirstFrame(ctx context.Context, track *webrtc.TrackRemote) {
	defer s.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if err == io.EOF || ctx.Err() != nil {
				return
			}
			continue
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		s.markFirstFrame()
		return
	}
}

func (s *Session) markFirstFrame() {
	s.mu.Lock()
	if s.firstFrame {
		s.mu.Unlock()
		return
	}
	s.firstFrame = true
	handler := s.handler
	s.mu.Unlock()

	log.Printf("[Avatar %s] first video frame received", s.sessionID)
	handler.OnFirstFrame()
}

// drainQueue sends the next queued text if the avatar is idle.
func (s *Session) drainQueue() {
	s.mu.Lock()
	if s.speaking || s.state != connection.StateConnected || len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	text := s.pending[0]
	s.pending = s.pending[1:]
	s.speaking = true
	s.mu.Unlock()

	if err := s.sendJSON(clientMessage{Type: "avatar.speak", SessionID: s.sessionID, Text: text}); err != nil {
		log.Printf("[Avatar %s] queued speak send failed: %v", s.sessionID, err)
	}
}

func (s *Session) setSpeaking(speaking bool) {
	s.mu.Lock()
	if s.speaking == speaking {
		s.mu.Unlock()
		return
	}
	s.speaking = speaking
	handler := s.handler
	s.mu.Unlock()

	handler.OnSpeakingChanged(speaking)
}

func (s *Session) setState(state connection.State) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	handler := s.handler
	s.mu.Unlock()

	log.Printf("[Avatar %s] state -> %s", s.sessionID, state)
	handler.OnStateChange(state)
}

func (s *Session) emitError(err *SessionError) {
	s.mu.RLock()
	handler := s.handler
	s.mu.RUnlock()
	handler.OnSessionError(err)
}

func (s *Session) writeWS(v interface{}) error {
	s.mu.RLock()
	ws := s.ws
	s.mu.RUnlock()

	if ws == nil {
		return fmt.Errorf("websocket not connected")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.WriteMessage(websocket.TextMessage, data)
}

func mapVendorErrorCode(code string) ErrorCode {
	switch code {
	case "auth_failed":
		return ErrCodeAuthenticationFailed
	case "quota_exceeded":
		return ErrCodeQuotaExceeded
	case "network":
		return ErrCodeNetworkError
	default:
		return ErrCodeVendorError
	}
}
