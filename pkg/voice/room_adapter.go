package voice

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/google/uuid"
	"github.com/hraban/opus"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/callkit-ai/callkit/pkg/audio"
	"github.com/callkit-ai/callkit/pkg/connection"
	"github.com/callkit-ai/callkit/pkg/vad"
)

const (
	DefaultRoomSampleRate = 48000
	DefaultRoomChannels   = 1
	DefaultRoomBitRate    = 50000

	// Connection configuration
	maxRetryAttempts  = 3
	initialRetryDelay = 1 * time.Second
	maxRetryDelay     = 4 * time.Second

	frameDuration = 20 * time.Millisecond
)

// AudioSource supplies captured microphone frames. The local media
// manager is the only producer; the adapter never touches the device
// directly.
type AudioSource interface {
	// Frames yields 16-bit mono PCM frames. The channel closes when the
	// source is released.
	Frames() <-chan []byte

	// SampleRate of the produced frames.
	SampleRate() int
}

// RoomConfig holds the room adapter parameters.
type RoomConfig struct {
	// SignalingURL is the room service's websocket endpoint (required).
	SignalingURL string

	// AgentID identifies the companion's voice agent; it doubles as the
	// room name (required).
	AgentID string

	// Token authorizes the join.
	Token string

	// Capture is the microphone source. Nil means microphone permission
	// was not granted; StartCall reports ErrCodePermissionDenied.
	Capture AudioSource

	// Detector scores capture frames for local speaking detection.
	// Defaults to the energy detector.
	Detector vad.DetectorInterface

	// SampleRate / Channels / BitRate of the published opus stream.
	SampleRate int
	Channels   int
	BitRate    int
}

// RoomAdapter joins the voice room over WebRTC: websocket signaling,
// opus-encoded microphone publishing, remote track subscription and
// active-speaker events.
type RoomAdapter struct {
	cfg    RoomConfig
	peerID string

	mu      sync.RWMutex
	handler EventHandler
	state   connection.State
	muted   bool

	signal     *signalingClient
	pc         *webrtc.PeerConnection
	localTrack *webrtc.TrackLocalStaticSample
	encoder    *opus.Encoder
	resampler  *audio.Resampler

	userGate      *speechGate
	agentSpeaking bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

var _ Adapter = (*RoomAdapter)(nil)

// NewRoomAdapter creates a room adapter.
func NewRoomAdapter(cfg RoomConfig) (*RoomAdapter, error) {
	if cfg.SignalingURL == "" {
		return nil, &Error{Code: ErrCodeInvalidConfig, Message: "SignalingURL is required", Terminal: true}
	}
	if cfg.AgentID == "" {
		return nil, &Error{Code: ErrCodeInvalidConfig, Message: "AgentID is required", Terminal: true}
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultRoomSampleRate
	}
	if cfg.Channels == 0 {
		cfg.Channels = DefaultRoomChannels
	}
	if cfg.BitRate == 0 {
		cfg.BitRate = DefaultRoomBitRate
	}
	if cfg.Detector == nil {
		cfg.Detector = vad.NewEnergyDetector(vad.DefaultEnergyConfig())
	}

	a := &RoomAdapter{
		cfg:     cfg,
		peerID:  uuid.NewString(),
		handler: &NoOpEventHandler{},
		state:   connection.StateIdle,
		signal:  newSignalingClient(),
	}
	a.userGate = newSpeechGate(0.5, 300*time.Millisecond, func(speaking bool) {
		a.mu.RLock()
		h := a.handler
		a.mu.RUnlock()
		h.OnUserSpeakingChanged(speaking)
	})
	return a, nil
}

// RegisterEventHandler implements Adapter.
func (a *RoomAdapter) RegisterEventHandler(handler EventHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = handler
}

// State implements Adapter.
func (a *RoomAdapter) State() connection.State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// IsMuted implements Adapter.
func (a *RoomAdapter) IsMuted() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.muted
}

// IsAgentSpeaking implements Adapter.
func (a *RoomAdapter) IsAgentSpeaking() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.agentSpeaking
}

// IsUserSpeaking implements Adapter.
func (a *RoomAdapter) IsUserSpeaking() bool {
	return a.userGate.isSpeaking()
}

// ToggleMute implements Adapter. Before Connected the value is queued:
// the publish loop only runs once connected, so the stored flag takes
// effect on the Connected transition and the last value wins.
func (a *RoomAdapter) ToggleMute(muted bool) {
	a.mu.Lock()
	a.muted = muted
	state := a.state
	a.mu.Unlock()

	if state != connection.StateConnected {
		log.Printf("[Voice %s] mute=%v queued until connected", a.peerID, muted)
	}
	if muted {
		a.userGate.reset()
	}
}

// StartCall implements Adapter.
func (a *RoomAdapter) StartCall(ctx context.Context, withVideo bool) error {
	a.mu.Lock()
	if a.state != connection.StateIdle {
		state := a.state
		a.mu.Unlock()
		return fmt.Errorf("call already started (state %s)", state)
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	a.setState(connection.StateCheckingPermissions)
	if a.cfg.Capture == nil {
		a.setState(connection.StateError)
		a.emitError(&Error{
			Code:     ErrCodePermissionDenied,
			Message:  "microphone not available",
			Terminal: true,
		})
		return nil
	}

	a.setState(connection.StateConnecting)
	a.wg.Add(1)
	go a.run(ctx)
	return nil
}

// EndCall implements Adapter.
func (a *RoomAdapter) EndCall() {
	a.once.Do(func() {
		a.mu.Lock()
		cancel := a.cancel
		pc := a.pc
		a.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		a.signal.close()
		if pc != nil {
			pc.Close()
		}
		a.wg.Wait()

		a.mu.Lock()
		if a.resampler != nil {
			a.resampler.Free()
			a.resampler = nil
		}
		a.mu.Unlock()

		a.userGate.reset()
		a.setState(connection.StateDisconnected)
		log.Printf("[Voice %s] call ended", a.peerID)
	})
}

func (a *RoomAdapter) run(ctx context.Context) {
	defer a.wg.Done()

	delay := initialRetryDelay
	for attempt := 0; attempt < maxRetryAttempts; attempt++ {
		if attempt > 0 {
			a.setState(connection.StateReconnecting)
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

		err := a.connectAndServe(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}
		log.Printf("[Voice %s] room attempt %d failed: %v", a.peerID, attempt+1, err)

		if roomErr, ok := err.(*Error); ok && roomErr.Terminal {
			a.setState(connection.StateError)
			a.emitError(roomErr)
			return
		}
	}

	a.setState(connection.StateError)
	a.emitError(&Error{
		Code:     ErrCodeConnectFailed,
		Message:  fmt.Sprintf("giving up after %d attempts", maxRetryAttempts),
		Terminal: true,
	})
}

func (a *RoomAdapter) connectAndServe(ctx context.Context) error {
	// Everything spawned here is scoped to this attempt; a retry must
	// not leave a previous publisher draining the capture channel.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.signal.dial(ctx, a.cfg.SignalingURL, a.cfg.AgentID, a.cfg.Token); err != nil {
		return err
	}
	defer a.signal.close()

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return &Error{Code: ErrCodeConnectFailed, Message: "failed to create peer connection", Terminal: true, Err: err}
	}
	defer pc.Close()

	a.mu.Lock()
	a.pc = pc
	a.mu.Unlock()

	pc.OnConnectionStateChange(a.onPeerStateChange)

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Printf("[Voice %s] OnTrack: %v, codec: %v", a.peerID, track.ID(), track.Codec().MimeType)
		a.mu.RLock()
		h := a.handler
		a.mu.RUnlock()
		h.OnTrackSubscribed(&Track{remote: track})
	})

	transceiver, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	})
	if err != nil {
		return &Error{Code: ErrCodeConnectFailed, Message: "failed to add transceiver", Terminal: true, Err: err}
	}
	if sender := transceiver.Sender(); sender != nil {
		if track, ok := sender.Track().(*webrtc.TrackLocalStaticSample); ok {
			a.mu.Lock()
			a.localTrack = track
			a.mu.Unlock()
		}
	}

	if err := a.setupAudioPipeline(); err != nil {
		return err
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return &Error{Code: ErrCodeConnectFailed, Message: "failed to create offer", Terminal: true, Err: err}
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return &Error{Code: ErrCodeConnectFailed, Message: "failed to set local description", Terminal: true, Err: err}
	}
	if err := a.signal.send(&signalMessage{Type: "offer", SDP: offer.SDP}); err != nil {
		return err
	}

	a.wg.Add(1)
	go a.publishLocalAudio(ctx)

	for {
		msg, err := a.signal.read()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("signaling read failed: %w", err)
		}
		if err := a.handleSignal(msg); err != nil {
			return err
		}
	}
}

// onPeerStateChange maps pion connection states onto the adapter. A
// failed media path can leave the signaling socket healthy, so Failed
// closes the socket to break the attempt's read loop and hand control
// back to the retry budget.
func (a *RoomAdapter) onPeerStateChange(state webrtc.PeerConnectionState) {
	log.Printf("[Voice %s] peer connection state: %v", a.peerID, state)
	switch connection.FromPeerConnectionState(state) {
	case connection.StateConnected:
		a.setState(connection.StateConnected)
	case connection.StateError:
		a.signal.close()
	}
}

// handleSignal dispatches one signaling message. Split out so tests can
// drive exact sequences without a live socket.
func (a *RoomAdapter) handleSignal(msg *signalMessage) error {
	switch msg.Type {
	case "answer":
		a.mu.RLock()
		pc := a.pc
		a.mu.RUnlock()
		if pc == nil {
			return fmt.Errorf("answer before peer connection")
		}
		desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: msg.SDP}
		if err := pc.SetRemoteDescription(desc); err != nil {
			return &Error{Code: ErrCodeConnectFailed, Message: "failed to set remote description", Terminal: true, Err: err}
		}
		return nil

	case "active_speakers":
		speaking := false
		for _, id := range msg.Speakers {
			if id != a.peerID {
				speaking = true
				break
			}
		}
		a.setAgentSpeaking(speaking)
		return nil

	case "error":
		return &Error{
			Code:     ErrCodeRoomError,
			Message:  msg.Message,
			Terminal: msg.Code == "fatal",
		}

	default:
		log.Printf("[Voice %s] ignoring unknown signal %q", a.peerID, msg.Type)
		return nil
	}
}

func (a *RoomAdapter) setupAudioPipeline() error {
	encoder, err := opus.NewEncoder(a.cfg.SampleRate, a.cfg.Channels, opus.AppVoIP)
	if err != nil {
		return &Error{Code: ErrCodeConnectFailed, Message: "failed to create opus encoder", Terminal: true, Err: err}
	}
	encoder.SetBitrate(a.cfg.BitRate)
	encoder.SetComplexity(10)
	encoder.SetDTX(true)

	a.mu.Lock()
	a.encoder = encoder
	a.mu.Unlock()

	if a.cfg.Capture.SampleRate() != a.cfg.SampleRate {
		resampler, err := audio.NewResampler(
			a.cfg.Capture.SampleRate(), a.cfg.SampleRate,
			astiav.ChannelLayoutMono, astiav.ChannelLayoutMono,
		)
		if err != nil {
			return &Error{Code: ErrCodeConnectFailed, Message: "failed to create resampler", Terminal: true, Err: err}
		}
		a.mu.Lock()
		a.resampler = resampler
		a.mu.Unlock()
	}
	return nil
}

// publishLocalAudio runs the capture -> VAD -> resample -> opus ->
// track pipeline until the capture source closes or the call ends.
func (a *RoomAdapter) publishLocalAudio(ctx context.Context) {
	defer a.wg.Done()

	opusBuf := make([]byte, 1275)
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-a.cfg.Capture.Frames():
			if !ok {
				return
			}

			a.mu.RLock()
			muted := a.muted
			state := a.state
			track := a.localTrack
			encoder := a.encoder
			resampler := a.resampler
			a.mu.RUnlock()

			if muted || state != connection.StateConnected || track == nil || encoder == nil {
				continue
			}

			// Score the raw capture frame before resampling; the VAD
			// expects the microphone rate.
			if prob, err := a.cfg.Detector.Infer(audio.BytesToFloat32(frame)); err == nil {
				a.userGate.observe(prob, time.Now())
			}

			pcmBytes := frame
			if resampler != nil {
				resampled, err := resampler.Convert(frame)
				if err != nil {
					log.Printf("[Voice %s] resample error: %v", a.peerID, err)
					continue
				}
				pcmBytes = resampled
			}

			n, err := encoder.Encode(audio.BytesToInt16(pcmBytes), opusBuf)
			if err != nil {
				log.Printf("[Voice %s] opus encode error: %v", a.peerID, err)
				continue
			}
			sample := media.Sample{Data: opusBuf[:n], Duration: frameDuration}
			if err := track.WriteSample(sample); err != nil {
				log.Printf("[Voice %s] failed to write audio sample: %v", a.peerID, err)
			}
		}
	}
}

func (a *RoomAdapter) setAgentSpeaking(speaking bool) {
	a.mu.Lock()
	if a.agentSpeaking == speaking {
		a.mu.Unlock()
		return
	}
	a.agentSpeaking = speaking
	h := a.handler
	a.mu.Unlock()

	h.OnAgentSpeakingChanged(speaking)
}

func (a *RoomAdapter) setState(state connection.State) {
	a.mu.Lock()
	if a.state == state {
		a.mu.Unlock()
		return
	}
	a.state = state
	h := a.handler
	a.mu.Unlock()

	log.Printf("[Voice %s] state -> %s", a.peerID, state)
	h.OnStateChange(state)
}

func (a *RoomAdapter) emitError(err *Error) {
	a.mu.RLock()
	h := a.handler
	a.mu.RUnlock()
	h.OnError(err)
}
