package call

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/callkit-ai/callkit/pkg/avatar"
	"github.com/callkit-ai/callkit/pkg/connection"
	"github.com/callkit-ai/callkit/pkg/localmedia"
	"github.com/callkit-ai/callkit/pkg/netmon"
	"github.com/callkit-ai/callkit/pkg/ringback"
	"github.com/callkit-ai/callkit/pkg/trace"
	"github.com/callkit-ai/callkit/pkg/voice"
)

const (
	defaultSlowConnectionAfter = 5 * time.Second
	eventQueueSize             = 128
)

// Config wires the orchestrator's collaborators. Voice is required;
// everything else is optional and its absence degrades the matching
// feature.
type Config struct {
	// Voice is the load-bearing channel. Its terminal failure ends the
	// call.
	Voice voice.Adapter

	// Avatar supplies the companion's video. Nil means an audio-only
	// call from the start.
	Avatar avatar.Adapter

	// Media owns the local microphone and camera.
	Media *localmedia.Manager

	// Ringback plays the ring cue until the voice channel connects.
	Ringback *ringback.Generator

	// Prober enables the network quality monitor. Nil disables
	// monitoring and quality fallback.
	Prober        netmon.Prober
	MonitorConfig netmon.Config

	// WithVideo requests the local camera and avatar video.
	WithVideo bool

	// KickoffText, when set, is sent to the avatar once at video reveal
	// so the companion speaks first instead of waiting out the user.
	KickoffText string

	// SlowConnectionAfter is how long the call may stay unconnected
	// before the slow-connection flag turns on. Default 5s.
	SlowConnectionAfter time.Duration

	// OnStateChange notifies the view layer of State transitions. Runs
	// on the event loop; must not block.
	OnStateChange func(state State)

	// OnVoiceTrack hands a subscribed remote audio track to the view
	// layer for playback attachment.
	OnVoiceTrack func(track *voice.Track)

	// OnAvatarStream hands the avatar's media stream to the view layer.
	OnAvatarStream func(stream *avatar.Stream)

	// OnAudioOutputChanged applies an output-device selection in the
	// view layer.
	OnAudioOutputChanged func(deviceID string)

	// OnFullscreenExit leaves any fullscreen UI mode. Runs as the last
	// teardown step.
	OnFullscreenExit func()
}

// Orchestrator drives one call from open to teardown. A new call is a
// fresh Orchestrator; nothing persists across calls.
type Orchestrator struct {
	cfg    Config
	callID string

	monitor *netmon.Monitor
	bag     *resourceBag
	span    *trace.CallSpan

	events chan event
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	mu            sync.RWMutex
	started       bool
	state         State
	voiceState    connection.State
	voiceWasUp    bool
	firstFrame    bool
	audioOnly     bool
	slowConn      bool
	muted         bool
	agentSpeaking bool
	userSpeaking  bool
	tier          netmon.QualityTier
	outputDevice  string
	avatarStream  *avatar.Stream
	connectedAt   time.Time
	endedAt       time.Time
	kickoffSent   bool
	fallbackFired bool
}

// NewOrchestrator creates an orchestrator for one call.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Voice == nil {
		return nil, fmt.Errorf("voice adapter is required")
	}
	if cfg.SlowConnectionAfter <= 0 {
		cfg.SlowConnectionAfter = defaultSlowConnectionAfter
	}

	o := &Orchestrator{
		cfg:    cfg,
		callID: uuid.NewString(),
		bag:    newResourceBag(),
		events: make(chan event, eventQueueSize),
		done:   make(chan struct{}),
		state:  StateInitiating,
		tier:   netmon.TierGood,
	}
	if cfg.Prober != nil {
		o.monitor = netmon.NewMonitor(cfg.MonitorConfig, cfg.Prober, netmon.Callbacks{
			OnQualityChange: func(tier netmon.QualityTier) {
				o.dispatch(qualityEvent{tier: tier})
			},
			OnFallbackTriggered: func() {
				o.dispatch(fallbackEvent{})
			},
		})
	}
	return o, nil
}

// Start opens the call: ringback and monitoring begin, local media is
// acquired and both channels start connecting concurrently. Progress
// arrives through state changes; Start only fails on misuse.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return fmt.Errorf("call already started")
	}
	o.started = true
	o.mu.Unlock()

	log.Printf("[Call %s] opening (video=%v)", o.callID, o.cfg.WithVideo)
	ctx, o.span = trace.StartCall(ctx, o.callID, o.cfg.WithVideo)

	o.cfg.Voice.RegisterEventHandler(&voiceEvents{o: o})
	if o.cfg.Avatar != nil {
		o.cfg.Avatar.RegisterEventHandler(&avatarEvents{o: o})
	}

	if o.cfg.Ringback != nil {
		o.cfg.Ringback.Start()
	}
	if o.monitor != nil {
		o.monitor.Start(ctx)
	}

	if o.cfg.Media != nil {
		if _, err := o.cfg.Media.AcquireMicrophone(); err != nil {
			// The voice adapter surfaces the resulting permission error
			// through its own state machine.
			log.Printf("[Call %s] microphone acquisition failed: %v", o.callID, err)
		}
		if o.cfg.WithVideo {
			if err := o.cfg.Media.StartCamera(); err != nil {
				log.Printf("[Call %s] continuing without local camera: %v", o.callID, err)
			}
		}
	}

	o.wg.Add(1)
	go o.run()

	o.bag.afterFunc(o.cfg.SlowConnectionAfter, func() {
		o.dispatch(slowConnectionEvent{})
	})

	if err := o.cfg.Voice.StartCall(ctx, o.cfg.WithVideo); err != nil {
		log.Printf("[Call %s] voice start failed: %v", o.callID, err)
		o.dispatch(endEvent{reason: "voice start failed"})
		return err
	}
	if o.cfg.Avatar != nil {
		if err := o.cfg.Avatar.StartSession(ctx); err != nil {
			// Avatar is not load-bearing; run audio-only.
			log.Printf("[Call %s] avatar start failed, audio-only: %v", o.callID, err)
			o.dispatch(avatarErrorEvent{err: &avatar.SessionError{
				Code:     avatar.ErrCodeConnectFailed,
				Message:  "avatar session failed to start",
				Terminal: true,
				Err:      err,
			}})
		}
	}
	return nil
}

// EndCall ends the call and blocks until teardown completes. Safe to
// call from any state, any number of times.
func (o *Orchestrator) EndCall() {
	o.mu.RLock()
	started := o.started
	o.mu.RUnlock()
	if !started {
		return
	}

	// Blocking send: the end event must never be dropped by a full
	// queue.
	select {
	case o.events <- endEvent{reason: "user request"}:
	case <-o.done:
	}
	<-o.done
}

// Done is closed when the call has fully ended.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// ToggleMute forwards the mute intent to the voice adapter.
func (o *Orchestrator) ToggleMute(muted bool) {
	o.cfg.Voice.ToggleMute(muted)
	o.mu.Lock()
	o.muted = muted
	o.mu.Unlock()
}

// ToggleCamera turns the local camera on or off. Failures degrade to
// the camera-unavailable flag.
func (o *Orchestrator) ToggleCamera() {
	if o.cfg.Media == nil {
		return
	}
	if o.cfg.Media.CameraOn() {
		o.cfg.Media.StopCamera()
		return
	}
	if err := o.cfg.Media.StartCamera(); err != nil {
		log.Printf("[Call %s] camera toggle failed: %v", o.callID, err)
	}
}

// SwitchCamera swaps the local camera facing.
func (o *Orchestrator) SwitchCamera() {
	if o.cfg.Media == nil {
		return
	}
	if err := o.cfg.Media.SwitchCamera(); err != nil {
		log.Printf("[Call %s] camera switch failed: %v", o.callID, err)
	}
}

// SelectAudioOutput records the chosen output device and applies it
// through the view hook.
func (o *Orchestrator) SelectAudioOutput(deviceID string) {
	o.mu.Lock()
	o.outputDevice = deviceID
	o.mu.Unlock()

	if o.cfg.OnAudioOutputChanged != nil {
		o.cfg.OnAudioOutputChanged(deviceID)
	}
}

// AvatarStream returns the avatar's media stream once connected.
func (o *Orchestrator) AvatarStream() *avatar.Stream {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.avatarStream
}

// State returns the current call state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Snapshot returns the read-only view surface.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()

	snap := Snapshot{
		State:          o.state,
		Duration:       o.durationLocked(),
		Muted:          o.muted,
		AgentSpeaking:  o.agentSpeaking,
		UserSpeaking:   o.userSpeaking,
		SlowConnection: o.slowConn,
		AudioOnly:      o.audioOnly,
		VideoRevealed:  o.videoRevealedLocked(),
		Quality:        o.tier,
		OutputDevice:   o.outputDevice,
	}
	if o.cfg.Media != nil {
		snap.CameraOn = o.cfg.Media.CameraOn()
		snap.CameraUnavailable = o.cfg.Media.CameraUnavailable()
	}
	return snap
}

func (o *Orchestrator) videoRevealedLocked() bool {
	return o.firstFrame && o.voiceState == connection.StateConnected && !o.audioOnly
}

func (o *Orchestrator) durationLocked() time.Duration {
	if o.connectedAt.IsZero() {
		return 0
	}
	if !o.endedAt.IsZero() {
		return o.endedAt.Sub(o.connectedAt)
	}
	return time.Since(o.connectedAt)
}

func (o *Orchestrator) dispatch(ev event) {
	select {
	case <-o.done:
	case o.events <- ev:
	default:
		log.Printf("[Call %s] event queue full, dropping %T", o.callID, ev)
	}
}

func (o *Orchestrator) run() {
	defer o.wg.Done()

	for ev := range o.events {
		o.process(ev)
		if o.State() == StateEnded {
			close(o.done)
			if o.cfg.OnStateChange != nil {
				o.cfg.OnStateChange(StateEnded)
			}
			return
		}
	}
}

func (o *Orchestrator) process(ev event) {
	switch e := ev.(type) {
	case voiceStateEvent:
		o.onVoiceState(e.state)
	case voiceErrorEvent:
		log.Printf("[Call %s] voice error (terminal=%v): %v", o.callID, e.err.Terminal, e.err)
		o.span.AdapterError("voice", e.err, e.err.Terminal)
	case avatarStateEvent:
		// Avatar reconnects never re-hide video; only log.
		log.Printf("[Call %s] avatar state -> %s", o.callID, e.state)
	case avatarConnectedEvent:
		o.onAvatarConnected(e.stream)
	case avatarFirstFrameEvent:
		o.onFirstFrame()
	case avatarErrorEvent:
		o.onAvatarError(e.err)
	case qualityEvent:
		o.onQuality(e.tier)
	case fallbackEvent:
		o.enterFallback("sustained poor network")
	case agentSpeakingEvent:
		o.setFlag(&o.agentSpeaking, e.speaking)
	case userSpeakingEvent:
		o.setFlag(&o.userSpeaking, e.speaking)
	case slowConnectionEvent:
		o.onSlowConnection()
	case endEvent:
		o.finish(e.reason)
	default:
		log.Printf("[Call %s] unknown event %T", o.callID, ev)
	}
}

func (o *Orchestrator) onVoiceState(state connection.State) {
	o.mu.Lock()
	o.voiceState = state
	o.mu.Unlock()

	switch state {
	case connection.StateCheckingPermissions, connection.StateConnecting:
		o.transition(StateInitiating, StateConnecting)

	case connection.StateReconnecting:
		o.transition(StateConnecting, StateReconnecting)
		o.transition(StateConnected, StateReconnecting)
		o.transition(StateBuffering, StateReconnecting)

	case connection.StateConnected:
		o.onVoiceConnected()

	case connection.StateError:
		// Voice is load-bearing; a terminal voice failure ends the call.
		o.finish("voice channel failed")

	case connection.StateDisconnected:
		o.finish("voice channel disconnected")
	}
}

func (o *Orchestrator) onVoiceConnected() {
	// Ringback stops on this exact transition, and before any video
	// reveal in the same tick.
	if o.cfg.Ringback != nil {
		o.cfg.Ringback.Stop()
	}

	o.mu.Lock()
	if o.connectedAt.IsZero() {
		o.connectedAt = time.Now()
	}
	o.voiceWasUp = true
	o.slowConn = false
	o.mu.Unlock()

	o.transition(StateInitiating, StateConnected)
	o.transition(StateConnecting, StateConnected)
	o.transition(StateReconnecting, StateConnected)

	o.maybeReveal()
}

func (o *Orchestrator) onAvatarConnected(stream *avatar.Stream) {
	o.mu.Lock()
	o.avatarStream = stream
	// Duration counts from the first of {avatar connected, voice
	// connected}.
	if o.connectedAt.IsZero() {
		o.connectedAt = time.Now()
	}
	o.mu.Unlock()

	log.Printf("[Call %s] avatar session connected", o.callID)
}

func (o *Orchestrator) onFirstFrame() {
	o.mu.Lock()
	if o.firstFrame {
		o.mu.Unlock()
		return
	}
	o.firstFrame = true
	o.mu.Unlock()

	log.Printf("[Call %s] avatar first frame received", o.callID)
	o.maybeReveal()
}

// maybeReveal checks the video-reveal invariant and sends the kickoff
// nudge the first time the surface becomes visible.
func (o *Orchestrator) maybeReveal() {
	o.mu.Lock()
	revealed := o.videoRevealedLocked()
	sendKickoff := revealed && !o.kickoffSent && o.cfg.KickoffText != "" && o.cfg.Avatar != nil
	if sendKickoff {
		o.kickoffSent = true
	}
	o.mu.Unlock()

	if revealed {
		log.Printf("[Call %s] video surface revealed", o.callID)
		o.span.VideoRevealed()
	}
	if sendKickoff {
		if err := o.cfg.Avatar.SendText(o.cfg.KickoffText); err != nil {
			log.Printf("[Call %s] kickoff send failed: %v", o.callID, err)
		}
	}
}

func (o *Orchestrator) onAvatarError(err *avatar.SessionError) {
	o.span.AdapterError("avatar", err, err.Terminal)
	if !err.Terminal {
		log.Printf("[Call %s] transient avatar error: %v", o.callID, err)
		return
	}
	// Avatar video is not load-bearing; the call continues audio-only.
	o.enterFallback("avatar session failed")
}

func (o *Orchestrator) enterFallback(reason string) {
	o.mu.Lock()
	if o.audioOnly {
		o.mu.Unlock()
		return
	}
	o.audioOnly = true
	o.fallbackFired = true
	o.mu.Unlock()

	log.Printf("[Call %s] falling back to audio-only: %s", o.callID, reason)
	o.span.Fallback(reason)
}

func (o *Orchestrator) onQuality(tier netmon.QualityTier) {
	o.mu.Lock()
	o.tier = tier
	o.mu.Unlock()

	if tier == netmon.TierCritical {
		o.transition(StateConnected, StateBuffering)
	} else {
		o.transition(StateBuffering, StateConnected)
	}
}

func (o *Orchestrator) onSlowConnection() {
	o.mu.Lock()
	defer o.mu.Unlock()

	// Only the voice channel carries the call; an avatar session coming
	// up first still leaves the user waiting, so it must not suppress
	// the flag.
	if o.state == StateEnded || o.voiceWasUp {
		return
	}
	o.slowConn = true
	log.Printf("[Call %s] slow connection flagged", o.callID)
}

func (o *Orchestrator) setFlag(field *bool, value bool) {
	o.mu.Lock()
	*field = value
	o.mu.Unlock()
}

// transition moves from -> to if the call is currently in from.
func (o *Orchestrator) transition(from, to State) {
	o.mu.Lock()
	if o.state != from {
		o.mu.Unlock()
		return
	}
	o.state = to
	o.mu.Unlock()

	log.Printf("[Call %s] %s -> %s", o.callID, from, to)
	o.span.StateTransition(from.String(), to.String())
	if o.cfg.OnStateChange != nil && to != StateEnded {
		o.cfg.OnStateChange(to)
	}
}

// finish runs teardown exactly once and marks the call Ended. Runs on
// the event loop; the Ended notification fires after the loop settles.
func (o *Orchestrator) finish(reason string) {
	o.once.Do(func() {
		log.Printf("[Call %s] ending: %s", o.callID, reason)

		o.mu.Lock()
		o.state = StateEnded
		o.endedAt = time.Now()
		o.mu.Unlock()

		o.teardown()
		o.span.End(reason)
	})
}

// teardown is best-effort sequential: each step runs after the previous
// returns, and a step's panic or error never blocks the rest.
func (o *Orchestrator) teardown() {
	step := func(name string, f func()) {
		runStep(name, f)
		o.span.TeardownStep(name)
	}

	if o.cfg.Ringback != nil {
		step("stop ringback", o.cfg.Ringback.Stop)
	}
	step("clear timers", o.bag.dispose)
	if o.monitor != nil {
		step("stop quality monitor", o.monitor.Stop)
	}
	if o.cfg.Media != nil {
		step("release local media", o.cfg.Media.ReleaseAll)
	}
	if o.cfg.Avatar != nil {
		step("stop avatar session", o.cfg.Avatar.StopSession)
	}
	step("end voice call", o.cfg.Voice.EndCall)
	if o.cfg.OnFullscreenExit != nil {
		step("exit fullscreen", o.cfg.OnFullscreenExit)
	}

	log.Printf("[Call %s] teardown complete", o.callID)
}
