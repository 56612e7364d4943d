// Package ringback produces the audible ring cue played to the caller
// while a session is being established. It is UX sugar only: if the
// audio backend cannot be opened, Start degrades to a silent no-op and
// never blocks call setup.
package ringback

import (
	"log"
	"sync"
	"time"

	"github.com/callkit-ai/callkit/pkg/audio"
)

// Config holds the acoustic parameters of the ring cadence. None of
// these are part of the contract; they only shape the tone.
type Config struct {
	// SampleRate of the generated PCM.
	SampleRate int
	// Frequencies superimposed to form the ring tone.
	Frequencies []float64
	// Amplitude is the peak level of the mixed tone, in (0, 1].
	Amplitude float64
	// OnMs / OffMs define the ring duty cycle.
	OnMs  int
	OffMs int
	// FrameMs is the generation quantum.
	FrameMs int
	// FadeMs bounds the fade-out applied on Stop.
	FadeMs int
}

// DefaultConfig returns the North American ringback cadence: 440+480Hz,
// 2s on / 4s off.
func DefaultConfig() Config {
	return Config{
		SampleRate:  16000,
		Frequencies: []float64{440, 480},
		Amplitude:   0.3,
		OnMs:        2000,
		OffMs:       4000,
		FrameMs:     20,
		FadeMs:      40,
	}
}

// Generator loops the ring cadence into a Sink until stopped. Start and
// Stop are idempotent and safe to call in any order.
type Generator struct {
	cfg  Config
	sink Sink

	mu      sync.Mutex
	playing bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewGenerator creates a generator writing to sink.
func NewGenerator(cfg Config, sink Sink) *Generator {
	if cfg.SampleRate == 0 {
		cfg = DefaultConfig()
	}
	if cfg.FrameMs <= 0 {
		cfg.FrameMs = 20
	}
	if cfg.FadeMs <= 0 {
		cfg.FadeMs = 40
	}
	return &Generator{cfg: cfg, sink: sink}
}

// Start begins the looping cadence. Calling Start while already playing
// is a no-op. If the sink fails to open, Start logs and returns without
// playing.
func (g *Generator) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.playing {
		return
	}
	if err := g.sink.Open(g.cfg.SampleRate); err != nil {
		log.Printf("[Ringback] audio backend unavailable, ringback disabled: %v", err)
		return
	}

	g.playing = true
	g.stopCh = make(chan struct{})
	g.wg.Add(1)
	go g.loop(g.stopCh)
}

// Stop fades out and silences the ringback. Calling Stop when already
// stopped is a no-op. Returns once the generator goroutine has exited,
// bounded by one frame period plus the fade window.
func (g *Generator) Stop() {
	g.mu.Lock()
	if !g.playing {
		g.mu.Unlock()
		return
	}
	g.playing = false
	close(g.stopCh)
	g.mu.Unlock()

	g.wg.Wait()
	if err := g.sink.Close(); err != nil {
		log.Printf("[Ringback] sink close error: %v", err)
	}
}

// IsPlaying reports whether the cadence is currently active.
func (g *Generator) IsPlaying() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.playing
}

func (g *Generator) loop(stopCh chan struct{}) {
	defer g.wg.Done()

	tone := audio.NewToneGenerator(g.cfg.SampleRate, g.cfg.Frequencies, g.cfg.Amplitude)
	frameSamples := g.cfg.SampleRate * g.cfg.FrameMs / 1000
	cycleMs := g.cfg.OnMs + g.cfg.OffMs

	ticker := time.NewTicker(time.Duration(g.cfg.FrameMs) * time.Millisecond)
	defer ticker.Stop()

	elapsedMs := 0
	inTone := false

	for {
		select {
		case <-stopCh:
			if inTone {
				g.writeFadeOut(tone, frameSamples)
			}
			return
		case <-ticker.C:
			pos := elapsedMs % cycleMs
			elapsedMs += g.cfg.FrameMs

			if pos < g.cfg.OnMs {
				samples := tone.Generate(frameSamples)
				if !inTone {
					// Ramp in at each cadence edge to avoid clicks.
					audio.ApplyLinearFade(samples, 0, 1)
					inTone = true
				}
				g.sink.Write(audio.Int16ToBytes(samples))
			} else {
				if inTone {
					g.writeFadeOut(tone, frameSamples)
					inTone = false
					tone.Reset()
				}
				g.sink.Write(make([]byte, frameSamples*2))
			}
		}
	}
}

func (g *Generator) writeFadeOut(tone *audio.ToneGenerator, frameSamples int) {
	fadeSamples := g.cfg.SampleRate * g.cfg.FadeMs / 1000
	if fadeSamples > frameSamples {
		fadeSamples = frameSamples
	}
	samples := tone.Generate(fadeSamples)
	audio.ApplyLinearFade(samples, 1, 0)
	g.sink.Write(audio.Int16ToBytes(samples))
}
