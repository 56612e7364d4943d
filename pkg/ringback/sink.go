package ringback

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/callkit-ai/callkit/pkg/audio"
)

// Sink receives the generated PCM. Open is called by Generator.Start
// and its error decides whether ringback plays at all.
type Sink interface {
	// Open prepares the backend for 16-bit mono PCM at sampleRate.
	Open(sampleRate int) error

	// Write hands one frame to the backend. Never blocks the generator.
	Write(pcm []byte)

	// Close releases the backend. Safe to call when not open.
	Close() error
}

// PlaybackSink plays ringback through the default output device using
// malgo. Frames are buffered in a ring buffer drained by the device
// callback, so a slow device drops old cadence instead of stalling the
// generator.
type PlaybackSink struct {
	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	buf    *audio.RingBuffer
}

// NewPlaybackSink creates an unopened playback sink.
func NewPlaybackSink() *PlaybackSink {
	return &PlaybackSink{}
}

// Open implements Sink.
func (s *PlaybackSink) Open(sampleRate int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device != nil {
		return nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize audio context: %w", err)
	}

	// Half a second of buffer absorbs scheduling jitter between the
	// generator ticker and the device callback.
	buf := audio.NewRingBufferForDuration(sampleRate, 500)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.PeriodSizeInMilliseconds = 20
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(outputSamples, inputSamples []byte, framecount uint32) {
			buf.Read(outputSamples)
		},
	})
	if err != nil {
		ctx.Uninit()
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	s.ctx = ctx
	s.device = device
	s.buf = buf
	return nil
}

// Write implements Sink.
func (s *PlaybackSink) Write(pcm []byte) {
	s.mu.Lock()
	buf := s.buf
	s.mu.Unlock()

	if buf != nil {
		buf.Write(pcm)
	}
}

// Close implements Sink.
func (s *PlaybackSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device != nil {
		s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
	if s.ctx != nil {
		s.ctx.Uninit()
		s.ctx = nil
	}
	s.buf = nil
	return nil
}

var _ Sink = (*PlaybackSink)(nil)

// MemorySink collects written frames, for tests and for environments
// without an audio device.
type MemorySink struct {
	mu     sync.Mutex
	opened bool
	closed int
	// OpenErr, when set, is returned by Open to simulate a missing
	// audio backend.
	OpenErr error
	frames  [][]byte
}

// NewMemorySink creates an in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Open implements Sink.
func (s *MemorySink) Open(sampleRate int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OpenErr != nil {
		return s.OpenErr
	}
	s.opened = true
	return nil
}

// Write implements Sink.
func (s *MemorySink) Write(pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	s.frames = append(s.frames, cp)
}

// Close implements Sink.
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = false
	s.closed++
	return nil
}

// Frames returns a copy of all frames written so far.
func (s *MemorySink) Frames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.frames))
	copy(out, s.frames)
	return out
}

// CloseCount returns how many times Close ran.
func (s *MemorySink) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ Sink = (*MemorySink)(nil)
