package localmedia

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// MalgoProvider opens the default microphone through malgo. Camera
// capture is delegated to OpenCameraFunc; without one, OpenCamera
// reports ErrCameraUnsupported and the call runs camera-less.
type MalgoProvider struct {
	// OpenCameraFunc, when set, supplies the platform camera backend.
	OpenCameraFunc func(facing Facing) (CameraStream, error)
}

var _ DeviceProvider = (*MalgoProvider)(nil)

// NewMalgoProvider creates a provider with no camera backend.
func NewMalgoProvider() *MalgoProvider {
	return &MalgoProvider{}
}

// OpenMicrophone implements DeviceProvider.
func (p *MalgoProvider) OpenMicrophone(sampleRate, frameMs int) (Microphone, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	m := &malgoMicrophone{
		ctx:        ctx,
		sampleRate: sampleRate,
		frameBytes: sampleRate * frameMs / 1000 * 2,
		frames:     make(chan []byte, 32),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.PeriodSizeInMilliseconds = uint32(frameMs)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(outputSamples, inputSamples []byte, framecount uint32) {
			m.push(inputSamples)
		},
	})
	if err != nil {
		ctx.Uninit()
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		return nil, fmt.Errorf("failed to start capture device: %w", err)
	}

	m.device = device
	return m, nil
}

// OpenCamera implements DeviceProvider.
func (p *MalgoProvider) OpenCamera(facing Facing) (CameraStream, error) {
	if p.OpenCameraFunc == nil {
		return nil, ErrCameraUnsupported
	}
	return p.OpenCameraFunc(facing)
}

type malgoMicrophone struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate int
	frameBytes int

	mu      sync.Mutex
	pending []byte
	frames  chan []byte
	closed  bool
}

var _ Microphone = (*malgoMicrophone)(nil)

func (m *malgoMicrophone) Frames() <-chan []byte { return m.frames }

func (m *malgoMicrophone) SampleRate() int { return m.sampleRate }

// push accumulates device callback data into fixed-size frames. A full
// consumer drops the oldest frame rather than blocking the device
// thread.
func (m *malgoMicrophone) push(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.pending = append(m.pending, data...)
	for len(m.pending) >= m.frameBytes {
		frame := make([]byte, m.frameBytes)
		copy(frame, m.pending[:m.frameBytes])
		m.pending = m.pending[m.frameBytes:]

		select {
		case m.frames <- frame:
		default:
			select {
			case <-m.frames:
			default:
			}
			select {
			case m.frames <- frame:
			default:
			}
		}
	}
}

func (m *malgoMicrophone) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.device != nil {
		m.device.Stop()
		m.device.Uninit()
	}
	if m.ctx != nil {
		m.ctx.Uninit()
	}
	close(m.frames)
	return nil
}
