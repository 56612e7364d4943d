package localmedia

import (
	"fmt"
	"log"
	"sync"
)

// Config holds the local media parameters.
type Config struct {
	// SampleRate / FrameMs of microphone capture.
	SampleRate int
	FrameMs    int

	// DefaultFacing is the camera used by the first StartCamera.
	DefaultFacing Facing
}

// DefaultConfig returns 16kHz mono 20ms capture with the front camera.
func DefaultConfig() Config {
	return Config{
		SampleRate:    16000,
		FrameMs:       20,
		DefaultFacing: FacingFront,
	}
}

// Manager owns the call's capture devices. All operations are
// idempotent; camera failures degrade the call instead of ending it.
type Manager struct {
	provider DeviceProvider
	cfg      Config

	mu                sync.Mutex
	mic               Microphone
	camera            CameraStream
	cameraUnavailable bool
	released          bool
}

// NewManager creates a manager around the given provider.
func NewManager(provider DeviceProvider, cfg Config) *Manager {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.FrameMs == 0 {
		cfg.FrameMs = 20
	}
	return &Manager{provider: provider, cfg: cfg}
}

// AcquireMicrophone opens the microphone, or returns the already-open
// one. The returned stream plugs directly into the voice adapter.
func (m *Manager) AcquireMicrophone() (Microphone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return nil, fmt.Errorf("media manager already released")
	}
	if m.mic != nil {
		return m.mic, nil
	}

	mic, err := m.provider.OpenMicrophone(m.cfg.SampleRate, m.cfg.FrameMs)
	if err != nil {
		return nil, fmt.Errorf("failed to open microphone: %w", err)
	}
	m.mic = mic
	log.Printf("[LocalMedia] microphone acquired (%d Hz)", m.cfg.SampleRate)
	return mic, nil
}

// StartCamera opens the default-facing camera. No-op when a camera is
// already active. On failure the CameraUnavailable flag is set and the
// call continues without local video.
func (m *Manager) StartCamera() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return fmt.Errorf("media manager already released")
	}
	if m.camera != nil {
		return nil
	}

	cam, err := m.provider.OpenCamera(m.cfg.DefaultFacing)
	if err != nil {
		m.cameraUnavailable = true
		log.Printf("[LocalMedia] camera unavailable: %v", err)
		return fmt.Errorf("failed to open %s camera: %w", m.cfg.DefaultFacing, err)
	}
	m.camera = cam
	m.cameraUnavailable = false
	log.Printf("[LocalMedia] %s camera started", cam.Facing())
	return nil
}

// StopCamera releases the camera. Idempotent.
func (m *Manager) StopCamera() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.camera == nil {
		return
	}
	if err := m.camera.Close(); err != nil {
		log.Printf("[LocalMedia] camera close error: %v", err)
	}
	m.camera = nil
	log.Printf("[LocalMedia] camera stopped")
}

// SwitchCamera swaps to the opposite facing. The current camera is
// closed first (most platforms refuse two concurrent camera handles);
// if the new facing fails to open, the original facing is re-acquired
// so the user is never left camera-less by a failed switch.
func (m *Manager) SwitchCamera() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return fmt.Errorf("media manager already released")
	}
	if m.camera == nil {
		return fmt.Errorf("camera not active")
	}

	oldFacing := m.camera.Facing()
	target := oldFacing.Opposite()

	if err := m.camera.Close(); err != nil {
		log.Printf("[LocalMedia] camera close error: %v", err)
	}
	m.camera = nil

	cam, err := m.provider.OpenCamera(target)
	if err == nil {
		m.camera = cam
		log.Printf("[LocalMedia] switched camera to %s", target)
		return nil
	}
	log.Printf("[LocalMedia] failed to open %s camera, falling back: %v", target, err)

	fallback, fbErr := m.provider.OpenCamera(oldFacing)
	if fbErr != nil {
		m.cameraUnavailable = true
		return fmt.Errorf("switch to %s failed and %s could not be re-acquired: %w", target, oldFacing, fbErr)
	}
	m.camera = fallback
	return fmt.Errorf("failed to switch to %s camera: %w", target, err)
}

// CameraOn reports whether a camera stream is active.
func (m *Manager) CameraOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.camera != nil
}

// CameraFacing returns the active camera's facing.
func (m *Manager) CameraFacing() (Facing, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.camera == nil {
		return FacingFront, false
	}
	return m.camera.Facing(), true
}

// CameraUnavailable reports whether the last acquisition attempt
// failed.
func (m *Manager) CameraUnavailable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cameraUnavailable
}

// Camera returns the active camera stream for view attachment.
func (m *Manager) Camera() CameraStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.camera
}

// ReleaseAll closes every open device. Idempotent; a released manager
// rejects further acquisition.
func (m *Manager) ReleaseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return
	}
	m.released = true

	if m.camera != nil {
		if err := m.camera.Close(); err != nil {
			log.Printf("[LocalMedia] camera close error: %v", err)
		}
		m.camera = nil
	}
	if m.mic != nil {
		if err := m.mic.Close(); err != nil {
			log.Printf("[LocalMedia] microphone close error: %v", err)
		}
		m.mic = nil
	}
	log.Printf("[LocalMedia] released")
}
