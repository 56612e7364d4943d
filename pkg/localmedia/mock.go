package localmedia

import (
	"sync"
)

// MockProvider is a scriptable DeviceProvider for tests.
type MockProvider struct {
	mu sync.Mutex

	// MicErr, when set, is returned by OpenMicrophone.
	MicErr error

	// CameraErr maps a facing to an open failure.
	CameraErr map[Facing]error

	// OpenedCameras records every OpenCamera call in order.
	OpenedCameras []Facing
}

var _ DeviceProvider = (*MockProvider)(nil)

// NewMockProvider creates a provider where every device opens.
func NewMockProvider() *MockProvider {
	return &MockProvider{CameraErr: make(map[Facing]error)}
}

func (p *MockProvider) OpenMicrophone(sampleRate, frameMs int) (Microphone, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.MicErr != nil {
		return nil, p.MicErr
	}
	return &MockMicrophone{
		sampleRate: sampleRate,
		frames:     make(chan []byte, 32),
	}, nil
}

func (p *MockProvider) OpenCamera(facing Facing) (CameraStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OpenedCameras = append(p.OpenedCameras, facing)
	if err := p.CameraErr[facing]; err != nil {
		return nil, err
	}
	return &MockCamera{facing: facing}, nil
}

// MockMicrophone is an in-memory Microphone. Tests feed it with Push.
type MockMicrophone struct {
	sampleRate int

	mu     sync.Mutex
	frames chan []byte
	closed bool
}

var _ Microphone = (*MockMicrophone)(nil)

func (m *MockMicrophone) Frames() <-chan []byte { return m.frames }
func (m *MockMicrophone) SampleRate() int       { return m.sampleRate }

// Push queues one frame for the consumer.
func (m *MockMicrophone) Push(frame []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.frames <- frame
}

func (m *MockMicrophone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.frames)
	return nil
}

// Closed reports whether Close ran.
func (m *MockMicrophone) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockCamera is an in-memory CameraStream.
type MockCamera struct {
	facing Facing

	mu     sync.Mutex
	closed bool
}

var _ CameraStream = (*MockCamera)(nil)

func (c *MockCamera) Facing() Facing { return c.facing }

func (c *MockCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close ran.
func (c *MockCamera) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
