package vad

import "sync"

// MockDetector is a scriptable DetectorInterface for tests.
type MockDetector struct {
	// InferFunc, when set, decides the probability per call. If nil,
	// Infer returns 0 (no speech).
	InferFunc func(samples []float32) (float32, error)

	// InferCalls records every Infer input for verification.
	InferCalls [][]float32

	ResetCalled   bool
	DestroyCalled bool

	mu sync.Mutex
}

// NewMockDetector creates a mock returning 0 probability.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// NewMockDetectorWithProb creates a mock returning a fixed probability.
func NewMockDetectorWithProb(prob float32) *MockDetector {
	return &MockDetector{
		InferFunc: func([]float32) (float32, error) { return prob, nil },
	}
}

// NewMockDetectorWithSequence creates a mock cycling through probs.
func NewMockDetectorWithSequence(probs []float32) *MockDetector {
	idx := 0
	return &MockDetector{
		InferFunc: func([]float32) (float32, error) {
			if len(probs) == 0 {
				return 0, nil
			}
			p := probs[idx]
			idx = (idx + 1) % len(probs)
			return p, nil
		},
	}
}

// Infer implements DetectorInterface.
func (m *MockDetector) Infer(samples []float32) (float32, error) {
	m.mu.Lock()
	cp := make([]float32, len(samples))
	copy(cp, samples)
	m.InferCalls = append(m.InferCalls, cp)
	m.mu.Unlock()

	if m.InferFunc != nil {
		return m.InferFunc(samples)
	}
	return 0, nil
}

// Reset implements DetectorInterface.
func (m *MockDetector) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResetCalled = true
	return nil
}

// Destroy implements DetectorInterface.
func (m *MockDetector) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DestroyCalled = true
	return nil
}

// InferCallCount returns how many times Infer ran.
func (m *MockDetector) InferCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.InferCalls)
}

var _ DetectorInterface = (*MockDetector)(nil)
