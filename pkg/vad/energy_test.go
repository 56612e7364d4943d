package vad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constantChunk(level float32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = level
	}
	return out
}

func TestEnergyDetectorSilenceThenSpeech(t *testing.T) {
	d := NewEnergyDetector(DefaultEnergyConfig())

	// Prime and settle the noise floor on quiet chunks.
	for i := 0; i < 10; i++ {
		p, err := d.Infer(constantChunk(0.01, 512))
		require.NoError(t, err)
		assert.Less(t, p, float32(0.3), "quiet chunk classified as speech")
	}

	// A loud chunk well above the floor should read as speech.
	p, err := d.Infer(constantChunk(0.5, 512))
	require.NoError(t, err)
	assert.Greater(t, p, float32(0.9))
}

func TestEnergyDetectorFloorNotRaisedBySpeech(t *testing.T) {
	d := NewEnergyDetector(DefaultEnergyConfig())

	for i := 0; i < 10; i++ {
		_, err := d.Infer(constantChunk(0.01, 512))
		require.NoError(t, err)
	}

	// Sustained speech must not drag the floor up enough to mask itself.
	for i := 0; i < 20; i++ {
		p, err := d.Infer(constantChunk(0.5, 512))
		require.NoError(t, err)
		assert.Greater(t, p, float32(0.9), "iteration %d", i)
	}
}

func TestEnergyDetectorEmptyInput(t *testing.T) {
	d := NewEnergyDetector(DefaultEnergyConfig())
	_, err := d.Infer(nil)
	assert.Error(t, err)
}

func TestEnergyDetectorReset(t *testing.T) {
	d := NewEnergyDetector(DefaultEnergyConfig())
	_, err := d.Infer(constantChunk(0.01, 512))
	require.NoError(t, err)

	require.NoError(t, d.Reset())

	// First chunk after reset primes the floor again and reports no speech.
	p, err := d.Infer(constantChunk(0.5, 512))
	require.NoError(t, err)
	assert.Equal(t, float32(0), p)
}

func TestMockDetectorSequence(t *testing.T) {
	m := NewMockDetectorWithSequence([]float32{0.1, 0.9})

	p1, _ := m.Infer(constantChunk(0, 10))
	p2, _ := m.Infer(constantChunk(0, 10))
	p3, _ := m.Infer(constantChunk(0, 10))

	assert.Equal(t, float32(0.1), p1)
	assert.Equal(t, float32(0.9), p2)
	assert.Equal(t, float32(0.1), p3)
	assert.Equal(t, 3, m.InferCallCount())
}
