package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToneGeneratorContinuousPhase(t *testing.T) {
	g := NewToneGenerator(8000, []float64{1000}, 0.8)

	a := g.Generate(80)
	b := g.Generate(80)

	// 1kHz at 8kHz is an exact 8-sample period, so the frame boundary
	// must not introduce a discontinuity: sample 80 continues sample 0's
	// cycle.
	assert.Equal(t, a[0], b[0])
	assert.Len(t, a, 80)
}

func TestToneGeneratorAmplitudeBound(t *testing.T) {
	g := NewToneGenerator(8000, []float64{440, 480}, 0.5)
	samples := g.Generate(8000)

	for _, s := range samples {
		if s > 17000 || s < -17000 {
			t.Fatalf("sample %d exceeds 0.5 amplitude bound", s)
		}
	}
}

func TestToneGeneratorNoFrequencies(t *testing.T) {
	g := NewToneGenerator(8000, nil, 0.5)
	samples := g.Generate(100)
	for _, s := range samples {
		assert.Equal(t, int16(0), s)
	}
}

func TestApplyLinearFadeOut(t *testing.T) {
	samples := []int16{1000, 1000, 1000, 1000}
	ApplyLinearFade(samples, 1.0, 0.0)

	assert.Equal(t, int16(1000), samples[0])
	assert.Less(t, samples[3], int16(300))
}

func TestConvertRoundTrip(t *testing.T) {
	in := []int16{-32768, -1, 0, 1, 32767}
	out := BytesToInt16(Int16ToBytes(in))
	assert.Equal(t, in, out)
}

func TestBytesToFloat32Normalized(t *testing.T) {
	data := Int16ToBytes([]int16{0, 16384, -16384})
	f := BytesToFloat32(data)
	assert.InDelta(t, 0.0, f[0], 1e-6)
	assert.InDelta(t, 0.5, f[1], 1e-3)
	assert.InDelta(t, -0.5, f[2], 1e-3)
}
