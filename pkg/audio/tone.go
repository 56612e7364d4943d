package audio

import "math"

// ToneGenerator synthesizes 16-bit mono PCM from a set of superimposed
// sine frequencies. Phase is carried across calls so consecutive frames
// are continuous.
type ToneGenerator struct {
	sampleRate  int
	frequencies []float64
	amplitude   float64
	phases      []float64
}

// NewToneGenerator creates a generator for the given frequencies.
// amplitude is the peak level per the mixed signal, in (0, 1].
func NewToneGenerator(sampleRate int, frequencies []float64, amplitude float64) *ToneGenerator {
	if amplitude <= 0 || amplitude > 1 {
		amplitude = 0.5
	}
	return &ToneGenerator{
		sampleRate:  sampleRate,
		frequencies: frequencies,
		amplitude:   amplitude,
		phases:      make([]float64, len(frequencies)),
	}
}

// Generate returns numSamples of mixed tone as int16 samples.
func (g *ToneGenerator) Generate(numSamples int) []int16 {
	out := make([]int16, numSamples)
	if len(g.frequencies) == 0 {
		return out
	}
	// Scale so the sum of all tones peaks at amplitude.
	scale := g.amplitude / float64(len(g.frequencies))
	for i := 0; i < numSamples; i++ {
		var v float64
		for j, f := range g.frequencies {
			v += math.Sin(g.phases[j]) * scale
			g.phases[j] += 2 * math.Pi * f / float64(g.sampleRate)
			if g.phases[j] > 2*math.Pi {
				g.phases[j] -= 2 * math.Pi
			}
		}
		out[i] = int16(v * 32767)
	}
	return out
}

// Reset zeroes the carried phase, starting the next frame from silence
// crossing.
func (g *ToneGenerator) Reset() {
	for i := range g.phases {
		g.phases[i] = 0
	}
}

// ApplyLinearFade scales samples from startGain to endGain in place.
// Used for click-free ramp in/out of the ring cadence.
func ApplyLinearFade(samples []int16, startGain, endGain float64) {
	n := len(samples)
	if n == 0 {
		return
	}
	step := (endGain - startGain) / float64(n)
	gain := startGain
	for i := range samples {
		samples[i] = int16(float64(samples[i]) * gain)
		gain += step
	}
}
