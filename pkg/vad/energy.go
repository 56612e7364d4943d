package vad

import (
	"fmt"
	"math"
	"sync"
)

// EnergyDetector is a lightweight RMS-based detector used when the
// Silero model is not compiled in (the `vad` build tag). It tracks a
// noise floor with an exponential moving average and reports a pseudo
// probability from the ratio of chunk energy to that floor.
type EnergyDetector struct {
	mu sync.Mutex

	noiseFloor float64
	adaptRate  float64
	ratio      float64 // energy/floor ratio mapped to probability 1.0
	primed     bool
}

// EnergyConfig configures the energy detector.
type EnergyConfig struct {
	// AdaptRate is the EMA coefficient for the noise floor, in (0, 1).
	AdaptRate float64
	// SpeechRatio is the energy-to-floor ratio treated as certain speech.
	SpeechRatio float64
}

// DefaultEnergyConfig returns tuning that works for 16kHz mono capture.
func DefaultEnergyConfig() EnergyConfig {
	return EnergyConfig{
		AdaptRate:   0.05,
		SpeechRatio: 4.0,
	}
}

// NewEnergyDetector creates an energy detector.
func NewEnergyDetector(cfg EnergyConfig) *EnergyDetector {
	if cfg.AdaptRate <= 0 || cfg.AdaptRate >= 1 {
		cfg.AdaptRate = 0.05
	}
	if cfg.SpeechRatio <= 1 {
		cfg.SpeechRatio = 4.0
	}
	return &EnergyDetector{
		adaptRate: cfg.AdaptRate,
		ratio:     cfg.SpeechRatio,
	}
}

// Infer implements DetectorInterface.
func (d *EnergyDetector) Infer(samples []float32) (float32, error) {
	if len(samples) == 0 {
		return 0, fmt.Errorf("empty samples")
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.primed {
		d.noiseFloor = rms
		d.primed = true
		return 0, nil
	}

	// Only adapt the floor on quiet chunks so speech does not raise it.
	if rms < d.noiseFloor*2 {
		d.noiseFloor = d.noiseFloor*(1-d.adaptRate) + rms*d.adaptRate
	}

	floor := d.noiseFloor
	if floor < 1e-5 {
		floor = 1e-5
	}
	prob := (rms/floor - 1) / (d.ratio - 1)
	if prob < 0 {
		prob = 0
	}
	if prob > 1 {
		prob = 1
	}
	return float32(prob), nil
}

// Reset implements DetectorInterface.
func (d *EnergyDetector) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.noiseFloor = 0
	d.primed = false
	return nil
}

// Destroy implements DetectorInterface.
func (d *EnergyDetector) Destroy() error {
	return nil
}

var _ DetectorInterface = (*EnergyDetector)(nil)
