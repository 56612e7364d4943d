package voice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpeechGate(t *testing.T) {
	t.Run("opens immediately on speech", func(t *testing.T) {
		var edges []bool
		gate := newSpeechGate(0.5, 300*time.Millisecond, func(s bool) {
			edges = append(edges, s)
		})

		now := time.Now()
		gate.observe(0.9, now)

		assert.True(t, gate.isSpeaking())
		assert.Equal(t, []bool{true}, edges)
	})

	t.Run("short pause does not close the gate", func(t *testing.T) {
		var edges []bool
		gate := newSpeechGate(0.5, 300*time.Millisecond, func(s bool) {
			edges = append(edges, s)
		})

		now := time.Now()
		gate.observe(0.9, now)
		gate.observe(0.1, now.Add(100*time.Millisecond))
		gate.observe(0.1, now.Add(200*time.Millisecond))

		assert.True(t, gate.isSpeaking())
		assert.Equal(t, []bool{true}, edges)
	})

	t.Run("closes after the hangover elapses", func(t *testing.T) {
		var edges []bool
		gate := newSpeechGate(0.5, 300*time.Millisecond, func(s bool) {
			edges = append(edges, s)
		})

		now := time.Now()
		gate.observe(0.9, now)
		gate.observe(0.1, now.Add(350*time.Millisecond))

		assert.False(t, gate.isSpeaking())
		assert.Equal(t, []bool{true, false}, edges)
	})

	t.Run("speech inside hangover re-arms the timer", func(t *testing.T) {
		var edges []bool
		gate := newSpeechGate(0.5, 300*time.Millisecond, func(s bool) {
			edges = append(edges, s)
		})

		now := time.Now()
		gate.observe(0.9, now)
		gate.observe(0.9, now.Add(250*time.Millisecond))
		gate.observe(0.1, now.Add(450*time.Millisecond))

		assert.True(t, gate.isSpeaking())
		assert.Equal(t, []bool{true}, edges)
	})

	t.Run("reset closes silently", func(t *testing.T) {
		var edges []bool
		gate := newSpeechGate(0.5, 300*time.Millisecond, func(s bool) {
			edges = append(edges, s)
		})

		gate.observe(0.9, time.Now())
		gate.reset()

		assert.False(t, gate.isSpeaking())
		assert.Equal(t, []bool{true}, edges)
	})

	t.Run("silence without prior speech fires nothing", func(t *testing.T) {
		var edges []bool
		gate := newSpeechGate(0.5, 300*time.Millisecond, func(s bool) {
			edges = append(edges, s)
		})

		now := time.Now()
		gate.observe(0.1, now)
		gate.observe(0.2, now.Add(time.Second))

		assert.Empty(t, edges)
	})
}
