package voice

import (
	"sync"
	"time"
)

// speechGate turns a stream of per-chunk speech probabilities into
// debounced speaking edges. Speech opens the gate immediately; silence
// only closes it after the hangover elapses, so short pauses inside a
// sentence do not flap the "listening" UI.
type speechGate struct {
	mu        sync.Mutex
	threshold float32
	hangover  time.Duration

	speaking   bool
	lastSpeech time.Time
	onChange   func(speaking bool)
}

func newSpeechGate(threshold float32, hangover time.Duration, onChange func(bool)) *speechGate {
	if threshold <= 0 {
		threshold = 0.5
	}
	if hangover <= 0 {
		hangover = 300 * time.Millisecond
	}
	return &speechGate{
		threshold: threshold,
		hangover:  hangover,
		onChange:  onChange,
	}
}

// observe feeds one probability sample at the given time.
func (g *speechGate) observe(prob float32, now time.Time) {
	g.mu.Lock()

	var edge *bool
	if prob >= g.threshold {
		g.lastSpeech = now
		if !g.speaking {
			g.speaking = true
			v := true
			edge = &v
		}
	} else if g.speaking && now.Sub(g.lastSpeech) >= g.hangover {
		g.speaking = false
		v := false
		edge = &v
	}
	onChange := g.onChange
	g.mu.Unlock()

	if edge != nil && onChange != nil {
		onChange(*edge)
	}
}

// isSpeaking returns the current gate state.
func (g *speechGate) isSpeaking() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.speaking
}

// reset closes the gate without firing an edge.
func (g *speechGate) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.speaking = false
}
