// Package netmon watches network conditions during a call and decides
// when the avatar video should fall back to audio-only. It samples an
// RTT proxy on a fixed interval, classifies each sample into a quality
// tier and raises a one-shot fallback signal per degraded episode.
package netmon

import (
	"context"
	"log"
	"sync"
	"time"
)

// QualityTier is a coarse classification of current network conditions.
type QualityTier int

const (
	TierExcellent QualityTier = iota
	TierGood
	TierPoor
	TierCritical
)

func (t QualityTier) String() string {
	switch t {
	case TierExcellent:
		return "excellent"
	case TierGood:
		return "good"
	case TierPoor:
		return "poor"
	case TierCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Config holds sampling and classification settings.
type Config struct {
	// Interval between probes.
	Interval time.Duration
	// SustainedWindow is how long conditions must stay Poor or worse
	// before the fallback signal fires.
	SustainedWindow time.Duration
	// RTT thresholds for tier classification. A sample is Excellent
	// below ExcellentRTT, Good below GoodRTT, Poor below PoorRTT and
	// Critical at or above it.
	ExcellentRTT time.Duration
	GoodRTT      time.Duration
	PoorRTT      time.Duration
	// ProbeTimeout bounds a single probe; a timed-out probe classifies
	// as Critical.
	ProbeTimeout time.Duration
}

// DefaultConfig returns thresholds tuned for interactive video.
func DefaultConfig() Config {
	return Config{
		Interval:        2 * time.Second,
		SustainedWindow: 5 * time.Second,
		ExcellentRTT:    100 * time.Millisecond,
		GoodRTT:         250 * time.Millisecond,
		PoorRTT:         600 * time.Millisecond,
		ProbeTimeout:    1 * time.Second,
	}
}

// Callbacks are invoked from the monitor's sampling goroutine.
type Callbacks struct {
	// OnQualityChange fires whenever the computed tier differs from the
	// previous sample's tier.
	OnQualityChange func(tier QualityTier)
	// OnFallbackTriggered fires at most once per degraded episode, after
	// the tier has been Poor or worse for the sustained window.
	OnFallbackTriggered func()
}

// Monitor samples network quality until stopped.
type Monitor struct {
	cfg       Config
	prober    Prober
	callbacks Callbacks

	mu       sync.Mutex
	tier     QualityTier
	hasTier  bool
	degraded bool // inside a Poor-or-worse episode
	fired    bool // fallback already fired this episode
	badSince time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor creates a monitor. It does not sample until Start.
func NewMonitor(cfg Config, prober Prober, callbacks Callbacks) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.SustainedWindow <= 0 {
		cfg.SustainedWindow = DefaultConfig().SustainedWindow
	}
	return &Monitor{
		cfg:       cfg,
		prober:    prober,
		callbacks: callbacks,
	}
}

// Start launches the sampling loop.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		cancel()
		return
	}
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop(ctx)
}

// Stop halts sampling immediately and waits for the loop to exit.
// Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		m.wg.Wait()
	}
}

// Running reports whether the sampling loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// Tier returns the latest classified tier. Before the first sample it
// returns TierGood.
func (m *Monitor) Tier() QualityTier {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasTier {
		return TierGood
	}
	return m.tier
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample(ctx)
		}
	}
}

func (m *Monitor) sample(ctx context.Context) {
	probeCtx := ctx
	if m.cfg.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, m.cfg.ProbeTimeout)
		defer cancel()
	}

	var tier QualityTier
	s, err := m.prober.Probe(probeCtx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Printf("[NetMon] probe failed, classifying critical: %v", err)
		tier = TierCritical
	} else {
		tier = m.classify(s.RTT)
	}

	m.observe(tier, time.Now())
}

func (m *Monitor) classify(rtt time.Duration) QualityTier {
	switch {
	case rtt < m.cfg.ExcellentRTT:
		return TierExcellent
	case rtt < m.cfg.GoodRTT:
		return TierGood
	case rtt < m.cfg.PoorRTT:
		return TierPoor
	default:
		return TierCritical
	}
}

// observe updates tier state and fires callbacks. Split out from sample
// so tests can drive exact tier sequences.
func (m *Monitor) observe(tier QualityTier, now time.Time) {
	m.mu.Lock()

	changed := !m.hasTier || tier != m.tier
	m.tier = tier
	m.hasTier = true

	fireFallback := false
	if tier >= TierPoor {
		if !m.degraded {
			m.degraded = true
			m.badSince = now
		}
		if !m.fired && now.Sub(m.badSince) >= m.cfg.SustainedWindow {
			m.fired = true
			fireFallback = true
		}
	} else {
		// Episode over; re-arm the edge trigger.
		m.degraded = false
		m.fired = false
	}
	m.mu.Unlock()

	if changed && m.callbacks.OnQualityChange != nil {
		m.callbacks.OnQualityChange(tier)
	}
	if fireFallback {
		log.Printf("[NetMon] sustained %s conditions, triggering audio-only fallback", tier)
		if m.callbacks.OnFallbackTriggered != nil {
			m.callbacks.OnFallbackTriggered()
		}
	}
}
