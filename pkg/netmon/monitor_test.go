package netmon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyThresholds(t *testing.T) {
	m := NewMonitor(DefaultConfig(), nil, Callbacks{})

	assert.Equal(t, TierExcellent, m.classify(50*time.Millisecond))
	assert.Equal(t, TierGood, m.classify(150*time.Millisecond))
	assert.Equal(t, TierPoor, m.classify(400*time.Millisecond))
	assert.Equal(t, TierCritical, m.classify(900*time.Millisecond))
}

// Property: for the sample sequence Good, Poor, Poor, Poor, Good, Poor
// the fallback fires exactly once, on entry into the sustained-Poor
// episode, not on every Poor sample.
func TestFallbackEdgeTriggered(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SustainedWindow = 20 * time.Millisecond

	var fallbacks atomic.Int32
	m := NewMonitor(cfg, nil, Callbacks{
		OnFallbackTriggered: func() { fallbacks.Add(1) },
	})

	base := time.Now()
	step := 15 * time.Millisecond
	seq := []QualityTier{TierGood, TierPoor, TierPoor, TierPoor, TierGood, TierPoor}
	for i, tier := range seq {
		m.observe(tier, base.Add(time.Duration(i)*step))
	}

	assert.Equal(t, int32(1), fallbacks.Load())
}

func TestFallbackRequiresSustainedWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SustainedWindow = time.Minute

	var fallbacks atomic.Int32
	m := NewMonitor(cfg, nil, Callbacks{
		OnFallbackTriggered: func() { fallbacks.Add(1) },
	})

	base := time.Now()
	for i := 0; i < 10; i++ {
		m.observe(TierPoor, base.Add(time.Duration(i)*time.Second))
	}

	assert.Equal(t, int32(0), fallbacks.Load(), "fired before the window elapsed")
}

func TestFallbackRearmsAfterRecovery(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SustainedWindow = 10 * time.Millisecond

	var fallbacks atomic.Int32
	m := NewMonitor(cfg, nil, Callbacks{
		OnFallbackTriggered: func() { fallbacks.Add(1) },
	})

	base := time.Now()
	m.observe(TierPoor, base)
	m.observe(TierCritical, base.Add(15*time.Millisecond)) // fires
	m.observe(TierGood, base.Add(30*time.Millisecond))     // episode over
	m.observe(TierPoor, base.Add(45*time.Millisecond))
	m.observe(TierPoor, base.Add(60*time.Millisecond)) // fires again

	assert.Equal(t, int32(2), fallbacks.Load())
}

func TestQualityChangeFiresOnTransitionsOnly(t *testing.T) {
	var changes []QualityTier
	m := NewMonitor(DefaultConfig(), nil, Callbacks{
		OnQualityChange: func(tier QualityTier) { changes = append(changes, tier) },
	})

	base := time.Now()
	for i, tier := range []QualityTier{TierGood, TierGood, TierPoor, TierPoor, TierGood} {
		m.observe(tier, base.Add(time.Duration(i)*time.Second))
	}

	assert.Equal(t, []QualityTier{TierGood, TierPoor, TierGood}, changes)
}

func TestMonitorStopHaltsSampling(t *testing.T) {
	var probes atomic.Int32
	prober := ProberFunc(func(ctx context.Context) (Sample, error) {
		probes.Add(1)
		return Sample{RTT: 10 * time.Millisecond}, nil
	})

	cfg := DefaultConfig()
	cfg.Interval = 5 * time.Millisecond
	m := NewMonitor(cfg, prober, Callbacks{})

	m.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	m.Stop()

	after := probes.Load()
	require.Greater(t, after, int32(0), "no probes before stop")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, probes.Load(), "probe ran after Stop")

	// Stop again is a no-op.
	m.Stop()
}

func TestHTTPProberMeasuresRTT(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTPProber(srv.URL, srv.Client())
	s, err := p.Probe(context.Background())
	require.NoError(t, err)
	assert.Greater(t, s.RTT, time.Duration(0))
}

func TestHTTPProberFailure(t *testing.T) {
	p := NewHTTPProber("http://127.0.0.1:1", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := p.Probe(ctx)
	assert.Error(t, err)
}
