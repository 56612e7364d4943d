package netmon

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Sample is one network measurement.
type Sample struct {
	// RTT is the round-trip latency proxy for this sample.
	RTT time.Duration
}

// Prober supplies the bandwidth/latency proxy the monitor classifies.
type Prober interface {
	Probe(ctx context.Context) (Sample, error)
}

// ProberFunc adapts a function to the Prober interface. Transports that
// already collect connection stats (the voice room's peer connection)
// can feed them in this way instead of paying for an extra request.
type ProberFunc func(ctx context.Context) (Sample, error)

// Probe implements Prober.
func (f ProberFunc) Probe(ctx context.Context) (Sample, error) {
	return f(ctx)
}

// HTTPProber measures RTT with a HEAD request against a probe URL.
type HTTPProber struct {
	url    string
	client *http.Client
}

// NewHTTPProber creates a prober against url. A nil client uses
// http.DefaultClient.
func NewHTTPProber(url string, client *http.Client) *HTTPProber {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProber{url: url, client: client}
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context) (Sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return Sample{}, fmt.Errorf("failed to build probe request: %w", err)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return Sample{}, fmt.Errorf("probe request failed: %w", err)
	}
	resp.Body.Close()

	return Sample{RTT: time.Since(start)}, nil
}

var _ Prober = (*HTTPProber)(nil)
