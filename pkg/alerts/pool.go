package alerts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerSettings configures the per-endpoint circuit breakers.
type BreakerSettings struct {
	// MaxFailures consecutive failures open the breaker. Zero disables tripping.
	MaxFailures uint32
	// OpenTimeout is how long an open breaker rejects calls before probing again.
	OpenTimeout time.Duration
}

// EndpointPool is the shared HTTP client for webhook channels plus one circuit
// breaker per endpoint URL. Endpoints sharing a host, such as Slack incoming
// webhooks, trip independently. Create one per process and inject it; tests
// build their own.
type EndpointPool struct {
	client   *http.Client
	settings BreakerSettings

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewEndpointPool creates a pool. A nil client gets a default one with a 10s timeout.
func NewEndpointPool(client *http.Client, settings BreakerSettings) *EndpointPool {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &EndpointPool{
		client:   client,
		settings: settings,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// breakerKey identifies an endpoint by scheme, host and path. Query and
// fragment are ignored.
func breakerKey(u *url.URL) string {
	return u.Scheme + "://" + u.Host + u.EscapedPath()
}

func (p *EndpointPool) breaker(u *url.URL) *gobreaker.CircuitBreaker {
	key := breakerKey(u)

	p.mu.Lock()
	defer p.mu.Unlock()

	if cb, ok := p.breakers[key]; ok {
		return cb
	}
	maxFailures := p.settings.MaxFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        u.Host,
		MaxRequests: 1,
		Timeout:     p.settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return maxFailures > 0 && counts.ConsecutiveFailures >= maxFailures
		},
	})
	p.breakers[key] = cb
	return cb
}

// State reports the breaker state for the endpoint.
func (p *EndpointPool) State(endpoint string) gobreaker.State {
	u, err := url.Parse(endpoint)
	if err != nil {
		return gobreaker.StateClosed
	}
	return p.breaker(u).State()
}

// PostJSON posts body to endpoint. Any non-2xx status is an error.
func (p *EndpointPool) PostJSON(ctx context.Context, endpoint string, body []byte, header http.Header) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}

	_, err = p.breaker(u).Execute(func() (interface{}, error) {
		return nil, p.post(ctx, endpoint, body, header)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", u.Host, err)
	}
	return nil
}

func (p *EndpointPool) post(ctx context.Context, endpoint string, body []byte, header http.Header) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
