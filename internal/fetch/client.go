package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/user/collector/internal/apperrors"
	"golang.org/x/time/rate"
)

// maxBodyBytes caps how much of a response becomes a column value
const maxBodyBytes = 1 << 20

// Fetcher reads the raw text response of an endpoint
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string, timeout time.Duration) (string, error)
}

// Options configures a Client
type Options struct {
	// RatePerSecond caps outbound requests across all endpoints; 0 disables it.
	RatePerSecond float64
	// BreakerFailures opens an endpoint's breaker after this many consecutive failures; 0 disables breakers.
	BreakerFailures uint32
	// BreakerOpenTimeout is how long an open breaker fails fast before a probe is allowed.
	BreakerOpenTimeout time.Duration
}

// Client fetches endpoints over HTTP. Each endpoint gets its own circuit
// breaker so one dead device does not slow every pass by a full timeout.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	opts    Options
	logger  *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[string]
}

// NewClient creates a new fetch client
func NewClient(opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		http:     &http.Client{},
		opts:     opts,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker[string]),
	}

	if opts.RatePerSecond > 0 {
		burst := int(opts.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}

	return c
}

// Fetch performs a GET against endpoint and returns the response body.
// Every failure wraps apperrors.ErrSourceFetch.
func (c *Client) Fetch(ctx context.Context, endpoint string, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: %s: acquire rate limit token: %w", apperrors.ErrSourceFetch, endpoint, err)
		}
	}

	breaker := c.breaker(endpoint)
	if breaker == nil {
		return c.get(ctx, endpoint)
	}

	body, err := breaker.Execute(func() (string, error) {
		return c.get(ctx, endpoint)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %s: %w", apperrors.ErrSourceFetch, endpoint, err)
	}
	return body, err
}

func (c *Client) get(ctx context.Context, endpoint string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", apperrors.ErrSourceFetch, endpoint, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", apperrors.ErrSourceFetch, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return "", fmt.Errorf("%w: %s: unexpected status %s", apperrors.ErrSourceFetch, endpoint, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: %s: read body: %w", apperrors.ErrSourceFetch, endpoint, err)
	}

	return string(body), nil
}

func (c *Client) breaker(endpoint string) *gobreaker.CircuitBreaker[string] {
	if c.opts.BreakerFailures == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[endpoint]; ok {
		return cb
	}

	threshold := c.opts.BreakerFailures
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        endpoint,
		MaxRequests: 1,
		Timeout:     c.opts.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("endpoint breaker changed state", "endpoint", name, "from", from.String(), "to", to.String())
		},
	})
	c.breakers[endpoint] = cb

	return cb
}
