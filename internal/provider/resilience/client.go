package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

var (
	// ErrCircuitOpen is returned without contacting the provider while its circuit is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrRetriesExhausted is returned when every attempt failed at the transport level.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// Doer is the subset of *http.Client that provider clients depend on.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for a provider HTTP client.
type ClientConfig struct {
	// Name identifies the provider in logs, the breaker and the registry.
	Name string

	// Timeout bounds a single attempt (default 10s).
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt (default 2).
	MaxRetries uint64

	// InitialBackoff is the first retry delay (default 200ms).
	InitialBackoff time.Duration

	// MaxBackoff caps the retry delay (default 3s).
	MaxBackoff time.Duration

	// Breaker configures the circuit breaker.
	Breaker BreakerConfig

	// Registry receives health updates when set.
	Registry *Registry

	// Transport overrides the underlying round tripper (tests).
	Transport http.RoundTripper

	Logger zerolog.Logger
}

// DefaultClientConfig returns defaults for a named provider.
func DefaultClientConfig(name string) ClientConfig {
	return ClientConfig{
		Name:           name,
		Timeout:        10 * time.Second,
		MaxRetries:     2,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     3 * time.Second,
		Breaker:        DefaultBreakerConfig(),
		Logger:         zerolog.Nop(),
	}
}

// Client executes provider requests through a circuit breaker with retries.
// 5xx responses and transport errors count as failures and are retried;
// 429 is retried without counting against the breaker; other 4xx are returned as-is.
type Client struct {
	name     string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[*http.Response]
	registry *Registry
	logger   zerolog.Logger

	maxRetries     uint64
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewClient creates a provider client and registers it when a registry is configured.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 3 * time.Second
	}

	logger := cfg.Logger.With().Str("component", "resilience").Str("provider", cfg.Name).Logger()

	c := &Client{
		name:           cfg.Name,
		http:           &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		breaker:        newBreaker[*http.Response](cfg.Name, cfg.Breaker, logger),
		registry:       cfg.Registry,
		logger:         logger,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
	}

	if c.registry != nil {
		c.registry.Register(c)
	}
	return c
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.name
}

// Do executes the request. The request body must be replayable (set GetBody)
// when retries are enabled; http.NewRequest does this for in-memory readers.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialBackoff
	bo.MaxInterval = c.maxBackoff
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx)

	var last *http.Response

	attempt := func() error {
		if last != nil {
			drain(last)
			last = nil
		}

		attemptReq, err := cloneRequest(ctx, req)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, err := c.http.Do(attemptReq)
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= http.StatusInternalServerError {
				return r, &StatusError{StatusCode: r.StatusCode}
			}
			return r, nil
		})

		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(ErrCircuitOpen)
		case err != nil:
			last = resp
			return err
		case resp.StatusCode == http.StatusTooManyRequests:
			last = resp
			return &StatusError{StatusCode: resp.StatusCode}
		}

		last = resp
		return nil
	}

	err := backoff.Retry(attempt, policy)
	if err != nil {
		c.recordFailure(err)
		if last != nil {
			// Hand the final 5xx/429 response to the caller for status inspection.
			return last, nil
		}
		if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRetriesExhausted, err)
	}

	c.recordSuccess()
	return last, nil
}

// State returns the breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Counts returns the breaker counters for the current generation.
func (c *Client) Counts() gobreaker.Counts {
	return c.breaker.Counts()
}

func (c *Client) recordSuccess() {
	if c.registry != nil {
		c.registry.RecordSuccess(c.name)
	}
}

func (c *Client) recordFailure(err error) {
	c.logger.Debug().Err(err).Msg("provider request failed")
	if c.registry != nil {
		c.registry.RecordFailure(c.name, err)
	}
}

// StatusError reports a retryable HTTP status from the provider.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider responded %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func cloneRequest(ctx context.Context, req *http.Request) (*http.Request, error) {
	clone := req.Clone(ctx)
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body is not replayable")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewinding request body: %w", err)
	}
	clone.Body = body
	return clone, nil
}

func drain(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}

var _ Doer = (*Client)(nil)
