package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnexpectedStatus is returned when an upstream answers outside the 2xx range.
var ErrUnexpectedStatus = errors.New("resilience: unexpected upstream status")

// HTTPClient wraps an http.Client with retry, timeout and circuit-breaker
// logic for idempotent GET requests against an upstream.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	// Timeout bounds a single attempt. Zero leaves the transport default in charge.
	Timeout time.Duration
	Target  string
	Logger  *zerolog.Logger
}

// Get issues a GET to url and returns the response when the upstream answered
// with a 2xx status. Any other outcome is reported to the breaker as a failure
// and retried up to MaxAttempts. ErrOpenCircuit is returned without a network
// call when the breaker refuses the request.
func (cl HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	maxAttempts := cl.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	breaker := cl.Breaker
	if breaker == nil {
		// cannot reach its request minimum within one call
		breaker = NewBreaker(maxAttempts+1, 1, time.Second)
	}
	baseBackoff := cl.BaseBackoff
	if baseBackoff <= 0 {
		baseBackoff = 100 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if !breaker.Allow(ctx) {
			lastErr = ErrOpenCircuit
			break
		}
		resp, err := cl.doOnce(ctx, url)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			breaker.Report(ctx, true)
			return resp, nil
		}
		if err == nil {
			_ = resp.Body.Close()
			err = fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
		}
		lastErr = err
		breaker.Report(ctx, false)
		cl.logger().Debug().Err(err).Str("target", cl.Target).Int("attempt", attempt).Msg("upstream_attempt_failed")
		if attempt == maxAttempts {
			break
		}
		timer := time.NewTimer(Backoff(baseBackoff, attempt, cl.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

// doOnce performs one attempt. The per-attempt context is released when the
// body is closed so callers can stream the payload.
func (cl HTTPClient) doOnce(ctx context.Context, url string) (*http.Response, error) {
	var cancel context.CancelFunc = func() {}
	if cl.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, cl.Timeout)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := cl.Client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (cl HTTPClient) logger() *zerolog.Logger {
	if cl.Logger == nil {
		return &breakerNopLogger
	}
	return cl.Logger
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
