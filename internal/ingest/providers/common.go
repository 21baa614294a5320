package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/i474232898/weather-ingest/internal/ingest"
)

const (
	// maxPayloadBytes bounds how much of a provider response is read.
	maxPayloadBytes = 16 << 20
	// maxErrorBodyBytes bounds the body kept on an HTTP error for diagnostics.
	maxErrorBodyBytes = 4 << 10
)

// HTTPClientConfig bundles the HTTP client and the resilience settings around it.
type HTTPClientConfig struct {
	Client *http.Client

	// Limiter paces outbound calls; nil means unlimited.
	Limiter *rate.Limiter
}

var (
	errNoHTTPClient = errors.New("http client not configured")
	errServerError  = errors.New("server error")
	errRateLimited  = errors.New("rate limited")
)

// response is what a single call yields once the body has been read.
type response struct {
	status int
	body   []byte
}

// newBreaker builds the circuit breaker guarding one provider.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
}

// doRequest executes exactly one HTTP request through the circuit breaker and
// classifies any failure into the ingest taxonomy. It never retries.
//
// Only transport failures, 429 and 5xx count against the breaker; other
// non-2xx statuses are returned as KindFetchHTTPError without tripping it.
func doRequest(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func(ctx context.Context) (*http.Request, error),
) (response, error) {
	if cfg.Client == nil {
		return response{}, ingest.NewFetchError(ingest.KindFetchTransport, errNoHTTPClient)
	}
	if err := ctx.Err(); err != nil {
		return response{}, classifyTransport(ctx, err)
	}

	if cfg.Limiter != nil {
		if err := cfg.Limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return response{}, classifyTransport(ctx, ctx.Err())
			}
			// Wait refuses up front when the delay would overrun the deadline.
			return response{}, ingest.NewFetchError(ingest.KindFetchTimeout, fmt.Errorf("rate limiter: %w", err))
		}
	}

	req, err := buildRequest(ctx)
	if err != nil {
		return response{}, ingest.NewFetchError(ingest.KindFetchTransport, fmt.Errorf("build request: %w", redactURL(err)))
	}

	var httpStatusErr *ingest.Error
	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := cfg.Client.Do(req)
		if execErr != nil {
			return nil, execErr
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
			httpStatusErr = ingest.NewHTTPError(resp.StatusCode, string(body))
			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				return nil, errRateLimited
			case resp.StatusCode >= 500:
				return nil, errServerError
			}
			return response{status: resp.StatusCode}, nil
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
		if readErr != nil {
			return nil, readErr
		}
		return response{status: resp.StatusCode, body: body}, nil
	})

	if httpStatusErr != nil {
		return response{}, httpStatusErr
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return response{}, ingest.NewFetchError(ingest.KindFetchTransport, fmt.Errorf("circuit breaker %s: %w", cb.Name(), err))
		}
		return response{}, classifyTransport(ctx, err)
	}

	resp, ok := result.(response)
	if !ok {
		return response{}, ingest.NewFetchError(ingest.KindFetchTransport, fmt.Errorf("unexpected result type from circuit breaker"))
	}
	return resp, nil
}

// classifyTransport separates timeouts from other network-level failures.
// The request URL carries the API key, so it is redacted first.
func classifyTransport(ctx context.Context, err error) *ingest.Error {
	err = redactURL(err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ingest.NewFetchError(ingest.KindFetchTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ingest.NewFetchError(ingest.KindFetchTimeout, err)
	}
	return ingest.NewFetchError(ingest.KindFetchTransport, err)
}

// redactURL rebuilds a *url.Error with the key query parameter masked.
// Other errors are returned unchanged.
func redactURL(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	u, perr := url.Parse(ue.URL)
	if perr != nil {
		return &url.Error{Op: ue.Op, URL: "[redacted]", Err: ue.Err}
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "xxxxx")
	}
	u.RawQuery = q.Encode()
	return &url.Error{Op: ue.Op, URL: u.Redacted(), Err: ue.Err}
}
