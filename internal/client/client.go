package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/kjstillabower/solar-telemetry-monitor/internal/circuitbreaker"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/observability"
	"github.com/kjstillabower/solar-telemetry-monitor/internal/reqctx"
)

var (
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrNotFound        = errors.New("not found")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
)

// maxBodyBytes bounds upstream response bodies.
const maxBodyBytes = 8 << 20

// RetryPolicy configures retries with exponential backoff and jitter.
// Attempts counts the first call; values below 1 mean a single attempt.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// NoRetry makes exactly one attempt.
var NoRetry = RetryPolicy{Attempts: 1}

// requester performs JSON GETs against one upstream, recording per-upstream metrics.
type requester struct {
	upstream string
	client   *http.Client
	timeout  time.Duration
	retry    RetryPolicy
	breaker  *circuitbreaker.CircuitBreaker
}

func newRequester(upstream string, timeout time.Duration, retry RetryPolicy) *requester {
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}
	return &requester{
		upstream: upstream,
		timeout:  timeout,
		retry:    retry,
		client:   &http.Client{Timeout: timeout},
	}
}

// outbound describes one upstream call; body and header are optional.
type outbound struct {
	method string
	rawURL string
	params url.Values
	body   []byte
	header http.Header
}

// getJSON fetches rawURL with params and decodes the body into out, retrying transient failures.
func (r *requester) getJSON(ctx context.Context, rawURL string, params url.Values, out interface{}) error {
	return r.do(ctx, outbound{method: http.MethodGet, rawURL: rawURL, params: params}, out)
}

// postJSON sends payload as a JSON body. out may be nil when the response body is not needed.
func (r *requester) postJSON(ctx context.Context, rawURL string, header http.Header, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return r.do(ctx, outbound{method: http.MethodPost, rawURL: rawURL, body: body, header: header}, out)
}

func (r *requester) do(ctx context.Context, o outbound, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < r.retry.Attempts; attempt++ {
		if attempt > 0 {
			observability.UpstreamRetriesTotal.WithLabelValues(r.upstream).Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff(attempt)):
			}
		}

		err := r.call(ctx, o, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) || ctx.Err() != nil {
			return err
		}
	}
	if r.retry.Attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("exhausted retries: %w", lastErr)
}

func (r *requester) call(ctx context.Context, o outbound, out interface{}) error {
	if r.breaker == nil {
		return r.callOnce(ctx, o, out)
	}
	return r.breaker.Call(ctx, func() error {
		return r.callOnce(ctx, o, out)
	})
}

func (r *requester) callOnce(ctx context.Context, o outbound, out interface{}) error {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := buildRequest(reqCtx, o)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(r.upstream, "error").Inc()
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(r.upstream, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(r.upstream, "error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("request timeout: %w", err)
		}
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(r.upstream, status).Inc()
	observability.UpstreamDuration.WithLabelValues(r.upstream, status).Observe(time.Since(start).Seconds())

	if err := handleErrorResponse(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func (r *requester) backoff(attempt int) time.Duration {
	delay := float64(r.retry.BaseDelay) * math.Pow(2, float64(attempt-1))
	if r.retry.MaxDelay > 0 && delay > float64(r.retry.MaxDelay) {
		delay = float64(r.retry.MaxDelay)
	}
	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func buildRequest(ctx context.Context, o outbound) (*http.Request, error) {
	u, err := url.Parse(o.rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if len(o.params) > 0 {
		q := u.Query()
		for k, vs := range o.params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if o.body != nil {
		body = bytes.NewReader(o.body)
	}
	req, err := http.NewRequestWithContext(ctx, o.method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if o.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range o.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if corrID := reqctx.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

// StatusError reports a non-success HTTP status from an upstream. It unwraps to one of
// the package sentinels.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: HTTP %d", e.Err, e.Code)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

func handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &StatusError{Code: resp.StatusCode, Err: ErrInvalidAPIKey}
	case http.StatusNotFound:
		return &StatusError{Code: resp.StatusCode, Err: ErrNotFound}
	case http.StatusTooManyRequests:
		return &StatusError{Code: resp.StatusCode, Err: ErrRateLimited}
	}
	return &StatusError{Code: resp.StatusCode, Err: ErrUpstreamFailure}
}

func isRetryable(err error) bool {
	if err == nil || errors.Is(err, circuitbreaker.ErrOpen) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusTooManyRequests || statusErr.Code >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == http.StatusTooManyRequests {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
