package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// APIError represents an error response from the FMP API.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
	RetryAfter time.Duration // Parsed Retry-After header, if any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fmp api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// IsRateLimited reports whether the provider refused the request for quota.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// limitReachedMarker appears in FMP's error body when the daily or
// per-minute quota is exhausted, sometimes with a 200 status.
const limitReachedMarker = "Limit Reach"

// doRequest performs a GET request against path.
func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	c.creds.Apply(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observer.ObserveRequest(path, 0, time.Since(start))
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	c.observer.ObserveRequest(path, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body, http.StatusText(resp.StatusCode)),
			Body:       body,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}

	// FMP reports quota and key problems as {"Error Message": "..."}.
	if msg, ok := bodyError(body); ok {
		status := http.StatusBadRequest
		if strings.Contains(msg, limitReachedMarker) {
			status = http.StatusTooManyRequests
		}
		return nil, &APIError{
			StatusCode: status,
			Message:    msg,
			Body:       body,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}

	return body, nil
}

// doWithRetry performs a request, waiting on the shared limiter before
// every attempt. Rate-limited responses pause all workers and retry the
// same request up to rateLimitRetries times; transient failures retry
// with exponential backoff up to maxRetries times.
func (c *Client) doWithRetry(ctx context.Context, path string, query url.Values) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff
	transient := 0
	limited := 0

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, err := c.doRequest(ctx, path, query)
		if err == nil {
			c.limiter.Success()
			return body, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.IsRateLimited() {
			limited++
			if limited > c.rateLimitRetries {
				return nil, &RateLimitExceededError{Attempts: limited, Cause: err}
			}
			wait := c.limiter.Backoff(apiErr.RetryAfter)
			c.observer.ObserveRateLimit(wait)
			c.logger.Warn("rate limited, pausing requests",
				"path", path,
				"wait", wait,
				"attempt", limited,
			)
			continue
		}

		if !isTransient(err) {
			return nil, err
		}

		transient++
		if transient > c.maxRetries {
			return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
		}

		// Add jitter: backoff * (0.5 to 1.5)
		jitter := backoff/2 + time.Duration(rand.Int64N(int64(backoff)+1))
		c.logger.Debug("retrying request",
			"attempt", transient,
			"backoff", jitter,
			"path", path,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(jitter):
		}

		backoff *= 2
	}
}

// isTransient reports whether err is worth retrying: 5xx responses,
// network errors and per-request timeouts.
func isTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF)
}

// bodyError extracts FMP's {"Error Message": "..."} envelope.
func bodyError(body []byte) (string, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' || !bytes.Contains(trimmed, []byte(`"Error Message"`)) {
		return "", false
	}

	var env struct {
		Message string `json:"Error Message"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil || env.Message == "" {
		return "", false
	}
	return env.Message, true
}

func errorMessage(body []byte, fallback string) string {
	if msg, ok := bodyError(body); ok {
		return msg
	}
	return fallback
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
