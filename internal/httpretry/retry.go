// Package httpretry implements the bounded retry-with-backoff policy shared
// by the filings feed client and the broker client.
package httpretry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// statusErrorBodyLimit caps how much of a failing response body is carried
// in the error.
const statusErrorBodyLimit = 1024

// Policy bounds the retry loop.
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	Factor         float64
}

// DefaultPolicy retries twice with exponential backoff starting at 250 ms.
var DefaultPolicy = Policy{
	MaxRetries:     2,
	InitialBackoff: 250 * time.Millisecond,
	Factor:         2,
}

// Retryable reports whether an HTTP status code warrants a retry.
func Retryable(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, // 408
		http.StatusTooEarly,            // 425
		http.StatusTooManyRequests,     // 429
		http.StatusInternalServerError, // 500
		http.StatusBadGateway,          // 502
		http.StatusServiceUnavailable,  // 503
		http.StatusGatewayTimeout:      // 504
		return true
	}
	return false
}

// StatusError is a transport failure carrying the status line, URL, and a
// bounded prefix of the response body.
type StatusError struct {
	StatusCode int
	Status     string
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d %s from %s: %s", e.StatusCode, e.Status, e.URL, e.Body)
}

// NewStatusError builds a StatusError from a non-2xx response, consuming up
// to 1 KiB of its body.
func NewStatusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, statusErrorBodyLimit))
	return &StatusError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		URL:        resp.Request.URL.String(),
		Body:       string(body),
	}
}

// Do issues the request built by build, retrying on network errors and
// retryable status codes per the policy. The build function is called once
// per attempt so that request bodies can be re-created. On success the
// response is returned with its body unread; the caller owns closing it.
func Do(ctx context.Context, client *http.Client, pol Policy, log zerolog.Logger, build func() (*http.Request, error)) (*http.Response, error) {
	backoff := pol.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= pol.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Debug().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Retrying HTTP request")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff = time.Duration(float64(backoff) * pol.Factor)
		}

		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req = req.WithContext(ctx)

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if Retryable(resp.StatusCode) {
			lastErr = NewStatusError(resp)
			resp.Body.Close()
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", pol.MaxRetries+1, lastErr)
}
