package protocol

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultFetchTimeout = 10 * time.Second
	maxRetryAfterDelay  = 30 * time.Second
	baseBackoffDelay    = 500 * time.Millisecond
)

// defaultRetryStatuses are response codes treated as transient.
var defaultRetryStatuses = map[int]bool{
	http.StatusTooManyRequests:    true,
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

// transientErrorMarkers identify low-level network failures worth retrying.
// Kept short and explicit so programming bugs are never retried.
var transientErrorMarkers = []string{
	"fetch", "network", "econnr", "etimedout", "enotfound", "socket",
}

// FetchRequest describes one retried HTTP call.
type FetchRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte

	// Timeout bounds each individual attempt. Zero means 10s.
	Timeout time.Duration

	// Retries is the number of additional attempts after the first.
	Retries int

	// RetryOn overrides the transient status set when non-nil.
	RetryOn map[int]bool
}

// Fetch performs an HTTP request with per-attempt timeout and retry over
// transient statuses and network errors.
//
// Transient statuses (default 429/502/503/504) are retried after honoring a
// Retry-After header (capped at 30s) or exponential backoff; the body of a
// retried response is drained first so the connection can be reused. When
// attempts are exhausted on a transient status the last response is returned,
// not an error. Non-transient errors are returned immediately.
func Fetch(ctx context.Context, client *http.Client, req FetchRequest) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	retryOn := req.RetryOn
	if retryOn == nil {
		retryOn = defaultRetryStatuses
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	attempts := req.Retries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := fetchOnce(ctx, client, method, req, timeout)
		if err != nil {
			if !isTransientError(err) {
				return nil, err
			}
			lastErr = err
			if attempt == attempts {
				return nil, lastErr
			}
			if werr := waitBackoff(ctx, backoffDelay(attempt)); werr != nil {
				return nil, lastErr
			}
			continue
		}

		if !retryOn[resp.StatusCode] || attempt == attempts {
			return resp, nil
		}

		// Retriable status with attempts left: free the connection, back off.
		delay := retryDelay(resp, attempt)
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20)) //nolint:errcheck
		resp.Body.Close()
		if werr := waitBackoff(ctx, delay); werr != nil {
			return nil, fmt.Errorf("fetch %s: %w", req.URL, werr)
		}
	}

	return nil, lastErr
}

func fetchOnce(ctx context.Context, client *http.Client, method string, req FetchRequest, timeout time.Duration) (*http.Response, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(actx, method, req.URL, body)
	if err != nil {
		cancel()
		return nil, err
	}
	for k, v := range req.Headers {
		hreq.Header.Set(k, v)
	}

	resp, err := client.Do(hreq)
	if err != nil {
		cancel()
		return nil, err
	}

	// Tie the attempt context to the body so the caller can stream it.
	resp.Body = &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// isTransientError reports whether err looks like a timeout or low-level
// network failure. A cancelled per-attempt deadline counts, as does any
// net-layer error; anything whose text names no network keyword does not,
// so programming bugs surface immediately instead of being retried.
func isTransientError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	text := strings.ToLower(err.Error())
	for _, marker := range transientErrorMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// retryDelay picks the wait before the next attempt: Retry-After in integer
// seconds when present (capped at 30s), else exponential backoff.
func retryDelay(resp *http.Response, attempt int) time.Duration {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(ra)); err == nil && secs > 0 {
			return min(time.Duration(secs)*time.Second, maxRetryAfterDelay)
		}
	}
	return backoffDelay(attempt)
}

func backoffDelay(attempt int) time.Duration {
	return baseBackoffDelay * time.Duration(1<<uint(attempt-1))
}

func waitBackoff(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
