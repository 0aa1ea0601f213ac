// Package httpclient provides the JSON HTTP client used to talk to the control plane.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 10 * time.Second

	// DefaultMaxElapsedTime bounds the total time spent retrying a single call
	DefaultMaxElapsedTime = 30 * time.Second

	// MaxResponseSize is the maximum allowed response size (100MB)
	MaxResponseSize = 100 * 1024 * 1024

	// UserAgent is the user agent string for HTTP requests
	UserAgent = "workload-launcher/1.0"

	// RequestIDHeader carries a per-call id so control plane logs can be correlated
	RequestIDHeader = "X-Request-ID"
)

// Client is an interface for JSON HTTP operations
type Client interface {
	// Get performs an HTTP GET request and returns the response body
	Get(ctx context.Context, url string) ([]byte, error)

	// Do sends body (if non-nil) as JSON using method and decodes the response into out (if non-nil)
	Do(ctx context.Context, method, url string, body, out any) error
}

// Option configures a DefaultClient
type Option func(*DefaultClient)

// WithHTTPClient replaces the underlying *http.Client, e.g. one produced by an oauth2 token source
func WithHTTPClient(hc *http.Client) Option {
	return func(c *DefaultClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithMaxElapsedTime sets the retry budget for a single call. Zero disables retries.
func WithMaxElapsedTime(d time.Duration) Option {
	return func(c *DefaultClient) {
		c.maxElapsedTime = d
	}
}

// DefaultClient is the default HTTP client implementation
type DefaultClient struct {
	client         *http.Client
	maxElapsedTime time.Duration
}

// NewDefaultClient creates a new default HTTP client with the specified timeout
// If timeout is 0, uses DefaultTimeout
func NewDefaultClient(timeout time.Duration, opts ...Option) *DefaultClient {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	c := &DefaultClient{
		client:         &http.Client{},
		maxElapsedTime: DefaultMaxElapsedTime,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client.Timeout == 0 {
		c.client.Timeout = timeout
	}
	return c
}

// Get performs an HTTP GET request
func (c *DefaultClient) Get(ctx context.Context, url string) ([]byte, error) {
	return c.execute(ctx, http.MethodGet, url, nil)
}

// Do performs a JSON request, retrying transient failures with exponential backoff
func (c *DefaultClient) Do(ctx context.Context, method, url string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	data, err := c.execute(ctx, method, url, payload)
	if err != nil {
		return err
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}

// permanentError marks failures that retrying cannot fix
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

func (c *DefaultClient) execute(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	requestID := uuid.NewString()

	if c.maxElapsedTime <= 0 {
		data, err := c.doOnce(ctx, method, url, payload, requestID)
		return data, unwrapPermanent(err)
	}

	operation := func() ([]byte, error) {
		data, err := c.doOnce(ctx, method, url, payload, requestID)
		if err == nil {
			return data, nil
		}
		if !isRetryable(err) {
			return nil, backoff.Permanent(unwrapPermanent(err))
		}
		slog.Debug("Retrying control plane request",
			"method", method,
			"url", url,
			"request_id", requestID,
			"error", err)
		return nil, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(c.maxElapsedTime),
	)
}

func isRetryable(err error) bool {
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRetryable()
	}
	return true
}

func unwrapPermanent(err error) error {
	var perm *permanentError
	if errors.As(err, &perm) {
		return perm.err
	}
	return err
}

func (c *DefaultClient) doOnce(ctx context.Context, method, url string, payload []byte, requestID string) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, &permanentError{err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, NewHTTPError(resp.StatusCode, url, resp.Status)
	}

	// Check Content-Length header if available
	if resp.ContentLength > MaxResponseSize {
		return nil, &permanentError{err: fmt.Errorf("response size %d bytes exceeds maximum allowed size of %d bytes (%.2f MB)",
			resp.ContentLength, MaxResponseSize, float64(MaxResponseSize)/(1024*1024))}
	}

	limitedReader := io.LimitReader(resp.Body, MaxResponseSize+1) // +1 to detect if limit exceeded
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if int64(len(body)) > MaxResponseSize {
		return nil, &permanentError{err: fmt.Errorf("response size exceeds maximum allowed size of %d bytes (%.2f MB)",
			MaxResponseSize, float64(MaxResponseSize)/(1024*1024))}
	}

	return body, nil
}
