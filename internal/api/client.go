package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/DarriEy/delta-agent/pkg/logger"
)

const (
	defaultMaxRetries = 2
	defaultRetryBase  = 500 * time.Millisecond
)

// APIError is the normalized failure shape for non-2xx backend responses.
// Data holds the parsed JSON error body, or {"message": rawText} when the
// body is not JSON.
type APIError struct {
	Status    int
	Data      map[string]interface{}
	ErrorCode string
}

func (e *APIError) Error() string {
	if e.Data != nil {
		if m, ok := e.Data["message"].(string); ok && m != "" {
			return m
		}
		if d, ok := e.Data["detail"].(string); ok && d != "" {
			return d
		}
	}
	return fmt.Sprintf("API Error %d", e.Status)
}

// Client is the single point of outbound communication with the Delta backend.
// Requests carry JSON bodies, responses unwrap an optional "data" envelope, and
// transient failures (network errors, 429, 5xx) are retried with exponential
// backoff. A bearer token is attached when the token source yields one.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	// Token returns the bearer credential to attach, or "" for none.
	Token func() string
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int
	// RetryBase is the initial backoff delay; it doubles on each retry.
	RetryBase time.Duration
}

// NewClient constructs a Client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		MaxRetries: defaultMaxRetries,
		RetryBase:  defaultRetryBase,
	}
}

func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPatch, path, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPut, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(unwrapEnvelope(raw), out)
}

// send issues the request, retrying on network errors and retryable statuses.
// The returned response body is open; callers own closing it.
func (c *Client) send(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, err
		}
	}

	retries := c.maxRetries()
	backoff := c.retryBase()
	for {
		resp, err := c.attempt(ctx, method, path, payload)
		if err != nil {
			if retries == 0 || ctx.Err() != nil {
				return nil, err
			}
			logger.Warnf("retrying %s %s after network error: %v (retries left: %d)", method, path, err, retries)
		} else if retryableStatus(resp.StatusCode) && retries > 0 {
			logger.Warnf("retrying %s %s after status %d (retries left: %d)", method, path, resp.StatusCode, retries)
			drain(resp)
		} else {
			return resp, nil
		}
		if err := sleepCtx(ctx, backoff); err != nil {
			return nil, err
		}
		retries--
		backoff *= 2
	}
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != nil {
		if tok := c.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	return c.httpClient().Do(req)
}

// retryableStatus reports whether the response status warrants another attempt.
// 4xx other than 429 fail immediately.
func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// unwrapEnvelope returns the "data" field when the body is a JSON object
// carrying one, otherwise the body unchanged.
func unwrapEnvelope(raw []byte) json.RawMessage {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if data, ok := envelope["data"]; ok {
			return data
		}
	}
	return raw
}

func newAPIError(resp *http.Response) *APIError {
	raw, _ := io.ReadAll(resp.Body)
	data := map[string]interface{}{}
	if err := json.Unmarshal(raw, &data); err != nil {
		data = map[string]interface{}{"message": string(raw)}
	}
	code, _ := data["error_code"].(string)
	return &APIError{Status: resp.StatusCode, Data: data, ErrorCode: code}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) maxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return 0
}

func (c *Client) retryBase() time.Duration {
	if c.RetryBase > 0 {
		return c.RetryBase
	}
	return defaultRetryBase
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
