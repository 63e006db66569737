// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Configuration constants for the completion API.
const (
	// DefaultTimeout bounds non-streaming calls such as the model list.
	DefaultTimeout = 30 * time.Second

	// MaxErrorBodySize caps how much of a non-2xx body is read.
	MaxErrorBodySize = 64 * 1024

	// DefaultUserAgent identifies the client to the API.
	DefaultUserAgent = "streamchat/1.0"

	completionsPath = "/chat/completions"
	modelsPath      = "/models"
)

var (
	// sharedHTTPClient serves bounded calls.
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
		Timeout: DefaultTimeout,
	}

	// sharedStreamingClient has no timeout; streams are bounded by context.
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
)

// =============================================================================
// ERRORS
// =============================================================================

// Sentinels matched by *APIError through errors.Is.
var (
	ErrAuthFailed  = errors.New("authentication failed")
	ErrRateLimited = errors.New("rate limited")
	ErrNotFound    = errors.New("endpoint or model not found")
	ErrServer      = errors.New("server error")
)

// APIError is a non-2xx response from the completion API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

// Is maps the status code onto the sentinel errors.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAuthFailed:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrServer:
		return e.Status >= 500
	}
	return false
}

// Temporary reports whether repeating the request could succeed.
// Only server-side failures qualify; 4xx responses are final.
func (e *APIError) Temporary() bool {
	return e.Status >= 500
}

// TransportError is a failure to reach the API or to read its response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err may be retried before any byte of a
// response body was consumed. Cancellation never is.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var tErr *TransportError
	return errors.As(err, &tErr)
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ChatMessage is one entry of the request's message list.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body posted to /chat/completions.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature *float64      `json:"temperature,omitempty"`
}

// Target says where a request goes and how it authenticates. It is taken
// per call so every request uses the settings snapshot it was built from.
type Target struct {
	Endpoint string
	APIKey   string
}

// NormalizeEndpoint trims whitespace and trailing slashes.
func NormalizeEndpoint(endpoint string) string {
	return strings.TrimRight(strings.TrimSpace(endpoint), "/")
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to an OpenAI-compatible completion API.
type Client struct {
	httpClient   *http.Client
	streamClient *http.Client
	logger       *log.Logger
	userAgent    string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient uses hc for both bounded and streaming calls. Tests pass
// an httptest server's client here.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
		c.streamClient = hc
	}
}

// WithLogger sets the request logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a client using the shared pooled transports.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:   sharedHTTPClient,
		streamClient: sharedStreamingClient,
		logger:       log.New(io.Discard),
		userAgent:    DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OpenStream posts req and returns the response body once a 2xx status
// arrives. The caller must close the body. Non-2xx statuses come back as
// *APIError and network failures as *TransportError.
func (c *Client) OpenStream(ctx context.Context, target Target, req ChatRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := NormalizeEndpoint(target.Endpoint) + completionsPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq, target.APIKey)
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	c.logRequest(httpReq, target.APIKey)
	start := time.Now()
	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransportError{Op: "request", Err: err}
	}
	c.logResponse(httpReq, resp, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		return nil, parseErrorResponse(resp.StatusCode, data)
	}
	return resp.Body, nil
}

// setHeaders sets the headers shared by every request.
func (c *Client) setHeaders(req *http.Request, apiKey string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(apiKey))
	req.Header.Set("User-Agent", c.userAgent)
}

// logRequest logs method and path only. Headers carry the key and bodies
// carry user text, so neither is logged.
func (c *Client) logRequest(req *http.Request, apiKey string) {
	c.logger.Debug("api request", "method", req.Method, "path", req.URL.Path, "key", KeyFingerprint(apiKey))
}

func (c *Client) logResponse(req *http.Request, resp *http.Response, d time.Duration) {
	c.logger.Info("api response", "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode, "duration", d.Round(time.Millisecond))
}

// KeyFingerprint returns a short SHA-256 fingerprint that identifies a key
// in logs without revealing any of it.
func KeyFingerprint(apiKey string) string {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(h[:4])
}

// =============================================================================
// ERROR BODY PARSING
// =============================================================================

// parseErrorResponse builds an *APIError from a non-2xx body. The message is
// the first of error.message, message, the re-encoded JSON document, or the
// raw text.
func parseErrorResponse(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	trimmed := bytes.TrimSpace(body)

	var doc any
	if err := json.Unmarshal(trimmed, &doc); err == nil {
		if obj, ok := doc.(map[string]any); ok {
			if e, ok := obj["error"].(map[string]any); ok {
				apiErr.Message, _ = e["message"].(string)
				switch code := e["code"].(type) {
				case string:
					apiErr.Code = code
				case float64:
					apiErr.Code = fmt.Sprintf("%g", code)
				}
			} else if s, ok := obj["error"].(string); ok {
				apiErr.Message = s
			}
			if apiErr.Message == "" {
				apiErr.Message, _ = obj["message"].(string)
			}
		}
		if apiErr.Message == "" {
			if compact, err := json.Marshal(doc); err == nil {
				apiErr.Message = string(compact)
			}
		}
	}

	if apiErr.Message == "" {
		apiErr.Message = string(trimmed)
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
