// Package inference calls the hosted crop-disease classification workflow.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"agrinix/internal/infra"
)

// DefaultEndpoint is the Roboflow serverless workflow used when none is configured.
const DefaultEndpoint = "https://serverless.roboflow.com/infer/workflows/agrinix/agrinix-workflow-3"

// Kind classifies inference failures.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindTimeout       Kind = "timeout"
	KindUpstream      Kind = "upstream"
)

// Error is returned by Classify for every failure.
type Error struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("inference %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("inference %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether a later attempt may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout:
		return true
	case KindUpstream:
		if e.StatusCode >= 400 && e.StatusCode < 500 {
			return e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests
		}
		return true
	default:
		return false
	}
}

// ErrMissingAPIKey is wrapped by configuration errors.
var ErrMissingAPIKey = errors.New("roboflow api key is required")

// Options configures the inference client.
type Options struct {
	APIKey     string
	Endpoint   string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client posts image URLs to the workflow endpoint. It never retries.
type Client struct {
	apiKey     string
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	logger     *infra.Logger
}

type workflowRequest struct {
	APIKey string         `json:"api_key"`
	Inputs workflowInputs `json:"inputs"`
}

type workflowInputs struct {
	Image workflowImage `json:"image"`
}

type workflowImage struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// NewClient constructs a client with defaults applied.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		endpoint:   endpoint,
		timeout:    timeout,
		httpClient: httpClient,
		logger:     infra.LoggerOrDiscard(opts.Logger),
	}
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// Classify submits imageURL for classification and returns the raw payload.
// Interpretation of the payload is left to the prediction package.
func (c *Client) Classify(ctx context.Context, imageURL string) (json.RawMessage, error) {
	if !c.HasCredentials() {
		return nil, &Error{Kind: KindConfiguration, Err: ErrMissingAPIKey}
	}
	if strings.TrimSpace(imageURL) == "" {
		return nil, &Error{Kind: KindConfiguration, Err: errors.New("image url is required")}
	}

	payload, err := json.Marshal(workflowRequest{
		APIKey: c.apiKey,
		Inputs: workflowInputs{Image: workflowImage{Type: "url", Value: imageURL}},
	})
	if err != nil {
		return nil, &Error{Kind: KindConfiguration, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Kind: KindConfiguration, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	c.logger.Debug().
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("took", time.Since(start)).
		Msg("inference response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Kind: KindUpstream, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status: %s", snippet(body))}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &Error{Kind: KindUpstream, StatusCode: resp.StatusCode, Err: errors.New("empty response body")}
	}
	return json.RawMessage(body), nil
}

func (c *Client) transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: fmt.Errorf("no response within %s: %w", c.timeout, err)}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindUpstream, Err: err}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
