package inference

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"agrinix/internal/domain"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestClassifySendsWorkflowPayload(t *testing.T) {
	var captured workflowRequest
	client := NewClient(Options{
		APIKey:   "secret",
		Endpoint: "https://infer.example/workflow",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if r.Method != http.MethodPost {
				t.Fatalf("method = %s", r.Method)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Fatalf("content-type = %q", ct)
			}
			if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(`{"outputs":[]}`)),
				Header:     make(http.Header),
			}, nil
		})},
	})

	raw, err := client.Classify(context.Background(), "https://cdn.example/leaf.jpg")
	if err != nil {
		t.Fatalf("Classify error: %v", err)
	}
	if string(raw) != `{"outputs":[]}` {
		t.Fatalf("unexpected payload %s", raw)
	}
	if captured.APIKey != "secret" || captured.Inputs.Image.Type != "url" || captured.Inputs.Image.Value != "https://cdn.example/leaf.jpg" {
		t.Fatalf("unexpected request %+v", captured)
	}
}

func TestClassifyMissingAPIKey(t *testing.T) {
	client := NewClient(Options{})
	_, err := client.Classify(context.Background(), "https://cdn.example/leaf.jpg")
	var ierr *Error
	if !errors.As(err, &ierr) || ierr.Kind != KindConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if domain.IsRetryable(err) {
		t.Fatal("configuration errors must not be retryable")
	}
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey in chain, got %v", err)
	}
}

func TestClassifyTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	client := NewClient(Options{APIKey: "k", Endpoint: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := client.Classify(context.Background(), "https://cdn.example/leaf.jpg")
	var ierr *Error
	if !errors.As(err, &ierr) || ierr.Kind != KindTimeout {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if !domain.IsRetryable(err) {
		t.Fatal("timeouts must be retryable")
	}
}

func TestClassifyStatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
	}{
		{name: "server error", status: http.StatusBadGateway, body: "bad gateway", retryable: true},
		{name: "rate limited", status: http.StatusTooManyRequests, body: "slow down", retryable: true},
		{name: "request timeout", status: http.StatusRequestTimeout, body: "", retryable: true},
		{name: "unauthorized", status: http.StatusUnauthorized, body: "bad key", retryable: false},
		{name: "bad request", status: http.StatusBadRequest, body: "bad image", retryable: false},
		{name: "empty ok body", status: http.StatusOK, body: "  ", retryable: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			client := NewClient(Options{APIKey: "k", Endpoint: srv.URL})
			_, err := client.Classify(context.Background(), "https://cdn.example/leaf.jpg")
			var ierr *Error
			if !errors.As(err, &ierr) || ierr.Kind != KindUpstream {
				t.Fatalf("expected upstream error, got %v", err)
			}
			if ierr.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", ierr.StatusCode, tc.status)
			}
			if got := domain.IsRetryable(err); got != tc.retryable {
				t.Fatalf("retryable = %v, want %v", got, tc.retryable)
			}
		})
	}
}

func TestClassifyConnectionRefusedIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	client := NewClient(Options{APIKey: "k", Endpoint: endpoint})
	_, err := client.Classify(context.Background(), "https://cdn.example/leaf.jpg")
	if !domain.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}
