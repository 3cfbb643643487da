package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"agrinix/internal/domain"
)

const defaultOpenRouterModel = "openai/gpt-4o-mini"

// OpenRouterOptions configures the OpenAI-compatible chat completions provider.
type OpenRouterOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	Referer    string
	HTTPClient *http.Client
}

// OpenRouter asks an OpenAI-compatible chat model for disease information.
type OpenRouter struct {
	apiKey  string
	model   string
	baseURL string
	referer string
	client  *http.Client
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature,omitempty"`
	ResponseFormat *chatFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func NewOpenRouter(opts OpenRouterOptions) *OpenRouter {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultOpenRouterModel
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &OpenRouter{
		apiKey:  strings.TrimSpace(opts.APIKey),
		model:   model,
		baseURL: baseURL,
		referer: strings.TrimSpace(opts.Referer),
		client:  client,
	}
}

func (o *OpenRouter) Name() string { return SourceOpenRouter }

func (o *OpenRouter) Fetch(ctx context.Context, class string) (*domain.DiseaseInfo, error) {
	reply, err := o.complete(ctx, chatRequest{
		Temperature:    0.3,
		ResponseFormat: &chatFormat{Type: "json_object"},
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildDiseasePrompt(class)},
		},
	})
	if err != nil {
		return nil, err
	}
	return interpretReply(reply, SourceOpenRouter)
}

// Ask answers a free-form plant health question, optionally about class.
func (o *OpenRouter) Ask(ctx context.Context, question, class string) (string, error) {
	reply, err := o.complete(ctx, chatRequest{
		Temperature: 0.5,
		Messages: []chatMessage{
			{Role: "system", Content: askSystemPrompt},
			{Role: "user", Content: buildQuestionPrompt(question, class)},
		},
	})
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", ErrNoContent
	}
	return reply, nil
}

func (o *OpenRouter) complete(ctx context.Context, payload chatRequest) (string, error) {
	if o.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	payload.Model = o.model
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return "", fmt.Errorf("openrouter: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", &buf)
	if err != nil {
		return "", fmt.Errorf("openrouter: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	if o.referer != "" {
		httpReq.Header.Set("HTTP-Referer", o.referer)
	}
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openrouter: request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("openrouter: status %d", resp.StatusCode)
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("openrouter: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", ErrNoContent
	}
	return out.Choices[0].Message.Content, nil
}
