package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultAnthropicURL is the messages endpoint.
	DefaultAnthropicURL = "https://api.anthropic.com/v1/messages"

	// DefaultModel is used when none is configured.
	DefaultModel = "claude-sonnet-4-5"

	anthropicAPIVersion = "2023-06-01"
	defaultMaxTokens    = 2048
)

// AnthropicClient calls the Anthropic messages API over HTTP.
type AnthropicClient struct {
	apiKey string
	model  string
	url    string
	client *http.Client
}

// NewAnthropicClient creates a client. Empty model or url fall back to the defaults.
func NewAnthropicClient(apiKey, model, url string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("inference API key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	if url == "" {
		url = DefaultAnthropicURL
	}
	return &AnthropicClient{
		apiKey: apiKey,
		model:  model,
		url:    url,
		client: &http.Client{Timeout: 120 * time.Second},
	}, nil
}

// Generate sends one message request and returns the concatenated text blocks.
func (a *AnthropicClient) Generate(ctx context.Context, prompt Prompt, params Params) (string, error) {
	maxTokens := params.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	body := anthropicRequest{
		Model:       a.model,
		MaxTokens:   maxTokens,
		System:      prompt.System,
		Temperature: params.Temperature,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt.User},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result anthropicResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var text string
	for _, block := range result.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

// StatusError is returned for non-200 API responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inference API error (status %d): %s", e.StatusCode, e.Body)
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
