package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultGroqBaseURL is the Groq OpenAI-compatible endpoint.
const DefaultGroqBaseURL = "https://api.groq.com/openai/v1"

// Groq calls the Groq chat completions API.
type Groq struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// GroqOption configures a Groq client.
type GroqOption func(*Groq)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) GroqOption {
	return func(g *Groq) {
		if url != "" {
			g.baseURL = url
		}
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) GroqOption {
	return func(g *Groq) {
		if c != nil {
			g.httpClient = c
		}
	}
}

// NewGroq creates a Groq client.
func NewGroq(apiKey string, opts ...GroqOption) (*Groq, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	g := &Groq{
		apiKey:     apiKey,
		baseURL:    DefaultGroqBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends a non-streaming chat completion.
func (g *Groq) Complete(ctx context.Context, req Request) (string, error) {
	body := chatRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})
	if req.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	raw, err := g.doRequest(ctx, &body)
	if err != nil {
		return "", err
	}

	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

func (g *Groq) doRequest(ctx context.Context, req *chatRequest) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(g.baseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Provider: "groq", StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var er errorResponse
		if json.Unmarshal(respBody, &er) == nil && er.Error.Message != "" {
			apiErr.Message = er.Error.Message
		}
		return nil, apiErr
	}
	return respBody, nil
}
