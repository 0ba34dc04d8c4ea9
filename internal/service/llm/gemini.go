package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Gemini calls the Gemini API through the genai SDK.
type Gemini struct {
	client *genai.Client
}

// NewGemini creates a Gemini client.
func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client}, nil
}

// Complete generates a single response.
func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	content := strings.TrimSpace(resp.Text())
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}
