package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

// AIClient talks to an OpenAI-compatible chat completion endpoint. An
// outbound limiter paces requests so a chatty user cannot exhaust the
// provider quota.
type AIClient struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	limiter *rate.Limiter
}

func NewAIClient(baseURL, apiKey, model string, maxRPM int) *AIClient {
	if maxRPM <= 0 {
		maxRPM = 60
	}
	return &AIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		http:    newProviderHTTPClient(),
		limiter: rate.NewLimiter(rate.Limit(maxRPM)/60, maxRPM),
	}
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
	Usage TokenUsage `json:"usage"`
}

// ChatCompletion sends the conversation and returns the assistant reply plus
// token usage for the activity log.
func (c *AIClient) ChatCompletion(ctx context.Context, messages []ChatMessage) (string, TokenUsage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", TokenUsage{}, err
	}
	body := chatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   2000,
	}
	var out chatCompletionResponse
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/chat/completions", headers, body, &out); err != nil {
		return "", TokenUsage{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", out.Usage, errors.New("chat completion: empty choices")
	}
	return out.Choices[0].Message.Content, out.Usage, nil
}

type imageGenerationRequest struct {
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type imageGenerationResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// GenerateImage requests one image for the prompt and returns its hosted URL.
func (c *AIClient) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	body := imageGenerationRequest{Prompt: prompt, N: 1, Size: "1024x1024"}
	var out imageGenerationResponse
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/images/generations", headers, body, &out); err != nil {
		return "", fmt.Errorf("image generation: %w", err)
	}
	if len(out.Data) == 0 || out.Data[0].URL == "" {
		return "", errors.New("image generation: empty response")
	}
	return out.Data[0].URL, nil
}
