// Package llm wraps an OpenAI-compatible chat completions endpoint behind
// two small interfaces: Generator for persona-voiced text and Completer for
// raw structured completions (used by the web search extractor).
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ErrEmptyResponse is returned when the endpoint answers without choices or
// with blank content.
var ErrEmptyResponse = errors.New("llm: empty response")

// Prompt is one generation request. Task says what to write; Facts are the
// context lines the model may draw on (memories, event details, times).
type Prompt struct {
	Task  string
	Facts []string
}

// Render flattens the prompt into the user message.
func (p Prompt) Render() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(p.Task))
	if len(p.Facts) > 0 {
		b.WriteString("\n\nContext:")
		for _, f := range p.Facts {
			if f = strings.TrimSpace(f); f != "" {
				b.WriteString("\n- ")
				b.WriteString(f)
			}
		}
	}
	return b.String()
}

// Generator produces persona-voiced text.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// Completer runs a single system+user completion. When jsonMode is set the
// model is asked for a JSON object.
type Completer interface {
	Complete(ctx context.Context, system, user string, jsonMode bool) (string, error)
}

// Config holds the client configuration.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
}

// Client is a Generator and Completer backed by go-openai.
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	system      string
}

// New builds a Client that speaks with the given persona.
func New(cfg Config, persona Persona) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Client{
		client:      openai.NewClientWithConfig(oc),
		model:       model,
		temperature: cfg.Temperature,
		system:      persona.SystemPrompt(),
	}
}

// Generate implements Generator.
func (c *Client) Generate(ctx context.Context, p Prompt) (string, error) {
	return c.Complete(ctx, c.system, p.Render(), false)
}

// Complete implements Completer.
func (c *Client) Complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}

// StatusCode extracts the HTTP status from a go-openai error, or 0.
func StatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
