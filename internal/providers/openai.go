package providers

import (
	"context"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

type chat struct {
	name   string
	model  string
	client *openai.Client
}

// NewChat creates an OpenAI-compatible chat completion backend. Groq, Gemini,
// and OpenAI all expose this protocol; only the base URL and model differ.
func NewChat(name string, b BackendConfig, timeout time.Duration) (Completer, error) {
	if !b.Credentialed() {
		return nil, ErrMissingCredentials
	}

	cfg := openai.DefaultConfig(b.APIKey)
	if b.BaseURL != "" {
		cfg.BaseURL = b.BaseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &chat{
		name:   name,
		model:  b.Model,
		client: openai.NewClientWithConfig(cfg),
	}, nil
}

func (c *chat) Name() string {
	return c.name
}

func (c *chat) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	return resp.Choices[0].Message.Content, nil
}
