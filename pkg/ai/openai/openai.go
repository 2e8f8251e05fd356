// Package openai generates answers through the OpenAI chat API or any
// compatible endpoint.
package openai

import (
	"context"
	"errors"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Client wraps an OpenAI-compatible chat endpoint.
type Client struct {
	model  string
	client *openai.Client
}

// Params configures the client. BaseURL is optional and points the
// client at a compatible endpoint.
type Params struct {
	Model   string
	BaseURL string
	ApiKey  string
}

func New(params Params) (*Client, error) {
	if params.ApiKey == "" {
		return nil, errors.New("openai: api key is empty")
	}
	options := []option.RequestOption{
		option.WithAPIKey(params.ApiKey),
	}
	if params.BaseURL != "" {
		options = append(options, option.WithBaseURL(params.BaseURL))
	}
	client := openai.NewClient(options...)
	return &Client{model: params.Model, client: &client}, nil
}

// Generate sends a single-turn chat completion request.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	response, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", errors.New("openai: empty completion")
	}
	return response.Choices[0].Message.Content, nil
}
