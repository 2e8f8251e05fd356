// Package ollama generates answers through a locally hosted Ollama
// server.
package ollama

import (
	"context"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// Client wraps the Ollama API for single-turn chat completions.
type Client struct {
	model  string
	client *api.Client
}

// Params configures the client. BaseURL defaults to the Ollama
// default when empty; ApiKey is attached as a bearer header when set.
type Params struct {
	Model   string
	BaseURL string
	ApiKey  string
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

func New(params Params) (*Client, error) {
	var (
		u   *url.URL
		err error
	)
	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	httpClient := http.DefaultClient
	if params.ApiKey != "" {
		httpClient = &http.Client{
			Transport: &headerTransport{
				headers: map[string]string{"Authorization": "Bearer " + params.ApiKey},
				rt:      http.DefaultTransport,
			},
		}
	}

	return &Client{
		model:  params.Model,
		client: api.NewClient(u, httpClient),
	}, nil
}

// Generate sends a single-turn chat request and returns the
// assistant's text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	stream := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{Role: "user", Content: prompt},
		},
		Stream:  &stream,
		Options: map[string]any{"temperature": 0.2},
	}

	var final api.ChatResponse
	if err := c.client.Chat(ctx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		return nil
	}); err != nil {
		return "", err
	}
	return final.Message.Content, nil
}
