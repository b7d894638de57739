package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"

	"callbot/internal/domain"
	"callbot/internal/embedding"
)

const DefaultModel = "nomic-embed-text"

// Config configures the Ollama embeddings client.
type Config struct {
	BaseURL   string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// Client embeds text through a local or remote Ollama server.
type Client struct {
	api       *api.Client
	model     string
	dimension int
}

// NewClient creates a client for cfg.BaseURL, falling back to OLLAMA_HOST.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	var cli *api.Client
	if cfg.BaseURL == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama client: %w", err)
		}
		cli = c
	} else {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("ollama base url: %w", err)
		}
		t := cfg.Timeout
		if t == 0 {
			t = 60 * time.Second
		}
		cli = api.NewClient(u, &http.Client{Timeout: t})
	}
	return &Client{api: cli, model: cfg.Model, dimension: cfg.Dimension}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "ollama" }

// Dimension returns the configured output dimension.
func (c *Client) Dimension() int { return c.dimension }

// Embed embeds all texts in one request.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.api.Embed(ctx, &api.EmbedRequest{
		Model: c.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: ollama: %w", domain.ErrEmbeddingFailure, err)
	}
	if err := embedding.CheckBatch(resp.Embeddings, len(texts), c.dimension); err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}

// EmbedOne returns an embedding vector for the given text.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return embedding.One(ctx, c, text)
}
