package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"callbot/internal/domain"
)

const DefaultOllamaModel = "llama3.2"

type OllamaConfig struct {
	BaseURL     string
	Model       string
	Temperature *float32 // nil means DefaultTemperature
	MaxTokens   int
	Timeout     time.Duration
}

// Ollama generates replies with a local model.
type Ollama struct {
	api         *api.Client
	model       string
	temperature float32
	maxTokens   int
}

func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
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
			t = 120 * time.Second
		}
		cli = api.NewClient(u, &http.Client{Timeout: t})
	}
	return &Ollama{api: cli, model: cfg.Model, temperature: temperature(cfg.Temperature), maxTokens: cfg.MaxTokens}, nil
}

func (o *Ollama) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	stream := false
	var reply strings.Builder
	err := o.api.Chat(ctx, &api.ChatRequest{
		Model: o.model,
		Messages: []api.Message{
			{Role: "system", Content: systemMessage(req)},
			{Role: "user", Content: req.Query},
		},
		Stream: &stream,
		Options: map[string]any{
			"temperature": o.temperature,
			"num_predict": o.maxTokens,
		},
	}, func(resp api.ChatResponse) error {
		reply.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: ollama chat: %w", domain.ErrGenerationFailure, err)
	}
	return reply.String(), nil
}
