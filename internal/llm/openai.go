package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"callbot/internal/domain"
)

// OpenAIConfig configures chat completions and Whisper transcription.
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	APIKeyEnv   string
	Model       string
	Temperature *float32 // nil means DefaultTemperature
	MaxTokens   int
	Timeout     time.Duration
}

// OpenAI implements domain.Generator and domain.Transcriber.
type OpenAI struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	key := cfg.APIKey
	if key == "" && cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultChatModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	t := cfg.Timeout
	if t == 0 {
		t = 60 * time.Second
	}
	oc := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: t}
	return &OpenAI{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: temperature(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (o *OpenAI) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMessage(req)},
			{Role: openai.ChatMessageRoleUser, Content: req.Query},
		},
		Temperature: wireTemperature(o.temperature),
		MaxTokens:   o.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrGenerationFailure, describe(err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", domain.ErrGenerationFailure)
	}
	return resp.Choices[0].Message.Content, nil
}

// Transcribe sends the recording to Whisper. filename only tells the API
// the audio format.
func (o *OpenAI) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	if filename == "" {
		filename = "audio.wav"
	}
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: filename,
		Reader:   audio,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrTranscriptionFailure, describe(err))
	}
	return strings.TrimSpace(resp.Text), nil
}

func describe(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("openai status %d: %w", apiErr.HTTPStatusCode, err)
	}
	return err
}
