package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callbot/internal/domain"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestSystemMessage(t *testing.T) {
	assert.Equal(t, "P", systemMessage(domain.GenerationRequest{SystemPrompt: "P"}))
	assert.Equal(t, "P with ctx", systemMessage(domain.GenerationRequest{SystemPrompt: "P with ctx", Context: "ctx"}))
	assert.Equal(t, "P\nContext:\nhours", systemMessage(domain.GenerationRequest{SystemPrompt: "P", Context: "hours"}))
	assert.Equal(t, "Context:\nhours", systemMessage(domain.GenerationRequest{Context: " hours "}))
}

func TestOpenAI_Generate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": "What's your name?"}, "finish_reason": "stop"}},
		})
	}))
	defer srv.Close()

	o, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	reply, err := o.Generate(context.Background(), domain.GenerationRequest{SystemPrompt: "be brief", Query: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "What's your name?", reply)

	assert.Equal(t, DefaultChatModel, got.Model)
	assert.InDelta(t, DefaultTemperature, got.Temperature, 1e-6)
	assert.Equal(t, DefaultMaxTokens, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, chatMessage{Role: "system", Content: "be brief"}, got.Messages[0])
	assert.Equal(t, chatMessage{Role: "user", Content: "hi"}, got.Messages[1])
}

func TestOpenAI_GenerateZeroTemperature(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		writeJSON(w, map[string]any{
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": "ok"}}},
		})
	}))
	defer srv.Close()

	zero := float32(0)
	o, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Temperature: &zero})
	require.NoError(t, err)
	_, err = o.Generate(context.Background(), domain.GenerationRequest{Query: "hi"})
	require.NoError(t, err)

	require.Contains(t, raw, "temperature")
	assert.InDelta(t, 0, raw["temperature"], 1e-6)
}

func TestOpenAI_GenerateFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
	}))
	defer srv.Close()

	o, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)
	_, err = o.Generate(context.Background(), domain.GenerationRequest{Query: "hi"})
	assert.ErrorIs(t, err, domain.ErrGenerationFailure)
	assert.Contains(t, err.Error(), "429")
}

func TestOpenAI_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		body, _ := io.ReadAll(f)
		assert.Equal(t, "RIFF-audio", string(body))
		assert.Equal(t, "call.wav", hdr.Filename)
		writeJSON(w, map[string]any{"text": "  My name is Alice \n"})
	}))
	defer srv.Close()

	o, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)
	text, err := o.Transcribe(context.Background(), "call.wav", strings.NewReader("RIFF-audio"))
	require.NoError(t, err)
	assert.Equal(t, "My name is Alice", text)
}

func TestOpenAI_TranscribeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	o, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)
	_, err = o.Transcribe(context.Background(), "", strings.NewReader("x"))
	assert.ErrorIs(t, err, domain.ErrTranscriptionFailure)
}

func TestNewOpenAI_RequiresKey(t *testing.T) {
	t.Setenv("CALLBOT_TEST_EMPTY_KEY", "")
	_, err := NewOpenAI(OpenAIConfig{APIKeyEnv: "CALLBOT_TEST_EMPTY_KEY"})
	assert.Error(t, err)

	t.Setenv("CALLBOT_TEST_KEY", "from-env")
	_, err = NewOpenAI(OpenAIConfig{APIKeyEnv: "CALLBOT_TEST_KEY"})
	assert.NoError(t, err)
}

func TestOllama_Generate(t *testing.T) {
	var got struct {
		Model    string         `json:"model"`
		Messages []chatMessage  `json:"messages"`
		Stream   *bool          `json:"stream"`
		Options  map[string]any `json:"options"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, map[string]any{
			"model":   got.Model,
			"message": map[string]any{"role": "assistant", "content": "Booked for 3pm."},
			"done":    true,
		})
	}))
	defer srv.Close()

	o, err := NewOllama(OllamaConfig{BaseURL: srv.URL, Model: "tiny"})
	require.NoError(t, err)
	reply, err := o.Generate(context.Background(), domain.GenerationRequest{SystemPrompt: "sys", Query: "3pm please"})
	require.NoError(t, err)
	assert.Equal(t, "Booked for 3pm.", reply)

	assert.Equal(t, "tiny", got.Model)
	require.NotNil(t, got.Stream)
	assert.False(t, *got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "3pm please", got.Messages[1].Content)
	assert.EqualValues(t, DefaultMaxTokens, got.Options["num_predict"])
	assert.InDelta(t, DefaultTemperature, got.Options["temperature"], 1e-6)
}

func TestNewOllama_ZeroTemperature(t *testing.T) {
	zero := float32(0)
	o, err := NewOllama(OllamaConfig{BaseURL: "http://localhost:11434", Temperature: &zero})
	require.NoError(t, err)
	assert.Zero(t, o.temperature)
}

func TestOllama_GenerateFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"model not loaded"}`)
	}))
	defer srv.Close()

	o, err := NewOllama(OllamaConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = o.Generate(context.Background(), domain.GenerationRequest{Query: "hi"})
	assert.ErrorIs(t, err, domain.ErrGenerationFailure)
}
