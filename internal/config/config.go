package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// KnowledgeConfig points at the document the knowledge base is built from.
type KnowledgeConfig struct {
	Path            string `yaml:"path" toml:"path"`
	RebuildSchedule string `yaml:"rebuild_schedule,omitempty" toml:"rebuild_schedule,omitempty"`
	Watch           bool   `yaml:"watch" toml:"watch"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url" toml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env" toml:"api_key_env"`
	Model       string `yaml:"model" toml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs" validate:"gte=0"`
	BatchSize   int    `yaml:"batch_size" toml:"batch_size" validate:"gte=0"`
}

type OllamaEmbedderConfig struct {
	BaseURL     string `yaml:"base_url" toml:"base_url"`
	Model       string `yaml:"model" toml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs" validate:"gte=0"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type         string                `yaml:"type" toml:"type" validate:"oneof=hashing openai ollama"`
	Dimension    int                   `yaml:"dimension" toml:"dimension" validate:"gt=0"`
	MaxRetries   int                   `yaml:"max_retries" toml:"max_retries" validate:"gte=0"`
	RetryDelayMS int                   `yaml:"retry_delay_ms" toml:"retry_delay_ms" validate:"gte=0"`
	OpenAI       *OpenAIEmbedderConfig `yaml:"openai,omitempty" toml:"openai,omitempty"`
	Ollama       *OllamaEmbedderConfig `yaml:"ollama,omitempty" toml:"ollama,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks. Sizes are
// in characters.
type ChunkerConfig struct {
	ChunkSize  int      `yaml:"chunk_size" toml:"chunk_size" validate:"gt=0"`
	Overlap    int      `yaml:"overlap" toml:"overlap" validate:"gte=0,ltfield=ChunkSize"`
	Separators []string `yaml:"separators,omitempty" toml:"separators,omitempty"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type       string        `yaml:"type" toml:"type" validate:"oneof=memory qdrant sqlite"`
	Collection string        `yaml:"collection" toml:"collection" validate:"required"`
	Distance   string        `yaml:"distance" toml:"distance" validate:"oneof=cosine dot"`
	Qdrant     *QdrantConfig `yaml:"qdrant,omitempty" toml:"qdrant,omitempty"`
	SQLite     *SQLiteConfig `yaml:"sqlite,omitempty" toml:"sqlite,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url" toml:"url" validate:"required,url"`
	APIKey      string `yaml:"api_key,omitempty" toml:"api_key,omitempty"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs" validate:"gte=0"`
}

type SQLiteConfig struct {
	Path string `yaml:"path" toml:"path" validate:"required"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k" toml:"top_k" validate:"gt=0"`
}

type SessionConfig struct {
	HistoryWindow int `yaml:"history_window" toml:"history_window" validate:"gt=0"`
}

type OpenAIChatConfig struct {
	BaseURL     string  `yaml:"base_url" toml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env" toml:"api_key_env"`
	Model       string  `yaml:"model" toml:"model"`
	Temperature *float32 `yaml:"temperature" toml:"temperature" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   int     `yaml:"max_tokens" toml:"max_tokens" validate:"gte=0"`
	TimeoutSecs int     `yaml:"timeout_secs" toml:"timeout_secs" validate:"gte=0"`
}

type OllamaChatConfig struct {
	BaseURL     string  `yaml:"base_url" toml:"base_url"`
	Model       string  `yaml:"model" toml:"model"`
	Temperature *float32 `yaml:"temperature" toml:"temperature" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   int     `yaml:"max_tokens" toml:"max_tokens" validate:"gte=0"`
	TimeoutSecs int     `yaml:"timeout_secs" toml:"timeout_secs" validate:"gte=0"`
}

// GeneratorConfig selects the chat model backend.
type GeneratorConfig struct {
	Type   string            `yaml:"type" toml:"type" validate:"oneof=openai ollama"`
	OpenAI *OpenAIChatConfig `yaml:"openai,omitempty" toml:"openai,omitempty"`
	Ollama *OllamaChatConfig `yaml:"ollama,omitempty" toml:"ollama,omitempty"`
}

// TranscriberConfig selects speech-to-text. "none" disables audio turns.
type TranscriberConfig struct {
	Type string `yaml:"type" toml:"type" validate:"oneof=openai none"`
}

type PersonaConfig struct {
	FirstMessage string `yaml:"first_message" toml:"first_message"`
	SystemPrompt string `yaml:"system_prompt" toml:"system_prompt"`
}

type ServerConfig struct {
	Host                string  `yaml:"host" toml:"host"`
	Port                int     `yaml:"port" toml:"port" validate:"gt=0,lte=65535"`
	RateLimit           float64 `yaml:"rate_limit" toml:"rate_limit" validate:"gte=0"`
	RateBurst           int     `yaml:"rate_burst" toml:"rate_burst" validate:"gte=0"`
	MaxUploadMB         int     `yaml:"max_upload_mb" toml:"max_upload_mb" validate:"gt=0"`
	ShutdownTimeoutSecs int     `yaml:"shutdown_timeout_secs" toml:"shutdown_timeout_secs" validate:"gte=0"`
}

// SummarizerConfig configures the knowledge summary.
type SummarizerConfig struct {
	MaxSentences int `yaml:"max_sentences" toml:"max_sentences" validate:"gt=0"`
}

type LogConfig struct {
	Level       string `yaml:"level" toml:"level" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development" toml:"development"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Knowledge   KnowledgeConfig   `yaml:"knowledge" toml:"knowledge"`
	Embedder    EmbedderConfig    `yaml:"embedder" toml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker" toml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store" toml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval" toml:"retrieval"`
	Session     SessionConfig     `yaml:"session" toml:"session"`
	Generator   GeneratorConfig   `yaml:"generator" toml:"generator"`
	Transcriber TranscriberConfig `yaml:"transcriber" toml:"transcriber"`
	Persona     PersonaConfig     `yaml:"persona" toml:"persona"`
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Summarizer  SummarizerConfig  `yaml:"summarizer" toml:"summarizer"`
	Log         LogConfig         `yaml:"log" toml:"log"`
}

// Load reads a config from path (.yaml, .yml or .toml). A missing file
// yields the defaults. Environment overrides are applied and the result is
// validated.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	applyConfigDefaults(cfg)
	if err := ApplyEnv(cfg, os.Getenv); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml, ./config.toml, then
// ~/.config/callbot/config.yaml. If none exists, it writes defaults to the
// user path and returns them.
func LoadDefault() (*AppConfig, string, error) {
	for _, p := range []string{"config.yaml", "config.toml"} {
		if _, err := os.Stat(p); err == nil {
			cfg, err := Load(p)
			return cfg, p, err
		}
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	if err := Save(userPath, Default()); err != nil {
		return nil, "", err
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overrides config fields from the environment.
func ApplyEnv(cfg *AppConfig, getenv func(string) string) error {
	if v := getenv("CALLBOT_KNOWLEDGE_PATH"); v != "" {
		cfg.Knowledge.Path = v
	}
	if v := getenv("CALLBOT_VECTOR_STORE"); v != "" {
		cfg.VectorStore.Type = strings.ToLower(v)
		applyConfigDefaults(cfg)
	}
	if v := getenv("QDRANT_URL"); v != "" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{TimeoutSecs: 15}
		}
		cfg.VectorStore.Qdrant.URL = v
	}
	if v := getenv("QDRANT_API_KEY"); v != "" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{URL: "http://localhost:6333", TimeoutSecs: 15}
		}
		cfg.VectorStore.Qdrant.APIKey = v
	}
	if v := getenv("CALLBOT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := getenv("CALLBOT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CALLBOT_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	return nil
}

// Validate checks field constraints and the backend sections the selected
// types need.
func Validate(cfg *AppConfig) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.VectorStore.Type == "qdrant" && cfg.VectorStore.Qdrant == nil {
		return errors.New("invalid config: vector_store.qdrant section missing")
	}
	if cfg.VectorStore.Type == "sqlite" && cfg.VectorStore.SQLite == nil {
		return errors.New("invalid config: vector_store.sqlite section missing")
	}
	return nil
}

func decode(path string, data []byte, cfg *AppConfig) error {
	if isTOML(path) {
		return toml.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "callbot", "config.yaml"), nil
}

// Default returns the built-in configuration: hashing embeddings into an
// in-memory index, OpenAI for chat and transcription.
func Default() *AppConfig {
	return &AppConfig{
		Knowledge: KnowledgeConfig{Path: "./Knowledge_base/test.pdf"},
		Embedder:  EmbedderConfig{Type: "hashing", Dimension: 384, RetryDelayMS: 500},
		Chunker:   ChunkerConfig{ChunkSize: 1000, Overlap: 200},
		VectorStore: VectorStoreConfig{
			Type:       "memory",
			Collection: "knowledge_base",
			Distance:   "cosine",
		},
		Retrieval:   RetrievalConfig{TopK: 8},
		Session:     SessionConfig{HistoryWindow: 3},
		Generator:   GeneratorConfig{Type: "openai"},
		Transcriber: TranscriberConfig{Type: "openai"},
		Persona:     PersonaConfig{FirstMessage: "Hello! Thanks for calling. How can I help you today?"},
		Server: ServerConfig{
			Port:                8000,
			RateLimit:           5,
			RateBurst:           10,
			MaxUploadMB:         25,
			ShutdownTimeoutSecs: 10,
		},
		Summarizer: SummarizerConfig{MaxSentences: 3},
		Log:        LogConfig{Level: "info"},
	}
}

// applyConfigDefaults fills the backend sections of the selected types.
func applyConfigDefaults(cfg *AppConfig) {
	switch cfg.Embedder.Type {
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
		if o.BatchSize == 0 {
			o.BatchSize = 64
		}
	case "ollama":
		if cfg.Embedder.Ollama == nil {
			cfg.Embedder.Ollama = &OllamaEmbedderConfig{}
		}
		if cfg.Embedder.Ollama.Model == "" {
			cfg.Embedder.Ollama.Model = "nomic-embed-text"
		}
		if cfg.Embedder.Ollama.TimeoutSecs == 0 {
			cfg.Embedder.Ollama.TimeoutSecs = 60
		}
	}

	switch cfg.VectorStore.Type {
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{URL: "http://localhost:6333"}
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	case "sqlite":
		if cfg.VectorStore.SQLite == nil {
			cfg.VectorStore.SQLite = &SQLiteConfig{}
		}
		if cfg.VectorStore.SQLite.Path == "" {
			cfg.VectorStore.SQLite.Path = defaultDataPath("index.db")
		}
	}

	switch cfg.Generator.Type {
	case "openai":
		if cfg.Generator.OpenAI == nil {
			cfg.Generator.OpenAI = &OpenAIChatConfig{}
		}
		g := cfg.Generator.OpenAI
		if g.APIKeyEnv == "" {
			g.APIKeyEnv = "OPENAI_API_KEY"
		}
		if g.Model == "" {
			g.Model = "gpt-4-turbo-preview"
		}
		if g.Temperature == nil {
			g.Temperature = ptr(float32(0.7))
		}
		if g.MaxTokens == 0 {
			g.MaxTokens = 150
		}
		if g.TimeoutSecs == 0 {
			g.TimeoutSecs = 60
		}
	case "ollama":
		if cfg.Generator.Ollama == nil {
			cfg.Generator.Ollama = &OllamaChatConfig{}
		}
		g := cfg.Generator.Ollama
		if g.Model == "" {
			g.Model = "llama3.2"
		}
		if g.Temperature == nil {
			g.Temperature = ptr(float32(0.7))
		}
		if g.MaxTokens == 0 {
			g.MaxTokens = 150
		}
		if g.TimeoutSecs == 0 {
			g.TimeoutSecs = 120
		}
	}
}

// defaultDataPath follows XDG_DATA_HOME.
func defaultDataPath(name string) string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".local", "share", "callbot", name)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "callbot", name)
}

func ptr[T any](v T) *T { return &v }
