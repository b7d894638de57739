package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"callbot/internal/chunker"
	"callbot/internal/config"
	"callbot/internal/document"
	"callbot/internal/domain"
	"callbot/internal/embedding"
	"callbot/internal/embedding/hashing"
	"callbot/internal/embedding/ollama"
	openaiembed "callbot/internal/embedding/openai"
	"callbot/internal/llm"
	"callbot/internal/service"
	"callbot/internal/session"
	"callbot/internal/summarizer"
	"callbot/internal/vectorstore/memory"
	"callbot/internal/vectorstore/qdrant"
	"callbot/internal/vectorstore/sqlite"
)

// knowledge bundles the knowledge base with the resources it holds open.
type knowledge struct {
	kb     *service.KnowledgeBase
	closer func() error
}

func (k *knowledge) Close() error {
	if k.closer == nil {
		return nil
	}
	return k.closer()
}

// newLogger builds the process logger. outputs overrides where logs go.
func newLogger(cfg config.LogConfig, outputs ...string) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = level
	if len(outputs) > 0 {
		zcfg.OutputPaths = outputs
		zcfg.ErrorOutputPaths = outputs
	}
	return zcfg.Build()
}

func newEmbedder(cfg config.EmbedderConfig, logger *zap.Logger) (domain.Embedder, error) {
	var e domain.Embedder
	switch cfg.Type {
	case "hashing", "":
		e = hashing.NewEmbedder(cfg.Dimension)
	case "openai":
		if cfg.OpenAI == nil {
			return nil, errors.New("openai embedder config missing")
		}
		client, err := openaiembed.NewClient(openaiembed.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
			Dimension: cfg.Dimension,
			BatchSize: cfg.OpenAI.BatchSize,
			Timeout:   time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		e = client
	case "ollama":
		if cfg.Ollama == nil {
			return nil, errors.New("ollama embedder config missing")
		}
		client, err := ollama.NewClient(ollama.Config{
			BaseURL:   cfg.Ollama.BaseURL,
			Model:     cfg.Ollama.Model,
			Dimension: cfg.Dimension,
			Timeout:   time.Duration(cfg.Ollama.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("ollama embedder init failed: %w", err)
		}
		e = client
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
	if cfg.MaxRetries > 0 {
		logger.Info("embedding retries enabled", zap.Int("max_retries", cfg.MaxRetries))
		e = embedding.WithRetry(e, cfg.MaxRetries, time.Duration(cfg.RetryDelayMS)*time.Millisecond)
	}
	return e, nil
}

func newIndex(cfg config.VectorStoreConfig) (domain.VectorIndex, func() error, error) {
	switch cfg.Type {
	case "memory", "":
		return memory.NewStorage(), nil, nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, nil, errors.New("qdrant config missing")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:     cfg.Qdrant.URL,
			APIKey:  cfg.Qdrant.APIKey,
			Timeout: time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		}), nil, nil
	case "sqlite":
		if cfg.SQLite == nil {
			return nil, nil, errors.New("sqlite config missing")
		}
		st, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}

func newKnowledge(cfg *config.AppConfig, logger *zap.Logger) (*knowledge, error) {
	emb, err := newEmbedder(cfg.Embedder, logger)
	if err != nil {
		return nil, err
	}
	index, closer, err := newIndex(cfg.VectorStore)
	if err != nil {
		return nil, err
	}
	kb := service.NewKnowledgeBase(
		chunker.NewChunker(cfg.Chunker.ChunkSize, cfg.Chunker.Overlap, cfg.Chunker.Separators...),
		emb,
		index,
		document.NewSource(logger),
		service.KnowledgeConfig{
			Collection: cfg.VectorStore.Collection,
			Distance:   domain.Distance(cfg.VectorStore.Distance),
			TopK:       cfg.Retrieval.TopK,
			Summary:    summarizer.New(cfg.Summarizer.MaxSentences),
		},
		logger,
	)
	return &knowledge{kb: kb, closer: closer}, nil
}

func newGenerator(cfg config.GeneratorConfig) (domain.Generator, error) {
	switch cfg.Type {
	case "openai", "":
		g := cfg.OpenAI
		if g == nil {
			g = &config.OpenAIChatConfig{}
		}
		keyEnv := g.APIKeyEnv
		if keyEnv == "" {
			keyEnv = "OPENAI_API_KEY"
		}
		gen, err := llm.NewOpenAI(llm.OpenAIConfig{
			BaseURL:     g.BaseURL,
			APIKeyEnv:   keyEnv,
			Model:       g.Model,
			Temperature: g.Temperature,
			MaxTokens:   g.MaxTokens,
			Timeout:     time.Duration(g.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return gen, nil
	case "ollama":
		g := cfg.Ollama
		if g == nil {
			g = &config.OllamaChatConfig{}
		}
		gen, err := llm.NewOllama(llm.OllamaConfig{
			BaseURL:     g.BaseURL,
			Model:       g.Model,
			Temperature: g.Temperature,
			MaxTokens:   g.MaxTokens,
			Timeout:     time.Duration(g.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return gen, nil
	default:
		return nil, fmt.Errorf("unknown generator: %s", cfg.Type)
	}
}

// newTranscriber reuses the OpenAI generator when there is one. Without an
// API key audio turns are disabled rather than failing startup.
func newTranscriber(cfg *config.AppConfig, gen domain.Generator, logger *zap.Logger) domain.Transcriber {
	if cfg.Transcriber.Type != "openai" {
		return nil
	}
	if t, ok := gen.(domain.Transcriber); ok {
		return t
	}
	client, err := llm.NewOpenAI(llm.OpenAIConfig{APIKeyEnv: "OPENAI_API_KEY"})
	if err != nil {
		logger.Warn("audio transcription disabled", zap.Error(err))
		return nil
	}
	return client
}

func newAssistant(cfg *config.AppConfig, kb *service.KnowledgeBase, logger *zap.Logger) (*service.Assistant, error) {
	gen, err := newGenerator(cfg.Generator)
	if err != nil {
		return nil, err
	}
	sessions := session.NewStore(
		session.WithHistoryWindow(cfg.Session.HistoryWindow),
		session.WithLogger(logger),
	)
	opts := []service.AssistantOption{
		service.WithTopK(cfg.Retrieval.TopK),
		service.WithPersona(service.Persona{
			FirstMessage: cfg.Persona.FirstMessage,
			SystemPrompt: cfg.Persona.SystemPrompt,
		}),
	}
	if t := newTranscriber(cfg, gen, logger); t != nil {
		opts = append(opts, service.WithTranscriber(t))
	}
	return service.NewAssistant(kb, sessions, gen, logger, opts...), nil
}

func newRefresher(cfg *config.AppConfig, kb *service.KnowledgeBase, logger *zap.Logger) *service.Refresher {
	return service.NewRefresher(kb, service.RefresherConfig{
		Path:     cfg.Knowledge.Path,
		Schedule: cfg.Knowledge.RebuildSchedule,
		Watch:    cfg.Knowledge.Watch,
	}, logger)
}

// initialBuild rebuilds from the knowledge file before serving. A missing
// or broken file is logged and the service starts with an empty index.
func initialBuild(ctx context.Context, r *service.Refresher, path string, logger *zap.Logger) (service.IngestReport, bool) {
	if path == "" {
		logger.Warn("no knowledge file configured")
		return service.IngestReport{}, false
	}
	report, err := r.Refresh(ctx)
	if err != nil {
		logger.Warn("starting with an empty knowledge base", zap.String("path", path), zap.Error(err))
		return service.IngestReport{}, false
	}
	logger.Info("knowledge base ready",
		zap.Int("chunks", report.Chunks),
		zap.Duration("duration", report.Duration),
		zap.String("summary", report.Summary),
	)
	return report, true
}
