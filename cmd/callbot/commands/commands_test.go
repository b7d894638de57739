package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"callbot/internal/config"
	"callbot/internal/llm"
	"callbot/internal/vectorstore/memory"
	"callbot/internal/vectorstore/qdrant"
	"callbot/internal/vectorstore/sqlite"
)

const faq = `Bella Salon opens at nine in the morning from Monday to Saturday.
Haircuts cost twenty dollars and colouring starts at sixty dollars.
Free parking is available behind the building next to the bakery.
We accept cards and cash but not cheques.`

func writeConfig(t *testing.T, store string) string {
	t.Helper()
	dir := t.TempDir()
	kbPath := filepath.Join(dir, "faq.txt")
	require.NoError(t, os.WriteFile(kbPath, []byte(faq), 0o600))

	body := fmt.Sprintf(`knowledge:
  path: %s
embedder:
  type: hashing
  dimension: 128
chunker:
  chunk_size: 80
  overlap: 10
vector_store:
  type: %s
  collection: salon
  distance: cosine
  sqlite:
    path: %s
log:
  level: error
`, kbPath, store, filepath.Join(dir, "index.db"))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { cfgPath = "" })
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd()
	assert.Equal(t, "callbot", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "chat", "ingest", "search", "mcp", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestSearchCmd_Flags(t *testing.T) {
	cmd := NewSearchCmd()
	assert.Equal(t, "search <query>", cmd.Use)
	limit := cmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "8", limit.DefValue)
}

func TestSearch_InMemory(t *testing.T) {
	path := writeConfig(t, "memory")
	out, err := run(t, "--config", path, "search", "--limit", "1", "parking behind the building")
	require.NoError(t, err)
	assert.Contains(t, out, "SCORE")
	assert.Contains(t, out, "behind the building")
	assert.Equal(t, 2, strings.Count(strings.TrimSpace(out), "\n")+1)
}

func TestSearch_RejectsBadLimit(t *testing.T) {
	path := writeConfig(t, "memory")
	_, err := run(t, "--config", path, "search", "--limit", "0", "parking")
	assert.Error(t, err)
}

func TestIngestThenSearch_SQLite(t *testing.T) {
	path := writeConfig(t, "sqlite")
	out, err := run(t, "--config", path, "ingest")
	require.NoError(t, err)
	assert.Contains(t, out, `into "salon"`)
	assert.Contains(t, out, "Summary:")

	out, err = run(t, "--config", path, "search", "haircuts cost twenty dollars")
	require.NoError(t, err)
	assert.Contains(t, out, "twenty dollars")
}

func TestIngest_MissingFile(t *testing.T) {
	path := writeConfig(t, "memory")
	_, err := run(t, "--config", path, "ingest", filepath.Join(t.TempDir(), "nope.pdf"))
	assert.Error(t, err)
}

func TestVersionCmd(t *testing.T) {
	SetVersion("1.2.3", "abc", "today")
	t.Cleanup(func() { SetVersion("dev", "none", "unknown") })
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "callbot 1.2.3")
	assert.Contains(t, out, "Commit: abc")
}

func TestNewIndex(t *testing.T) {
	idx, closer, err := newIndex(config.VectorStoreConfig{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &memory.Storage{}, idx)
	assert.Nil(t, closer)

	idx, _, err = newIndex(config.VectorStoreConfig{Type: "qdrant", Qdrant: &config.QdrantConfig{URL: "http://localhost:6333"}})
	require.NoError(t, err)
	assert.IsType(t, &qdrant.Storage{}, idx)

	idx, closer, err = newIndex(config.VectorStoreConfig{Type: "sqlite", SQLite: &config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "kb.db")}})
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Storage{}, idx)
	require.NotNil(t, closer)
	assert.NoError(t, closer())

	_, _, err = newIndex(config.VectorStoreConfig{Type: "qdrant"})
	assert.Error(t, err)
	_, _, err = newIndex(config.VectorStoreConfig{Type: "pinecone"})
	assert.Error(t, err)
}

func TestNewEmbedder(t *testing.T) {
	e, err := newEmbedder(config.EmbedderConfig{Type: "hashing", Dimension: 32}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 32, e.Dimension())

	e, err = newEmbedder(config.EmbedderConfig{Type: "hashing", Dimension: 32, MaxRetries: 2}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 32, e.Dimension())

	_, err = newEmbedder(config.EmbedderConfig{Type: "openai", Dimension: 32}, zap.NewNop())
	assert.Error(t, err)
	_, err = newEmbedder(config.EmbedderConfig{Type: "word2vec"}, zap.NewNop())
	assert.Error(t, err)
}

func TestNewGenerator(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := newGenerator(config.GeneratorConfig{Type: "openai"})
	assert.Error(t, err)

	t.Setenv("OPENAI_API_KEY", "sk-test")
	gen, err := newGenerator(config.GeneratorConfig{Type: "openai"})
	require.NoError(t, err)
	assert.IsType(t, &llm.OpenAI{}, gen)

	gen, err = newGenerator(config.GeneratorConfig{Type: "ollama", Ollama: &config.OllamaChatConfig{BaseURL: "http://localhost:11434"}})
	require.NoError(t, err)
	assert.IsType(t, &llm.Ollama{}, gen)

	_, err = newGenerator(config.GeneratorConfig{Type: "claude"})
	assert.Error(t, err)
}

func TestNewTranscriber(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg := config.Default()
	gen, err := newGenerator(config.GeneratorConfig{Type: "openai"})
	require.NoError(t, err)
	assert.Same(t, gen, newTranscriber(cfg, gen, zap.NewNop()))

	cfg.Transcriber.Type = "none"
	assert.Nil(t, newTranscriber(cfg, gen, zap.NewNop()))

	t.Setenv("OPENAI_API_KEY", "")
	cfg.Transcriber.Type = "openai"
	assert.Nil(t, newTranscriber(cfg, nil, zap.NewNop()))
}

func TestNewLogger(t *testing.T) {
	l, err := newLogger(config.LogConfig{Level: "debug", Development: true})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.DebugLevel))

	logFile := filepath.Join(t.TempDir(), "chat.log")
	l, err = newLogger(config.LogConfig{Level: "warn"}, logFile)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.InfoLevel))
	l.Warn("to file")
	require.NoError(t, l.Sync())
	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")

	_, err = newLogger(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "a b c", oneLine("a\n b\tc", 10))
	assert.Equal(t, "abcdefg...", oneLine("abcdefghijklmnop", 10))
}
