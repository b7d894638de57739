package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"callbot/internal/chunker"
	"callbot/internal/document"
	"callbot/internal/domain"
	"callbot/internal/embedding/hashing"
	"callbot/internal/vectorstore/memory"
)

const salonFAQ = "Our salon opens at nine in the morning. Haircuts cost twenty dollars. " +
	"Parking is available behind the building. We accept cards and cash. " +
	"Children under ten get a free lollipop."

type failingEmbedder struct {
	domain.Embedder
	fail atomic.Bool
}

func (f *failingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.fail.Load() {
		return nil, errors.New("backend down")
	}
	return f.Embedder.Embed(ctx, texts)
}

func newKB(t *testing.T, e domain.Embedder) (*KnowledgeBase, *memory.Storage) {
	t.Helper()
	if e == nil {
		e = hashing.NewEmbedder(64)
	}
	store := memory.NewStorage()
	kb := NewKnowledgeBase(
		chunker.NewChunker(50, 10),
		e,
		store,
		document.NewSource(nil),
		KnowledgeConfig{},
		zaptest.NewLogger(t),
	)
	return kb, store
}

func TestKnowledgeBase_RoundTrip(t *testing.T) {
	ctx := context.Background()
	kb, store := newKB(t, nil)

	report, err := kb.Rebuild(ctx, domain.Document{ID: "faq", Content: salonFAQ})
	require.NoError(t, err)
	assert.Greater(t, report.Chunks, 1)
	assert.Equal(t, report.Chunks, store.Len(DefaultCollection))
	assert.NotEmpty(t, report.Summary)

	var chunks []string
	for c := range chunker.Split(salonFAQ, 50, 10) {
		chunks = append(chunks, c)
	}
	require.NotEmpty(t, chunks)

	got, err := kb.Retrieve(ctx, chunks[1], 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, chunks[1], got[0])
	assert.Contains(t, salonFAQ, got[0])
}

func TestKnowledgeBase_RetrieveDefaultsToTopK(t *testing.T) {
	ctx := context.Background()
	kb, _ := newKB(t, nil)
	_, err := kb.Rebuild(ctx, domain.Document{Content: salonFAQ})
	require.NoError(t, err)

	got, err := kb.Retrieve(ctx, "parking", 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got), DefaultTopK)
	require.NotEmpty(t, got)
	assert.Contains(t, got[0], "Parking")
}

func TestKnowledgeBase_NeverIngestedIsEmpty(t *testing.T) {
	kb, _ := newKB(t, nil)
	got, err := kb.Retrieve(context.Background(), "when do you open?", 8)
	require.NoError(t, err)
	assert.Empty(t, got)
	_, ok := kb.LastReport()
	assert.False(t, ok)
}

func TestKnowledgeBase_EmptyTextIsNoop(t *testing.T) {
	ctx := context.Background()
	kb, store := newKB(t, nil)

	report, err := kb.Rebuild(ctx, domain.Document{Content: "   "})
	require.NoError(t, err)
	assert.Zero(t, report.Chunks)
	assert.Zero(t, store.Len(DefaultCollection))

	report, err = kb.IngestText(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, report.Chunks)
}

func TestKnowledgeBase_RebuildReplacesIngestAdds(t *testing.T) {
	ctx := context.Background()
	kb, store := newKB(t, nil)

	_, err := kb.Rebuild(ctx, domain.Document{Content: "Old policy: no refunds ever."})
	require.NoError(t, err)
	_, err = kb.Rebuild(ctx, domain.Document{Content: "New policy: refunds within a week."})
	require.NoError(t, err)
	got, err := kb.Retrieve(ctx, "refunds policy", 8)
	require.NoError(t, err)
	for _, c := range got {
		assert.NotContains(t, c, "Old policy")
	}

	before := store.Len(DefaultCollection)
	report, err := kb.IngestText(ctx, "Gift cards are sold at the desk.")
	require.NoError(t, err)
	assert.Equal(t, before+report.Chunks, store.Len(DefaultCollection))

	got, err = kb.Retrieve(ctx, "gift cards", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "Gift cards")
}

func TestKnowledgeBase_EmbeddingFailureKeepsPreviousIndex(t *testing.T) {
	ctx := context.Background()
	e := &failingEmbedder{Embedder: hashing.NewEmbedder(32)}
	kb, store := newKB(t, e)

	_, err := kb.Rebuild(ctx, domain.Document{Content: salonFAQ})
	require.NoError(t, err)
	n := store.Len(DefaultCollection)

	e.fail.Store(true)
	_, err = kb.Rebuild(ctx, domain.Document{Content: "something else entirely"})
	require.Error(t, err)
	assert.Equal(t, n, store.Len(DefaultCollection))
}

func TestKnowledgeBase_ExtractionErrorIsDistinct(t *testing.T) {
	kb, _ := newKB(t, nil)
	_, err := kb.RebuildFromFile(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	assert.ErrorIs(t, err, domain.ErrDocumentExtraction)
	assert.NotErrorIs(t, err, domain.ErrEmbeddingFailure)

	_, err = kb.RebuildFromBytes(context.Background(), "kb.pdf", []byte("garbage"))
	assert.ErrorIs(t, err, domain.ErrDocumentExtraction)
}

func TestKnowledgeBase_RebuildFromBytes(t *testing.T) {
	kb, _ := newKB(t, nil)
	report, err := kb.RebuildFromBytes(context.Background(), "faq.md", []byte("# FAQ\n\nWe close at **six** on Fridays."))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Documents)

	got, err := kb.Retrieve(context.Background(), "fridays", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, strings.Contains(got[0], "Fridays"))
}

func TestKnowledgeBase_ReadersNeverSeeEmptyCollection(t *testing.T) {
	ctx := context.Background()
	kb, _ := newKB(t, nil)
	_, err := kb.Rebuild(ctx, domain.Document{Content: salonFAQ})
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		empty atomic.Int32
		stop  = make(chan struct{})
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				got, err := kb.Retrieve(ctx, "haircut price", 3)
				if err != nil || len(got) == 0 {
					empty.Add(1)
				}
			}
		}()
	}
	for i := 0; i < 20; i++ {
		_, err := kb.Rebuild(ctx, domain.Document{Content: salonFAQ})
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
	assert.Zero(t, empty.Load())
}
