package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"callbot/internal/domain"
	"callbot/internal/summarizer"
)

const (
	DefaultCollection = "knowledge_base"
	DefaultTopK       = 8
)

// IngestReport describes one ingestion run.
type IngestReport struct {
	Documents int           `json:"documents"`
	Chunks    int           `json:"chunks"`
	Summary   string        `json:"summary"`
	Duration  time.Duration `json:"duration"`
	At        time.Time     `json:"at"`
}

type KnowledgeConfig struct {
	Collection string
	Distance   domain.Distance
	TopK       int
	Summary    *summarizer.Frequency
}

// KnowledgeBase owns the ingestion pipeline and query-time retrieval over
// one vector index collection.
type KnowledgeBase struct {
	chunker  domain.Chunker
	embedder domain.Embedder
	index    domain.VectorIndex
	source   domain.DocumentSource
	summary  *summarizer.Frequency
	logger   *zap.Logger

	collection string
	distance   domain.Distance
	topK       int

	// gate is held exclusively only between reset and upsert of a rebuild,
	// so searches never see the collection empty mid-rebuild.
	gate sync.RWMutex

	mu   sync.Mutex
	last *IngestReport
}

func NewKnowledgeBase(chunker domain.Chunker, embedder domain.Embedder, index domain.VectorIndex, source domain.DocumentSource, cfg KnowledgeConfig, logger *zap.Logger) *KnowledgeBase {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Distance == "" {
		cfg.Distance = domain.DistanceCosine
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Summary == nil {
		cfg.Summary = summarizer.New(summarizer.DefaultMaxSentences)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KnowledgeBase{
		chunker:    chunker,
		embedder:   embedder,
		index:      index,
		source:     source,
		summary:    cfg.Summary,
		logger:     logger,
		collection: cfg.Collection,
		distance:   cfg.Distance,
		topK:       cfg.TopK,
	}
}

func (kb *KnowledgeBase) Collection() string { return kb.collection }
func (kb *KnowledgeBase) TopK() int          { return kb.topK }

// LastReport returns the report of the most recent successful run, if any.
func (kb *KnowledgeBase) LastReport() (IngestReport, bool) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	if kb.last == nil {
		return IngestReport{}, false
	}
	return *kb.last, true
}

type prepared struct {
	points    []domain.Point
	dimension int
	report    IngestReport
}

// prepare chunks and embeds docs without touching the index.
func (kb *KnowledgeBase) prepare(ctx context.Context, docs []domain.Document) (prepared, error) {
	start := time.Now()
	var (
		chunks   []domain.Chunk
		contents []string
	)
	for _, d := range docs {
		cs, err := kb.chunker.Chunk(d)
		if err != nil {
			return prepared{}, fmt.Errorf("chunk %s: %w", d.Path, err)
		}
		chunks = append(chunks, cs...)
		contents = append(contents, d.Content)
	}

	p := prepared{dimension: kb.embedder.Dimension()}
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vecs, err := kb.embedder.Embed(ctx, texts)
		if err != nil {
			return prepared{}, err
		}
		if len(vecs) != len(chunks) {
			return prepared{}, fmt.Errorf("%w: expected %d vectors, got %d", domain.ErrEmbeddingFailure, len(chunks), len(vecs))
		}
		if p.dimension == 0 {
			p.dimension = len(vecs[0])
		}
		p.points = make([]domain.Point, len(chunks))
		for i, c := range chunks {
			p.points[i] = domain.Point{
				ID:     uuid.NewString(),
				Vector: vecs[i],
				Payload: domain.Payload{
					Context:    c.Text,
					DocumentID: c.DocumentID,
					ChunkIndex: c.Index,
				},
			}
		}
	}
	p.report = IngestReport{
		Documents: len(docs),
		Chunks:    len(chunks),
		Summary:   kb.summary.Summarize(contents...),
		Duration:  time.Since(start),
	}
	return p, nil
}

// Ingest adds docs to the existing collection. Nothing already indexed is
// removed; use Rebuild to replace the knowledge base.
func (kb *KnowledgeBase) Ingest(ctx context.Context, docs ...domain.Document) (IngestReport, error) {
	p, err := kb.prepare(ctx, docs)
	if err != nil {
		return IngestReport{}, fmt.Errorf("ingest: %w", err)
	}
	kb.gate.RLock()
	err = kb.index.Upsert(ctx, kb.collection, p.points)
	kb.gate.RUnlock()
	if err != nil {
		return IngestReport{}, fmt.Errorf("ingest: %w", err)
	}
	return kb.finish("ingest", p.report), nil
}

// IngestText adds raw text as one document.
func (kb *KnowledgeBase) IngestText(ctx context.Context, text string) (IngestReport, error) {
	return kb.Ingest(ctx, domain.Document{ID: uuid.NewString(), Content: text})
}

// Rebuild destroys the collection and replaces it with docs. Embedding
// happens before the reset, so a failed embedding leaves the previous
// collection in place.
func (kb *KnowledgeBase) Rebuild(ctx context.Context, docs ...domain.Document) (IngestReport, error) {
	p, err := kb.prepare(ctx, docs)
	if err != nil {
		return IngestReport{}, fmt.Errorf("rebuild: %w", err)
	}
	if p.dimension <= 0 {
		return IngestReport{}, fmt.Errorf("rebuild: %w: embedder reports no dimension", domain.ErrInvalidArgument)
	}

	kb.gate.Lock()
	defer kb.gate.Unlock()
	if err := kb.index.ResetCollection(ctx, kb.collection, p.dimension, kb.distance); err != nil {
		return IngestReport{}, fmt.Errorf("rebuild: reset %s: %w", kb.collection, err)
	}
	if err := kb.index.Upsert(ctx, kb.collection, p.points); err != nil {
		return IngestReport{}, fmt.Errorf("rebuild: upsert: %w", err)
	}
	return kb.finish("rebuild", p.report), nil
}

// RebuildFromFile extracts path and rebuilds the collection from it.
func (kb *KnowledgeBase) RebuildFromFile(ctx context.Context, path string) (IngestReport, error) {
	doc, err := kb.source.Extract(ctx, path)
	if err != nil {
		return IngestReport{}, fmt.Errorf("rebuild: %w", err)
	}
	return kb.Rebuild(ctx, doc)
}

// RebuildFromBytes is RebuildFromFile for uploaded content.
func (kb *KnowledgeBase) RebuildFromBytes(ctx context.Context, name string, data []byte) (IngestReport, error) {
	doc, err := kb.source.ExtractBytes(ctx, name, data)
	if err != nil {
		return IngestReport{}, fmt.Errorf("rebuild: %w", err)
	}
	return kb.Rebuild(ctx, doc)
}

func (kb *KnowledgeBase) finish(op string, r IngestReport) IngestReport {
	r.At = time.Now()
	kb.mu.Lock()
	kb.last = &r
	kb.mu.Unlock()
	kb.logger.Info("knowledge base updated",
		zap.String("op", op),
		zap.String("collection", kb.collection),
		zap.Int("documents", r.Documents),
		zap.Int("chunks", r.Chunks),
		zap.Duration("took", r.Duration),
	)
	return r
}

// Search embeds query and returns the k best matches with scores. k <= 0
// uses the configured top-k.
func (kb *KnowledgeBase) Search(ctx context.Context, query string, k int) ([]domain.Match, error) {
	if k <= 0 {
		k = kb.topK
	}
	vec, err := kb.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	kb.gate.RLock()
	defer kb.gate.RUnlock()
	matches, err := kb.index.Search(ctx, kb.collection, vec, k)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	return matches, nil
}

// Retrieve returns the context strings of the k best matches, best first.
// An empty index yields an empty result.
func (kb *KnowledgeBase) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	matches, err := kb.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Payload.Context
	}
	return out, nil
}
