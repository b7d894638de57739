package chunker

import (
	"iter"
	"strings"

	"callbot/internal/domain"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// DefaultSeparators are tried in order when a chunker is asked to prefer
// natural boundaries.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "? ", "! ", " "}

// Chunker splits text into overlapping windows measured in characters.
// Consecutive windows always share exactly overlap characters.
type Chunker struct {
	chunkSize  int
	overlap    int
	separators [][]rune
}

// NewChunker builds a chunker. Separators are optional; when given, a window
// is shortened to end on the last separator that still keeps it longer than
// the overlap.
func NewChunker(chunkSize, overlap int, separators ...string) *Chunker {
	chunkSize, overlap = normalize(chunkSize, overlap)
	c := &Chunker{chunkSize: chunkSize, overlap: overlap}
	for _, s := range separators {
		if s != "" {
			c.separators = append(c.separators, []rune(s))
		}
	}
	return c
}

// Split yields the chunks of text using fixed windows. The sequence is lazy
// and can be ranged over more than once.
func Split(text string, chunkSize, overlap int, separators ...string) iter.Seq[string] {
	return NewChunker(chunkSize, overlap, separators...).Split(text)
}

// Split yields the chunks of text. Blank input yields nothing; input no longer
// than the chunk size yields itself unchanged.
func (c *Chunker) Split(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		runes := []rune(text)
		for start, end := range c.windows(runes) {
			if !yield(string(runes[start:end])) {
				return
			}
		}
	}
}

// Chunk implements domain.Chunker. IDs are left empty; the ingestion
// pipeline assigns them.
func (c *Chunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	runes := []rune(document.Content)
	var chunks []domain.Chunk
	for start, end := range c.windows(runes) {
		chunks = append(chunks, domain.Chunk{
			DocumentID: document.ID,
			Index:      len(chunks),
			Offset:     start,
			Text:       string(runes[start:end]),
		})
	}
	return chunks, nil
}

func (c *Chunker) windows(runes []rune) iter.Seq2[int, int] {
	return func(yield func(int, int) bool) {
		if strings.TrimSpace(string(runes)) == "" {
			return
		}
		n := len(runes)
		start := 0
		for {
			end := min(start+c.chunkSize, n)
			if end < n {
				end = c.boundary(runes, start, end)
			}
			if !yield(start, end) {
				return
			}
			if end >= n {
				return
			}
			start = end - c.overlap
		}
	}
}

// boundary moves end back to just after a separator, never below
// start+overlap+1 so every window makes progress.
func (c *Chunker) boundary(runes []rune, start, end int) int {
	floor := start + c.overlap + 1
	for _, sep := range c.separators {
		for i := end - len(sep); i >= floor-len(sep) && i >= start; i-- {
			if hasPrefix(runes[i:], sep) {
				return i + len(sep)
			}
		}
	}
	return end
}

func hasPrefix(runes, prefix []rune) bool {
	if len(runes) < len(prefix) {
		return false
	}
	for i := range prefix {
		if runes[i] != prefix[i] {
			return false
		}
	}
	return true
}

func normalize(chunkSize, overlap int) (int, int) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return chunkSize, overlap
}
