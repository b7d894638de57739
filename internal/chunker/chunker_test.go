package chunker

import (
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callbot/internal/domain"
)

func collect(text string, size, overlap int, seps ...string) []string {
	return slices.Collect(Split(text, size, overlap, seps...))
}

func TestSplit_EmptyInput(t *testing.T) {
	assert.Empty(t, collect("", 10, 2))
	assert.Empty(t, collect("   \n\t", 10, 2))
}

func TestSplit_ShorterThanChunkSize(t *testing.T) {
	chunks := collect("short text", 100, 10)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0])
}

func TestSplit_ExactOverlap(t *testing.T) {
	text := strings.Repeat("abcdefghij", 7)
	size, overlap := 20, 5

	chunks := collect(text, size, overlap)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev, cur := []rune(chunks[i-1]), []rune(chunks[i])
		assert.Equal(t, string(prev[len(prev)-overlap:]), string(cur[:overlap]), "chunk %d", i)
	}
	for _, c := range chunks[:len(chunks)-1] {
		assert.Len(t, []rune(c), size)
	}
}

func TestSplit_ReconstructsText(t *testing.T) {
	texts := []string{
		strings.Repeat("The clinic opens at nine. ", 40),
		"ünïcödé " + strings.Repeat("日本語のテキスト", 30),
	}
	for _, text := range texts {
		for _, seps := range [][]string{nil, DefaultSeparators} {
			overlap := 7
			chunks := collect(text, 50, overlap, seps...)
			require.NotEmpty(t, chunks)

			var b strings.Builder
			b.WriteString(chunks[0])
			for _, c := range chunks[1:] {
				b.WriteString(string([]rune(c)[overlap:]))
			}
			assert.Equal(t, text, b.String())
		}
	}
}

func TestSplit_PrefersSeparators(t *testing.T) {
	text := "First sentence here. Second sentence here. Third sentence here."
	chunks := collect(text, 30, 0, ". ")
	require.NotEmpty(t, chunks)
	assert.Equal(t, "First sentence here. ", chunks[0])
}

func TestSplit_Restartable(t *testing.T) {
	seq := Split(strings.Repeat("x", 95), 10, 3)
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	assert.Equal(t, first, second)
}

func TestSplit_EarlyStop(t *testing.T) {
	count := 0
	for range Split(strings.Repeat("y", 1000), 10, 0) {
		count++
		if count == 3 {
			break
		}
	}
	assert.Equal(t, 3, count)
}

func TestNewChunker_Normalizes(t *testing.T) {
	c := NewChunker(0, -1)
	assert.Equal(t, DefaultChunkSize, c.chunkSize)
	assert.Equal(t, 0, c.overlap)

	c = NewChunker(100, 100)
	assert.Equal(t, 25, c.overlap)

	c = NewChunker(10, 10)
	assert.Equal(t, 2, c.overlap)
}

func TestChunker_Chunk(t *testing.T) {
	c := NewChunker(10, 2)
	doc := domain.Document{ID: "doc-1", Content: strings.Repeat("0123456789", 3)}

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	for i, ch := range chunks {
		assert.Equal(t, "doc-1", ch.DocumentID)
		assert.Equal(t, i, ch.Index)
		assert.Empty(t, ch.ID)
	}
	assert.Equal(t, 0, chunks[0].Offset)
	assert.Equal(t, 8, chunks[1].Offset)
	assert.Equal(t, "8901234567", chunks[1].Text)

	empty, err := c.Chunk(domain.Document{ID: "blank"})
	require.NoError(t, err)
	assert.Empty(t, empty)
}
