package domain

import (
	"context"
	"io"
	"time"
)

// Document is the raw text extracted from one knowledge source.
type Document struct {
	ID      string
	Path    string
	Content string
}

// Chunk is a length-bounded slice of a document used for indexing.
type Chunk struct {
	ID         string
	DocumentID string
	Index      int
	Offset     int
	Text       string
}

// Payload is the data stored next to a vector and handed back on search.
type Payload struct {
	Context    string `json:"context"`
	DocumentID string `json:"document_id,omitempty"`
	ChunkIndex int    `json:"chunk_index"`
}

// Point is a single entry of a vector index collection.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Match is a search hit; higher Score is a better match.
type Match struct {
	ID      string
	Payload Payload
	Score   float64
}

// Distance names the similarity metric of a collection.
type Distance string

const (
	DistanceCosine Distance = "cosine"
	DistanceDot    Distance = "dot"
)

// Speaker identifies who produced a conversation turn.
type Speaker string

const (
	SpeakerUser Speaker = "user"
	SpeakerBot  Speaker = "bot"
)

// Turn is one utterance in a conversation.
type Turn struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// UserProfile holds the booking fields picked up from free text.
// An empty field means the value has not been provided.
type UserProfile struct {
	Name          string `json:"name,omitempty"`
	Contact       string `json:"contact,omitempty"`
	PreferredTime string `json:"preferred_time,omitempty"`
}

// GenerationRequest is what the language model is asked to answer.
type GenerationRequest struct {
	SystemPrompt string
	Query        string
	Context      string
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Embedder maps text to fixed-length vectors, one per input and in input order.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex persists vectors and supports k-nearest-neighbour search.
type VectorIndex interface {
	// ResetCollection drops the named collection if present and recreates it empty.
	ResetCollection(ctx context.Context, name string, dimension int, distance Distance) error
	Upsert(ctx context.Context, collection string, points []Point) error
	Search(ctx context.Context, collection string, vector []float32, k int) ([]Match, error)
}

// DocumentSource turns files or uploaded bytes into plain text documents.
type DocumentSource interface {
	Extract(ctx context.Context, path string) (Document, error)
	ExtractBytes(ctx context.Context, name string, data []byte) (Document, error)
}

// Generator produces a single reply from a prompt.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// Transcriber converts recorded speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}
