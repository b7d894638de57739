package domain

import "errors"

// Stage failures. Implementations wrap the underlying cause so callers can
// test the category with errors.Is.
var (
	ErrDocumentExtraction   = errors.New("document extraction failed")
	ErrEmbeddingFailure     = errors.New("embedding failed")
	ErrDimensionMismatch    = errors.New("vector dimension mismatch")
	ErrIndexUnavailable     = errors.New("vector index unavailable")
	ErrGenerationFailure    = errors.New("generation failed")
	ErrTranscriptionFailure = errors.New("transcription failed")
	ErrInvalidArgument      = errors.New("invalid argument")
)
