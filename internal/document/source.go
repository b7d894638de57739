// Package document turns knowledge files into plain text.
package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"callbot/internal/domain"
)

// Source extracts text by file extension: .pdf, .md/.markdown, .html/.htm,
// anything else is read as UTF-8 text.
type Source struct {
	logger  *zap.Logger
	tempDir string
}

type Option func(*Source)

// WithTempDir sets where PDF scratch files go. Defaults to os.TempDir.
func WithTempDir(dir string) Option {
	return func(s *Source) { s.tempDir = dir }
}

func NewSource(logger *zap.Logger, opts ...Option) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Source{logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Source) Extract(ctx context.Context, path string) (domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: read %s: %w", domain.ErrDocumentExtraction, path, err)
	}
	doc, err := s.ExtractBytes(ctx, filepath.Base(path), data)
	doc.Path = path
	return doc, err
}

func (s *Source) ExtractBytes(ctx context.Context, name string, data []byte) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}
	var (
		content string
		err     error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		content, err = s.pdfText(data)
	case ".md", ".markdown":
		content = markdownText(data)
	case ".html", ".htm":
		content, err = htmlText(data)
	default:
		if !utf8.Valid(data) {
			err = fmt.Errorf("%s is not valid UTF-8 text", name)
		}
		content = string(data)
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: %s: %w", domain.ErrDocumentExtraction, name, err)
	}
	content = strings.TrimSpace(content)
	s.logger.Debug("document extracted",
		zap.String("name", name),
		zap.Int("bytes", len(data)),
		zap.Int("chars", utf8.RuneCountInString(content)),
	)
	return domain.Document{ID: uuid.NewString(), Path: name, Content: content}, nil
}

func htmlText(data []byte) (string, error) {
	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(string(data))
	if err != nil {
		return "", err
	}
	return markdownText([]byte(markdown)), nil
}
