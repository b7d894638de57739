package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"callbot/internal/domain"
	"callbot/internal/vectorstore"
)

// Storage is a minimal REST client to Qdrant.
type Storage struct {
	url    string
	apiKey string
	client *http.Client

	mu         sync.Mutex
	dimensions map[string]int
}

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// errNotFound marks a 404 from Qdrant; callers decide whether it matters.
var errNotFound = errors.New("not found")

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		client:     &http.Client{Timeout: timeout},
		dimensions: make(map[string]int),
	}
}

// ResetCollection deletes the collection (a missing one is fine) and
// creates it again with the given vector size.
func (s *Storage) ResetCollection(ctx context.Context, name string, dimension int, distance domain.Distance) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", domain.ErrInvalidArgument, dimension)
	}
	if err := vectorstore.ValidateDistance(distance); err != nil {
		return err
	}
	if err := s.do(ctx, http.MethodDelete, s.collectionURL(name), nil, nil); err != nil && !errors.Is(err, errNotFound) {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": qdrantDistance(distance),
		},
	}
	if err := s.do(ctx, http.MethodPut, s.collectionURL(name), body, nil); err != nil {
		return err
	}
	s.mu.Lock()
	s.dimensions[name] = dimension
	s.mu.Unlock()
	return nil
}

func (s *Storage) Upsert(ctx context.Context, name string, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}
	dim, err := s.dimension(ctx, name)
	if err != nil {
		return err
	}
	if err := vectorstore.CheckPoints(points, dim); err != nil {
		return err
	}
	out := make([]map[string]any, len(points))
	for i, p := range points {
		out[i] = map[string]any{
			"id":     pointID(p.ID),
			"vector": p.Vector,
			"payload": map[string]any{
				"point_id":    p.ID,
				"context":     p.Payload.Context,
				"document_id": p.Payload.DocumentID,
				"chunk_index": p.Payload.ChunkIndex,
			},
		}
	}
	body := map[string]any{"points": out}
	return s.do(ctx, http.MethodPut, s.collectionURL(name)+"/points?wait=true", body, nil)
}

func (s *Storage) Search(ctx context.Context, name string, vector []float32, k int) ([]domain.Match, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", domain.ErrInvalidArgument, k)
	}
	dim, err := s.lookupDimension(ctx, name)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := vectorstore.CheckQuery(vector, k, dim); err != nil {
		return nil, err
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      any     `json:"id"`
			Score   float64 `json:"score"`
			Payload struct {
				PointID    string `json:"point_id"`
				Context    string `json:"context"`
				DocumentID string `json:"document_id"`
				ChunkIndex int    `json:"chunk_index"`
			} `json:"payload"`
		} `json:"result"`
	}
	err = s.do(ctx, http.MethodPost, s.collectionURL(name)+"/points/search", req, &resp)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	results := make([]domain.Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		id := r.Payload.PointID
		if id == "" {
			id = fmt.Sprint(r.ID)
		}
		results = append(results, domain.Match{
			ID: id,
			Payload: domain.Payload{
				Context:    r.Payload.Context,
				DocumentID: r.Payload.DocumentID,
				ChunkIndex: r.Payload.ChunkIndex,
			},
			Score: r.Score,
		})
	}
	return results, nil
}

// dimension returns the vector size of a collection, asking Qdrant when the
// collection was created by another process.
func (s *Storage) dimension(ctx context.Context, name string) (int, error) {
	dim, err := s.lookupDimension(ctx, name)
	if errors.Is(err, errNotFound) {
		return 0, fmt.Errorf("%w: collection %q does not exist", domain.ErrInvalidArgument, name)
	}
	return dim, err
}

// lookupDimension returns errNotFound for a missing collection.
func (s *Storage) lookupDimension(ctx context.Context, name string) (int, error) {
	s.mu.Lock()
	dim, ok := s.dimensions[name]
	s.mu.Unlock()
	if ok {
		return dim, nil
	}
	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, s.collectionURL(name), nil, &info); err != nil {
		return 0, err
	}
	dim = info.Result.Config.Params.Vectors.Size
	s.mu.Lock()
	s.dimensions[name] = dim
	s.mu.Unlock()
	return dim, nil
}

func (s *Storage) collectionURL(name string) string {
	return fmt.Sprintf("%s/collections/%s", s.url, url.PathEscape(name))
}

func (s *Storage) do(ctx context.Context, method, target string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: qdrant %s %s: %w", domain.ErrIndexUnavailable, method, target, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: qdrant %s %s: %s", domain.ErrIndexUnavailable, method, target, resp.Status)
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		detail := strings.TrimSpace(string(msg))
		sentinel := domain.ErrIndexUnavailable
		if resp.StatusCode == http.StatusBadRequest && isDimensionError(detail) {
			sentinel = domain.ErrDimensionMismatch
		}
		return fmt.Errorf("%w: qdrant %s %s: %s: %s", sentinel, method, target, resp.Status, detail)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// isDimensionError reports whether a Qdrant error body rejects a vector size.
func isDimensionError(body string) bool {
	body = strings.ToLower(body)
	return strings.Contains(body, "dimension") || strings.Contains(body, "vector size")
}

// pointID maps arbitrary ids onto the UUIDs Qdrant accepts. The original id
// travels in the payload.
func pointID(id string) string {
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func qdrantDistance(d domain.Distance) string {
	if d == domain.DistanceDot {
		return "Dot"
	}
	return "Cosine"
}
