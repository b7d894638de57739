package memory

import (
	"context"
	"fmt"
	"sync"

	"callbot/internal/domain"
	"callbot/internal/vectorstore"
)

// Storage is a simple in-memory vector store using brute-force similarity.
type Storage struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

type collection struct {
	dimension int
	distance  domain.Distance
	index     map[string]int
	points    []domain.Point
}

func NewStorage() *Storage {
	return &Storage{collections: make(map[string]*collection)}
}

func (s *Storage) ResetCollection(_ context.Context, name string, dimension int, distance domain.Distance) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", domain.ErrInvalidArgument, dimension)
	}
	if err := vectorstore.ValidateDistance(distance); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[name] = &collection{
		dimension: dimension,
		distance:  distance,
		index:     make(map[string]int),
	}
	return nil
}

func (s *Storage) Upsert(_ context.Context, name string, points []domain.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		if len(points) == 0 {
			return nil
		}
		return fmt.Errorf("%w: collection %q does not exist", domain.ErrInvalidArgument, name)
	}
	if err := vectorstore.CheckPoints(points, c.dimension); err != nil {
		return err
	}
	for _, p := range points {
		p.Vector = append([]float32(nil), p.Vector...)
		if i, ok := c.index[p.ID]; ok {
			c.points[i] = p
			continue
		}
		c.index[p.ID] = len(c.points)
		c.points = append(c.points, p)
	}
	return nil
}

func (s *Storage) Search(_ context.Context, name string, vector []float32, k int) ([]domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		if k < 1 {
			return nil, fmt.Errorf("%w: k must be >= 1, got %d", domain.ErrInvalidArgument, k)
		}
		return nil, nil
	}
	if err := vectorstore.CheckQuery(vector, k, c.dimension); err != nil {
		return nil, err
	}
	matches := make([]domain.Match, len(c.points))
	for i, p := range c.points {
		matches[i] = domain.Match{ID: p.ID, Payload: p.Payload, Score: vectorstore.Score(c.distance, vector, p.Vector)}
	}
	return vectorstore.TopK(matches, k), nil
}

// Len reports the number of points in a collection.
func (s *Storage) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.collections[name]; ok {
		return len(c.points)
	}
	return 0
}
