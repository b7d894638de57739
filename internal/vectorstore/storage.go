package vectorstore

import (
	"fmt"
	"math"
	"sort"

	"callbot/internal/domain"
)

// Storage persists vectors and supports similarity search.
type Storage = domain.VectorIndex

// ValidateDistance rejects metrics the stores do not implement.
func ValidateDistance(d domain.Distance) error {
	switch d {
	case domain.DistanceCosine, domain.DistanceDot:
		return nil
	default:
		return fmt.Errorf("%w: unsupported distance %q", domain.ErrInvalidArgument, d)
	}
}

// CheckPoints verifies that every point carries an id and a vector of the
// collection's dimension.
func CheckPoints(points []domain.Point, dimension int) error {
	for _, p := range points {
		if p.ID == "" {
			return fmt.Errorf("%w: point without id", domain.ErrInvalidArgument)
		}
		if len(p.Vector) != dimension {
			return fmt.Errorf("%w: point %s has %d dimensions, collection has %d", domain.ErrDimensionMismatch, p.ID, len(p.Vector), dimension)
		}
	}
	return nil
}

// CheckQuery validates a search request against the collection dimension.
func CheckQuery(vector []float32, k, dimension int) error {
	if k < 1 {
		return fmt.Errorf("%w: k must be >= 1, got %d", domain.ErrInvalidArgument, k)
	}
	if len(vector) != dimension {
		return fmt.Errorf("%w: query has %d dimensions, collection has %d", domain.ErrDimensionMismatch, len(vector), dimension)
	}
	return nil
}

// Score returns the similarity of a and b under d; higher is better.
// Cosine similarity against a zero vector is 0.
func Score(d domain.Distance, a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if d == domain.DistanceDot {
		return dot
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// TopK orders matches best-first and truncates to k. The sort is stable,
// so equal scores keep the order in which the caller listed them.
func TopK(matches []domain.Match, k int) []domain.Match {
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches
}
