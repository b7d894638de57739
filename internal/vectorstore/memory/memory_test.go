package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callbot/internal/domain"
	"callbot/internal/vectorstore/storetest"
)

func TestStorage(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.VectorIndex { return NewStorage() })
}

func TestStorage_TiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.ResetCollection(ctx, "c", 2, domain.DistanceCosine))
	require.NoError(t, s.Upsert(ctx, "c", []domain.Point{
		{ID: "first", Vector: []float32{1, 0}},
		{ID: "second", Vector: []float32{2, 0}},
	}))

	for i := 0; i < 5; i++ {
		res, err := s.Search(ctx, "c", []float32{1, 0}, 2)
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, "first", res[0].ID)
	}
	assert.Equal(t, 2, s.Len("c"))
}

func TestStorage_DotDistance(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.ResetCollection(ctx, "c", 2, domain.DistanceDot))
	require.NoError(t, s.Upsert(ctx, "c", []domain.Point{
		{ID: "small", Vector: []float32{1, 0}},
		{ID: "large", Vector: []float32{3, 0}},
	}))
	res, err := s.Search(ctx, "c", []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "large", res[0].ID)
}

func TestStorage_RejectsBadReset(t *testing.T) {
	s := NewStorage()
	assert.ErrorIs(t, s.ResetCollection(context.Background(), "c", 0, domain.DistanceCosine), domain.ErrInvalidArgument)
	assert.ErrorIs(t, s.ResetCollection(context.Background(), "c", 4, "euclid"), domain.ErrInvalidArgument)
}

func TestStorage_UpsertIntoMissingCollection(t *testing.T) {
	s := NewStorage()
	err := s.Upsert(context.Background(), "missing", []domain.Point{{ID: "a", Vector: []float32{1}}})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
