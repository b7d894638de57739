// Package storetest holds behaviour tests shared by every vector store.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callbot/internal/domain"
)

const collection = "knowledge_base"

func point(id string, v ...float32) domain.Point {
	return domain.Point{ID: id, Vector: v, Payload: domain.Payload{Context: "ctx-" + id}}
}

// Run exercises the store returned by newStore. Each subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) domain.VectorIndex) {
	ctx := context.Background()

	t.Run("ResetCreatesMissingCollection", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.ResetCollection(ctx, collection, 3, domain.DistanceCosine))
		res, err := s.Search(ctx, collection, []float32{1, 0, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("SearchNeverCreatedCollectionIsEmpty", func(t *testing.T) {
		s := newStore(t)
		res, err := s.Search(ctx, "never-created", []float32{1, 0, 0}, 8)
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("DoubleResetLeavesNoStalePoints", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.ResetCollection(ctx, collection, 2, domain.DistanceCosine))
		require.NoError(t, s.Upsert(ctx, collection, []domain.Point{point("a", 1, 0), point("b", 0, 1)}))
		require.NoError(t, s.ResetCollection(ctx, collection, 2, domain.DistanceCosine))
		require.NoError(t, s.ResetCollection(ctx, collection, 2, domain.DistanceCosine))

		res, err := s.Search(ctx, collection, []float32{1, 0}, 8)
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("SearchReturnsAllWhenFewerThanK", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.ResetCollection(ctx, collection, 2, domain.DistanceCosine))
		require.NoError(t, s.Upsert(ctx, collection, []domain.Point{
			point("far", -1, 0),
			point("near", 1, 0.1),
			point("mid", 0.5, 1),
		}))

		res, err := s.Search(ctx, collection, []float32{1, 0}, 8)
		require.NoError(t, err)
		require.Len(t, res, 3)
		assert.Equal(t, "ctx-near", res[0].Payload.Context)
		assert.Equal(t, "ctx-mid", res[1].Payload.Context)
		assert.Equal(t, "ctx-far", res[2].Payload.Context)
		for i := 1; i < len(res); i++ {
			assert.GreaterOrEqual(t, res[i-1].Score, res[i].Score)
		}
	})

	t.Run("SearchTruncatesToK", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.ResetCollection(ctx, collection, 2, domain.DistanceCosine))
		var pts []domain.Point
		for i := 0; i < 10; i++ {
			pts = append(pts, point(fmt.Sprintf("p%d", i), float32(i+1), 1))
		}
		require.NoError(t, s.Upsert(ctx, collection, pts))

		res, err := s.Search(ctx, collection, []float32{1, 0}, 1)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "ctx-p9", res[0].Payload.Context)
	})

	t.Run("UpsertReplacesByID", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.ResetCollection(ctx, collection, 2, domain.DistanceCosine))
		require.NoError(t, s.Upsert(ctx, collection, []domain.Point{point("a", 1, 0)}))
		replaced := point("a", 0, 1)
		replaced.Payload.Context = "updated"
		require.NoError(t, s.Upsert(ctx, collection, []domain.Point{replaced}))

		res, err := s.Search(ctx, collection, []float32{0, 1}, 8)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "updated", res[0].Payload.Context)
		assert.InDelta(t, 1.0, res[0].Score, 1e-6)
	})

	t.Run("UpsertRejectsWrongDimension", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.ResetCollection(ctx, collection, 3, domain.DistanceCosine))
		err := s.Upsert(ctx, collection, []domain.Point{point("a", 1, 0, 0), point("b", 1, 0)})
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	})

	t.Run("EmptyUpsertIsNoop", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.ResetCollection(ctx, collection, 3, domain.DistanceCosine))
		assert.NoError(t, s.Upsert(ctx, collection, nil))
	})

	t.Run("SearchRejectsKBelowOne", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.ResetCollection(ctx, collection, 2, domain.DistanceCosine))
		_, err := s.Search(ctx, collection, []float32{1, 0}, 0)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})

	t.Run("PayloadRoundTrip", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.ResetCollection(ctx, collection, 2, domain.DistanceCosine))
		p := domain.Point{ID: "3f1c2b8e-9d3a-4c55-8a3e-0f8d7b6a5c41", Vector: []float32{1, 1}, Payload: domain.Payload{
			Context: "We open at 9am.", DocumentID: "doc", ChunkIndex: 4,
		}}
		require.NoError(t, s.Upsert(ctx, collection, []domain.Point{p}))

		res, err := s.Search(ctx, collection, []float32{1, 1}, 1)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, p.Payload, res[0].Payload)
		assert.Equal(t, p.ID, res[0].ID)
	})
}
