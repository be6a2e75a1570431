package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledgehub/internal/domain"
	"knowledgehub/internal/vectorstore"
)

func record(docID string, idx int, vec ...float32) domain.Record {
	return domain.Record{
		PointID:    vectorstore.PointID(docID, idx),
		Vector:     vec,
		IngestedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Chunk: domain.Chunk{
			DocumentID: docID,
			Filename:   docID + ".txt",
			Index:      idx,
			Text:       "chunk text",
		},
	}
}

func seeded(t *testing.T) *Index {
	t.Helper()
	ctx := context.Background()
	idx := NewIndex()
	require.NoError(t, idx.EnsureCollection(ctx, 2))
	require.NoError(t, idx.Upsert(ctx, []domain.Record{
		record("a", 0, 1, 0),
		record("a", 1, 0.8, 0.6),
		record("b", 0, 0, 1),
	}))
	return idx
}

func TestSearchOrdersByCosine(t *testing.T) {
	idx := seeded(t)
	res, err := idx.Search(context.Background(), []float32{2, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, 0, res[0].Chunk.Index)
	assert.InDelta(t, 1.0, res[0].Score, 1e-6)
	assert.InDelta(t, 0.8, res[1].Score, 1e-6)
	assert.Equal(t, "a", res[0].Chunk.DocumentID)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), res[0].IngestedAt)
}

func TestSearchAppliesFilter(t *testing.T) {
	idx := seeded(t)
	res, err := idx.Search(context.Background(), []float32{1, 0}, 10, vectorstore.ByDocument("b"))
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "b", res[0].Chunk.DocumentID)
}

func TestUpsertOverwritesSamePoint(t *testing.T) {
	idx := seeded(t)
	require.NoError(t, idx.Upsert(context.Background(), []domain.Record{record("a", 0, 0, 1)}))
	n, err := idx.Count(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCountDeleteDistinct(t *testing.T) {
	ctx := context.Background()
	idx := seeded(t)

	n, err := idx.Count(ctx, vectorstore.ByDocument("a"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ids, err := idx.DistinctValues(ctx, vectorstore.KeyDocumentID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	require.NoError(t, idx.Delete(ctx, vectorstore.ByDocument("a")))
	n, err = idx.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDimensionChecks(t *testing.T) {
	ctx := context.Background()
	idx := seeded(t)

	_, err := idx.Search(ctx, []float32{1, 0, 0}, 1, nil)
	assert.ErrorIs(t, err, domain.ErrEmbeddingDimension)

	err = idx.Upsert(ctx, []domain.Record{record("c", 0, 1)})
	assert.ErrorIs(t, err, domain.ErrEmbeddingDimension)

	err = idx.EnsureCollection(ctx, 3)
	assert.ErrorIs(t, err, domain.ErrEmbeddingDimension)
}

func TestSearchKeepsInsertionOrderAmongTies(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex()
	require.NoError(t, idx.EnsureCollection(ctx, 2))
	var recs []domain.Record
	for _, doc := range []string{"d0", "d1", "d2", "d3", "d4", "d5"} {
		recs = append(recs, record(doc, 0, 1, 1))
	}
	require.NoError(t, idx.Upsert(ctx, recs))

	res, err := idx.Search(ctx, []float32{1, 1}, 3, nil)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, "d0", res[0].Chunk.DocumentID)
	assert.Equal(t, "d1", res[1].Chunk.DocumentID)
	assert.Equal(t, "d2", res[2].Chunk.DocumentID)
}
