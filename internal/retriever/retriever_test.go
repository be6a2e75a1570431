package retriever

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledgehub/internal/domain"
	"knowledgehub/internal/embedding/hashing"
	"knowledgehub/internal/vectorstore"
	"knowledgehub/internal/vectorstore/memory"
)

type stubSearcher struct {
	results []domain.SearchResult
	err     error
	gotTopK int
}

func (s *stubSearcher) Search(_ context.Context, _ string, topK int, _ vectorstore.Filter) ([]domain.SearchResult, error) {
	s.gotTopK = topK
	return s.results, s.err
}

func result(doc string, idx int, score float64, at time.Time) domain.SearchResult {
	return domain.SearchResult{Chunk: domain.Chunk{DocumentID: doc, Index: idx}, Score: score, IngestedAt: at}
}

func TestRetrieveDefaultsTopK(t *testing.T) {
	s := &stubSearcher{}
	_, err := New(s, 0, 0).Retrieve(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Equal(t, 10, s.gotTopK)

	_, err = New(s, 8, 0).Retrieve(context.Background(), "q", -1)
	require.NoError(t, err)
	assert.Equal(t, 16, s.gotTopK)
}

func TestRetrieveFiltersByMinScore(t *testing.T) {
	now := time.Now()
	s := &stubSearcher{results: []domain.SearchResult{
		result("a", 0, 0.9, now),
		result("b", 0, 0.29, now),
		result("c", 0, 0.3, now),
	}}
	res, err := New(s, 5, 0.3).Retrieve(context.Background(), "q", 5)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "a", res[0].Chunk.DocumentID)
	assert.Equal(t, "c", res[1].Chunk.DocumentID)
}

func TestRetrieveBreaksTiesDeterministically(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)
	s := &stubSearcher{results: []domain.SearchResult{
		result("z", 1, 0.5, t0),
		result("a", 0, 0.5, t1),
		result("z", 0, 0.5, t0),
		result("m", 3, 0.5, t0),
		result("q", 0, 0.7, t1),
	}}
	res, err := New(s, 5, 0).Retrieve(context.Background(), "q", 5)
	require.NoError(t, err)

	var got []string
	for _, r := range res {
		got = append(got, r.Chunk.DocumentID+string(rune('0'+r.Chunk.Index)))
	}
	assert.Equal(t, []string{"q0", "m3", "z0", "z1", "a0"}, got)
}

func TestRetrievePropagatesErrors(t *testing.T) {
	s := &stubSearcher{err: &domain.OpError{Kind: domain.ErrStorageUnavailable, Op: "search"}}
	_, err := New(s, 5, 0).Retrieve(context.Background(), "q", 5)
	assert.True(t, errors.Is(err, domain.ErrStorageUnavailable))
}

func TestRetrieveTopOnePrefersEarlierIngestion(t *testing.T) {
	ctx := context.Background()
	store, err := vectorstore.NewStore(ctx, memory.NewIndex(), hashing.NewEmbedder(64), vectorstore.Options{})
	require.NoError(t, err)
	for _, name := range []string{"first.txt", "second.txt"} {
		_, err := store.AddDocuments(ctx, []domain.Chunk{{
			DocumentID: domain.DocumentID(name),
			Filename:   name,
			Text:       "machine learning basics",
		}})
		require.NoError(t, err)
	}

	res, err := New(store, 5, 0).Retrieve(ctx, "machine learning", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "first.txt", res[0].Chunk.Filename)
}

// limitSearcher honours topK but lists tied results latest first.
type limitSearcher struct {
	results []domain.SearchResult
	calls   []int
}

func (s *limitSearcher) Search(_ context.Context, _ string, topK int, _ vectorstore.Filter) ([]domain.SearchResult, error) {
	s.calls = append(s.calls, topK)
	if topK > len(s.results) {
		topK = len(s.results)
	}
	return s.results[:topK], nil
}

func TestRetrieveWidensSearchWhileCutoffIsTied(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var results []domain.SearchResult
	for i := 5; i >= 0; i-- {
		results = append(results, result(string(rune('a'+i)), 0, 0.5, t0.Add(time.Duration(i)*time.Minute)))
	}
	s := &limitSearcher{results: results}

	res, err := New(s, 5, 0).Retrieve(context.Background(), "q", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "a", res[0].Chunk.DocumentID)
	assert.Equal(t, []int{2, 4, 8}, s.calls)
}
