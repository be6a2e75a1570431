package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledgehub/internal/chunker"
	"knowledgehub/internal/domain"
	"knowledgehub/internal/embedding/hashing"
	"knowledgehub/internal/generator"
	"knowledgehub/internal/retriever"
	"knowledgehub/internal/vectorstore"
	"knowledgehub/internal/vectorstore/memory"
)

type stubAnalyzer struct {
	generator.Generator
	analysis domain.Analysis
	err      error
	calls    int
}

func (s *stubAnalyzer) Analyze(_ context.Context, _ string, _ int) (domain.Analysis, error) {
	s.calls++
	return s.analysis, s.err
}

func newTestHub(t *testing.T, gen generator.Generator, analysis bool) *Hub {
	t.Helper()
	ctx := context.Background()
	emb := hashing.NewEmbedder(256)
	store, err := vectorstore.NewStore(ctx, memory.NewIndex(), emb, vectorstore.Options{BatchSize: 4, Concurrency: 2})
	require.NoError(t, err)
	ch, err := chunker.New(chunker.Options{Size: 200, Overlap: 40})
	require.NoError(t, err)
	if gen == nil {
		gen = generator.NewExtractive(2, generator.AnalysisLimits{})
	}
	p := NewPipeline(retriever.New(store, 5, 0), gen, "", nil)
	return NewHub(HubOptions{
		Chunker:   ch,
		Store:     store,
		Pipeline:  p,
		Generator: gen,
		Analysis:  AnalysisOptions{Enabled: analysis},
		Embedder:  emb.Name(),
	})
}

var corpus = map[string]string{
	"ml.txt":        "Machine learning is a subset of artificial intelligence. Machine learning systems learn patterns from data instead of following explicit rules.",
	"cooking.md":    "# Bread\n\nKnead the dough for ten minutes. Let the bread rise in a warm kitchen before baking.",
	"astronomy.txt": "Jupiter is the largest planet in the solar system. Its great red spot is a storm larger than Earth.",
}

func ingestCorpus(t *testing.T, h *Hub) map[string]string {
	t.Helper()
	ids := map[string]string{}
	for name, text := range corpus {
		res, err := h.Upload(context.Background(), name, []byte(text))
		require.NoError(t, err)
		require.False(t, res.Duplicate)
		require.Positive(t, res.ChunksCreated)
		ids[name] = res.DocumentID
	}
	return ids
}

func TestQueryFindsMachineLearningDocument(t *testing.T) {
	h := newTestHub(t, nil, false)
	ids := ingestCorpus(t, h)

	ans, err := h.Query(context.Background(), "What is machine learning?", 3, "")
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(ans.Text))
	require.NotEmpty(t, ans.Sources)
	assert.Equal(t, ids["ml.txt"], ans.Sources[0].DocumentID)
	assert.Equal(t, "ml.txt", ans.Sources[0].Filename)
	assert.Contains(t, ans.Text, "Machine learning")
	assert.True(t, ans.Grounded())
}

func TestQueryWithEmptyIndexIsUngrounded(t *testing.T) {
	h := newTestHub(t, nil, false)

	ans, err := h.Query(context.Background(), "Who won the 1998 World Cup?", 3, "")
	require.NoError(t, err)
	assert.NotEmpty(t, ans.Text)
	require.NotNil(t, ans.Sources)
	assert.Empty(t, ans.Sources)
	assert.False(t, ans.Grounded())
}

func TestQueryRejectsEmptyQuestion(t *testing.T) {
	h := newTestHub(t, nil, false)
	_, err := h.Query(context.Background(), "   ", 3, "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestQueryStreamMatchesQuery(t *testing.T) {
	h := newTestHub(t, nil, false)
	ingestCorpus(t, h)
	ctx := context.Background()

	full, err := h.Query(ctx, "What is machine learning?", 3, "")
	require.NoError(t, err)

	stream, sources, err := h.QueryStream(ctx, "What is machine learning?", 3, "")
	require.NoError(t, err)
	text, err := generator.Collect(ctx, stream)
	require.NoError(t, err)
	assert.Equal(t, full.Text, text)
	assert.Equal(t, full.Sources, sources)
}

func TestUploadDuplicateIsNotAnError(t *testing.T) {
	h := newTestHub(t, nil, false)
	ctx := context.Background()

	first, err := h.Upload(ctx, "ml.txt", []byte(corpus["ml.txt"]))
	require.NoError(t, err)
	before, err := h.Stats(ctx)
	require.NoError(t, err)

	second, err := h.Upload(ctx, "/elsewhere/ml.txt", []byte("different body, same name"))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, domain.StatusDuplicate, second.Status)
	assert.Zero(t, second.ChunksCreated)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.NotEmpty(t, second.KeyTerms)
	assert.NotNil(t, second.QAPairs)

	after, err := h.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUploadUnsupportedFormat(t *testing.T) {
	h := newTestHub(t, nil, false)
	_, err := h.Upload(context.Background(), "photo.png", []byte{0x89, 'P', 'N', 'G'})
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

func TestUploadRejectsDocumentWithoutText(t *testing.T) {
	h := newTestHub(t, nil, false)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := h.Upload(ctx, "blank.txt", []byte("  \n\n "))
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		assert.Contains(t, err.Error(), "no extractable text")
		assert.Empty(t, res.Status)
	}

	stats, err := h.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalChunks)
	assert.Zero(t, stats.TotalDocuments)
}

func TestUploadDuplicateStillAnalyses(t *testing.T) {
	stub := &stubAnalyzer{
		Generator: generator.NewExtractive(2, generator.AnalysisLimits{}),
		analysis:  domain.Analysis{Summary: "About ML.", KeyTerms: []domain.KeyTerm{}, QAPairs: []domain.QAPair{}},
	}
	h := newTestHub(t, stub, true)
	ctx := context.Background()

	_, err := h.Upload(ctx, "ml.txt", []byte(corpus["ml.txt"]))
	require.NoError(t, err)
	dup, err := h.Upload(ctx, "ml.txt", []byte(corpus["ml.txt"]))
	require.NoError(t, err)
	assert.True(t, dup.Duplicate)
	assert.Equal(t, 2, stub.calls)
	assert.Equal(t, "About ML.", dup.Summary)
}

func TestUploadUsesGeneratorAnalysis(t *testing.T) {
	stub := &stubAnalyzer{
		Generator: generator.NewExtractive(2, generator.AnalysisLimits{}),
		analysis: domain.Analysis{
			Summary:  "About ML.",
			KeyTerms: []domain.KeyTerm{{Term: "ML", Definition: "machine learning"}},
			QAPairs:  []domain.QAPair{{Question: "What?", Answer: "ML."}},
		},
	}
	h := newTestHub(t, stub, true)

	res, err := h.Upload(context.Background(), "ml.txt", []byte(corpus["ml.txt"]))
	require.NoError(t, err)
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, "About ML.", res.Summary)
	assert.Len(t, res.QAPairs, 1)
}

func TestUploadFallsBackToLocalSummary(t *testing.T) {
	stub := &stubAnalyzer{
		Generator: generator.NewExtractive(2, generator.AnalysisLimits{}),
		err:       domain.NewOpError(domain.ErrGeneration, "analyze", "boom", nil),
	}
	h := newTestHub(t, stub, true)

	res, err := h.Upload(context.Background(), "ml.txt", []byte(corpus["ml.txt"]))
	require.NoError(t, err)
	assert.Equal(t, 1, stub.calls)
	assert.Contains(t, res.Summary, "Machine learning")
	require.NotEmpty(t, res.KeyTerms)
	assert.Empty(t, res.KeyTerms[0].Definition)
	assert.NotNil(t, res.QAPairs)
	assert.Empty(t, res.QAPairs)
}

func TestUploadSkipsGeneratorWhenAnalysisDisabled(t *testing.T) {
	stub := &stubAnalyzer{Generator: generator.NewExtractive(2, generator.AnalysisLimits{})}
	h := newTestHub(t, stub, false)

	res, err := h.Upload(context.Background(), "ml.txt", []byte(corpus["ml.txt"]))
	require.NoError(t, err)
	assert.Zero(t, stub.calls)
	assert.NotEmpty(t, res.Summary)
}

func TestDeleteDocument(t *testing.T) {
	h := newTestHub(t, nil, false)
	ctx := context.Background()
	ids := ingestCorpus(t, h)

	before, err := h.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, before.TotalDocuments)

	deleted, err := h.DeleteDocument(ctx, ids["ml.txt"])
	require.NoError(t, err)
	assert.True(t, deleted)

	after, err := h.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, after.TotalDocuments)
	assert.Less(t, after.TotalChunks, before.TotalChunks)

	deleted, err = h.DeleteDocument(ctx, ids["ml.txt"])
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = h.DeleteDocument(ctx, "")
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestIngestFileAndHealth(t *testing.T) {
	h := newTestHub(t, nil, false)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte(corpus["astronomy.txt"]), 0o644))

	res, err := h.IngestFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", res.Filename)
	assert.Equal(t, domain.DocumentID("notes.txt"), res.DocumentID)

	health := h.Health(ctx)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, res.ChunksCreated, health.Points)
	assert.Equal(t, 1, health.Documents)
	assert.Equal(t, 256, health.Dimension)
	assert.Equal(t, "extractive", health.Model)
}

func TestJoinChunksRebuildsText(t *testing.T) {
	ch, err := chunker.New(chunker.Options{Size: 60, Overlap: 15})
	require.NoError(t, err)
	text := strings.Repeat("Überall wachsen Bäume. ", 20)
	chunks, err := ch.ProcessBytes("trees.txt", []byte(text))
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	assert.Equal(t, chunker.Normalize(text), joinChunks(chunks))
}

func TestSourcesDeduplicatesByDocument(t *testing.T) {
	chunks := []domain.SearchResult{
		{Chunk: domain.Chunk{DocumentID: "a", Filename: "a.txt", Index: 2}, Score: 0.9},
		{Chunk: domain.Chunk{DocumentID: "b", Filename: "b.txt", Index: 0}, Score: 0.8},
		{Chunk: domain.Chunk{DocumentID: "a", Filename: "a.txt", Index: 0}, Score: 0.7},
	}
	got := Sources(chunks)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].DocumentID)
	assert.Equal(t, 2, got[0].ChunkIndex)
	assert.InDelta(t, 0.9, got[0].Score, 1e-9)
	assert.Equal(t, "b", got[1].DocumentID)

	assert.NotNil(t, Sources(nil))
}
