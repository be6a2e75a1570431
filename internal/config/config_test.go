package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledgehub/internal/domain"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "hashing", cfg.Embedder.Type)
	assert.Equal(t, 512, cfg.Embedder.Dimension)
	assert.Equal(t, 1000, cfg.Chunker.ChunkSize)
	assert.Equal(t, 200, cfg.Chunker.ChunkOverlap)
	assert.Equal(t, 200, cfg.Chunker.BoundaryWindow)
	assert.Equal(t, 5, cfg.Retriever.TopK)
	assert.Equal(t, "memory", cfg.VectorStore.Type)
}

func TestParseAppliesTypeDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
embedder:
  type: openai
generator:
  type: openai
vector_store:
  type: qdrant
retriever:
  min_score: 0.3
`))
	require.NoError(t, err)
	assert.Equal(t, 3072, cfg.Embedder.Dimension)
	assert.Equal(t, "text-embedding-3-large", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	assert.Equal(t, "gpt-4o-mini", cfg.Generator.Model)
	assert.Equal(t, 1000, cfg.Generator.MaxTokens)
	assert.Equal(t, "http://localhost:6333", cfg.VectorStore.Qdrant.URL)
	assert.Equal(t, "ai_research_knowledge", cfg.VectorStore.Qdrant.Collection)
	assert.InDelta(t, 0.3, cfg.Retriever.MinScore, 1e-9)
}

func TestParseRejectsInvalidChunking(t *testing.T) {
	_, err := Parse([]byte(`
chunker:
  chunk_size: 100
  chunk_overlap: 100
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "chunker.chunk_overlap", cfgErr.Field)
}

func TestParseRejectsUnknownTypes(t *testing.T) {
	for _, doc := range []string{
		"embedder: {type: word2vec}",
		"generator: {type: llama}",
		"vector_store: {type: pinecone}",
		"cache: {type: memcached}",
		"vector_store: {type: qdrant, qdrant: {url: 'not a url'}}",
	} {
		_, err := Parse([]byte(doc))
		assert.ErrorIs(t, err, domain.ErrConfiguration, doc)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Retriever.TopK = 8
	require.NoError(t, Save(path, cfg))

	_, err := os.Stat(path)
	require.NoError(t, err)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, loaded.Retriever.TopK)
}
