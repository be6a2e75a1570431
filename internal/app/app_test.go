package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledgehub/internal/config"
	"knowledgehub/internal/domain"
)

func TestBuildDefaultConfigWorksOffline(t *testing.T) {
	a, err := Build(context.Background(), config.DefaultConfig(), nil)
	require.NoError(t, err)
	defer a.Close()

	res, err := a.Hub.Upload(context.Background(), "ml.txt", []byte("Machine learning is a subset of artificial intelligence."))
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChunksCreated)

	ans, err := a.Hub.Query(context.Background(), "What is machine learning?", 3, "")
	require.NoError(t, err)
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "extractive", ans.Model)
}

func deadQdrantConfig(t *testing.T, fallback bool) *config.AppConfig {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg, err := config.Parse([]byte("vector_store:\n  type: qdrant\n  fallback_memory: " + map[bool]string{true: "true", false: "false"}[fallback] + "\n  qdrant:\n    url: " + url + "\n    timeout_secs: 1\n"))
	require.NoError(t, err)
	return cfg
}

func TestBuildQdrantUnavailableFails(t *testing.T) {
	_, err := Build(context.Background(), deadQdrantConfig(t, false), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestBuildQdrantUnavailableFallsBackWhenAllowed(t *testing.T) {
	a, err := Build(context.Background(), deadQdrantConfig(t, true), nil)
	require.NoError(t, err)
	defer a.Close()

	health := a.Hub.Health(context.Background())
	assert.Equal(t, "healthy", health.Status)
}

func TestBuildOpenAIWithoutKeyIsConfigurationError(t *testing.T) {
	t.Setenv("KH_TEST_MISSING_KEY", "")
	cfg, err := config.Parse([]byte("generator:\n  type: openai\n  api_key_env: KH_TEST_MISSING_KEY\n"))
	require.NoError(t, err)

	_, err = Build(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestBuildSkipsUnreachableCache(t *testing.T) {
	cfg, err := config.Parse([]byte("cache:\n  type: redis\n  redis_addr: 127.0.0.1:1\n"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	a, err := Build(ctx, cfg, nil)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, "hashing", a.Hub.Health(context.Background()).Embedder)
}
