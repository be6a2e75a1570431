package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"knowledgehub/internal/chunker"
	"knowledgehub/internal/config"
	"knowledgehub/internal/domain"
	"knowledgehub/internal/embedding"
	"knowledgehub/internal/embedding/hashing"
	"knowledgehub/internal/embedding/openai"
	"knowledgehub/internal/generator"
	"knowledgehub/internal/logger"
	"knowledgehub/internal/registry"
	"knowledgehub/internal/retriever"
	"knowledgehub/internal/service"
	"knowledgehub/internal/vectorstore"
	"knowledgehub/internal/vectorstore/memory"
	"knowledgehub/internal/vectorstore/qdrant"
)

// App holds the assembled components for one process.
type App struct {
	Config *config.AppConfig
	Log    *logger.Logger
	Hub    *service.Hub

	closers []func() error
}

// Close releases connections opened by Build, last opened first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Build wires every component selected by cfg.
func Build(ctx context.Context, cfg *config.AppConfig, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}
	a := &App{Config: cfg, Log: log}
	hub, err := a.build(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Hub = hub
	return a, nil
}

func (a *App) build(ctx context.Context) (*service.Hub, error) {
	cfg := a.Config

	emb, err := a.embedder(ctx)
	if err != nil {
		return nil, err
	}

	ch, err := chunker.New(chunker.Options{
		Size:             cfg.Chunker.ChunkSize,
		Overlap:          cfg.Chunker.ChunkOverlap,
		BoundaryWindow:   cfg.Chunker.BoundaryWindow,
		ContentAddressed: cfg.Chunker.ContentAddressed,
	})
	if err != nil {
		return nil, err
	}

	store, err := a.store(ctx, emb)
	if err != nil {
		return nil, err
	}

	gen, err := a.generator()
	if err != nil {
		return nil, err
	}

	ret := retriever.New(store, cfg.Retriever.TopK, cfg.Retriever.MinScore)
	pipeline := service.NewPipeline(ret, gen, cfg.Generator.SystemPrompt, a.Log)
	return service.NewHub(service.HubOptions{
		Chunker:   ch,
		Store:     store,
		Pipeline:  pipeline,
		Generator: gen,
		Analysis: service.AnalysisOptions{
			Enabled:      cfg.Analysis.Enabled,
			MaxChars:     cfg.Analysis.MaxChars,
			MaxSentences: cfg.Analysis.MaxSentences,
			MaxKeyTerms:  cfg.Analysis.MaxKeyTerms,
		},
		Embedder: emb.Name(),
		Logger:   a.Log,
	}), nil
}

func (a *App) embedder(ctx context.Context) (domain.Embedder, error) {
	cfg := a.Config
	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "hashing", "":
		emb = hashing.NewEmbedder(cfg.Embedder.Dimension)
	case "openai":
		oc := cfg.Embedder.OpenAI
		client, err := openai.NewClient(openai.Config{
			BaseURL:   oc.BaseURL,
			APIKeyEnv: oc.APIKeyEnv,
			Model:     oc.Model,
			Dimension: cfg.Embedder.Dimension,
			Timeout:   config.Seconds(oc.TimeoutSecs),
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder: %w", err)
		}
		emb = client
	default:
		return nil, &domain.ConfigError{Field: "embedder.type", Reason: fmt.Sprintf("unknown embedder %q", cfg.Embedder.Type)}
	}

	if cfg.Cache.Type != "redis" {
		return emb, nil
	}
	cache, err := embedding.NewRedisCache(ctx, embedding.RedisOptions{
		Addr:     cfg.Cache.RedisAddr,
		Password: os.Getenv(cfg.Cache.RedisPasswordEnv),
		DB:       cfg.Cache.RedisDB,
		TTL:      config.Seconds(cfg.Cache.TTLSecs),
	})
	if err != nil {
		a.Log.Warn("embedding cache disabled", "addr", cfg.Cache.RedisAddr, "error", err)
		return emb, nil
	}
	a.closers = append(a.closers, cache.Close)
	return embedding.NewCachedEmbedder(emb, cache, a.Log), nil
}

func (a *App) store(ctx context.Context, emb domain.Embedder) (*vectorstore.Store, error) {
	cfg := a.Config
	opts := vectorstore.Options{
		BatchSize:   cfg.Embedder.BatchSize,
		Concurrency: cfg.Embedder.Concurrency,
		Logger:      a.Log,
	}

	switch cfg.VectorStore.Type {
	case "memory", "":
		if cfg.Registry.Enabled {
			// registry rows would outlive the in-process index
			a.Log.Warn("document registry ignored with the memory vector store")
		}
		return vectorstore.NewStore(ctx, memory.NewIndex(), emb, opts)
	case "qdrant":
	default:
		return nil, &domain.ConfigError{Field: "vector_store.type", Reason: fmt.Sprintf("unknown vector store %q", cfg.VectorStore.Type)}
	}

	qc := cfg.VectorStore.Qdrant
	index := qdrant.NewIndex(qdrant.Config{
		URL:        qc.URL,
		APIKey:     os.Getenv(qc.APIKeyEnv),
		Collection: qc.Collection,
		Timeout:    config.Seconds(qc.TimeoutSecs),
	}, a.Log)

	if cfg.Registry.Enabled {
		reg, err := registry.Open(cfg.Registry.Path, a.Log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, reg.Close)
		opts.Registry = reg
	}

	store, err := vectorstore.NewStore(ctx, index, emb, opts)
	if err == nil {
		return store, nil
	}
	if !cfg.VectorStore.FallbackMemory || !errors.Is(err, domain.ErrStorageUnavailable) {
		return nil, err
	}
	a.Log.Warn("qdrant unavailable, falling back to the in-memory index", "url", qc.URL, "error", err)
	opts.Registry = nil
	return vectorstore.NewStore(ctx, memory.NewIndex(), emb, opts)
}

func (a *App) generator() (generator.Generator, error) {
	cfg := a.Config
	switch cfg.Generator.Type {
	case "extractive", "":
		return generator.NewExtractive(3, generator.AnalysisLimits{
			MaxSentences: cfg.Analysis.MaxSentences,
			MaxKeyTerms:  cfg.Analysis.MaxKeyTerms,
		}), nil
	case "openai":
		g, err := generator.NewOpenAI(generator.Config{
			BaseURL:       cfg.Generator.BaseURL,
			APIKeyEnv:     cfg.Generator.APIKeyEnv,
			Model:         cfg.Generator.Model,
			AnalysisModel: cfg.Generator.AnalysisModel,
			MaxTokens:     cfg.Generator.MaxTokens,
			Temperature:   cfg.Generator.Temperature,
			Timeout:       config.Seconds(cfg.Generator.TimeoutSecs),
			StreamTimeout: config.Seconds(cfg.Generator.StreamTimeoutSecs),
		}, a.Log)
		if err != nil {
			return nil, fmt.Errorf("openai generator: %w", err)
		}
		return g, nil
	default:
		return nil, &domain.ConfigError{Field: "generator.type", Reason: fmt.Sprintf("unknown generator %q", cfg.Generator.Type)}
	}
}
