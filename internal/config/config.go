package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"knowledgehub/internal/domain"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
// Dimension is the output dimensionality the index is built with.
type EmbedderConfig struct {
	Type        string                `yaml:"type"`
	Dimension   int                   `yaml:"dimension"`
	BatchSize   int                   `yaml:"batch_size"`
	Concurrency int                   `yaml:"concurrency"`
	OpenAI      *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// GeneratorConfig configures the text generation model.
type GeneratorConfig struct {
	Type              string  `yaml:"type"`
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	AnalysisModel     string  `yaml:"analysis_model"`
	MaxTokens         int     `yaml:"max_tokens"`
	Temperature       float64 `yaml:"temperature"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	StreamTimeoutSecs int     `yaml:"stream_timeout_secs"`
	SystemPrompt      string  `yaml:"system_prompt,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	ChunkSize        int  `yaml:"chunk_size"`
	ChunkOverlap     int  `yaml:"chunk_overlap"`
	BoundaryWindow   int  `yaml:"boundary_window"`
	ContentAddressed bool `yaml:"content_addressed"`
}

// VectorStoreConfig selects and configures the vector index implementation.
type VectorStoreConfig struct {
	Type           string        `yaml:"type"`
	FallbackMemory bool          `yaml:"fallback_memory"`
	Qdrant         *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// RetrieverConfig holds query-time retrieval policy.
type RetrieverConfig struct {
	TopK     int     `yaml:"top_k"`
	MinScore float64 `yaml:"min_score"`
}

// RegistryConfig enables the sqlite document registry.
type RegistryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// CacheConfig configures the optional query embedding cache.
type CacheConfig struct {
	Type             string `yaml:"type"`
	RedisAddr        string `yaml:"redis_addr"`
	RedisPasswordEnv string `yaml:"redis_password_env"`
	RedisDB          int    `yaml:"redis_db"`
	TTLSecs          int    `yaml:"ttl_secs"`
}

// AnalysisConfig configures the upload summary/extraction step.
type AnalysisConfig struct {
	Enabled      bool `yaml:"enabled"`
	MaxChars     int  `yaml:"max_chars"`
	MaxSentences int  `yaml:"max_sentences"`
	MaxKeyTerms  int  `yaml:"max_key_terms"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	AllowOrigins []string `yaml:"allow_origins"`
	MaxUploadMB  int      `yaml:"max_upload_mb"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Mode  string `yaml:"mode"`
	Level string `yaml:"level"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retriever   RetrieverConfig   `yaml:"retriever"`
	Registry    RegistryConfig    `yaml:"registry"`
	Cache       CacheConfig       `yaml:"cache"`
	Analysis    AnalysisConfig    `yaml:"analysis"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (*AppConfig, error) {
	cfg := baseConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/knowledgehub/config.yaml.
// If neither exists, it writes defaults to ~/.config/knowledgehub/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := DefaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "knowledgehub", "config.yaml"), nil
}

// DefaultConfig works offline: hashing embedder, in-memory index, extractive generator.
func DefaultConfig() *AppConfig {
	cfg := baseConfig()
	applyConfigDefaults(cfg)
	return cfg
}

// baseConfig holds the values a YAML file is decoded over. Type-dependent
// defaults are filled in afterwards by applyConfigDefaults.
func baseConfig() *AppConfig {
	return &AppConfig{
		Embedder:    EmbedderConfig{Type: "hashing"},
		Generator:   GeneratorConfig{Type: "extractive"},
		Chunker:     ChunkerConfig{ChunkSize: 1000, ChunkOverlap: 200},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Retriever:   RetrieverConfig{TopK: 5},
		Analysis:    AnalysisConfig{Enabled: true},
		Server:      ServerConfig{Addr: ":8000"},
		Logging:     LoggingConfig{Mode: "development", Level: "info"},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = 100
	}
	if cfg.Embedder.Concurrency == 0 {
		cfg.Embedder.Concurrency = 4
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-large"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.Dimension == 0 {
			cfg.Embedder.Dimension = 3072
		}
	}
	if cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 512
	}
	if cfg.Generator.Type == "openai" {
		if cfg.Generator.BaseURL == "" {
			cfg.Generator.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Generator.APIKeyEnv == "" {
			cfg.Generator.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Generator.Model == "" {
			cfg.Generator.Model = "gpt-4o-mini"
		}
		if cfg.Generator.AnalysisModel == "" {
			cfg.Generator.AnalysisModel = cfg.Generator.Model
		}
		if cfg.Generator.MaxTokens == 0 {
			cfg.Generator.MaxTokens = 1000
		}
		if cfg.Generator.Temperature == 0 {
			cfg.Generator.Temperature = 0.5
		}
	}
	if cfg.Generator.TimeoutSecs == 0 {
		cfg.Generator.TimeoutSecs = 20
	}
	if cfg.Generator.StreamTimeoutSecs == 0 {
		cfg.Generator.StreamTimeoutSecs = 120
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 1000
	}
	if cfg.Chunker.BoundaryWindow == 0 {
		cfg.Chunker.BoundaryWindow = cfg.Chunker.ChunkSize / 5
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "ai_research_knowledge"
		}
		if cfg.VectorStore.Qdrant.APIKeyEnv == "" {
			cfg.VectorStore.Qdrant.APIKeyEnv = "QDRANT_API_KEY"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 10
		}
	}
	if cfg.Retriever.TopK == 0 {
		cfg.Retriever.TopK = 5
	}
	if cfg.Registry.Enabled && cfg.Registry.Path == "" {
		cfg.Registry.Path = "knowledgehub.db"
	}
	if cfg.Cache.Type == "redis" {
		if cfg.Cache.RedisAddr == "" {
			cfg.Cache.RedisAddr = "localhost:6379"
		}
		if cfg.Cache.TTLSecs == 0 {
			cfg.Cache.TTLSecs = 3600
		}
	}
	if cfg.Analysis.MaxChars == 0 {
		cfg.Analysis.MaxChars = 5000
	}
	if cfg.Analysis.MaxSentences == 0 {
		cfg.Analysis.MaxSentences = 2
	}
	if cfg.Analysis.MaxKeyTerms == 0 {
		cfg.Analysis.MaxKeyTerms = 5
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 32
	}
}

// Validate reports the first invalid setting as a *domain.ConfigError.
func (c *AppConfig) Validate() error {
	switch c.Embedder.Type {
	case "hashing", "openai":
	default:
		return &domain.ConfigError{Field: "embedder.type", Reason: fmt.Sprintf("unknown embedder %q", c.Embedder.Type)}
	}
	if c.Embedder.Dimension <= 0 {
		return &domain.ConfigError{Field: "embedder.dimension", Reason: "must be positive"}
	}
	if c.Embedder.BatchSize <= 0 || c.Embedder.Concurrency <= 0 {
		return &domain.ConfigError{Field: "embedder.batch_size", Reason: "batch size and concurrency must be positive"}
	}
	switch c.Generator.Type {
	case "extractive", "openai":
	default:
		return &domain.ConfigError{Field: "generator.type", Reason: fmt.Sprintf("unknown generator %q", c.Generator.Type)}
	}
	if c.Generator.MaxTokens < 0 {
		return &domain.ConfigError{Field: "generator.max_tokens", Reason: "must not be negative"}
	}
	if c.Generator.Temperature < 0 || c.Generator.Temperature > 2 {
		return &domain.ConfigError{Field: "generator.temperature", Reason: "must be within [0, 2]"}
	}
	if c.Chunker.ChunkSize <= 0 {
		return &domain.ConfigError{Field: "chunker.chunk_size", Reason: "must be positive"}
	}
	if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		return &domain.ConfigError{Field: "chunker.chunk_overlap", Reason: "must be >= 0 and less than chunk_size"}
	}
	switch c.VectorStore.Type {
	case "memory":
	case "qdrant":
		u, err := url.Parse(c.VectorStore.Qdrant.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return &domain.ConfigError{Field: "vector_store.qdrant.url", Reason: fmt.Sprintf("%q is not an absolute URL", c.VectorStore.Qdrant.URL)}
		}
		if strings.TrimSpace(c.VectorStore.Qdrant.Collection) == "" {
			return &domain.ConfigError{Field: "vector_store.qdrant.collection", Reason: "is required"}
		}
	default:
		return &domain.ConfigError{Field: "vector_store.type", Reason: fmt.Sprintf("unknown vector store %q", c.VectorStore.Type)}
	}
	if c.Retriever.TopK <= 0 {
		return &domain.ConfigError{Field: "retriever.top_k", Reason: "must be positive"}
	}
	if c.Retriever.MinScore < -1 || c.Retriever.MinScore > 1 {
		return &domain.ConfigError{Field: "retriever.min_score", Reason: "must be within [-1, 1]"}
	}
	switch c.Cache.Type {
	case "", "none", "redis":
	default:
		return &domain.ConfigError{Field: "cache.type", Reason: fmt.Sprintf("unknown cache %q", c.Cache.Type)}
	}
	return nil
}

// Seconds converts a *_secs field to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
