package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"knowledgehub/internal/domain"
	"knowledgehub/internal/embedding"
)

// Client is an OpenAI-compatible embeddings client implementing the Embedder interface.
// Failures are reported once; callers decide whether to retry.
type Client struct {
	baseURL   string
	apiKey    string
	model     string
	dimension int
	client    *http.Client
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Dimension int
	Timeout   time.Duration
	// HTTPClient overrides the default client; its Timeout is left as is.
	HTTPClient *http.Client
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, &domain.ConfigError{Field: "embedder.openai.api_key_env", Reason: fmt.Sprintf("env %s is empty", cfg.APIKeyEnv)}
	}
	if cfg.Dimension <= 0 {
		return nil, &domain.ConfigError{Field: "embedder.dimension", Reason: "must be positive"}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-large"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: t}
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    key,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		client:    hc,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai:" + c.model }

// Dimension returns the dimensionality of the produced embedding vectors.
func (c *Client) Dimension() int { return c.dimension }

type embeddingsRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	// Ollama-native /api/embed shape.
	Embeddings [][]float32 `json:"embeddings"`
	Error      *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Embed returns one embedding vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body := embeddingsRequest{Input: texts, Model: c.model}
	if strings.HasPrefix(c.model, "text-embedding-3") {
		body.Dimensions = c.dimension
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.NewOpError(domain.ErrEmbeddingProvider, "embeddings", "request failed", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewOpError(domain.ErrEmbeddingProvider, "embeddings", "read response", err)
	}

	var out embeddingsResponse
	decodeErr := json.Unmarshal(payload, &out)
	if resp.StatusCode >= 300 {
		opErr := domain.NewOpError(domain.ErrEmbeddingProvider, "embeddings", resp.Status, nil)
		opErr.StatusCode = resp.StatusCode
		if decodeErr == nil && out.Error != nil {
			opErr.Message = out.Error.Message
		}
		return nil, opErr
	}
	if decodeErr != nil {
		return nil, domain.NewOpError(domain.ErrEmbeddingProvider, "embeddings", "decode response", decodeErr)
	}

	vecs := out.Embeddings
	if len(out.Data) > 0 {
		sort.SliceStable(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
		vecs = make([][]float32, len(out.Data))
		for i, d := range out.Data {
			vecs[i] = d.Embedding
		}
	}
	if len(vecs) != len(texts) {
		return nil, domain.NewOpError(domain.ErrEmbeddingProvider, "embeddings",
			fmt.Sprintf("got %d embeddings for %d inputs", len(vecs), len(texts)), nil)
	}
	if err := embedding.CheckDimension(c.dimension, vecs); err != nil {
		return nil, err
	}
	return vecs, nil
}
