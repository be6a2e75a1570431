package generator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"knowledgehub/internal/domain"
	"knowledgehub/internal/logger"
)

// OpenAI talks to an OpenAI-compatible /chat/completions endpoint. Every
// failure is returned as domain.ErrGeneration; nothing is retried here.
type OpenAI struct {
	baseURL       string
	apiKey        string
	model         string
	analysisModel string
	maxTokens     int
	temperature   float64
	client        *http.Client
	streamClient  *http.Client
	log           *logger.Logger
}

type Config struct {
	BaseURL       string
	APIKeyEnv     string
	Model         string
	AnalysisModel string
	MaxTokens     int
	Temperature   float64
	Timeout       time.Duration
	StreamTimeout time.Duration
	// HTTPClient replaces both clients when set.
	HTTPClient *http.Client
}

func NewOpenAI(cfg Config, log *logger.Logger) (*OpenAI, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, &domain.ConfigError{Field: "generator.api_key_env", Reason: fmt.Sprintf("env %s is empty", cfg.APIKeyEnv)}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.AnalysisModel == "" {
		cfg.AnalysisModel = cfg.Model
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.StreamTimeout == 0 {
		cfg.StreamTimeout = 120 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	client := &http.Client{Timeout: cfg.Timeout}
	streamClient := &http.Client{Timeout: cfg.StreamTimeout}
	if cfg.HTTPClient != nil {
		client, streamClient = cfg.HTTPClient, cfg.HTTPClient
	}
	return &OpenAI{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        key,
		model:         cfg.Model,
		analysisModel: cfg.AnalysisModel,
		maxTokens:     cfg.MaxTokens,
		temperature:   cfg.Temperature,
		client:        client,
		streamClient:  streamClient,
		log:           log.With("component", "Generator", "model", cfg.Model),
	}, nil
}

func (g *OpenAI) Model() string { return g.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Temperature    float64           `json:"temperature"`
	Stream         bool              `json:"stream,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
		Delta   struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *domain.Usage `json:"usage"`
	Error *apiError     `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (g *OpenAI) chatRequest(question string, chunks []domain.SearchResult, systemPrompt string, stream bool) chatRequest {
	maxTokens := g.maxTokens
	if len(chunks) == 0 && maxTokens > noContextMaxTokens {
		maxTokens = noContextMaxTokens
	}
	return chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPromptOr(systemPrompt)},
			{Role: "user", Content: BuildUserMessage(question, chunks)},
		},
		MaxTokens:   maxTokens,
		Temperature: g.temperature,
		Stream:      stream,
	}
}

// Generate returns the complete answer in one call.
func (g *OpenAI) Generate(ctx context.Context, question string, chunks []domain.SearchResult, systemPrompt string) (domain.Answer, error) {
	start := time.Now()
	var out chatResponse
	if err := g.post(ctx, g.client, "chat", g.chatRequest(question, chunks, systemPrompt, false), &out); err != nil {
		return domain.Answer{}, err
	}
	if len(out.Choices) == 0 {
		return domain.Answer{}, domain.NewOpError(domain.ErrGeneration, "chat", "no choices returned", nil)
	}
	ans := domain.Answer{Text: out.Choices[0].Message.Content, Model: g.model}
	if out.Model != "" {
		ans.Model = out.Model
	}
	if out.Usage != nil {
		ans.Usage = *out.Usage
	}
	g.log.Debug("answer generated", "chunks", len(chunks), "total_tokens", ans.Usage.TotalTokens, "elapsed", time.Since(start).String())
	return ans, nil
}

// Stream opens a streaming completion. The caller must Close the stream.
func (g *OpenAI) Stream(ctx context.Context, question string, chunks []domain.SearchResult, systemPrompt string) (*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	resp, err := g.do(ctx, g.streamClient, "chat_stream", g.chatRequest(question, chunks, systemPrompt, true))
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer cancel()
		defer resp.Body.Close()
		return nil, statusError("chat_stream", resp)
	}

	reader := bufio.NewReader(resp.Body)
	next := func() (string, error) {
		for {
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				if errors.Is(err, io.EOF) {
					// upstream ended without [DONE]
					return "", io.EOF
				}
				if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
					return "", domain.ErrStreamCancelled
				}
				return "", domain.NewOpError(domain.ErrGeneration, "chat_stream", "read stream", err)
			}
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return "", io.EOF
			}
			var chunk chatResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				return "", domain.NewOpError(domain.ErrGeneration, "chat_stream", "decode chunk", err)
			}
			if chunk.Error != nil {
				return "", domain.NewOpError(domain.ErrGeneration, "chat_stream", chunk.Error.Message, nil)
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			return chunk.Choices[0].Delta.Content, nil
		}
	}
	closeFn := func() error {
		cancel()
		return resp.Body.Close()
	}
	return newStream(next, closeFn), nil
}

type analysisPayload struct {
	Summary  string           `json:"summary"`
	KeyTerms []domain.KeyTerm `json:"key_terms"`
	QAPairs  []domain.QAPair  `json:"qa_pairs"`
}

// Analyze asks the model for a JSON summary of text, truncated to maxChars runes.
func (g *OpenAI) Analyze(ctx context.Context, text string, maxChars int) (domain.Analysis, error) {
	req := chatRequest{
		Model: g.analysisModel,
		Messages: []chatMessage{
			{Role: "system", Content: analysisSystemPrompt},
			{Role: "user", Content: "Analyze:\n\n" + truncateRunes(text, maxChars)},
		},
		MaxTokens:      800,
		Temperature:    0.2,
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	var out chatResponse
	if err := g.post(ctx, g.client, "analyze", req, &out); err != nil {
		return domain.Analysis{}, err
	}
	if len(out.Choices) == 0 {
		return domain.Analysis{}, domain.NewOpError(domain.ErrGeneration, "analyze", "no choices returned", nil)
	}
	var p analysisPayload
	if err := json.Unmarshal([]byte(out.Choices[0].Message.Content), &p); err != nil {
		return domain.Analysis{}, domain.NewOpError(domain.ErrGeneration, "analyze", "model did not return JSON", err)
	}
	if len(p.KeyTerms) > maxKeyTerms {
		p.KeyTerms = p.KeyTerms[:maxKeyTerms]
	}
	if len(p.QAPairs) > maxQAPairs {
		p.QAPairs = p.QAPairs[:maxQAPairs]
	}
	a := domain.Analysis{Summary: p.Summary, KeyTerms: p.KeyTerms, QAPairs: p.QAPairs}
	if a.KeyTerms == nil {
		a.KeyTerms = []domain.KeyTerm{}
	}
	if a.QAPairs == nil {
		a.QAPairs = []domain.QAPair{}
	}
	return a, nil
}

func (g *OpenAI) post(ctx context.Context, client *http.Client, op string, body chatRequest, out *chatResponse) error {
	resp, err := g.do(ctx, client, op, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return statusError(op, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.NewOpError(domain.ErrGeneration, op, "decode response", err)
	}
	return nil
}

func (g *OpenAI) do(ctx context.Context, client *http.Client, op string, body chatRequest) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	if body.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	resp, err := client.Do(req)
	if err != nil {
		g.log.Warn("generation request failed", "op", op, "error", err)
		return nil, domain.NewOpError(domain.ErrGeneration, op, "request failed", err)
	}
	return resp, nil
}

func statusError(op string, resp *http.Response) error {
	opErr := domain.NewOpError(domain.ErrGeneration, op, resp.Status, nil)
	opErr.StatusCode = resp.StatusCode
	var out chatResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &out) == nil && out.Error != nil {
		opErr.Message = out.Error.Message
	}
	return opErr
}
