package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"knowledgehub/internal/domain"
	"knowledgehub/internal/generator"
	"knowledgehub/internal/logger"
)

// Retriever is the retrieval step of the pipeline.
type Retriever interface {
	Retrieve(ctx context.Context, question string, topK int) ([]domain.SearchResult, error)
}

// Pipeline answers questions: retrieve the relevant chunks, then generate.
type Pipeline struct {
	retriever    Retriever
	generator    generator.Generator
	systemPrompt string
	log          *logger.Logger
}

// NewPipeline wires a retriever to a generator. systemPrompt is the default
// applied when a query does not bring its own; empty means the built-in one.
func NewPipeline(r Retriever, g generator.Generator, systemPrompt string, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{
		retriever:    r,
		generator:    g,
		systemPrompt: systemPrompt,
		log:          log.With("component", "Pipeline"),
	}
}

// Query answers question. When nothing relevant is indexed the generator still
// runs without context, and the answer carries an empty Sources list.
func (p *Pipeline) Query(ctx context.Context, question string, topK int, systemPrompt string) (domain.Answer, error) {
	start := time.Now()
	chunks, err := p.retrieve(ctx, question, topK)
	if err != nil {
		return domain.Answer{}, err
	}
	ans, err := p.generator.Generate(ctx, question, chunks, p.prompt(systemPrompt))
	if err != nil {
		return domain.Answer{}, fmt.Errorf("generate: %w", err)
	}
	ans.Sources = Sources(chunks)
	p.log.Info("query answered",
		"chunks", len(chunks),
		"sources", len(ans.Sources),
		"grounded", ans.Grounded(),
		"elapsed", time.Since(start).String(),
	)
	return ans, nil
}

// QueryStream is Query with the answer delivered incrementally. Sources are
// known before the first delta. The caller owns the returned stream.
func (p *Pipeline) QueryStream(ctx context.Context, question string, topK int, systemPrompt string) (*generator.Stream, []domain.Source, error) {
	chunks, err := p.retrieve(ctx, question, topK)
	if err != nil {
		return nil, nil, err
	}
	stream, err := p.generator.Stream(ctx, question, chunks, p.prompt(systemPrompt))
	if err != nil {
		return nil, nil, fmt.Errorf("generate: %w", err)
	}
	return stream, Sources(chunks), nil
}

func (p *Pipeline) retrieve(ctx context.Context, question string, topK int) ([]domain.SearchResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is empty", domain.ErrInvalidArgument)
	}
	chunks, err := p.retriever.Retrieve(ctx, question, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	p.log.Debug("retrieved", "question_len", len(question), "top_k", topK, "chunks", len(chunks))
	return chunks, nil
}

func (p *Pipeline) prompt(override string) string {
	if strings.TrimSpace(override) != "" {
		return override
	}
	return p.systemPrompt
}

// Sources lists the documents behind chunks, one entry per doc_id in the order
// first seen. Chunks arrive best-first, so each entry keeps its best score.
func Sources(chunks []domain.SearchResult) []domain.Source {
	out := make([]domain.Source, 0, len(chunks))
	seen := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		if _, ok := seen[c.Chunk.DocumentID]; ok {
			continue
		}
		seen[c.Chunk.DocumentID] = struct{}{}
		out = append(out, domain.Source{
			DocumentID: c.Chunk.DocumentID,
			Filename:   c.Chunk.Filename,
			ChunkIndex: c.Chunk.Index,
			Score:      c.Score,
		})
	}
	return out
}
