package handlers

import (
	"context"

	"knowledgehub/internal/domain"
	"knowledgehub/internal/generator"
	"knowledgehub/internal/service"
)

// KnowledgeHub is what the HTTP handlers need from service.Hub.
type KnowledgeHub interface {
	Upload(ctx context.Context, filename string, data []byte) (domain.UploadResult, error)
	Query(ctx context.Context, question string, topK int, systemPrompt string) (domain.Answer, error)
	QueryStream(ctx context.Context, question string, topK int, systemPrompt string) (*generator.Stream, []domain.Source, error)
	Stats(ctx context.Context) (domain.Stats, error)
	Documents(ctx context.Context) ([]domain.Document, error)
	DeleteDocument(ctx context.Context, docID string) (bool, error)
	Health(ctx context.Context) service.Health
}
