package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"knowledgehub/internal/domain"
)

// Payload keys stored with every point.
const (
	KeyDocumentID   = "doc_id"
	KeyFilename     = "filename"
	KeyChunkIndex   = "chunk_index"
	KeyStart        = "start"
	KeyText         = "text"
	KeyFileType     = "file_type"
	KeyChunkSize    = "chunk_size"
	KeyChunkOverlap = "chunk_overlap"
	KeyIngestedAt   = "ingested_at"
)

// Index persists embedding records and answers nearest-neighbour queries.
type Index interface {
	// EnsureCollection creates the collection if missing and fails with a
	// *domain.DimensionError if it exists with another vector size.
	EnsureCollection(ctx context.Context, dimension int) error
	Dimension() int
	Upsert(ctx context.Context, records []domain.Record) error
	Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]domain.SearchResult, error)
	Count(ctx context.Context, filter Filter) (int, error)
	Delete(ctx context.Context, filter Filter) error
	DistinctValues(ctx context.Context, key string) ([]string, error)
}

// Filter is a conjunction of payload equality conditions. A nil Filter matches everything.
type Filter map[string]any

// ByDocument matches every point of one document.
func ByDocument(docID string) Filter { return Filter{KeyDocumentID: docID} }

// Matches reports whether payload satisfies every condition of f.
func (f Filter) Matches(payload map[string]any) bool {
	for k, want := range f {
		got, ok := payload[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

var pointIDNamespace = uuid.MustParse("6f1d8c2e-3b7a-5c4e-9d21-7a0b4e6f8c13")

// PointID is stable for a (document, chunk) pair so re-upserts overwrite.
func PointID(docID string, chunkIndex int) string {
	return uuid.NewSHA1(pointIDNamespace, []byte(docID+"|"+strconv.Itoa(chunkIndex))).String()
}

// Payload flattens a record into the stored payload.
func Payload(r domain.Record) map[string]any {
	return map[string]any{
		KeyDocumentID:   r.Chunk.DocumentID,
		KeyFilename:     r.Chunk.Filename,
		KeyChunkIndex:   r.Chunk.Index,
		KeyStart:        r.Chunk.Start,
		KeyText:         r.Chunk.Text,
		KeyFileType:     r.Chunk.FileType,
		KeyChunkSize:    r.Chunk.Size,
		KeyChunkOverlap: r.Chunk.Overlap,
		KeyIngestedAt:   r.IngestedAt.UTC().Format(time.RFC3339Nano),
	}
}

// ResultFromPayload rebuilds a search result from a stored payload.
func ResultFromPayload(payload map[string]any, score float64) domain.SearchResult {
	res := domain.SearchResult{
		Score: score,
		Chunk: domain.Chunk{
			DocumentID: asString(payload[KeyDocumentID]),
			Filename:   asString(payload[KeyFilename]),
			FileType:   asString(payload[KeyFileType]),
			Text:       asString(payload[KeyText]),
			Index:      asInt(payload[KeyChunkIndex]),
			Start:      asInt(payload[KeyStart]),
			Size:       asInt(payload[KeyChunkSize]),
			Overlap:    asInt(payload[KeyChunkOverlap]),
		},
	}
	if ts, err := time.Parse(time.RFC3339Nano, asString(payload[KeyIngestedAt])); err == nil {
		res.IngestedAt = ts
	}
	return res
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
