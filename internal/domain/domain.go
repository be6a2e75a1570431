package domain

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"path/filepath"
	"time"
)

// DocumentStatus tracks where a document is in its ingestion lifecycle.
type DocumentStatus string

const (
	StatusIndexing  DocumentStatus = "indexing"
	StatusIndexed   DocumentStatus = "indexed"
	StatusFailed    DocumentStatus = "failed"
	StatusDuplicate DocumentStatus = "duplicate"
)

// Document represents a single uploaded file.
type Document struct {
	ID         string
	Filename   string
	UploadedAt time.Time
	Status     DocumentStatus
	ChunkCount int
}

// Chunk is a contiguous span of a document's extracted text used for indexing.
// Start is a rune offset into the normalized text of the owning document.
type Chunk struct {
	DocumentID string
	Filename   string
	FileType   string
	Text       string
	Start      int
	Index      int
	Size       int
	Overlap    int
}

// Record is one embedded chunk as stored in the vector index.
type Record struct {
	PointID    string
	Vector     []float32
	Chunk      Chunk
	IngestedAt time.Time
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk      Chunk
	Score      float64
	IngestedAt time.Time
}

// Source attributes part of an answer to an indexed document.
type Source struct {
	DocumentID string  `json:"doc_id"`
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"relevance_score"`
}

// Usage reports token accounting returned by the generation provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Answer is the generated response to a question.
type Answer struct {
	Text    string   `json:"answer"`
	Sources []Source `json:"sources"`
	Model   string   `json:"model,omitempty"`
	Usage   Usage    `json:"usage"`
}

// Grounded reports whether the answer was produced with retrieved context.
func (a Answer) Grounded() bool { return len(a.Sources) > 0 }

type KeyTerm struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Analysis is the summary/extraction produced for an uploaded document.
type Analysis struct {
	Summary  string    `json:"summary"`
	KeyTerms []KeyTerm `json:"key_terms"`
	QAPairs  []QAPair  `json:"qa_pairs"`
}

// UploadResult is returned by the upload operation.
type UploadResult struct {
	DocumentID    string         `json:"doc_id"`
	Filename      string         `json:"filename"`
	ChunksCreated int            `json:"chunks_created"`
	Duplicate     bool           `json:"duplicate"`
	Status        DocumentStatus `json:"status"`
	Analysis
}

// Stats summarizes the contents of the vector index.
type Stats struct {
	TotalChunks    int `json:"total_chunks"`
	TotalDocuments int `json:"total_documents"`
}

// Embedder converts free text into fixed-length vectors.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Summarizer produces a brief extractive summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// DocumentID derives the stable identifier of a document from its filename.
// Only the base name is hashed, so the same file uploaded from different
// directories maps to the same document.
func DocumentID(filename string) string {
	return hashHex(filepath.Base(filename))
}

// ContentDocumentID derives a document identifier from extracted text.
func ContentDocumentID(text string) string {
	return hashHex(text)
}

func hashHex(s string) string {
	h := md5.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}
