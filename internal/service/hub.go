package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"knowledgehub/internal/domain"
	"knowledgehub/internal/generator"
	"knowledgehub/internal/logger"
	"knowledgehub/internal/summarizer"
)

// Chunker turns an uploaded file into chunks.
type Chunker interface {
	ProcessBytes(filename string, data []byte) ([]domain.Chunk, error)
}

// Store is the part of vectorstore.Store the hub drives.
type Store interface {
	AddDocuments(ctx context.Context, chunks []domain.Chunk) (int, error)
	DeleteDocument(ctx context.Context, docID string) (int, error)
	Stats(ctx context.Context) (domain.Stats, error)
	Documents(ctx context.Context) ([]domain.Document, error)
	Dimension() int
}

// AnalysisOptions control the summary attached to an upload.
type AnalysisOptions struct {
	// Enabled selects the generator's analysis; otherwise only the local
	// summarizer runs.
	Enabled      bool
	MaxChars     int
	MaxSentences int
	MaxKeyTerms  int
}

// Hub is the single entry point used by the HTTP API, the CLI and the TUI.
type Hub struct {
	chunker    Chunker
	store      Store
	pipeline   *Pipeline
	generator  generator.Generator
	summarizer *summarizer.FrequencySummarizer
	analysis   AnalysisOptions
	embedder   string
	log        *logger.Logger
}

type HubOptions struct {
	Chunker   Chunker
	Store     Store
	Pipeline  *Pipeline
	Generator generator.Generator
	Analysis  AnalysisOptions
	// Embedder names the embedder for health reporting.
	Embedder string
	Logger   *logger.Logger
}

func NewHub(opts HubOptions) *Hub {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Analysis.MaxChars <= 0 {
		opts.Analysis.MaxChars = 5000
	}
	if opts.Analysis.MaxSentences <= 0 {
		opts.Analysis.MaxSentences = 2
	}
	if opts.Analysis.MaxKeyTerms <= 0 {
		opts.Analysis.MaxKeyTerms = 5
	}
	return &Hub{
		chunker:    opts.Chunker,
		store:      opts.Store,
		pipeline:   opts.Pipeline,
		generator:  opts.Generator,
		summarizer: summarizer.NewFrequencySummarizer(),
		analysis:   opts.Analysis,
		embedder:   opts.Embedder,
		log:        opts.Logger.With("component", "Hub"),
	}
}

// Upload extracts, chunks and indexes one file, then analyses its text.
// Uploading a document that is already indexed is not an error: the result
// is marked Duplicate, nothing is written, and the analysis still runs.
// A file with no extractable text is rejected with ErrInvalidArgument.
func (h *Hub) Upload(ctx context.Context, filename string, data []byte) (domain.UploadResult, error) {
	name := filepath.Base(filename)
	log := h.log.With("filename", name, "bytes", len(data))

	chunks, err := h.chunker.ProcessBytes(name, data)
	if err != nil {
		log.Warn("document processing failed", "error", err)
		return domain.UploadResult{}, err
	}
	if len(chunks) == 0 {
		log.Warn("document has no extractable text")
		return domain.UploadResult{}, fmt.Errorf("%w: %s has no extractable text", domain.ErrInvalidArgument, name)
	}
	res := domain.UploadResult{
		DocumentID: chunks[0].DocumentID,
		Filename:   name,
		Status:     domain.StatusIndexed,
	}

	added, err := h.store.AddDocuments(ctx, chunks)
	var dup *domain.DuplicateError
	switch {
	case errors.As(err, &dup):
		log.Info("duplicate upload ignored", "doc_id", dup.DocumentID)
		res.Duplicate = true
		res.Status = domain.StatusDuplicate
		res.Analysis = h.analyze(ctx, joinChunks(chunks))
		return res, nil
	case err != nil:
		log.Error("indexing failed", "doc_id", res.DocumentID, "error", err)
		return domain.UploadResult{}, err
	}
	res.ChunksCreated = added
	res.Analysis = h.analyze(ctx, joinChunks(chunks))
	log.Info("document uploaded", "doc_id", res.DocumentID, "chunks", added)
	return res, nil
}

// IngestFile uploads a file from disk.
func (h *Hub) IngestFile(ctx context.Context, path string) (domain.UploadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("read %s: %w", path, err)
	}
	return h.Upload(ctx, path, data)
}

func (h *Hub) analyze(ctx context.Context, text string) domain.Analysis {
	if strings.TrimSpace(text) == "" {
		return emptyAnalysis()
	}
	if h.analysis.Enabled && h.generator != nil {
		a, err := h.generator.Analyze(ctx, text, h.analysis.MaxChars)
		if err == nil {
			return a
		}
		h.log.Warn("analysis failed, using local summary", "error", err)
	}
	return h.summarizer.Analyze(text, h.analysis.MaxSentences, h.analysis.MaxKeyTerms)
}

func (h *Hub) Query(ctx context.Context, question string, topK int, systemPrompt string) (domain.Answer, error) {
	return h.pipeline.Query(ctx, question, topK, systemPrompt)
}

func (h *Hub) QueryStream(ctx context.Context, question string, topK int, systemPrompt string) (*generator.Stream, []domain.Source, error) {
	return h.pipeline.QueryStream(ctx, question, topK, systemPrompt)
}

func (h *Hub) Stats(ctx context.Context) (domain.Stats, error) {
	return h.store.Stats(ctx)
}

func (h *Hub) Documents(ctx context.Context) ([]domain.Document, error) {
	return h.store.Documents(ctx)
}

// DeleteDocument reports whether anything was removed.
func (h *Hub) DeleteDocument(ctx context.Context, docID string) (bool, error) {
	if strings.TrimSpace(docID) == "" {
		return false, fmt.Errorf("%w: doc_id is empty", domain.ErrInvalidArgument)
	}
	n, err := h.store.DeleteDocument(ctx, docID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Health describes whether the index is reachable.
type Health struct {
	Status      string `json:"status"`
	VectorStore string `json:"vector_store"`
	Points      int    `json:"points"`
	Documents   int    `json:"documents"`
	Dimension   int    `json:"dimension"`
	Embedder    string `json:"embedder"`
	Model       string `json:"model"`
	CheckedAt   string `json:"checked_at"`
}

func (h *Hub) Health(ctx context.Context) Health {
	out := Health{
		Status:      "healthy",
		VectorStore: "connected",
		Dimension:   h.store.Dimension(),
		Embedder:    h.embedder,
		CheckedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	if h.generator != nil {
		out.Model = h.generator.Model()
	}
	stats, err := h.store.Stats(ctx)
	if err != nil {
		h.log.Warn("health check failed", "error", err)
		out.Status = "degraded"
		out.VectorStore = "unreachable"
		return out
	}
	out.Points = stats.TotalChunks
	out.Documents = stats.TotalDocuments
	return out
}

func emptyAnalysis() domain.Analysis {
	return domain.Analysis{KeyTerms: []domain.KeyTerm{}, QAPairs: []domain.QAPair{}}
}

// joinChunks rebuilds the document text from overlapping chunks.
func joinChunks(chunks []domain.Chunk) string {
	var b strings.Builder
	end := 0
	for _, c := range chunks {
		runes := []rune(c.Text)
		skip := end - c.Start
		if skip < 0 {
			skip = 0
		}
		if skip >= len(runes) {
			continue
		}
		b.WriteString(string(runes[skip:]))
		end = c.Start + len(runes)
	}
	return b.String()
}
