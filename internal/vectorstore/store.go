package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"knowledgehub/internal/domain"
	"knowledgehub/internal/logger"
)

// Registry tracks documents alongside the index. Register must return a
// *domain.DuplicateError when the document already exists.
type Registry interface {
	Register(ctx context.Context, doc domain.Document) error
	MarkIndexed(ctx context.Context, id string, chunks int) error
	MarkFailed(ctx context.Context, id string, cause error) error
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ([]domain.Document, error)
}

type Options struct {
	BatchSize   int
	Concurrency int
	// Registry is optional.
	Registry Registry
	Logger   *logger.Logger
	Now      func() time.Time
}

// Store embeds chunks and keeps them in an Index, one document at a time.
type Store struct {
	index    Index
	embedder domain.Embedder
	registry Registry
	log      *logger.Logger
	now      func() time.Time

	batchSize   int
	concurrency int

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewStore prepares the index for the embedder's dimension.
func NewStore(ctx context.Context, index Index, embedder domain.Embedder, opts Options) (*Store, error) {
	if err := index.EnsureCollection(ctx, embedder.Dimension()); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		index:       index,
		embedder:    embedder,
		registry:    opts.Registry,
		log:         opts.Logger.With("component", "VectorStore", "embedder", embedder.Name()),
		now:         opts.Now,
		batchSize:   opts.BatchSize,
		concurrency: opts.Concurrency,
		inflight:    make(map[string]struct{}),
	}, nil
}

// AddDocuments indexes chunks grouped by document and returns how many were
// stored. Documents already present are skipped and reported through a
// *domain.DuplicateError; other documents in the same call still go in.
func (s *Store) AddDocuments(ctx context.Context, chunks []domain.Chunk) (int, error) {
	var order []string
	groups := make(map[string][]domain.Chunk)
	for _, c := range chunks {
		if _, ok := groups[c.DocumentID]; !ok {
			order = append(order, c.DocumentID)
		}
		groups[c.DocumentID] = append(groups[c.DocumentID], c)
	}

	added := 0
	var dups []error
	for _, id := range order {
		n, err := s.addDocument(ctx, id, groups[id])
		var dup *domain.DuplicateError
		switch {
		case errors.As(err, &dup):
			dups = append(dups, err)
		case err != nil:
			return added, err
		}
		added += n
	}
	return added, errors.Join(dups...)
}

func (s *Store) addDocument(ctx context.Context, docID string, chunks []domain.Chunk) (int, error) {
	filename := chunks[0].Filename
	log := s.log.With("doc_id", docID, "filename", filename)

	if !s.claim(docID) {
		log.Info("document already being indexed")
		return 0, &domain.DuplicateError{DocumentID: docID, Filename: filename}
	}
	defer s.release(docID)

	existing, err := s.index.Count(ctx, ByDocument(docID))
	if err != nil {
		return 0, fmt.Errorf("check duplicate: %w", err)
	}
	if existing > 0 {
		log.Info("document already indexed", "chunks", existing)
		return 0, &domain.DuplicateError{DocumentID: docID, Filename: filename}
	}

	ingestedAt := s.now().UTC()
	if s.registry != nil {
		doc := domain.Document{ID: docID, Filename: filename, UploadedAt: ingestedAt, Status: domain.StatusIndexing}
		if err := s.registry.Register(ctx, doc); err != nil {
			return 0, err
		}
	}

	start := time.Now()
	if err := s.embedAndUpsert(ctx, chunks, ingestedAt); err != nil {
		log.Error("indexing failed", "error", err)
		s.rollback(docID, err)
		return 0, err
	}
	if s.registry != nil {
		if err := s.registry.MarkIndexed(ctx, docID, len(chunks)); err != nil {
			log.Warn("registry update failed", "error", err)
		}
	}
	log.Info("document indexed", "chunks", len(chunks), "elapsed", time.Since(start).String())
	return len(chunks), nil
}

func (s *Store) embedAndUpsert(ctx context.Context, chunks []domain.Chunk, ingestedAt time.Time) error {
	dim := s.index.Dimension()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for lo := 0; lo < len(chunks); lo += s.batchSize {
		hi := lo + s.batchSize
		if hi > len(chunks) {
			hi = len(chunks)
		}
		batch := chunks[lo:hi]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Text
			}
			vecs, err := s.embed(gctx, texts)
			if err != nil {
				return err
			}
			if len(vecs) != len(batch) {
				return domain.NewOpError(domain.ErrEmbeddingProvider, "embed",
					fmt.Sprintf("got %d vectors for %d chunks", len(vecs), len(batch)), nil)
			}
			records := make([]domain.Record, len(batch))
			for i, c := range batch {
				if len(vecs[i]) != dim {
					return &domain.DimensionError{Expected: dim, Got: len(vecs[i])}
				}
				records[i] = domain.Record{
					PointID:    PointID(c.DocumentID, c.Index),
					Vector:     vecs[i],
					Chunk:      c,
					IngestedAt: ingestedAt,
				}
			}
			return s.index.Upsert(gctx, records)
		})
	}
	return g.Wait()
}

func (s *Store) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := s.embedder.Embed(ctx, texts)
	if err == nil {
		return vecs, nil
	}
	var opErr *domain.OpError
	var dimErr *domain.DimensionError
	if errors.As(err, &opErr) || errors.As(err, &dimErr) {
		return nil, err
	}
	return nil, domain.NewOpError(domain.ErrEmbeddingProvider, "embed", s.embedder.Name(), err)
}

// rollback removes partially written points so a retry is not seen as a duplicate.
func (s *Store) rollback(docID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.index.Delete(ctx, ByDocument(docID)); err != nil {
		s.log.Warn("rollback delete failed", "doc_id", docID, "error", err)
	}
	if s.registry != nil {
		if err := s.registry.MarkFailed(ctx, docID, cause); err != nil {
			s.log.Warn("registry update failed", "doc_id", docID, "error", err)
		}
	}
}

func (s *Store) claim(docID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[docID]; busy {
		return false
	}
	s.inflight[docID] = struct{}{}
	return true
}

func (s *Store) release(docID string) {
	s.mu.Lock()
	delete(s.inflight, docID)
	s.mu.Unlock()
}

// Search embeds query and returns at most topK results in descending score order.
func (s *Store) Search(ctx context.Context, query string, topK int, filter Filter) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	vecs, err := s.embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, domain.NewOpError(domain.ErrEmbeddingProvider, "embed", "no vector for query", nil)
	}
	if dim := s.index.Dimension(); len(vecs[0]) != dim {
		return nil, &domain.DimensionError{Expected: dim, Got: len(vecs[0])}
	}
	results, err := s.index.Search(ctx, vecs[0], topK, filter)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// DeleteDocument removes every chunk of docID and returns how many there were.
func (s *Store) DeleteDocument(ctx context.Context, docID string) (int, error) {
	n, err := s.index.Count(ctx, ByDocument(docID))
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	if n > 0 {
		if err := s.index.Delete(ctx, ByDocument(docID)); err != nil {
			return 0, fmt.Errorf("delete: %w", err)
		}
	}
	if s.registry != nil {
		if err := s.registry.Remove(ctx, docID); err != nil {
			s.log.Warn("registry remove failed", "doc_id", docID, "error", err)
		}
	}
	if n > 0 {
		s.log.Info("document deleted", "doc_id", docID, "chunks", n)
	}
	return n, nil
}

func (s *Store) Stats(ctx context.Context) (domain.Stats, error) {
	total, err := s.index.Count(ctx, nil)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("count: %w", err)
	}
	ids, err := s.index.DistinctValues(ctx, KeyDocumentID)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("distinct documents: %w", err)
	}
	return domain.Stats{TotalChunks: total, TotalDocuments: len(ids)}, nil
}

// Documents lists known documents. Without a registry only ids and chunk
// counts are available from the index.
func (s *Store) Documents(ctx context.Context) ([]domain.Document, error) {
	if s.registry != nil {
		return s.registry.List(ctx)
	}
	ids, err := s.index.DistinctValues(ctx, KeyDocumentID)
	if err != nil {
		return nil, err
	}
	docs := make([]domain.Document, 0, len(ids))
	for _, id := range ids {
		n, err := s.index.Count(ctx, ByDocument(id))
		if err != nil {
			return nil, err
		}
		docs = append(docs, domain.Document{ID: id, Status: domain.StatusIndexed, ChunkCount: n})
	}
	return docs, nil
}

func (s *Store) Dimension() int { return s.index.Dimension() }
