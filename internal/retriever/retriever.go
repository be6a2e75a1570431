package retriever

import (
	"context"
	"sort"

	"knowledgehub/internal/domain"
	"knowledgehub/internal/vectorstore"
)

// Searcher is the part of the vector store the retriever depends on.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, filter vectorstore.Filter) ([]domain.SearchResult, error)
}

// Retriever applies query-time policy on top of raw similarity search.
type Retriever struct {
	store    Searcher
	topK     int
	minScore float64
}

func New(store Searcher, defaultTopK int, minScore float64) *Retriever {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &Retriever{store: store, topK: defaultTopK, minScore: minScore}
}

// Retrieve returns up to topK chunks scoring at least the configured minimum.
// A non-positive topK uses the default. Equal scores are ordered by ingestion
// time, then doc_id, then chunk index, so results are reproducible.
func (r *Retriever) Retrieve(ctx context.Context, question string, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = r.topK
	}
	results, err := r.search(ctx, question, topK)
	if err != nil {
		return nil, err
	}
	kept := results[:0]
	for _, res := range results {
		if res.Score >= r.minScore {
			kept = append(kept, res)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.IngestedAt.Equal(b.IngestedAt) {
			return a.IngestedAt.Before(b.IngestedAt)
		}
		if a.Chunk.DocumentID != b.Chunk.DocumentID {
			return a.Chunk.DocumentID < b.Chunk.DocumentID
		}
		return a.Chunk.Index < b.Chunk.Index
	})
	if len(kept) > topK {
		kept = kept[:topK]
	}
	return kept, nil
}

// maxCandidates bounds how far search widens to settle ties at the cutoff.
const maxCandidates = 512

// search over-fetches so that every result tied with the last kept score is
// seen before the tie-break picks among them. The index's own order among
// equal scores is not relied on.
func (r *Retriever) search(ctx context.Context, question string, topK int) ([]domain.SearchResult, error) {
	fetch := topK * 2
	for {
		results, err := r.store.Search(ctx, question, fetch, nil)
		if err != nil {
			return nil, err
		}
		if len(results) < fetch || fetch >= maxCandidates {
			return results, nil
		}
		if results[len(results)-1].Score < results[topK-1].Score {
			return results, nil
		}
		fetch *= 2
		if fetch > maxCandidates {
			fetch = maxCandidates
		}
	}
}
