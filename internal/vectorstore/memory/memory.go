package memory

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"knowledgehub/internal/domain"
	"knowledgehub/internal/vectorstore"
)

type point struct {
	vector  []float32
	norm    float64
	payload map[string]any
}

// Index is a simple in-memory vector index using brute-force cosine similarity.
type Index struct {
	mu        sync.RWMutex
	dimension int
	ids       []string
	points    map[string]*point
}

func NewIndex() *Index { return &Index{points: make(map[string]*point)} }

func (s *Index) EnsureCollection(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 && s.dimension != dimension && len(s.ids) > 0 {
		return &domain.DimensionError{Expected: s.dimension, Got: dimension}
	}
	s.dimension = dimension
	return nil
}

func (s *Index) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

func (s *Index) Upsert(_ context.Context, records []domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if len(r.Vector) != s.dimension {
			return &domain.DimensionError{Expected: s.dimension, Got: len(r.Vector)}
		}
	}
	for _, r := range records {
		p := &point{
			vector:  append([]float32(nil), r.Vector...),
			norm:    norm(r.Vector),
			payload: vectorstore.Payload(r),
		}
		if _, exists := s.points[r.PointID]; !exists {
			s.ids = append(s.ids, r.PointID)
		}
		s.points[r.PointID] = p
	}
	return nil
}

func (s *Index) Search(_ context.Context, vector []float32, topK int, filter vectorstore.Filter) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(vector) != s.dimension {
		return nil, &domain.DimensionError{Expected: s.dimension, Got: len(vector)}
	}
	if topK <= 0 {
		topK = 5
	}
	qnorm := norm(vector)
	candidates := make([]*point, 0, len(s.ids))
	for _, id := range s.ids {
		p := s.points[id]
		if filter.Matches(p.payload) {
			candidates = append(candidates, p)
		}
	}
	scores := make([]float64, len(candidates))
	for i, p := range candidates {
		if p.norm == 0 || qnorm == 0 {
			continue
		}
		scores[i] = dot(p.vector, vector) / (p.norm * qnorm)
	}
	idxs := argsortDesc(scores)
	if topK > len(idxs) {
		topK = len(idxs)
	}
	results := make([]domain.SearchResult, 0, topK)
	for i := 0; i < topK; i++ {
		j := idxs[i]
		results = append(results, vectorstore.ResultFromPayload(candidates[j].payload, scores[j]))
	}
	return results, nil
}

func (s *Index) Count(_ context.Context, filter vectorstore.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, id := range s.ids {
		if filter.Matches(s.points[id].payload) {
			n++
		}
	}
	return n, nil
}

func (s *Index) Delete(_ context.Context, filter vectorstore.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.ids[:0]
	for _, id := range s.ids {
		if filter.Matches(s.points[id].payload) {
			delete(s.points, id)
			continue
		}
		kept = append(kept, id)
	}
	s.ids = kept
	return nil
}

func (s *Index) DistinctValues(_ context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, id := range s.ids {
		if v, ok := s.points[id].payload[key].(string); ok {
			seen[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}

// argsortDesc orders indexes by score, keeping insertion order among ties.
func argsortDesc(vals []float64) []int {
	idxs := make([]int, len(vals))
	for i := range vals {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return vals[idxs[a]] > vals[idxs[b]] })
	return idxs
}
