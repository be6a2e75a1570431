package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"knowledgehub/internal/domain"
	"knowledgehub/internal/logger"
	"knowledgehub/internal/vectorstore"
)

const (
	maxErrorBodyBytes = 2048
	scrollPageSize    = 256
)

// Index is a REST client to a single Qdrant collection using cosine distance.
type Index struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
	log        *logger.Logger

	mu        sync.RWMutex
	dimension int
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
	// HTTPClient overrides the default client built from Timeout.
	HTTPClient *http.Client
}

func NewIndex(cfg Config, log *logger.Logger) *Index {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Index{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     client,
		log:        log.With("component", "QdrantIndex", "collection", cfg.Collection),
	}
}

type collectionInfo struct {
	PointsCount int `json:"points_count"`
	Config      struct {
		Params struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

// EnsureCollection creates the collection and the doc_id keyword index when
// missing, or verifies the vector size of an existing collection.
func (s *Index) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	var info collectionInfo
	err := s.doJSON(ctx, "get_collection", http.MethodGet, s.collectionPath(""), nil, &info)
	var opErr *domain.OpError
	switch {
	case err == nil:
		if size := info.Config.Params.Vectors.Size; size != 0 && size != dimension {
			return &domain.DimensionError{Expected: size, Got: dimension}
		}
	case errors.As(err, &opErr) && opErr.StatusCode == http.StatusNotFound:
		body := map[string]any{
			"vectors": map[string]any{
				"size":     dimension,
				"distance": "Cosine",
			},
		}
		if err := s.doJSON(ctx, "create_collection", http.MethodPut, s.collectionPath(""), body, nil); err != nil {
			return err
		}
		s.log.Info("created collection", "dimension", dimension)
	default:
		return err
	}

	index := map[string]any{
		"field_name":   vectorstore.KeyDocumentID,
		"field_schema": "keyword",
	}
	if err := s.doJSON(ctx, "create_payload_index", http.MethodPut, s.collectionPath("/index?wait=true"), index, nil); err != nil {
		return err
	}

	s.mu.Lock()
	s.dimension = dimension
	s.mu.Unlock()
	return nil
}

func (s *Index) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

func (s *Index) Upsert(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	dim := s.Dimension()
	points := make([]map[string]any, len(records))
	for i, r := range records {
		if len(r.Vector) != dim {
			return &domain.DimensionError{Expected: dim, Got: len(r.Vector)}
		}
		points[i] = map[string]any{
			"id":      r.PointID,
			"vector":  r.Vector,
			"payload": vectorstore.Payload(r),
		}
	}
	body := map[string]any{"points": points}
	return s.doJSON(ctx, "upsert", http.MethodPut, s.collectionPath("/points?wait=true"), body, nil)
}

func (s *Index) Search(ctx context.Context, vector []float32, topK int, filter vectorstore.Filter) ([]domain.SearchResult, error) {
	if dim := s.Dimension(); len(vector) != dim {
		return nil, &domain.DimensionError{Expected: dim, Got: len(vector)}
	}
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if f := translateFilter(filter); f != nil {
		req["filter"] = f
	}
	var resp []struct {
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	}
	if err := s.doJSON(ctx, "search", http.MethodPost, s.collectionPath("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp))
	for _, r := range resp {
		results = append(results, vectorstore.ResultFromPayload(r.Payload, r.Score))
	}
	return results, nil
}

func (s *Index) Count(ctx context.Context, filter vectorstore.Filter) (int, error) {
	req := map[string]any{"exact": true}
	if f := translateFilter(filter); f != nil {
		req["filter"] = f
	}
	var resp struct {
		Count int `json:"count"`
	}
	if err := s.doJSON(ctx, "count", http.MethodPost, s.collectionPath("/points/count"), req, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (s *Index) Delete(ctx context.Context, filter vectorstore.Filter) error {
	f := translateFilter(filter)
	if f == nil {
		return errors.New("qdrant delete requires a filter")
	}
	return s.doJSON(ctx, "delete", http.MethodPost, s.collectionPath("/points/delete?wait=true"), map[string]any{"filter": f}, nil)
}

// DistinctValues pages through the collection collecting string values of key.
func (s *Index) DistinctValues(ctx context.Context, key string) ([]string, error) {
	seen := make(map[string]struct{})
	var offset any
	for {
		req := map[string]any{
			"limit":        scrollPageSize,
			"with_payload": []string{key},
			"with_vector":  false,
		}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Points []struct {
				Payload map[string]any `json:"payload"`
			} `json:"points"`
			NextPageOffset any `json:"next_page_offset"`
		}
		if err := s.doJSON(ctx, "scroll", http.MethodPost, s.collectionPath("/points/scroll"), req, &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Points {
			if v, ok := p.Payload[key].(string); ok {
				seen[v] = struct{}{}
			}
		}
		if resp.NextPageOffset == nil {
			break
		}
		offset = resp.NextPageOffset
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

func translateFilter(filter vectorstore.Filter) map[string]any {
	if len(filter) == 0 {
		return nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	must := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		must = append(must, map[string]any{
			"key":   k,
			"match": map[string]any{"value": filter[k]},
		})
	}
	return map[string]any{"must": must}
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

func (s *Index) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyHTTPCallError(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		opErr := domain.NewOpError(statusKind(resp.StatusCode), op, fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)), nil)
		opErr.StatusCode = resp.StatusCode
		return opErr
	}
	if out == nil {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.NewOpError(domain.ErrStorageUnavailable, op, "decode qdrant envelope failed", err)
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return domain.NewOpError(domain.ErrStorageUnavailable, op, "decode qdrant result failed", err)
	}
	return nil
}

// statusKind keeps server-side and throttling failures retryable; any other
// 4xx means the request itself was rejected.
func statusKind(status int) error {
	switch {
	case status >= 500, status == http.StatusNotFound, status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return domain.ErrStorageUnavailable
	case status >= 400:
		return domain.ErrConfiguration
	default:
		return domain.ErrStorageUnavailable
	}
}

func classifyHTTPCallError(op string, err error) error {
	msg := "transport failed"
	var urlErr *url.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &urlErr) && urlErr.Timeout()) {
		msg = "timeout"
	}
	return domain.NewOpError(domain.ErrStorageUnavailable, op, msg, err)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

func (s *Index) collectionPath(suffix string) string {
	return "/collections/" + url.PathEscape(s.collection) + suffix
}
