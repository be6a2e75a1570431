package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"knowledgehub/internal/domain"
	"knowledgehub/internal/logger"
)

// Cache stores vectors by key. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
}

// RedisCache keeps vectors as little-endian float32 blobs with a TTL.
type RedisCache struct {
	rdb    goredis.UniversalClient
	ttl    time.Duration
	prefix string
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisCache connects and pings the server before returning.
func NewRedisCache(ctx context.Context, opts RedisOptions) (*RedisCache, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisCacheFromClient(rdb, opts.TTL), nil
}

func NewRedisCacheFromClient(rdb goredis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl, prefix: "knowledgehub:emb:"}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	raw, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	vec, err := decodeVector(raw)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, vec []float32) error {
	return c.rdb.Set(ctx, c.prefix+key, encodeVector(vec), c.ttl).Err()
}

func (c *RedisCache) Close() error { return c.rdb.Close() }

func encodeVector(vec []float32) []byte {
	out := make([]byte, 4*len(vec))
	for i, x := range vec {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(x))
	}
	return out
}

func decodeVector(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("cached vector has %d bytes", len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out, nil
}

// CachedEmbedder serves repeated texts from a Cache and embeds only misses.
// Cache failures are logged and never fail the call.
type CachedEmbedder struct {
	inner Embedder
	cache Cache
	log   *logger.Logger
}

func NewCachedEmbedder(inner Embedder, cache Cache, log *logger.Logger) *CachedEmbedder {
	if log == nil {
		log = logger.Nop()
	}
	return &CachedEmbedder{inner: inner, cache: cache, log: log.With("component", "EmbeddingCache")}
}

func (c *CachedEmbedder) Name() string   { return c.inner.Name() }
func (c *CachedEmbedder) Dimension() int { return c.inner.Dimension() }

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		keys[i] = c.key(text)
		vec, ok, err := c.cache.Get(ctx, keys[i])
		if err != nil {
			c.log.Warn("cache get failed", "error", err)
		}
		if ok && len(vec) == c.inner.Dimension() {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}
	vecs, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, domain.NewOpError(domain.ErrEmbeddingProvider, "embed", fmt.Sprintf("%s returned %d vectors for %d texts", c.inner.Name(), len(vecs), len(missTexts)), nil)
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		if err := c.cache.Set(ctx, keys[i], vecs[j]); err != nil {
			c.log.Warn("cache set failed", "error", err)
		}
	}
	c.log.Debug("embedded", "hits", len(texts)-len(missTexts), "misses", len(missTexts))
	return out, nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.inner.Name() + ":" + strconv.Itoa(c.inner.Dimension()) + ":" + hex.EncodeToString(sum[:])
}
