package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/katakuxiko/ragdocs/internal/ingest"
	"github.com/katakuxiko/ragdocs/internal/logger"
)

const keyPrefix = "emb:"

// DefaultTTL — срок жизни вектора в кэше
const DefaultTTL = 7 * 24 * time.Hour

// Store — KV-хранилище (Redis в проде)
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// Provider — сервис эмбеддингов: один вектор на вход, в том же порядке
type Provider interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Cache — content-addressed кэш перед провайдером эмбеддингов.
// Провайдер вызывается одним батчем только для промахов.
// Два конкурентных промаха по одному тексту оба уйдут в провайдер; это допустимо.
type Cache struct {
	kv       Store
	provider Provider
	dim      int
	ttl      time.Duration
	log      *logger.Logger
}

// NewCache: dim — ожидаемая размерность векторов; запись другой длины
// (например, после смены модели) считается промахом. dim <= 0 отключает проверку.
func NewCache(kv Store, provider Provider, dim int, ttl time.Duration, log *logger.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Cache{kv: kv, provider: provider, dim: dim, ttl: ttl, log: log.With("service", "EmbeddingCache")}
}

// Key — ключ кэша для текста
func Key(text string) string {
	return keyPrefix + ingest.Hash(text)
}

// EmbedMany возвращает векторы строго в порядке texts
func (c *Cache) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missTexts []string
		missPos   []int
	)
	for i, t := range texts {
		if vec, ok := c.lookup(ctx, t); ok {
			out[i] = vec
			continue
		}
		missTexts = append(missTexts, t)
		missPos = append(missPos, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.provider.CreateEmbeddings(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedding provider returned %d vectors for %d inputs", len(vecs), len(missTexts))
	}
	for j, pos := range missPos {
		out[pos] = vecs[j]
		c.store(ctx, missTexts[j], vecs[j])
	}
	c.log.Debug("embeddings resolved", "total", len(texts), "hits", len(texts)-len(missTexts), "misses", len(missTexts))
	return out, nil
}

// EmbedOne — вектор для одного текста (вопрос пользователя)
func (c *Cache) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// lookup: ошибка хранилища или битая запись считаются промахом
func (c *Cache) lookup(ctx context.Context, text string) ([]float32, bool) {
	key := Key(text)
	raw, ok, err := c.kv.Get(ctx, key)
	if err != nil {
		c.log.Warn("embedding cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil || len(vec) == 0 {
		c.log.Warn("embedding cache entry corrupt", "key", key, "error", err)
		return nil, false
	}
	if c.dim > 0 && len(vec) != c.dim {
		c.log.Warn("embedding cache entry has wrong dimension", "key", key, "got", len(vec), "want", c.dim)
		return nil, false
	}
	return vec, true
}

func (c *Cache) store(ctx context.Context, text string, vec []float32) {
	raw, err := json.Marshal(vec)
	if err != nil {
		c.log.Warn("embedding encode failed", "error", err)
		return
	}
	key := Key(text)
	if err := c.kv.Set(ctx, key, raw, c.ttl); err != nil {
		c.log.Warn("embedding cache write failed", "key", key, "error", err)
	}
}
