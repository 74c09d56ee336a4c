package store

import (
	"context"
	"math"
	"sync"

	"github.com/katakuxiko/ragdocs/internal/logger"
	"github.com/katakuxiko/ragdocs/internal/model"
)

// Memory — in-process бэкенд с полным перебором по косинусу.
// Для разработки и end-to-end тестов; данные живут до выхода процесса.
type Memory struct {
	dim int
	log *logger.Logger

	mu     sync.RWMutex
	chunks map[string]model.Chunk
}

func NewMemory(dim int, log *logger.Logger) *Memory {
	if log == nil {
		log = logger.Nop()
	}
	return &Memory{dim: dim, log: log.With("service", "MemoryVectorStore"), chunks: map[string]model.Chunk{}}
}

func (m *Memory) Upsert(_ context.Context, chunks []model.Chunk) (int, error) {
	if err := validateChunks(m.dim, chunks); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// повтор id в одном батче — одна запись, побеждает последняя
	stored := make(map[string]struct{}, len(chunks))
	for _, ch := range chunks {
		ch.Vector = append([]float32(nil), ch.Vector...)
		m.chunks[ch.ID] = ch
		stored[ch.ID] = struct{}{}
	}
	return len(stored), nil
}

func (m *Memory) Search(_ context.Context, vec []float32, tenantID string, topK int) ([]model.QueryResult, error) {
	if err := checkDim(m.dim, vec, "query vector"); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]scoredHit, 0, len(m.chunks))
	for _, ch := range m.chunks {
		if ch.TenantID != tenantID {
			continue
		}
		hits = append(hits, scoredHit{
			QueryResult: model.QueryResult{
				ID:      ch.ID,
				Text:    ch.Text,
				Source:  ch.Source,
				FileID:  ch.FileID,
				Page:    ch.Page,
				Section: ch.Section,
				Score:   cosine(ch.Vector, vec),
			},
			tenantID: ch.TenantID,
		})
	}
	return finalize(m.log, tenantID, topK, hits), nil
}

// Len — число хранимых чанков
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
