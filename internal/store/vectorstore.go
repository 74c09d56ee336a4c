package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/katakuxiko/ragdocs/internal/config"
	"github.com/katakuxiko/ragdocs/internal/logger"
	"github.com/katakuxiko/ragdocs/internal/model"
)

// VectorStore — общий контракт для всех бэкендов.
//
// Upsert записывает/заменяет чанки по ID и возвращает число реально
// записанных документов; частичный отказ бэкенда не является ошибкой.
// Search возвращает не более topK результатов по убыванию близости,
// только чанки с TenantID == tenantID.
type VectorStore interface {
	Upsert(ctx context.Context, chunks []model.Chunk) (int, error)
	Search(ctx context.Context, vec []float32, tenantID string, topK int) ([]model.QueryResult, error)
}

const (
	BackendQdrant      = "qdrant"
	BackendPgVector    = "pgvector"
	BackendMemory      = "memory"
	BackendAzureSearch = "azure_search"
)

var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// BackendName — какой бэкенд выберет New для данной конфигурации
func BackendName(cfg *config.Config) string {
	if strings.TrimSpace(cfg.AzureSearchEndpoint) != "" {
		return BackendAzureSearch
	}
	if cfg.VectorBackend == "" {
		return BackendQdrant
	}
	return cfg.VectorBackend
}

// New выбирает и создаёт бэкенд один раз при старте. Наличие
// AZURE_SEARCH_ENDPOINT включает облачный поиск, иначе — локальный движок.
// Ошибки конфигурации возвращаются до любого сетевого запроса.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (VectorStore, error) {
	switch name := BackendName(cfg); name {
	case BackendAzureSearch:
		return NewAzureSearch(AzureSearchConfig{
			Endpoint: cfg.AzureSearchEndpoint,
			Index:    cfg.AzureSearchIndex,
			APIKey:   cfg.AzureSearchAPIKey,
			UseMSI:   cfg.AzureSearchUseMSI,
			Dim:      cfg.EmbedDim,
		}, log)
	case BackendQdrant:
		return NewQdrant(QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dim:        cfg.EmbedDim,
		}, log)
	case BackendPgVector:
		return NewPgStore(ctx, cfg.PgConn, cfg.EmbedDim, log)
	case BackendMemory:
		return NewMemory(cfg.EmbedDim, log), nil
	default:
		return nil, fmt.Errorf("%w: unknown VECTOR_BACKEND %q", config.ErrInvalid, name)
	}
}

func checkDim(dim int, vec []float32, what string) error {
	if len(vec) != dim {
		return fmt.Errorf("%w: %s has %d, collection expects %d", ErrDimensionMismatch, what, len(vec), dim)
	}
	return nil
}

func validateChunks(dim int, chunks []model.Chunk) error {
	for _, ch := range chunks {
		if strings.TrimSpace(ch.ID) == "" {
			return fmt.Errorf("chunk id is required")
		}
		if strings.TrimSpace(ch.TenantID) == "" {
			return fmt.Errorf("chunk %s: tenant_id is required", ch.ID)
		}
		if err := checkDim(dim, ch.Vector, "chunk "+ch.ID); err != nil {
			return err
		}
	}
	return nil
}

// finalize отбрасывает чужие тенанты, сортирует и режет до topK.
// Фильтр уже применён на стороне бэкенда; здесь — вторая линия.
func finalize(log *logger.Logger, tenantID string, topK int, hits []scoredHit) []model.QueryResult {
	out := make([]model.QueryResult, 0, len(hits))
	for _, h := range hits {
		if h.tenantID != tenantID {
			log.Error("backend returned foreign tenant chunk, dropped", "want_tenant", tenantID, "got_tenant", h.tenantID, "id", h.ID)
			continue
		}
		out = append(out, h.QueryResult)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

type scoredHit struct {
	model.QueryResult
	tenantID string
}
