package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/katakuxiko/ragdocs/internal/config"
	"github.com/katakuxiko/ragdocs/internal/logger"
	"github.com/katakuxiko/ragdocs/internal/model"
)

// Qdrant принимает только UUID или целые id точек; прочие id чанков
// детерминированно отображаются в UUIDv5 в этом пространстве имён.
var pointIDNamespace = uuid.MustParse("6f1c9a52-3d1e-4b8a-9a0e-2b7d4c8f5e11")

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Dim        int
	Timeout    time.Duration
}

// Qdrant — локальный ANN-движок через REST API
type Qdrant struct {
	cfg     QdrantConfig
	baseURL string
	rest    *restClient
	log     *logger.Logger

	mu    sync.Mutex
	ready bool
}

type qdrantPayload struct {
	ChunkID  string  `json:"chunk_id"`
	TenantID string  `json:"tenant_id"`
	FileID   string  `json:"file_id"`
	Source   string  `json:"source"`
	Page     *int    `json:"page"`
	Section  *string `json:"section"`
	Text     string  `json:"text"`
	Hash     string  `json:"hash"`
}

type qdrantPoint struct {
	ID      string        `json:"id"`
	Vector  []float32     `json:"vector"`
	Payload qdrantPayload `json:"payload"`
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

func NewQdrant(cfg QdrantConfig, log *logger.Logger) (*Qdrant, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.URL))
	if cfg.URL == "" || err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: QDRANT_URL must be an absolute URL, got %q", config.ErrInvalid, cfg.URL)
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return nil, fmt.Errorf("%w: QDRANT_COLLECTION is required", config.ErrInvalid)
	}
	if cfg.Dim <= 0 {
		return nil, fmt.Errorf("%w: vector dimension must be positive", config.ErrInvalid)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	q := &Qdrant{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		log:     log.With("service", "QdrantVectorStore", "collection", cfg.Collection),
	}
	q.rest = &restClient{
		backend: BackendQdrant,
		http:    &http.Client{Timeout: cfg.Timeout},
		headers: func(_ context.Context, req *http.Request) error {
			if cfg.APIKey != "" {
				req.Header.Set("api-key", cfg.APIKey)
			}
			return nil
		},
	}
	return q, nil
}

func (q *Qdrant) Upsert(ctx context.Context, chunks []model.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	if err := validateChunks(q.cfg.Dim, chunks); err != nil {
		return 0, err
	}
	if err := q.ensureCollection(ctx); err != nil {
		return 0, err
	}

	points := make([]qdrantPoint, 0, len(chunks))
	for _, ch := range chunks {
		points = append(points, qdrantPoint{
			ID:     PointID(ch.ID),
			Vector: ch.Vector,
			Payload: qdrantPayload{
				ChunkID:  ch.ID,
				TenantID: ch.TenantID,
				FileID:   ch.FileID,
				Source:   ch.Source,
				Page:     ch.Page,
				Section:  ch.Section,
				Text:     ch.Text,
				Hash:     ch.Hash,
			},
		})
	}
	// upsert в Qdrant атомарен для батча: либо все точки, либо ошибка
	var env qdrantEnvelope
	if err := q.rest.doJSON(ctx, "upsert", http.MethodPut, q.collectionURL("/points?wait=true"), map[string]any{"points": points}, &env); err != nil {
		return 0, err
	}
	q.log.Info("chunks upserted", "upserted", len(points), "total", len(chunks))
	return len(points), nil
}

func (q *Qdrant) Search(ctx context.Context, vec []float32, tenantID string, topK int) ([]model.QueryResult, error) {
	if err := checkDim(q.cfg.Dim, vec, "query vector"); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}
	if err := q.ensureCollection(ctx); err != nil {
		return nil, err
	}

	req := map[string]any{
		"vector":       vec,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  false,
		"filter": map[string]any{
			"must": []any{
				map[string]any{"key": "tenant_id", "match": map[string]any{"value": tenantID}},
			},
		},
	}
	var env qdrantEnvelope
	if err := q.rest.doJSON(ctx, "search", http.MethodPost, q.collectionURL("/points/search"), req, &env); err != nil {
		return nil, err
	}
	var raw []struct {
		ID      json.RawMessage `json:"id"`
		Score   float64         `json:"score"`
		Payload qdrantPayload   `json:"payload"`
	}
	if err := json.Unmarshal(env.Result, &raw); err != nil {
		return nil, opErr(BackendQdrant, "search", OpErrDecode, "decode search result", err)
	}

	hits := make([]scoredHit, 0, len(raw))
	for _, r := range raw {
		id := r.Payload.ChunkID
		if id == "" {
			id = strings.Trim(string(r.ID), `"`)
		}
		hits = append(hits, scoredHit{
			QueryResult: model.QueryResult{
				ID:      id,
				Text:    r.Payload.Text,
				Source:  r.Payload.Source,
				FileID:  r.Payload.FileID,
				Page:    r.Payload.Page,
				Section: r.Payload.Section,
				Score:   r.Score,
			},
			tenantID: r.Payload.TenantID,
		})
	}
	return finalize(q.log, tenantID, topK, hits), nil
}

// ensureCollection создаёт коллекцию при первом обращении (create-if-absent).
// Гонка с другим процессом безопасна: "already exists" считается успехом.
func (q *Qdrant) ensureCollection(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ready {
		return nil
	}

	status, raw, err := q.rest.do(ctx, "get_collection", http.MethodGet, q.collectionURL(""), nil)
	if err != nil {
		return err
	}
	switch {
	case ok2xx(status):
		if err := q.checkCollectionSize(raw); err != nil {
			return err
		}
	case status == http.StatusNotFound:
		if err := q.createCollection(ctx); err != nil {
			return err
		}
	default:
		return statusErr(BackendQdrant, "get_collection", status, raw)
	}
	q.ready = true
	return nil
}

func (q *Qdrant) createCollection(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{"size": q.cfg.Dim, "distance": "Cosine"},
	}
	status, raw, err := q.rest.do(ctx, "create_collection", http.MethodPut, q.collectionURL(""), body)
	if err != nil {
		return err
	}
	if !ok2xx(status) && !alreadyExists(status, raw) {
		return statusErr(BackendQdrant, "create_collection", status, raw)
	}

	idx := map[string]any{"field_name": "tenant_id", "field_schema": "keyword"}
	if err := q.rest.doJSON(ctx, "create_index", http.MethodPut, q.collectionURL("/index?wait=true"), idx, nil); err != nil {
		// без индекса фильтр работает, только медленнее
		q.log.Warn("tenant_id payload index not created", "error", err)
	}
	q.log.Info("qdrant collection created", "dim", q.cfg.Dim, "distance", "Cosine")
	return nil
}

func (q *Qdrant) checkCollectionSize(raw []byte) error {
	var env struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return opErr(BackendQdrant, "get_collection", OpErrDecode, "decode collection info", err)
	}
	size := env.Result.Config.Params.Vectors.Size
	if size != 0 && size != q.cfg.Dim {
		return fmt.Errorf("%w: qdrant collection %q has size %d, expected %d", ErrDimensionMismatch, q.cfg.Collection, size, q.cfg.Dim)
	}
	return nil
}

func (q *Qdrant) collectionURL(suffix string) string {
	return q.baseURL + "/collections/" + url.PathEscape(q.cfg.Collection) + suffix
}

// PointID — id точки Qdrant для id чанка; повторный upsert того же чанка
// попадает в ту же точку.
func PointID(chunkID string) string {
	if u, err := uuid.Parse(chunkID); err == nil {
		return u.String()
	}
	return uuid.NewSHA1(pointIDNamespace, []byte(chunkID)).String()
}

func alreadyExists(status int, body []byte) bool {
	if status == http.StatusConflict {
		return true
	}
	return status == http.StatusBadRequest && bytes.Contains(bytes.ToLower(body), []byte("already exists"))
}
