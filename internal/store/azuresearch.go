package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"github.com/katakuxiko/ragdocs/internal/config"
	"github.com/katakuxiko/ragdocs/internal/logger"
	"github.com/katakuxiko/ragdocs/internal/model"
)

const (
	azureSearchAPIVersion = "2024-07-01"
	azureSearchScope      = "https://search.azure.com/.default"
	azureVectorField      = "text_vector"
	azureVectorProfile    = "vector-profile"
	azureHNSWConfig       = "hnsw-config"
)

type AzureSearchConfig struct {
	Endpoint   string
	Index      string
	APIKey     string
	UseMSI     bool
	Dim        int
	APIVersion string
	Timeout    time.Duration
	// Credential переопределяет DefaultAzureCredential при UseMSI
	Credential azcore.TokenCredential
}

// AzureSearch — управляемый облачный бэкенд (Azure AI Search, REST)
type AzureSearch struct {
	cfg      AzureSearchConfig
	endpoint string
	rest     *restClient
	log      *logger.Logger

	mu    sync.Mutex
	ready bool
}

type azureDoc struct {
	Action   string    `json:"@search.action"`
	ID       string    `json:"id"`
	TenantID string    `json:"tenant_id"`
	FileID   string    `json:"file_id"`
	Text     string    `json:"text"`
	Vector   []float32 `json:"text_vector"`
	Source   string    `json:"source"`
	Hash     string    `json:"hash"`
	Page     *int      `json:"page,omitempty"`
	Section  *string   `json:"section,omitempty"`
}

type azureIndexResult struct {
	Value []struct {
		Key          string `json:"key"`
		Status       bool   `json:"status"`
		ErrorMessage string `json:"errorMessage"`
		StatusCode   int    `json:"statusCode"`
	} `json:"value"`
}

func NewAzureSearch(cfg AzureSearchConfig, log *logger.Logger) (*AzureSearch, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.Endpoint))
	if cfg.Endpoint == "" || err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: AZURE_SEARCH_ENDPOINT must be an absolute URL, got %q", config.ErrInvalid, cfg.Endpoint)
	}
	if strings.TrimSpace(cfg.Index) == "" {
		return nil, fmt.Errorf("%w: AZURE_SEARCH_INDEX is required", config.ErrInvalid)
	}
	if cfg.Dim <= 0 {
		return nil, fmt.Errorf("%w: vector dimension must be positive", config.ErrInvalid)
	}
	if !cfg.UseMSI && strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: AZURE_SEARCH_API_KEY is required when not using MSI", config.ErrInvalid)
	}
	if cfg.UseMSI && cfg.Credential == nil {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: azure credential: %v", config.ErrInvalid, err)
		}
		cfg.Credential = cred
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = azureSearchAPIVersion
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}

	s := &AzureSearch{
		cfg:      cfg,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		log:      log.With("service", "AzureSearchVectorStore", "index", cfg.Index),
	}
	s.rest = &restClient{
		backend: BackendAzureSearch,
		http:    &http.Client{Timeout: cfg.Timeout},
		headers: s.authorize,
	}
	return s, nil
}

func (s *AzureSearch) authorize(ctx context.Context, req *http.Request) error {
	if !s.cfg.UseMSI {
		req.Header.Set("api-key", s.cfg.APIKey)
		return nil
	}
	tok, err := s.cfg.Credential.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{azureSearchScope}})
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	return nil
}

func (s *AzureSearch) Upsert(ctx context.Context, chunks []model.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	if err := validateChunks(s.cfg.Dim, chunks); err != nil {
		return 0, err
	}
	if err := s.ensureIndex(ctx); err != nil {
		return 0, err
	}

	docs := make([]azureDoc, 0, len(chunks))
	for _, ch := range chunks {
		docs = append(docs, azureDoc{
			Action:   "upload",
			ID:       ch.ID,
			TenantID: ch.TenantID,
			FileID:   ch.FileID,
			Text:     ch.Text,
			Vector:   ch.Vector,
			Source:   ch.Source,
			Hash:     ch.Hash,
			Page:     ch.Page,
			Section:  ch.Section,
		})
	}

	// 207 Multi-Status — часть документов отклонена; это не ошибка
	status, raw, err := s.rest.do(ctx, "upsert", http.MethodPost, s.indexURL("/docs/index"), map[string]any{"value": docs})
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK && status != http.StatusMultiStatus {
		return 0, statusErr(BackendAzureSearch, "upsert", status, raw)
	}
	var res azureIndexResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return 0, opErr(BackendAzureSearch, "upsert", OpErrDecode, "decode index result", err)
	}
	ok := 0
	for _, r := range res.Value {
		if r.Status {
			ok++
			continue
		}
		s.log.Warn("document rejected", "key", r.Key, "status_code", r.StatusCode, "error", r.ErrorMessage)
	}
	if ok < len(docs) {
		s.log.Warn("partial upsert", "upserted", ok, "total", len(docs), "failed", len(docs)-ok)
	} else {
		s.log.Info("chunks upserted", "upserted", ok, "total", len(docs))
	}
	return ok, nil
}

func (s *AzureSearch) Search(ctx context.Context, vec []float32, tenantID string, topK int) ([]model.QueryResult, error) {
	if err := checkDim(s.cfg.Dim, vec, "query vector"); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}
	if err := s.ensureIndex(ctx); err != nil {
		return nil, err
	}

	req := map[string]any{
		"select":           "id,tenant_id,text,source,file_id,page,section",
		"filter":           TenantFilter(tenantID),
		"top":              topK,
		"vectorFilterMode": "preFilter",
		"vectorQueries": []any{
			map[string]any{"kind": "vector", "vector": vec, "k": topK, "fields": azureVectorField},
		},
	}
	var res struct {
		Value []struct {
			Score    float64 `json:"@search.score"`
			ID       string  `json:"id"`
			TenantID string  `json:"tenant_id"`
			Text     string  `json:"text"`
			Source   string  `json:"source"`
			FileID   string  `json:"file_id"`
			Page     *int    `json:"page"`
			Section  *string `json:"section"`
		} `json:"value"`
	}
	if err := s.rest.doJSON(ctx, "search", http.MethodPost, s.indexURL("/docs/search"), req, &res); err != nil {
		return nil, err
	}

	hits := make([]scoredHit, 0, len(res.Value))
	for _, v := range res.Value {
		hits = append(hits, scoredHit{
			QueryResult: model.QueryResult{
				ID:      v.ID,
				Text:    v.Text,
				Source:  v.Source,
				FileID:  v.FileID,
				Page:    v.Page,
				Section: v.Section,
				Score:   v.Score,
			},
			tenantID: v.TenantID,
		})
	}
	out := finalize(s.log, tenantID, topK, hits)
	s.log.Debug("search done", "tenant", tenantID, "hits", len(out))
	return out, nil
}

// ensureIndex — create-if-absent; "already exists" от параллельного старта — успех
func (s *AzureSearch) ensureIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	status, raw, err := s.rest.do(ctx, "get_index", http.MethodGet, s.indexURL(""), nil)
	if err != nil {
		return err
	}
	switch {
	case ok2xx(status):
		if err := s.checkIndexDim(raw); err != nil {
			return err
		}
		s.log.Info("index already exists")
	case status == http.StatusNotFound:
		status, raw, err = s.rest.do(ctx, "create_index", http.MethodPost, s.endpoint+"/indexes?api-version="+s.cfg.APIVersion, s.indexDefinition())
		if err != nil {
			return err
		}
		if !ok2xx(status) && !alreadyExists(status, raw) {
			return statusErr(BackendAzureSearch, "create_index", status, raw)
		}
		s.log.Info("index created", "dim", s.cfg.Dim)
	default:
		return statusErr(BackendAzureSearch, "get_index", status, raw)
	}
	s.ready = true
	return nil
}

func (s *AzureSearch) indexDefinition() map[string]any {
	str := func(name string, extra map[string]any) map[string]any {
		f := map[string]any{"name": name, "type": "Edm.String"}
		for k, v := range extra {
			f[k] = v
		}
		return f
	}
	return map[string]any{
		"name": s.cfg.Index,
		"fields": []any{
			str("id", map[string]any{"key": true, "filterable": true}),
			str("tenant_id", map[string]any{"filterable": true, "facetable": true}),
			str("file_id", map[string]any{"filterable": true, "facetable": true}),
			str("text", map[string]any{"searchable": true}),
			map[string]any{
				"name":                azureVectorField,
				"type":                "Collection(Edm.Single)",
				"searchable":          true,
				"dimensions":          s.cfg.Dim,
				"vectorSearchProfile": azureVectorProfile,
			},
			str("source", map[string]any{"filterable": true}),
			str("hash", map[string]any{"filterable": true}),
			map[string]any{"name": "page", "type": "Edm.Int32", "filterable": true},
			str("section", map[string]any{"filterable": true}),
		},
		"vectorSearch": map[string]any{
			"algorithms": []any{
				map[string]any{
					"name": azureHNSWConfig,
					"kind": "hnsw",
					"hnswParameters": map[string]any{
						"m":              4,
						"efConstruction": 400,
						"efSearch":       500,
						"metric":         "cosine",
					},
				},
			},
			"profiles": []any{
				map[string]any{"name": azureVectorProfile, "algorithm": azureHNSWConfig},
			},
		},
	}
}

func (s *AzureSearch) checkIndexDim(raw []byte) error {
	var idx struct {
		Fields []struct {
			Name       string `json:"name"`
			Dimensions int    `json:"dimensions"`
		} `json:"fields"`
	}
	if err := json.Unmarshal(raw, &idx); err != nil {
		return opErr(BackendAzureSearch, "get_index", OpErrDecode, "decode index definition", err)
	}
	for _, f := range idx.Fields {
		if f.Name == azureVectorField && f.Dimensions != 0 && f.Dimensions != s.cfg.Dim {
			return fmt.Errorf("%w: index %q has %d dimensions, expected %d", ErrDimensionMismatch, s.cfg.Index, f.Dimensions, s.cfg.Dim)
		}
	}
	return nil
}

func (s *AzureSearch) indexURL(suffix string) string {
	name := strings.ReplaceAll(s.cfg.Index, "'", "''")
	return s.endpoint + "/indexes('" + url.PathEscape(name) + "')" + suffix + "?api-version=" + s.cfg.APIVersion
}

// TenantFilter — OData-фильтр по тенанту с экранированием кавычек
func TenantFilter(tenantID string) string {
	return "tenant_id eq '" + strings.ReplaceAll(tenantID, "'", "''") + "'"
}
