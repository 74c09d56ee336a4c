package store

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katakuxiko/ragdocs/internal/config"
	"github.com/katakuxiko/ragdocs/internal/model"
)

type staticCredential struct {
	token  string
	scopes []string
}

func (c *staticCredential) GetToken(_ context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	c.scopes = opts.Scopes
	return azcore.AccessToken{Token: c.token, ExpiresOn: time.Now().Add(time.Hour)}, nil
}

const (
	azIndexPath  = "/indexes('docs')"
	azUploadPath = "/indexes('docs')/docs/index"
	azSearchPath = "/indexes('docs')/docs/search"
)

func newTestAzure(t *testing.T, srvURL string) *AzureSearch {
	t.Helper()
	s, err := NewAzureSearch(AzureSearchConfig{Endpoint: srvURL + "/", Index: "docs", APIKey: "sk", Dim: 3}, nopLog())
	require.NoError(t, err)
	return s
}

func TestAzureSearchCreatesIndexAndCountsPartialUpsert(t *testing.T) {
	f, srv := newFakeBackend(t)
	f.on("GET "+azIndexPath, func(recorded) (int, any) {
		return http.StatusNotFound, map[string]any{"error": map[string]any{"code": "ResourceNotFound"}}
	})
	f.on("POST /indexes", func(recorded) (int, any) { return http.StatusCreated, map[string]any{"name": "docs"} })
	f.on("POST "+azUploadPath, func(recorded) (int, any) {
		return http.StatusMultiStatus, map[string]any{"value": []any{
			map[string]any{"key": "c1", "status": true, "statusCode": 201},
			map[string]any{"key": "c2", "status": false, "statusCode": 400, "errorMessage": "bad doc"},
			map[string]any{"key": "c3", "status": true, "statusCode": 200},
		}}
	})

	s := newTestAzure(t, srv.URL)
	n, err := s.Upsert(context.Background(), []model.Chunk{
		chunk("c1", "A", "one", 1, 0, 0),
		chunk("c2", "A", "two", 0, 1, 0),
		chunk("c3", "A", "three", 0, 0, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	create := f.last("POST /indexes")
	assert.Equal(t, "api-version=2024-07-01", create.Query)
	assert.Equal(t, "sk", create.Header.Get("api-key"))
	assert.Equal(t, "docs", create.Body["name"])
	var vectorField map[string]any
	for _, fld := range create.Body["fields"].([]any) {
		if m := fld.(map[string]any); m["name"] == "text_vector" {
			vectorField = m
		}
	}
	require.NotNil(t, vectorField)
	assert.Equal(t, float64(3), vectorField["dimensions"])
	algo := create.Body["vectorSearch"].(map[string]any)["algorithms"].([]any)[0].(map[string]any)
	params := algo["hnswParameters"].(map[string]any)
	assert.Equal(t, "cosine", params["metric"])
	assert.Equal(t, float64(4), params["m"])
	assert.Equal(t, float64(400), params["efConstruction"])
	assert.Equal(t, float64(500), params["efSearch"])

	docs := f.last("POST " + azUploadPath).Body["value"].([]any)
	require.Len(t, docs, 3)
	d0 := docs[0].(map[string]any)
	assert.Equal(t, "upload", d0["@search.action"])
	assert.Equal(t, "A", d0["tenant_id"])
	assert.Len(t, d0["text_vector"], 3)
}

func TestAzureSearchPreFiltersByTenant(t *testing.T) {
	f, srv := newFakeBackend(t)
	f.on("GET "+azIndexPath, func(recorded) (int, any) {
		return http.StatusOK, map[string]any{"name": "docs", "fields": []any{
			map[string]any{"name": "id"},
			map[string]any{"name": "text_vector", "dimensions": 3},
		}}
	})
	f.on("POST "+azSearchPath, func(recorded) (int, any) {
		return http.StatusOK, map[string]any{"value": []any{
			map[string]any{"@search.score": 0.9, "id": "x", "tenant_id": "B", "text": "leak"},
			map[string]any{"@search.score": 0.8, "id": "a1", "tenant_id": "O'Brien", "text": "one", "file_id": "f.pdf", "page": 2},
		}}
	})

	s := newTestAzure(t, srv.URL)
	res, err := s.Search(context.Background(), []float32{1, 0, 0}, "O'Brien", 3)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "a1", res[0].ID)
	assert.Equal(t, "f.pdf", res[0].FileID)
	assert.Equal(t, 2, *res[0].Page)

	req := f.last("POST " + azSearchPath)
	assert.Equal(t, "tenant_id eq 'O''Brien'", req.Body["filter"])
	assert.Equal(t, "preFilter", req.Body["vectorFilterMode"])
	assert.Equal(t, float64(3), req.Body["top"])
	vq := req.Body["vectorQueries"].([]any)[0].(map[string]any)
	assert.Equal(t, "vector", vq["kind"])
	assert.Equal(t, "text_vector", vq["fields"])
	assert.Equal(t, float64(3), vq["k"])
	assert.Equal(t, 0, f.count("POST /indexes"))
}

func TestAzureSearchManagedIdentityToken(t *testing.T) {
	f, srv := newFakeBackend(t)
	f.on("GET "+azIndexPath, func(recorded) (int, any) { return http.StatusOK, map[string]any{"fields": []any{}} })
	f.on("POST "+azSearchPath, func(recorded) (int, any) { return http.StatusOK, map[string]any{"value": []any{}} })

	cred := &staticCredential{token: "msi-token"}
	s, err := NewAzureSearch(AzureSearchConfig{Endpoint: srv.URL, Index: "docs", UseMSI: true, Dim: 3, Credential: cred}, nopLog())
	require.NoError(t, err)

	_, err = s.Search(context.Background(), []float32{0, 0, 1}, "A", 1)
	require.NoError(t, err)
	req := f.last("POST " + azSearchPath)
	assert.Equal(t, "Bearer msi-token", req.Header.Get("Authorization"))
	assert.Empty(t, req.Header.Get("api-key"))
	assert.Equal(t, []string{"https://search.azure.com/.default"}, cred.scopes)
}

func TestAzureSearchDimensionMismatch(t *testing.T) {
	f, srv := newFakeBackend(t)
	f.on("GET "+azIndexPath, func(recorded) (int, any) {
		return http.StatusOK, map[string]any{"fields": []any{map[string]any{"name": "text_vector", "dimensions": 1536}}}
	})
	s := newTestAzure(t, srv.URL)
	_, err := s.Search(context.Background(), []float32{1, 0, 0}, "A", 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestNewAzureSearchConfigErrors(t *testing.T) {
	for _, cfg := range []AzureSearchConfig{
		{Endpoint: "", Index: "docs", APIKey: "k", Dim: 3},
		{Endpoint: "search.windows.net", Index: "docs", APIKey: "k", Dim: 3},
		{Endpoint: "https://s.search.windows.net", Index: "", APIKey: "k", Dim: 3},
		{Endpoint: "https://s.search.windows.net", Index: "docs", APIKey: "", Dim: 3},
		{Endpoint: "https://s.search.windows.net", Index: "docs", APIKey: "k", Dim: 0},
	} {
		_, err := NewAzureSearch(cfg, nil)
		assert.ErrorIs(t, err, config.ErrInvalid, "%+v", cfg)
	}
}

func TestTenantFilter(t *testing.T) {
	assert.Equal(t, "tenant_id eq 'acme'", TenantFilter("acme"))
	assert.Equal(t, "tenant_id eq 'a''b'''", TenantFilter("a'b'"))
}
