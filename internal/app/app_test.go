package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katakuxiko/ragdocs/internal/config"
	"github.com/katakuxiko/ragdocs/internal/store"
)

func testConfig(redisURL string) *config.Config {
	return &config.Config{
		DefaultTenant:  "demo",
		LMBaseURL:      "http://127.0.0.1:1/v1",
		LMAPIKey:       "x",
		EmbedModel:     "text-embedding-3-large",
		ChatModel:      "gpt-4o-mini",
		EmbedDim:       8,
		ChunkMaxTokens: 900,
		ChunkOverlap:   150,
		RedisURL:       redisURL,
		VectorBackend:  store.BackendMemory,
	}
}

func TestBuildMemoryBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	a, err := Build(context.Background(), testConfig("redis://"+mr.Addr()), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.Equal(t, store.BackendMemory, a.Backend)
	assert.IsType(t, &store.Memory{}, a.Store)
	assert.NotNil(t, a.RAG)
	assert.NotNil(t, a.LLM)

	// пустой документ не трогает ни провайдера, ни бэкенд
	res, err := a.RAG.Ingest(context.Background(), nil, "empty.txt", "")
	require.NoError(t, err)
	assert.Equal(t, "demo", res.Tenant)
	assert.Zero(t, res.ChunkCount)
}

func TestBuildConfigErrorsBeforeNetwork(t *testing.T) {
	// Redis по этому адресу недоступен: ошибка должна быть конфигурационной
	unreachable := "redis://127.0.0.1:1/0"

	cfg := testConfig(unreachable)
	cfg.ChunkOverlap = cfg.ChunkMaxTokens
	_, err := Build(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, config.ErrInvalid)

	cfg = testConfig(unreachable)
	cfg.VectorBackend = "faiss"
	_, err = Build(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, config.ErrInvalid)

	cfg = testConfig(unreachable)
	cfg.AzureSearchEndpoint = "https://acme.search.windows.net"
	cfg.AzureSearchIndex = "docs"
	_, err = Build(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, config.ErrInvalid, "azure search without api key")

	cfg = testConfig(unreachable)
	bad := filepath.Join(t.TempDir(), "prices.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("{{"), 0o600))
	cfg.PricesFile = bad
	_, err = Build(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestBuildRedisUnavailable(t *testing.T) {
	_, err := Build(context.Background(), testConfig("redis://127.0.0.1:1/0"), nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, config.ErrInvalid)
}
