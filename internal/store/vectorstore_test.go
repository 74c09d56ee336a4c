package store

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katakuxiko/ragdocs/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		EmbedDim:         3,
		VectorBackend:    BackendQdrant,
		QdrantURL:        "http://localhost:6333",
		QdrantCollection: "chunks",
		AzureSearchIndex: "docs",
		PgConn:           "host=localhost dbname=x sslmode=disable",
	}
}

func TestBackendSelection(t *testing.T) {
	ctx := context.Background()

	cfg := baseConfig()
	assert.Equal(t, BackendQdrant, BackendName(cfg))
	vs, err := New(ctx, cfg, nopLog())
	require.NoError(t, err)
	assert.IsType(t, &Qdrant{}, vs)

	cfg.VectorBackend = ""
	assert.Equal(t, BackendQdrant, BackendName(cfg))

	cfg.VectorBackend = BackendMemory
	vs, err = New(ctx, cfg, nopLog())
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, vs)

	cfg.VectorBackend = BackendPgVector
	vs, err = New(ctx, cfg, nopLog())
	require.NoError(t, err)
	assert.IsType(t, &PgStore{}, vs)
	require.NoError(t, vs.(*PgStore).Close())

	// облачный endpoint важнее VECTOR_BACKEND
	cfg.AzureSearchEndpoint = "https://acme.search.windows.net"
	cfg.AzureSearchAPIKey = "k"
	assert.Equal(t, BackendAzureSearch, BackendName(cfg))
	vs, err = New(ctx, cfg, nopLog())
	require.NoError(t, err)
	assert.IsType(t, &AzureSearch{}, vs)
}

func TestBackendConfigErrors(t *testing.T) {
	ctx := context.Background()

	cfg := baseConfig()
	cfg.VectorBackend = "chroma"
	_, err := New(ctx, cfg, nopLog())
	assert.ErrorIs(t, err, config.ErrInvalid)

	cfg = baseConfig()
	cfg.AzureSearchEndpoint = "https://acme.search.windows.net"
	_, err = New(ctx, cfg, nopLog())
	assert.ErrorIs(t, err, config.ErrInvalid, "missing api key without MSI")

	cfg = baseConfig()
	cfg.VectorBackend = BackendPgVector
	cfg.PgConn = " "
	_, err = New(ctx, cfg, nopLog())
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestSchemaStatementsUseDimension(t *testing.T) {
	stmts := schemaStatements(1536)
	require.NotEmpty(t, stmts)
	assert.Equal(t, "CREATE EXTENSION IF NOT EXISTS vector", stmts[0])

	joined := strings.Join(stmts, "\n")
	assert.Contains(t, joined, "embedding vector(1536) NOT NULL")
	assert.Contains(t, joined, "id TEXT PRIMARY KEY")
	assert.Contains(t, joined, "ON chunks (tenant_id)")
	assert.Contains(t, joined, "vector_cosine_ops")
}
