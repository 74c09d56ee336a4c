package app

import (
	"context"
	"fmt"
	"io"

	"github.com/katakuxiko/ragdocs/internal/cache"
	"github.com/katakuxiko/ragdocs/internal/config"
	"github.com/katakuxiko/ragdocs/internal/cost"
	"github.com/katakuxiko/ragdocs/internal/embedding"
	"github.com/katakuxiko/ragdocs/internal/ingest"
	"github.com/katakuxiko/ragdocs/internal/logger"
	"github.com/katakuxiko/ragdocs/internal/service"
	"github.com/katakuxiko/ragdocs/internal/store"
)

// App — собранные зависимости процесса
type App struct {
	Config  *config.Config
	LLM     *service.LLMClient
	Store   store.VectorStore
	RAG     *service.RAGService
	Backend string

	closers []io.Closer
}

// Build собирает сервисы из конфигурации. Ошибки конфигурации (config.ErrInvalid)
// возвращаются до первого сетевого запроса; затем проверяется связь с Redis.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tok, err := ingest.NewCL100K()
	if err != nil {
		return nil, err
	}
	chunker, err := ingest.NewChunker(tok, cfg.ChunkMaxTokens, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	prices, err := cost.LoadPriceTable(cfg.PricesFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	// бэкенд выбирается один раз на весь процесс
	vs, err := store.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Store: vs, Backend: store.BackendName(cfg)}
	if c, ok := vs.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	kv, err := cache.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.closers = append(a.closers, kv)

	a.LLM = service.NewLLMClient(cfg)
	emb := embedding.NewCache(kv, a.LLM, cfg.EmbedDim, cfg.EmbedCacheTTL, log)
	composer := service.NewAnswerComposer(a.LLM, prices, log)
	a.RAG = service.NewRAGService(chunker, emb, vs, composer, cfg.DefaultTenant, log)

	log.Info("app built",
		"backend", a.Backend,
		"embed_model", cfg.EmbedModel,
		"chat_model", cfg.ChatModel,
		"dim", cfg.EmbedDim,
		"chunk_max_tokens", cfg.ChunkMaxTokens,
		"chunk_overlap", cfg.ChunkOverlap,
	)
	return a, nil
}

func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
