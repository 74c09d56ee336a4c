package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/katakuxiko/ragdocs/internal/ingest"
	"github.com/katakuxiko/ragdocs/internal/logger"
	"github.com/katakuxiko/ragdocs/internal/model"
	"github.com/katakuxiko/ragdocs/internal/store"
	"github.com/katakuxiko/ragdocs/internal/util"
)

const (
	DefaultK = 4
	MaxK     = 50
)

// ErrInvalidInput — ошибка во входных данных запроса (400)
var ErrInvalidInput = errors.New("invalid input")

type RAGService struct {
	chunker       *ingest.Chunker
	emb           Embedder
	store         store.VectorStore
	retriever     *Retriever
	composer      *AnswerComposer
	defaultTenant string
	log           *logger.Logger
}

func NewRAGService(chunker *ingest.Chunker, emb Embedder, vs store.VectorStore, composer *AnswerComposer, defaultTenant string, log *logger.Logger) *RAGService {
	if log == nil {
		log = logger.Nop()
	}
	return &RAGService{
		chunker:       chunker,
		emb:           emb,
		store:         vs,
		retriever:     NewRetriever(emb, vs),
		composer:      composer,
		defaultTenant: defaultTenant,
		log:           log.With("service", "RAGService"),
	}
}

// Ingest: извлечение -> нормализация -> окна -> эмбеддинги -> upsert.
// Upserted может быть меньше ChunkCount, если бэкенд отклонил часть документов.
func (s *RAGService) Ingest(ctx context.Context, data []byte, filename, tenantID string) (model.IngestResult, error) {
	tenant := s.tenant(tenantID)
	fileID := filepath.Base(strings.TrimSpace(filename))
	if fileID == "" || fileID == "." || fileID == "/" {
		return model.IngestResult{}, fmt.Errorf("%w: filename is required", ErrInvalidInput)
	}
	res := model.IngestResult{Tenant: tenant, FileID: fileID}

	text, err := ingest.Extract(data, fileID)
	if err != nil {
		s.log.Warn("extract failed, using raw text", "file_id", fileID, "error", err)
	}
	windows := s.chunker.Chunk(ingest.Normalize(text))
	if len(windows) == 0 {
		s.log.Info("no text to index", "tenant", tenant, "file_id", fileID)
		return res, nil
	}

	vecs, err := s.emb.EmbedMany(ctx, windows)
	if err != nil {
		return model.IngestResult{}, fmt.Errorf("embed chunks: %w", err)
	}

	chunks := make([]model.Chunk, len(windows))
	for i, w := range windows {
		chunks[i] = model.Chunk{
			ID:       uuid.NewString(),
			TenantID: tenant,
			FileID:   fileID,
			Source:   fileID,
			Text:     w,
			Vector:   vecs[i],
			Hash:     ingest.Hash(w),
		}
	}
	n, err := s.store.Upsert(ctx, chunks)
	if err != nil {
		return model.IngestResult{}, fmt.Errorf("upsert chunks: %w", err)
	}

	res.ChunkCount = len(chunks)
	res.Upserted = n
	s.log.Info("document ingested", "tenant", tenant, "file_id", fileID, "chunks", len(chunks), "upserted", n)
	return res, nil
}

// Ask: k <= 0 означает DefaultK, k > MaxK урезается до MaxK
func (s *RAGService) Ask(ctx context.Context, question, tenantID string, k int) (model.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return model.Answer{}, fmt.Errorf("%w: question is required", ErrInvalidInput)
	}
	tenant := s.tenant(tenantID)
	k = ClampK(k)

	hits, err := s.retriever.Retrieve(ctx, question, tenant, k)
	if err != nil {
		return model.Answer{}, err
	}
	ans, err := s.composer.Compose(ctx, question, hits)
	if err != nil {
		return model.Answer{}, fmt.Errorf("compose answer: %w", err)
	}
	s.log.Info("question answered", "tenant", tenant, "k", k, "sources", len(ans.Sources), "usd", ans.Cost.USD)
	return ans, nil
}

func ClampK(k int) int {
	switch {
	case k <= 0:
		return DefaultK
	case k > MaxK:
		return MaxK
	}
	return k
}

func (s *RAGService) tenant(id string) string {
	return util.FirstNonEmpty(strings.TrimSpace(id), s.defaultTenant)
}
