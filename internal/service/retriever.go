package service

import (
	"context"
	"fmt"

	"github.com/katakuxiko/ragdocs/internal/model"
	"github.com/katakuxiko/ragdocs/internal/store"
)

// Embedder — кэш эмбеддингов перед провайдером
type Embedder interface {
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Retriever: вопрос -> вектор -> top-k чанков тенанта
type Retriever struct {
	emb   Embedder
	store store.VectorStore
}

func NewRetriever(emb Embedder, vs store.VectorStore) *Retriever {
	return &Retriever{emb: emb, store: vs}
}

func (r *Retriever) Retrieve(ctx context.Context, question, tenantID string, k int) ([]model.QueryResult, error) {
	vec, err := r.emb.EmbedOne(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	hits, err := r.store.Search(ctx, vec, tenantID, k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return hits, nil
}
