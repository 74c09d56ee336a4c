package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/katakuxiko/ragdocs/internal/config"
)

// ErrProvider — сбой сервиса эмбеддингов или генерации
var ErrProvider = errors.New("provider call failed")

// Completion — ответ модели и фактический расход токенов
type Completion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// LLMClient — клиент для LM Studio / OpenAI совместимых моделей или Azure OpenAI
type LLMClient struct {
	client    *openai.Client
	embedName string
	chatName  string
	embedDim  int
}

// NewLLMClient создаёт клиент с настройками из config.
// AZURE_OPENAI_ENDPOINT переключает клиент на Azure, имена моделей — это имена деплойментов.
func NewLLMClient(cfg *config.Config) *LLMClient {
	var oaiCfg openai.ClientConfig
	if cfg.AzureOpenAIEndpoint != "" {
		oaiCfg = openai.DefaultAzureConfig(cfg.AzureOpenAIAPIKey, cfg.AzureOpenAIEndpoint)
		oaiCfg.APIVersion = cfg.AzureOpenAIAPIVersion
		oaiCfg.AzureModelMapperFunc = func(model string) string { return model }
	} else {
		oaiCfg = openai.DefaultConfig(cfg.LMAPIKey)
		oaiCfg.BaseURL = cfg.LMBaseURL
	}
	return &LLMClient{
		client:    openai.NewClientWithConfig(oaiCfg),
		embedName: cfg.EmbedModel,
		chatName:  cfg.ChatModel,
		embedDim:  cfg.EmbedDim,
	}
}

// CreateEmbeddings — один батч-запрос; векторы в порядке texts
func (l *LLMClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(l.embedName),
		Input: texts,
	}
	// text-embedding-3-* умеют укорачивать вектор до размерности коллекции
	if strings.HasPrefix(l.embedName, "text-embedding-3") {
		req.Dimensions = l.embedDim
	}
	resp, err := l.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: embeddings: %w", ErrProvider, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: embeddings: got %d vectors for %d inputs", ErrProvider, len(resp.Data), len(texts))
	}
	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}

// Complete выполняет chat completion и возвращает текст и usage
func (l *LLMClient) Complete(ctx context.Context, msgs []openai.ChatCompletionMessage) (Completion, error) {
	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       l.chatName,
		Messages:    msgs,
		Temperature: 0.2,
	})
	if err != nil {
		return Completion{}, fmt.Errorf("%w: chat completion: %w", ErrProvider, err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("%w: LLM вернул пустой ответ", ErrProvider)
	}
	return Completion{
		Text:             strings.TrimSpace(resp.Choices[0].Message.Content),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// ChatModel — имя модели для таблицы цен
func (l *LLMClient) ChatModel() string { return l.chatName }

// ListModels возвращает список моделей провайдера
func (l *LLMClient) ListModels(ctx context.Context) ([]openai.Model, error) {
	resp, err := l.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list models: %w", ErrProvider, err)
	}
	return resp.Models, nil
}
