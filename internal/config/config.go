package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid — фатальная ошибка конфигурации, запуск прерывается без ретраев
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	ServerAddr    string
	LogMode       string
	DefaultTenant string

	// OpenAI-совместимый провайдер (LM Studio, OpenAI) или Azure OpenAI
	LMBaseURL             string
	LMAPIKey              string
	AzureOpenAIEndpoint   string
	AzureOpenAIAPIKey     string
	AzureOpenAIAPIVersion string
	EmbedModel            string
	ChatModel             string
	EmbedDim              int

	ChunkMaxTokens int
	ChunkOverlap   int

	RedisURL      string
	EmbedCacheTTL time.Duration

	// VectorBackend выбирает локальный движок, если облачный поиск не настроен
	VectorBackend    string
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string
	PgConn           string

	AzureSearchEndpoint string
	AzureSearchIndex    string
	AzureSearchAPIKey   string
	AzureSearchUseMSI   bool

	PricesFile string

	// ошибки разбора переменных окружения; возвращает Validate
	parseErrs []error
}

func Load() *Config {
	var errs []error
	cfg := &Config{
		ServerAddr:    getenv("SERVER_ADDR", ":8080"),
		LogMode:       getenv("LOG_MODE", "dev"),
		DefaultTenant: getenv("DEFAULT_TENANT", "demo"),

		LMBaseURL:             getenv("LMSTUDIO_BASE_URL", "http://localhost:1234/v1"),
		LMAPIKey:              getenv("OPENAI_API_KEY", "not-needed"),
		AzureOpenAIEndpoint:   getenv("AZURE_OPENAI_ENDPOINT", ""),
		AzureOpenAIAPIKey:     getenv("AZURE_OPENAI_API_KEY", ""),
		AzureOpenAIAPIVersion: getenv("AZURE_OPENAI_API_VERSION", "2024-07-01-preview"),
		EmbedModel:            getenv("EMBED_MODEL", "text-embedding-3-large"),
		ChatModel:             getenv("LLM_MODEL", "gpt-4o-mini"),
		EmbedDim:              getenvInt("EMBED_DIM", 1536, &errs),

		ChunkMaxTokens: getenvInt("CHUNK_MAX_TOKENS", 900, &errs),
		ChunkOverlap:   getenvInt("CHUNK_OVERLAP", 150, &errs),

		RedisURL:      getenv("REDIS_URL", "redis://localhost:6379/0"),
		EmbedCacheTTL: getenvDuration("EMBED_CACHE_TTL", 7*24*time.Hour, &errs),

		VectorBackend:    strings.ToLower(getenv("VECTOR_BACKEND", "qdrant")),
		QdrantURL:        getenv("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:     getenv("QDRANT_API_KEY", ""),
		QdrantCollection: getenv("QDRANT_COLLECTION", "chunks"),
		PgConn:           getenv("PG_CONN", "host=localhost port=5432 user=postgres password=123123 dbname=pdf_ai sslmode=disable"),

		AzureSearchEndpoint: getenv("AZURE_SEARCH_ENDPOINT", ""),
		AzureSearchIndex:    getenv("AZURE_SEARCH_INDEX", "docs"),
		AzureSearchAPIKey:   getenv("AZURE_SEARCH_API_KEY", ""),
		AzureSearchUseMSI:   getenvBool("AZURE_SEARCH_USE_MSI", false, &errs),

		PricesFile: getenv("PRICES_FILE", ""),
	}
	cfg.parseErrs = errs
	return cfg
}

// Validate проверяет параметры, не зависящие от выбранного бэкенда.
// Бэкенд-специфичные поля проверяет store.New.
func (c *Config) Validate() error {
	if len(c.parseErrs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(c.parseErrs...))
	}
	if c.ChunkMaxTokens <= 0 {
		return fmt.Errorf("%w: CHUNK_MAX_TOKENS must be positive, got %d", ErrInvalid, c.ChunkMaxTokens)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkMaxTokens {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be in [0, %d), got %d", ErrInvalid, c.ChunkMaxTokens, c.ChunkOverlap)
	}
	if c.EmbedDim <= 0 {
		return fmt.Errorf("%w: EMBED_DIM must be positive, got %d", ErrInvalid, c.EmbedDim)
	}
	if strings.TrimSpace(c.EmbedModel) == "" || strings.TrimSpace(c.ChatModel) == "" {
		return fmt.Errorf("%w: EMBED_MODEL and LLM_MODEL are required", ErrInvalid)
	}
	if c.AzureOpenAIEndpoint != "" && c.AzureOpenAIAPIKey == "" {
		return fmt.Errorf("%w: AZURE_OPENAI_API_KEY is required with AZURE_OPENAI_ENDPOINT", ErrInvalid)
	}
	if strings.TrimSpace(c.DefaultTenant) == "" {
		return fmt.Errorf("%w: DEFAULT_TENANT must not be empty", ErrInvalid)
	}
	return nil
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int, errs *[]error) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not an integer", k, v))
		return def
	}
	return i
}

func getenvBool(k string, def bool, errs *[]error) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a boolean", k, v))
		return def
	}
	return b
}

func getenvDuration(k string, def time.Duration, errs *[]error) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a positive duration", k, v))
		return def
	}
	return d
}
