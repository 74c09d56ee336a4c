package api

import (
	"context"
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/sashabaranov/go-openai"

	"github.com/katakuxiko/ragdocs/internal/logger"
	"github.com/katakuxiko/ragdocs/internal/model"
	"github.com/katakuxiko/ragdocs/internal/service"
	"github.com/katakuxiko/ragdocs/internal/store"
)

// RAG — операции ingest/ask, которые обслуживает HTTP-слой
type RAG interface {
	Ingest(ctx context.Context, data []byte, filename, tenantID string) (model.IngestResult, error)
	Ask(ctx context.Context, question, tenantID string, k int) (model.Answer, error)
}

// ModelLister — список моделей провайдера
type ModelLister interface {
	ListModels(ctx context.Context) ([]openai.Model, error)
}

// Handler хранит зависимости для обработчиков
type Handler struct {
	rag RAG
	llm ModelLister
	log *logger.Logger
}

// NewHandler конструктор
func NewHandler(rag RAG, llm ModelLister, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{rag: rag, llm: llm, log: log.With("service", "api")}
}

// Health — простая проверка
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ok": true})
}

// ListModels — проксирование к провайдеру (список моделей)
func (h *Handler) ListModels(c *fiber.Ctx) error {
	models, err := h.llm.ListModels(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(models)
}

// Ingest — multipart-поле file, tenant_id из query или формы
func (h *Handler) Ingest(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file is required (form field: file)"})
	}
	f, err := file.Open()
	if err != nil {
		h.log.Error("open upload", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read upload"})
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		h.log.Error("read upload", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read upload"})
	}

	tenant := c.Query("tenant_id")
	if tenant == "" {
		tenant = c.FormValue("tenant_id")
	}
	res, err := h.rag.Ingest(c.UserContext(), data, file.Filename, tenant)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(res)
}

// Ask — RAG: поиск + LLM
func (h *Handler) Ask(c *fiber.Ctx) error {
	var req model.AskRequest
	if err := c.BodyParser(&req); err != nil || req.Question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request, expected JSON: {\"question\":\"...\"}"})
	}
	ans, err := h.rag.Ask(c.UserContext(), req.Question, req.TenantID, req.K)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(ans)
}

// fail: текст 4xx уходит клиенту, детали 5xx остаются только в логе
func (h *Handler) fail(c *fiber.Ctx, err error) error {
	status := StatusFor(err)
	if status >= fiber.StatusInternalServerError {
		h.log.Error("request failed", "path", c.Path(), "status", status, "error", err)
		return c.Status(status).JSON(fiber.Map{"error": utils.StatusMessage(status)})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// StatusFor — HTTP-статус для ошибки сервисного слоя
func StatusFor(err error) int {
	var opErr *store.OperationError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, service.ErrProvider), errors.As(err, &opErr):
		return fiber.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}
