package api

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/katakuxiko/ragdocs/internal/logger"
)

const maxUploadBytes = 64 << 20

// NewApp — fiber-приложение с middleware и маршрутами
func NewApp(h *Handler, log *logger.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "ragdocs",
		BodyLimit:    maxUploadBytes,
		ErrorHandler: errorHandler,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(AccessLog(log))
	RegisterRoutes(app, h)
	return app
}

func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/healthz", h.Health)
	app.Get("/models", h.ListModels)
	app.Post("/ingest", h.Ingest)
	app.Post("/ask", h.Ask)
}

// AccessLog пишет одну строку на запрос и ставит X-Response-Time-ms
func AccessLog(log *logger.Logger) fiber.Handler {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("service", "http")
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		ms := time.Since(start).Milliseconds()
		c.Set("X-Response-Time-ms", strconv.FormatInt(ms, 10))

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}
		log.Info("http request",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"duration_ms", ms,
			"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
		)
		return err
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		return c.Status(code).JSON(fiber.Map{"error": utils.StatusMessage(code)})
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
