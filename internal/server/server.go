// Package server exposes the assistant over HTTP.
package server

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

// New builds the fiber app. metrics may be nil.
func New(h *Handler, metrics http.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "paperqa",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	RegisterRoutes(app, h, metrics)
	return app
}

func RegisterRoutes(app *fiber.App, h *Handler, metrics http.Handler) {
	app.Get("/health", h.Health)
	app.Post("/ask", h.Ask)
	app.Get("/index", h.IndexInfo)
	if metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics))
	}
}

// Listen serves until the app is shut down.
func Listen(app *fiber.App, addr string, log *zap.Logger) error {
	log.Info("server started", zap.String("addr", addr))
	return app.Listen(addr)
}
