package server

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"paperqa/internal/service"
	"paperqa/internal/vectorstore"
)

type Asker interface {
	Ask(ctx context.Context, query string) service.Result
}

type IndexProvider interface {
	Get(ctx context.Context) (vectorstore.Index, error)
}

// Handler holds the dependencies of the HTTP handlers.
type Handler struct {
	asker Asker
	index IndexProvider
	log   *zap.Logger
}

func NewHandler(asker Asker, index IndexProvider, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{asker: asker, index: index, log: log.Named("http")}
}

type askRequest struct {
	Query string `json:"query"`
}

type askResponse struct {
	RequestID  string `json:"request_id"`
	Category   string `json:"category"`
	Target     string `json:"target,omitempty"`
	Expression string `json:"expression,omitempty"`
	Answer     string `json:"answer,omitempty"`
	Error      string `json:"error,omitempty"`
	Display    string `json:"display"`
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.SendString("ok")
}

// Ask answers {"query": "..."}. Handler failures are reported in the body
// with status 200; only malformed requests get a 4xx.
func (h *Handler) Ask(c *fiber.Ctx) error {
	var req askRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "body must be JSON: {\"query\": \"...\"}"})
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "query is required"})
	}
	res := h.asker.Ask(c.UserContext(), req.Query)
	out := askResponse{
		RequestID:  res.RequestID,
		Category:   string(res.Category),
		Target:     res.Target,
		Expression: res.Expression,
		Answer:     res.Answer,
		Display:    res.Render(),
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return c.JSON(out)
}

// IndexInfo returns the manifest of the loaded index, building it if needed.
func (h *Handler) IndexInfo(c *fiber.Ctx) error {
	idx, err := h.index.Get(c.UserContext())
	if err != nil {
		h.log.Warn("index unavailable", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	m := idx.Manifest()
	m.EmbedderState = ""
	return c.JSON(m)
}
