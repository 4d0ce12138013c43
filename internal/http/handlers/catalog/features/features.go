// Package features отдаёт функции приложения и признак их доступности.
package features

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/purchasekit/internal/http/response"
	"github.com/magabrotheeeer/purchasekit/internal/kit"
)

// Service описывает источник списка функций.
type Service interface {
	Features(ctx context.Context) []kit.FeatureStatus
}

// Handler обрабатывает GET /api/v1/features.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт обработчик.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Функции приложения
// @Description Возвращает функции в порядке объявления и признак unlocked для каждой.
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/features [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.catalog.features"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	features := h.service.Features(r.Context())
	log.Debug("features listed", slog.Int("count", len(features)))

	render.JSON(w, r, response.OKWithData(map[string]any{
		"features": features,
	}))
}
