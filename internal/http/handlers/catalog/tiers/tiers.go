// Package tiers отдаёт каталог тарифов и чаевых.
package tiers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/purchasekit/internal/http/response"
	"github.com/magabrotheeeer/purchasekit/internal/models"
)

// Service описывает источник каталога.
type Service interface {
	Tiers(ctx context.Context) []models.Tier
	TipTiers() []models.TipTier
}

// Handler обрабатывает GET /api/v1/tiers.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт обработчик каталога.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Каталог тарифов
// @Description Возвращает видимые тарифы по возрастанию ранга и тарифы чаевых.
// @Description Тарифы legacy_lifetime видны только пользователям, купившим приложение до перехода на подписки.
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/tiers [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.catalog.tiers"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	tiers := h.service.Tiers(r.Context())
	tips := h.service.TipTiers()
	log.Debug("catalog listed", slog.Int("tiers", len(tiers)), slog.Int("tips", len(tips)))

	render.JSON(w, r, response.OKWithData(map[string]any{
		"tiers":     tiers,
		"tip_tiers": tips,
	}))
}
