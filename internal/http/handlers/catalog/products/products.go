// Package products отдаёт описания продуктов, полученные от магазина.
package products

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/purchasekit/internal/http/response"
	"github.com/magabrotheeeer/purchasekit/internal/models"
)

// Service описывает кэш продуктов.
type Service interface {
	Products() []models.Product
	HasLoaded() bool
}

// Handler обрабатывает GET /api/v1/products.
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
// @Summary Продукты магазина
// @Description Возвращает загруженные из магазина продукты. До окончания загрузки список пуст, loaded=false.
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/products [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.catalog.products"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	products := h.service.Products()
	if products == nil {
		products = []models.Product{}
	}
	loaded := h.service.HasLoaded()
	log.Debug("products listed", slog.Int("count", len(products)), slog.Bool("loaded", loaded))

	render.JSON(w, r, response.OKWithData(map[string]any{
		"loaded":   loaded,
		"products": products,
	}))
}
