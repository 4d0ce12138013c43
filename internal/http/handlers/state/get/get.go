// Package get отдаёт текущий срез состояния покупок.
package get

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/purchasekit/internal/http/response"
	"github.com/magabrotheeeer/purchasekit/internal/kit"
)

// Service описывает контроллер покупок.
type Service interface {
	Snapshot(ctx context.Context) kit.Snapshot
	Links() kit.Links
}

// Handler обрабатывает GET /api/v1/state.
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

// Data — тело успешного ответа.
type Data struct {
	kit.Snapshot
	Links kit.Links `json:"links"`
}

// ServeHTTP godoc
// @Summary Состояние покупок
// @Description Возвращает purchase_state (pending, purchased, not_purchased), активный тариф,
// @Description купленные продукты, фазу текущей покупки и ссылки на условия.
// @Tags State
// @Produce json
// @Success 200 {object} response.Response{data=Data}
// @Router /api/v1/state [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.state.get"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	snap := h.service.Snapshot(r.Context())
	if snap.Purchased == nil {
		snap.Purchased = []string{}
	}
	log.Debug("state read", slog.String("purchase_state", string(snap.PurchaseState)))

	render.JSON(w, r, response.OKWithData(Data{
		Snapshot: snap,
		Links:    h.service.Links(),
	}))
}
