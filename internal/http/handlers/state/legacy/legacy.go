// Package legacy сообщает, купил ли пользователь приложение до перехода на подписки.
package legacy

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/purchasekit/internal/http/response"
)

// Service описывает классификатор.
type Service interface {
	IsLegacyUser(ctx context.Context) bool
}

// Handler обрабатывает GET /api/v1/legacy.
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
// @Summary Признак давнего покупателя
// @Description Результат вычисляется один раз и кэшируется, включая неудачную проверку квитанции.
// @Tags State
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/legacy [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.state.legacy"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	isLegacy := h.service.IsLegacyUser(r.Context())
	log.Debug("legacy status read", slog.Bool("is_legacy_user", isLegacy))

	render.JSON(w, r, response.OKWithData(map[string]any{
		"is_legacy_user": isLegacy,
	}))
}
