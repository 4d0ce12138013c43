// Package health отдаёт состояние готовности сервиса.
package health

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/purchasekit/internal/http/response"
)

// LoadState сообщает, завершена ли первичная загрузка покупок.
type LoadState interface {
	HasLoaded() bool
}

// Handler обрабатывает GET /health.
type Handler struct {
	log   *slog.Logger
	state LoadState
}

// New создаёт обработчик.
func New(log *slog.Logger, state LoadState) *Handler {
	return &Handler{
		log:   log,
		state: state,
	}
}

// ServeHTTP godoc
// @Summary Проверка состояния
// @Description Сервис жив всегда, loaded=true после первичной загрузки покупок.
// @Tags Health
// @Produce json
// @Success 200 {object} response.Response
// @Router /health [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, response.OKWithData(map[string]any{
		"status": "ok",
		"loaded": h.state.HasLoaded(),
	}))
}
