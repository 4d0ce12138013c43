// Package override позволяет администратору принудительно задать состояние покупки.
package override

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/purchasekit/internal/http/middlewarectx"
	"github.com/magabrotheeeer/purchasekit/internal/http/response"
	"github.com/magabrotheeeer/purchasekit/internal/lib/sl"
)

// Request — новое значение переопределения. null снимает переопределение.
type Request struct {
	Purchased *bool `json:"purchased"`
}

// Service описывает управление переопределением.
type Service interface {
	SetOverride(override *bool)
	Override() *bool
}

// Handler обрабатывает GET и PUT /api/v1/admin/override.
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

// Get godoc
// @Summary Текущее переопределение
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse "Нет токена"
// @Router /api/v1/admin/override [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, response.OKWithData(map[string]any{
		"purchased": h.service.Override(),
	}))
}

// Put godoc
// @Summary Переопределить состояние покупки
// @Description true или false фиксируют purchase_state, null возвращает вычисление по покупкам.
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body Request true "Новое значение"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Нет токена"
// @Failure 403 {object} response.ErrorResponse "Недостаточно прав"
// @Router /api/v1/admin/override [put]
func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.override"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	h.service.SetOverride(req.Purchased)
	user, _ := r.Context().Value(middlewarectx.User).(string)
	if req.Purchased == nil {
		log.Info("override cleared", slog.String("username", user))
	} else {
		log.Info("override set", slog.String("username", user), slog.Bool("purchased", *req.Purchased))
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"purchased": h.service.Override(),
	}))
}
