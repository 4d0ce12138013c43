// Package transactions отдаёт журнал применённых транзакций.
package transactions

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/purchasekit/internal/http/response"
	"github.com/magabrotheeeer/purchasekit/internal/lib/sl"
	"github.com/magabrotheeeer/purchasekit/internal/models"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Service описывает чтение журнала.
type Service interface {
	ListTransactions(ctx context.Context, limit, offset int) ([]*models.LedgerEntry, error)
}

// Handler обрабатывает GET /api/v1/admin/transactions.
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
// @Summary Журнал транзакций
// @Description Записи отсортированы от новых к старым.
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Размер страницы, по умолчанию 50, не больше 500"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Некорректные параметры"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /api/v1/admin/transactions [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.transactions"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	limit, ok := queryInt(r, "limit", defaultLimit)
	if !ok || limit <= 0 || limit > maxLimit {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid limit"))
		return
	}
	offset, ok := queryInt(r, "offset", 0)
	if !ok || offset < 0 {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid offset"))
		return
	}

	entries, err := h.service.ListTransactions(r.Context(), limit, offset)
	if err != nil {
		log.Error("failed to list transactions", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal service error"))
		return
	}
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"transactions": entries,
		"limit":        limit,
		"offset":       offset,
	}))
}

func queryInt(r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
