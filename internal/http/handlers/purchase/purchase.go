// Package purchase реализует HTTP-обработчики покупки тарифа и чаевых.
//
// Отмена, отложенная покупка, непройденная проверка и ошибка магазина не считаются
// ошибками запроса: ответ 200 с purchased=false, подробности видны в диагностике.
package purchase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/purchasekit/internal/catalog"
	"github.com/magabrotheeeer/purchasekit/internal/http/response"
	"github.com/magabrotheeeer/purchasekit/internal/lib/sl"
	"github.com/magabrotheeeer/purchasekit/internal/models"
	purchaseflow "github.com/magabrotheeeer/purchasekit/internal/purchase"
	"github.com/magabrotheeeer/purchasekit/internal/store"
)

// Request — тело запроса покупки.
type Request struct {
	ProductID string `json:"product_id" validate:"required,max=255,printascii"`
}

// Result — тело успешного ответа.
type Result struct {
	Purchased   bool                `json:"purchased"`
	Transaction *models.Transaction `json:"transaction,omitempty"`
}

// Service описывает операции покупки контроллера.
type Service interface {
	Purchase(ctx context.Context, tierID string) (*models.Transaction, error)
	PurchaseTip(ctx context.Context, tipID string) (*models.Transaction, error)
}

type buyFunc func(ctx context.Context, id string) (*models.Transaction, error)

// Handler обрабатывает POST /api/v1/purchases и POST /api/v1/tips.
type Handler struct {
	log      *slog.Logger
	op       string
	buy      buyFunc
	validate *validator.Validate
}

// NewTier создаёт обработчик покупки тарифа.
func NewTier(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		op:       "handlers.purchase.tier",
		buy:      service.Purchase,
		validate: validator.New(),
	}
}

// NewTip создаёт обработчик покупки чаевых.
func NewTip(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		op:       "handlers.purchase.tip",
		buy:      service.PurchaseTip,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Покупка тарифа или чаевых
// @Description Запускает покупку продукта. Пока идёт предыдущая покупка или показывается её результат, возвращает 409.
// @Tags Purchase
// @Accept json
// @Produce json
// @Param request body Request true "Идентификатор продукта"
// @Success 200 {object} response.Response{data=Result}
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 404 {object} response.ErrorResponse "Неизвестный продукт"
// @Failure 409 {object} response.ErrorResponse "Покупка уже идёт"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 429 {object} response.ErrorResponse "Слишком много запросов"
// @Failure 501 {object} response.ErrorResponse "Покупки не поддерживаются"
// @Router /api/v1/purchases [post]
// @Router /api/v1/tips [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(
		slog.String("op", h.op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Warn("validation failed", sl.Err(err))
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid request body"))
			return
		}
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(verrs))
		return
	}
	log = log.With(slog.String("product_id", req.ProductID))

	tx, err := h.buy(r.Context(), req.ProductID)
	if err != nil {
		status, msg := statusFor(err)
		log.Warn("purchase rejected", sl.Err(err), slog.Int("status", status))
		render.Status(r, status)
		render.JSON(w, r, response.Error(msg))
		return
	}

	if tx == nil {
		log.Info("purchase not completed")
		render.JSON(w, r, response.OKWithData(Result{Purchased: false}))
		return
	}

	log.Info("purchase completed", slog.String("transaction_id", tx.ID))
	render.JSON(w, r, response.OKWithData(Result{Purchased: true, Transaction: tx}))
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, catalog.ErrUnknownTier), errors.Is(err, catalog.ErrUnknownTip):
		return http.StatusNotFound, "unknown product"
	case errors.Is(err, purchaseflow.ErrPurchaseInProgress):
		return http.StatusConflict, "purchase already in progress"
	case errors.Is(err, store.ErrPurchaseUnsupported):
		return http.StatusNotImplemented, "purchases are not supported"
	default:
		return http.StatusInternalServerError, "internal service error"
	}
}
