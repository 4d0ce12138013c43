// Package appstore принимает уведомления App Store Server Notifications V2.
//
// Подпись уведомления проверяется сразу, вложенная транзакция передаётся дальше
// без разбора: её проверяет получатель из ленты обновлений.
package appstore

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/purchasekit/internal/http/response"
	"github.com/magabrotheeeer/purchasekit/internal/lib/sl"
	"github.com/magabrotheeeer/purchasekit/internal/store"
	"github.com/magabrotheeeer/purchasekit/internal/verify"
)

// Request — тело уведомления.
type Request struct {
	SignedPayload string `json:"signedPayload" validate:"required"`
}

// Verifier проверяет подпись уведомления.
type Verifier interface {
	VerifyNotification(signedPayload string) (verify.Notification, error)
}

// Handler обрабатывает POST /api/v1/notifications/appstore.
type Handler struct {
	log       *slog.Logger
	verifier  Verifier
	publisher store.Publisher
	validate  *validator.Validate
}

// New создаёт обработчик уведомлений.
func New(log *slog.Logger, verifier Verifier, publisher store.Publisher) *Handler {
	return &Handler{
		log:       log,
		verifier:  verifier,
		publisher: publisher,
		validate:  validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Уведомление App Store
// @Description Проверяет signedPayload и публикует вложенную транзакцию в ленту обновлений.
// @Description Уведомления без транзакции (например TEST) подтверждаются без публикации.
// @Tags Notifications
// @Accept json
// @Produce json
// @Param request body Request true "Подписанное уведомление"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Подпись не прошла проверку"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Не удалось опубликовать транзакцию"
// @Router /api/v1/notifications/appstore [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.notification.appstore"

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

	n, err := h.verifier.VerifyNotification(req.SignedPayload)
	if err != nil {
		log.Warn("notification failed verification", sl.Err(err))
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("notification failed verification"))
		return
	}
	log = log.With(
		slog.String("notification_type", n.Type),
		slog.String("notification_uuid", n.UUID),
	)

	if n.SignedTransactionInfo == "" {
		log.Info("notification without transaction acknowledged")
		render.JSON(w, r, response.OKWithData(map[string]any{"published": false}))
		return
	}

	if err := h.publisher.PublishTransaction(r.Context(), n.SignedTransactionInfo); err != nil {
		log.Error("failed to publish transaction", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to publish transaction"))
		return
	}

	log.Info("notification transaction published")
	render.JSON(w, r, response.OKWithData(map[string]any{"published": true}))
}

