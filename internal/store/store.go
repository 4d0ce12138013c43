// Package store описывает порт внешней платформы покупок: поиск продуктов,
// запуск покупки, последнюю транзакцию по продукту, поток обновлений транзакций
// и подтверждение их обработки. Сама платформа не реализуется — только адаптеры к ней.
package store

import (
	"context"
	"errors"

	"github.com/magabrotheeeer/purchasekit/internal/models"
)

var (
	// ErrFailedStoreVerification — подпись транзакции не прошла проверку.
	ErrFailedStoreVerification = errors.New("failed store verification")
	// ErrUserCancelled — пользователь отменил покупку.
	ErrUserCancelled = errors.New("purchase cancelled by user")
	// ErrPurchasePending — покупка отложена (например, ждёт одобрения родителя).
	ErrPurchasePending = errors.New("purchase pending")
	// ErrPurchaseUnsupported — адаптер не умеет запускать покупку.
	ErrPurchaseUnsupported = errors.New("purchase is not supported by this store")
	// ErrUnknownProduct — магазин не знает такой продукт.
	ErrUnknownProduct = errors.New("unknown product")
)

// Acknowledger подтверждает или отклоняет доставку обновления источнику.
type Acknowledger interface {
	Ack() error
	Reject(requeue bool) error
}

// VerificationResult — результат проверки подписанной транзакции.
// Err == nil означает, что подпись проверена.
type VerificationResult struct {
	Transaction models.Transaction
	Signed      string // Исходный JWS
	Err         error
	// Delivery — подтверждение доставки; nil, если источник его не требует.
	Delivery Acknowledger
}

// Verified сообщает, прошла ли транзакция криптографическую проверку.
func (r VerificationResult) Verified() bool {
	return r.Err == nil
}

// Ack подтверждает, что обновление применено.
func (r VerificationResult) Ack() error {
	if r.Delivery == nil {
		return nil
	}
	return r.Delivery.Ack()
}

// Reject отклоняет обновление; requeue возвращает его источнику для повторной доставки.
func (r VerificationResult) Reject(requeue bool) error {
	if r.Delivery == nil {
		return nil
	}
	return r.Delivery.Reject(requeue)
}

// Outcome — исход запуска покупки.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeUserCancelled Outcome = "user_cancelled"
	OutcomePending       Outcome = "pending"
)

// PurchaseResult — результат покупки. Verification заполнен только при OutcomeSuccess.
type PurchaseResult struct {
	Outcome      Outcome
	Verification VerificationResult
}

// ProductSource возвращает описания продуктов по идентификаторам.
type ProductSource interface {
	Products(ctx context.Context, ids []string) ([]models.Product, error)
}

// TransactionSource даёт доступ к транзакциям платформы.
type TransactionSource interface {
	// LatestTransaction возвращает последнюю транзакцию продукта или nil, если её нет.
	LatestTransaction(ctx context.Context, productID string) (*VerificationResult, error)
	// Updates возвращает поток обновлений транзакций. Канал закрывается при отмене ctx.
	Updates(ctx context.Context) (<-chan VerificationResult, error)
	// Finish подтверждает обработку транзакции.
	Finish(ctx context.Context, tx models.Transaction) error
}

// Purchaser запускает покупку продукта.
type Purchaser interface {
	Purchase(ctx context.Context, productID string) (PurchaseResult, error)
}

// Store — полный порт платформы покупок.
type Store interface {
	ProductSource
	TransactionSource
	Purchaser
}

// Publisher доставляет подписанные транзакции из внешних уведомлений в поток обновлений.
type Publisher interface {
	PublishTransaction(ctx context.Context, signed string) error
}
