package models

import "time"

// Transaction — транзакция магазина, доставленная платформой.
// Принадлежит потоку событий платформы; сверка только читает её и подтверждает обработку.
type Transaction struct {
	ID             string     `json:"id"`
	OriginalID     string     `json:"original_id,omitempty"`
	ProductID      string     `json:"product_id"`
	BundleID       string     `json:"bundle_id,omitempty"`
	PurchaseDate   time.Time  `json:"purchase_date"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"` // Только для подписок
	RevocationDate *time.Time `json:"revocation_date,omitempty"` // Возврат или отзыв покупки
	IsUpgraded     bool       `json:"is_upgraded"`
	Environment    string     `json:"environment,omitempty"`
}

// IsRevoked сообщает, отозвана ли транзакция.
func (t Transaction) IsRevoked() bool {
	return t.RevocationDate != nil
}

// IsExpired сообщает, истекла ли подписка к моменту now.
func (t Transaction) IsExpired(now time.Time) bool {
	return t.ExpirationDate != nil && !t.ExpirationDate.After(now)
}

// IsActive возвращает true, если транзакция не отозвана и не истекла.
func (t Transaction) IsActive(now time.Time) bool {
	return !t.IsRevoked() && !t.IsExpired(now)
}

// AppTransaction — подписанные сведения о первоначальной установке приложения.
type AppTransaction struct {
	BundleID                   string    `json:"bundle_id"`
	ApplicationVersion         string    `json:"application_version"`
	OriginalApplicationVersion string    `json:"original_application_version"`
	OriginalPurchaseDate       time.Time `json:"original_purchase_date"`
	Environment                string    `json:"environment"`
}
