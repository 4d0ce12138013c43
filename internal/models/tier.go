// Package models содержит доменные структуры покупок: тарифы, чаевые, описания функций,
// продукты магазина, транзакции и производные состояния покупки.
package models

import "slices"

// TierKind — вид тарифа покупки.
type TierKind string

const (
	TierWeekly         TierKind = "weekly"
	TierMonthly        TierKind = "monthly"
	TierYearly         TierKind = "yearly"
	TierLifetime       TierKind = "lifetime"
	TierLegacyLifetime TierKind = "legacy_lifetime"
)

var tierRanks = map[TierKind]int{
	TierWeekly:         1,
	TierMonthly:        2,
	TierYearly:         3,
	TierLifetime:       4,
	TierLegacyLifetime: 5,
}

// Valid сообщает, известен ли вид тарифа.
func (k TierKind) Valid() bool {
	_, ok := tierRanks[k]
	return ok
}

// IsSubscription возвращает true для продлеваемых подписок.
func (k TierKind) IsSubscription() bool {
	return k == TierWeekly || k == TierMonthly || k == TierYearly
}

// Rank задаёт порядок сортировки тарифов: от недельного до пожизненного.
// Для неизвестного вида возвращает 0.
func (k TierKind) Rank() int {
	return tierRanks[k]
}

// Tier описывает тариф, объявленный приложением при конфигурации.
// После построения каталога не изменяется.
type Tier struct {
	ID           string   `json:"id" yaml:"id"`                                 // Идентификатор продукта в магазине
	Kind         TierKind `json:"kind" yaml:"kind"`                             // Вид тарифа
	Title        string   `json:"title,omitempty" yaml:"title"`                 // Название для отображения
	AlternateIDs []string `json:"alternate_ids,omitempty" yaml:"alternate_ids"` // Альтернативные и устаревшие идентификаторы
	Visible      bool     `json:"visible" yaml:"visible"`                       // Показывать ли тариф на экране покупки
}

// Matches сообщает, относится ли идентификатор продукта к тарифу.
func (t Tier) Matches(productID string) bool {
	return t.ID == productID || slices.Contains(t.AlternateIDs, productID)
}

// TipTier — расходуемая покупка «на чай». В набор купленных тарифов не попадает.
type TipTier struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title,omitempty" yaml:"title"`
}

// Feature — описание функции приложения для экрана покупки и замка на функциях.
type Feature struct {
	Title            string `json:"title" yaml:"title"`
	Description      string `json:"description,omitempty" yaml:"description"`
	Icon             string `json:"icon,omitempty" yaml:"icon"`
	RequiresPurchase bool   `json:"requires_purchase" yaml:"requires_purchase"`
}

// Unlocked сообщает, доступна ли функция при данном состоянии покупки.
func (f Feature) Unlocked(state PurchaseState) bool {
	return !f.RequiresPurchase || state == PurchaseStatePurchased
}
