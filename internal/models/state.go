package models

// PurchaseState — производное трёхзначное состояние покупки.
type PurchaseState string

const (
	// PurchaseStatePending — данные магазина ещё не загружены.
	PurchaseStatePending PurchaseState = "pending"
	// PurchaseStateNotPurchased — активного тарифа нет.
	PurchaseStateNotPurchased PurchaseState = "not_purchased"
	// PurchaseStatePurchased — есть активный тариф.
	PurchaseStatePurchased PurchaseState = "purchased"
)

// PurchaseStateFromBool переводит флаг покупки в состояние.
func PurchaseStateFromBool(purchased bool) PurchaseState {
	if purchased {
		return PurchaseStatePurchased
	}
	return PurchaseStateNotPurchased
}
