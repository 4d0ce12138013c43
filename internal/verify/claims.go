package verify

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/magabrotheeeer/purchasekit/internal/models"
)

// transactionClaims — полезная нагрузка JWSTransaction. Даты приходят в миллисекундах.
type transactionClaims struct {
	TransactionID         string `json:"transactionId"`
	OriginalTransactionID string `json:"originalTransactionId"`
	BundleID              string `json:"bundleId"`
	ProductID             string `json:"productId"`
	PurchaseDate          int64  `json:"purchaseDate"`
	ExpiresDate           int64  `json:"expiresDate,omitempty"`
	RevocationDate        int64  `json:"revocationDate,omitempty"`
	IsUpgraded            bool   `json:"isUpgraded,omitempty"`
	Type                  string `json:"type,omitempty"`
	Environment           string `json:"environment,omitempty"`

	jwt.RegisteredClaims
}

func (c transactionClaims) transaction() models.Transaction {
	tx := models.Transaction{
		ID:             c.TransactionID,
		OriginalID:     c.OriginalTransactionID,
		ProductID:      c.ProductID,
		BundleID:       c.BundleID,
		ExpirationDate: msTime(c.ExpiresDate),
		RevocationDate: msTime(c.RevocationDate),
		IsUpgraded:     c.IsUpgraded,
		Environment:    c.Environment,
	}
	if t := msTime(c.PurchaseDate); t != nil {
		tx.PurchaseDate = *t
	}
	return tx
}

// TransactionClaims собирает claims для подписи транзакции. Используется песочницей магазина.
func TransactionClaims(tx models.Transaction) jwt.Claims {
	return transactionClaims{
		TransactionID:         tx.ID,
		OriginalTransactionID: tx.OriginalID,
		BundleID:              tx.BundleID,
		ProductID:             tx.ProductID,
		PurchaseDate:          timeMs(&tx.PurchaseDate),
		ExpiresDate:           timeMs(tx.ExpirationDate),
		RevocationDate:        timeMs(tx.RevocationDate),
		IsUpgraded:            tx.IsUpgraded,
		Environment:           tx.Environment,
	}
}

type appTransactionClaims struct {
	BundleID                   string `json:"bundleId"`
	ApplicationVersion         string `json:"applicationVersion"`
	OriginalApplicationVersion string `json:"originalApplicationVersion"`
	OriginalPurchaseDate       int64  `json:"originalPurchaseDate"`
	ReceiptType                string `json:"receiptType"`

	jwt.RegisteredClaims
}

func (c appTransactionClaims) appTransaction() models.AppTransaction {
	at := models.AppTransaction{
		BundleID:                   c.BundleID,
		ApplicationVersion:         c.ApplicationVersion,
		OriginalApplicationVersion: c.OriginalApplicationVersion,
		Environment:                c.ReceiptType,
	}
	if t := msTime(c.OriginalPurchaseDate); t != nil {
		at.OriginalPurchaseDate = *t
	}
	return at
}

// AppTransactionClaims собирает claims для подписи сведений об установке.
func AppTransactionClaims(at models.AppTransaction) jwt.Claims {
	return appTransactionClaims{
		BundleID:                   at.BundleID,
		ApplicationVersion:         at.ApplicationVersion,
		OriginalApplicationVersion: at.OriginalApplicationVersion,
		OriginalPurchaseDate:       timeMs(&at.OriginalPurchaseDate),
		ReceiptType:                at.Environment,
	}
}

// Notification — проверенное уведомление App Store Server Notifications V2.
type Notification struct {
	Type                  string    `json:"notification_type"`
	Subtype               string    `json:"subtype,omitempty"`
	UUID                  string    `json:"notification_uuid"`
	Environment           string    `json:"environment"`
	SignedTransactionInfo string    `json:"-"`
	SignedDate            time.Time `json:"signed_date"`
}

type notificationClaims struct {
	NotificationType string `json:"notificationType"`
	Subtype          string `json:"subtype,omitempty"`
	NotificationUUID string `json:"notificationUUID"`
	SignedDate       int64  `json:"signedDate"`
	Data             struct {
		BundleID              string `json:"bundleId"`
		Environment           string `json:"environment"`
		SignedTransactionInfo string `json:"signedTransactionInfo,omitempty"`
		SignedRenewalInfo     string `json:"signedRenewalInfo,omitempty"`
	} `json:"data"`

	jwt.RegisteredClaims
}

func (c notificationClaims) notification() Notification {
	n := Notification{
		Type:                  c.NotificationType,
		Subtype:               c.Subtype,
		UUID:                  c.NotificationUUID,
		Environment:           c.Data.Environment,
		SignedTransactionInfo: c.Data.SignedTransactionInfo,
	}
	if t := msTime(c.SignedDate); t != nil {
		n.SignedDate = *t
	}
	return n
}

// NotificationClaims собирает claims уведомления. Используется в тестах и песочнице.
func NotificationClaims(n Notification, bundleID string) jwt.Claims {
	c := notificationClaims{
		NotificationType: n.Type,
		Subtype:          n.Subtype,
		NotificationUUID: n.UUID,
		SignedDate:       timeMs(&n.SignedDate),
	}
	c.Data.BundleID = bundleID
	c.Data.Environment = n.Environment
	c.Data.SignedTransactionInfo = n.SignedTransactionInfo
	return c
}

func msTime(ms int64) *time.Time {
	if ms == 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

func timeMs(t *time.Time) int64 {
	if t == nil || t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
