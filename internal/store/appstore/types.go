package appstore

import "fmt"

// Базовые адреса App Store Server API.
const (
	ProductionURL = "https://api.storekit.itunes.apple.com"
	SandboxURL    = "https://api.storekit-sandbox.itunes.apple.com"
)

const audience = "appstoreconnect-v1"

// HistoryResponse — ответ GET /inApps/v1/history/{transactionId}.
type HistoryResponse struct {
	SignedTransactions []string `json:"signedTransactions"`
	HasMore            bool     `json:"hasMore"`
	Revision           string   `json:"revision"`
	BundleID           string   `json:"bundleId"`
	Environment        string   `json:"environment"`
}

// APIError — ошибка, которую вернул App Store Server API.
type APIError struct {
	StatusCode   int    `json:"-"`
	ErrorCode    int64  `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (e *APIError) Error() string {
	if e.ErrorCode == 0 {
		return fmt.Sprintf("app store server api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("app store server api: status %d: %d %s", e.StatusCode, e.ErrorCode, e.ErrorMessage)
}
