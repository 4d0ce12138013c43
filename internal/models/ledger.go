package models

import "time"

// LedgerEntry — запись журнала применённых транзакций.
type LedgerEntry struct {
	ID          int64       `json:"id"`
	Transaction Transaction `json:"transaction"`
	Action      string      `json:"action"` // insert или remove
	RecordedAt  time.Time   `json:"recorded_at"`
}
