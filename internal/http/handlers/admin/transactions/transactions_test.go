package transactions

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/purchasekit/internal/models"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) ListTransactions(ctx context.Context, limit, offset int) ([]*models.LedgerEntry, error) {
	args := m.Called(ctx, limit, offset)
	entries, _ := args.Get(0).([]*models.LedgerEntry)
	return entries, args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestTransactionsHandler_ServeHTTP(t *testing.T) {
	entry := &models.LedgerEntry{
		ID:          7,
		Transaction: models.Transaction{ID: "1000", ProductID: "app.yearly", PurchaseDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		Action:      "insert",
		RecordedAt:  time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	tests := []struct {
		name           string
		query          string
		callService    bool
		wantLimit      int
		wantOffset     int
		mockEntries    []*models.LedgerEntry
		mockErr        error
		wantStatusCode int
		wantCount      int
	}{
		{
			name:           "defaults",
			callService:    true,
			wantLimit:      50,
			mockEntries:    []*models.LedgerEntry{entry},
			wantStatusCode: http.StatusOK,
			wantCount:      1,
		},
		{
			name:           "explicit page",
			query:          "?limit=10&offset=20",
			callService:    true,
			wantLimit:      10,
			wantOffset:     20,
			wantStatusCode: http.StatusOK,
		},
		{name: "limit not a number", query: "?limit=ten", wantStatusCode: http.StatusBadRequest},
		{name: "limit too large", query: "?limit=501", wantStatusCode: http.StatusBadRequest},
		{name: "negative offset", query: "?offset=-1", wantStatusCode: http.StatusBadRequest},
		{
			name:           "storage error",
			callService:    true,
			wantLimit:      50,
			mockErr:        errors.New("connection refused"),
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			if tt.callService {
				svc.On("ListTransactions", mock.Anything, tt.wantLimit, tt.wantOffset).Return(tt.mockEntries, tt.mockErr).Once()
			}

			rec := httptest.NewRecorder()
			New(newNoopLogger(), svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/transactions"+tt.query, nil))

			assert.Equal(t, tt.wantStatusCode, rec.Code)
			if tt.wantStatusCode == http.StatusOK {
				var resp struct {
					Data struct {
						Transactions []*models.LedgerEntry `json:"transactions"`
						Limit        int                   `json:"limit"`
						Offset       int                   `json:"offset"`
					} `json:"data"`
				}
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
				assert.Len(t, resp.Data.Transactions, tt.wantCount)
				assert.Equal(t, tt.wantLimit, resp.Data.Limit)
				assert.Equal(t, tt.wantOffset, resp.Data.Offset)
			}
			svc.AssertExpectations(t)
		})
	}
}
