package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorage_Transactions(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, CheckDatabaseReady(ctx, storage))

	purchased := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	expires := purchased.AddDate(0, 1, 0)
	revoked := purchased.AddDate(0, 0, 3)

	monthly := newTransaction("1", "app.monthly", purchased)
	monthly.ExpirationDate = &expires
	require.NoError(t, storage.RecordTransaction(ctx, monthly, "insert"))

	yearly := newTransaction("2", "app.yearly", purchased)
	require.NoError(t, storage.RecordTransaction(ctx, yearly, "insert"))

	refund := newTransaction("3", "app.monthly", purchased)
	refund.RevocationDate = &revoked
	require.NoError(t, storage.RecordTransaction(ctx, refund, "remove"))

	tests := []struct {
		name      string
		limit     int
		offset    int
		wantCount int
		wantFirst string
	}{
		{name: "all entries newest first", limit: 10, offset: 0, wantCount: 3, wantFirst: "3"},
		{name: "pagination", limit: 1, offset: 1, wantCount: 1, wantFirst: "2"},
		{name: "offset past the end", limit: 10, offset: 5, wantCount: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := storage.ListTransactions(ctx, tt.limit, tt.offset)
			require.NoError(t, err)
			require.Len(t, got, tt.wantCount)
			if tt.wantCount > 0 {
				assert.Equal(t, tt.wantFirst, got[0].Transaction.ID)
			}
		})
	}

	latest, err := storage.LatestForProduct(ctx, "app.monthly")
	require.NoError(t, err)
	assert.Equal(t, "3", latest.Transaction.ID)
	assert.Equal(t, "remove", latest.Action)
	require.NotNil(t, latest.Transaction.RevocationDate)
	assert.True(t, revoked.Equal(*latest.Transaction.RevocationDate))
	assert.Nil(t, latest.Transaction.ExpirationDate)

	first, err := storage.ListTransactions(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.NotNil(t, first[0].Transaction.ExpirationDate)
	assert.True(t, expires.Equal(*first[0].Transaction.ExpirationDate))
	assert.Equal(t, "Sandbox", first[0].Transaction.Environment)
}

func TestStorage_LatestForProduct_NotFound(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	_, err := storage.LatestForProduct(ctx, "app.unknown")
	assert.ErrorIs(t, err, ErrNotFound)

	id, err := storage.OriginalTransactionID(ctx, "app.unknown")
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, storage.RecordTransaction(ctx, newTransaction("7", "app.yearly", time.Now()), "insert"))
	id, err = storage.OriginalTransactionID(ctx, "app.yearly")
	require.NoError(t, err)
	assert.Equal(t, "orig-7", id)
}

func TestStorage_RecordTransaction_CancelledContext(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := storage.RecordTransaction(ctx, newTransaction("1", "app.yearly", time.Now()), "insert")
	assert.ErrorIs(t, err, context.Canceled)

	err = storage.RecordTransaction(context.Background(), newTransaction("1", "app.yearly", time.Now()), "bogus")
	assert.Error(t, err)
}
