package tiers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/purchasekit/internal/models"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) Tiers(ctx context.Context) []models.Tier {
	args := m.Called(ctx)
	tiers, _ := args.Get(0).([]models.Tier)
	return tiers
}

func (m *ServiceMock) TipTiers() []models.TipTier {
	args := m.Called()
	tips, _ := args.Get(0).([]models.TipTier)
	return tips
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestTiersHandler_ServeHTTP(t *testing.T) {
	svc := new(ServiceMock)
	svc.On("Tiers", mock.Anything).Return([]models.Tier{
		{ID: "app.monthly", Kind: models.TierMonthly, Visible: true},
		{ID: "app.yearly", Kind: models.TierYearly, Visible: true},
	})
	svc.On("TipTiers").Return([]models.TipTier{{ID: "tip.small", Title: "Coffee"}})

	rec := httptest.NewRecorder()
	New(newNoopLogger(), svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tiers", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Tiers    []models.Tier    `json:"tiers"`
			TipTiers []models.TipTier `json:"tip_tiers"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "OK", resp.Status)
	require.Len(t, resp.Data.Tiers, 2)
	assert.Equal(t, "app.monthly", resp.Data.Tiers[0].ID)
	assert.Equal(t, models.TierYearly, resp.Data.Tiers[1].Kind)
	assert.Equal(t, []models.TipTier{{ID: "tip.small", Title: "Coffee"}}, resp.Data.TipTiers)
	svc.AssertExpectations(t)
}
