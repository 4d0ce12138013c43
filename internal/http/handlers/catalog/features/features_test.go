package features

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

	"github.com/magabrotheeeer/purchasekit/internal/kit"
	"github.com/magabrotheeeer/purchasekit/internal/models"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) Features(ctx context.Context) []kit.FeatureStatus {
	args := m.Called(ctx)
	features, _ := args.Get(0).([]kit.FeatureStatus)
	return features
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestFeaturesHandler_ServeHTTP(t *testing.T) {
	svc := new(ServiceMock)
	svc.On("Features", mock.Anything).Return([]kit.FeatureStatus{
		{Feature: models.Feature{Title: "Themes"}, Unlocked: true},
		{Feature: models.Feature{Title: "Sync", RequiresPurchase: true}, Unlocked: false},
	}).Once()

	rec := httptest.NewRecorder()
	New(newNoopLogger(), svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/features", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Features []map[string]any `json:"features"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "OK", resp.Status)
	require.Len(t, resp.Data.Features, 2)
	assert.Equal(t, "Themes", resp.Data.Features[0]["title"])
	assert.Equal(t, true, resp.Data.Features[0]["unlocked"])
	assert.Equal(t, true, resp.Data.Features[1]["requires_purchase"])
	assert.Equal(t, false, resp.Data.Features[1]["unlocked"])
	svc.AssertExpectations(t)
}
