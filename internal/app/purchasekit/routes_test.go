package purchasekit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/purchasekit/internal/catalog"
	"github.com/magabrotheeeer/purchasekit/internal/kit"
	"github.com/magabrotheeeer/purchasekit/internal/lib/jwt"
	"github.com/magabrotheeeer/purchasekit/internal/lib/password"
	"github.com/magabrotheeeer/purchasekit/internal/metrics"
	"github.com/magabrotheeeer/purchasekit/internal/models"
	"github.com/magabrotheeeer/purchasekit/internal/services/admin"
	"github.com/magabrotheeeer/purchasekit/internal/store/memstore"
	"github.com/magabrotheeeer/purchasekit/internal/verify"
)

const bundleID = "com.example.app"

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

type testServer struct {
	srv     *httptest.Server
	kit     *kit.Kit
	sandbox *memstore.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := newNoopLogger()

	cat, err := catalog.New(
		[]models.Tier{
			{ID: "app.monthly", Kind: models.TierMonthly, Visible: true},
			{ID: "app.yearly", Kind: models.TierYearly, Visible: true},
		},
		[]models.TipTier{{ID: "tip.small", Title: "Small tip"}},
		[]models.Feature{{Title: "Sync", RequiresPurchase: true}},
	)
	require.NoError(t, err)

	sandbox, err := memstore.New(memstore.Options{
		BundleID: bundleID,
		Products: []models.Product{
			{ID: "app.monthly", DisplayPrice: "$2.99", SubscriptionPeriod: "P1M"},
			{ID: "app.yearly", DisplayPrice: "$19.99", SubscriptionPeriod: "P1Y"},
			{ID: "tip.small", DisplayPrice: "$0.99"},
		},
	}, logger)
	require.NoError(t, err)

	m := metrics.New()
	k, err := kit.New(kit.Deps{
		Log:      logger,
		Catalog:  cat,
		Store:    sandbox,
		Verifier: sandbox.Verifier(),
		Metrics:  m,
	}, kit.Options{ResetDelay: 20 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(k.Close)

	hash, err := password.GetHash("admin-pass")
	require.NoError(t, err)
	maker := jwt.NewJWTMaker("test-secret", time.Minute)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, RouteDeps{
		Kit:       k,
		Verifier:  sandbox.Verifier(),
		Publisher: sandbox,
		Auth:      admin.NewAuthService("admin", hash, maker),
		Tokens:    maker,
		Metrics:   m.Handler(),
		RateLimit: 100,
		RateBurst: 100,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	k.Start(context.Background())
	select {
	case <-k.Loaded():
	case <-time.After(5 * time.Second):
		t.Fatal("kit did not load")
	}
	return &testServer{srv: srv, kit: k, sandbox: sandbox}
}

type envelope struct {
	Status string          `json:"status"`
	Error  string          `json:"error"`
	Data   json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (s *testServer) purchaseState(t *testing.T) string {
	t.Helper()
	code, env := s.do(t, http.MethodGet, "/api/v1/state", "", nil)
	require.Equal(t, http.StatusOK, code)
	var data struct {
		PurchaseState string `json:"purchase_state"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data.PurchaseState
}

func TestRoutes_PurchaseFlow(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok","loaded":true}`, string(env.Data))

	code, env = s.do(t, http.MethodGet, "/api/v1/tiers", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"app.yearly"`)

	assert.Equal(t, "not_purchased", s.purchaseState(t))

	code, env = s.do(t, http.MethodPost, "/api/v1/purchases", "", map[string]string{"product_id": "app.yearly"})
	require.Equal(t, http.StatusOK, code)
	var result struct {
		Purchased bool `json:"purchased"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.True(t, result.Purchased)
	assert.Equal(t, "purchased", s.purchaseState(t))

	code, env = s.do(t, http.MethodPost, "/api/v1/purchases", "", map[string]string{"product_id": "app.unknown"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "unknown product", env.Error)
}

func TestRoutes_AdminOverride(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodPut, "/api/v1/admin/override", "", map[string]any{"purchased": true})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env := s.do(t, http.MethodPost, "/api/v1/admin/login", "", map[string]string{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid credentials", env.Error)

	code, env = s.do(t, http.MethodPost, "/api/v1/admin/login", "", map[string]string{"username": "admin", "password": "admin-pass"})
	require.Equal(t, http.StatusOK, code)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &login))
	require.NotEmpty(t, login.Token)

	code, _ = s.do(t, http.MethodPut, "/api/v1/admin/override", login.Token, map[string]any{"purchased": true})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "purchased", s.purchaseState(t))

	code, _ = s.do(t, http.MethodPut, "/api/v1/admin/override", login.Token, map[string]any{"purchased": nil})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "not_purchased", s.purchaseState(t))
}

func TestRoutes_AppStoreNotification(t *testing.T) {
	s := newTestServer(t)

	expires := time.Now().Add(30 * 24 * time.Hour)
	signedTx, err := s.sandbox.Signer().Sign(verify.TransactionClaims(models.Transaction{
		ID:             "5000",
		OriginalID:     "5000",
		ProductID:      "app.monthly",
		BundleID:       bundleID,
		PurchaseDate:   time.Now().Add(-time.Hour),
		ExpirationDate: &expires,
		Environment:    "Sandbox",
	}))
	require.NoError(t, err)
	payload, err := s.sandbox.Signer().Sign(verify.NotificationClaims(verify.Notification{
		Type:                  "SUBSCRIBED",
		UUID:                  "notification-1",
		Environment:           "Sandbox",
		SignedTransactionInfo: signedTx,
		SignedDate:            time.Now(),
	}, bundleID))
	require.NoError(t, err)

	code, env := s.do(t, http.MethodPost, "/api/v1/notifications/appstore", "", map[string]string{"signedPayload": "garbage"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "notification failed verification", env.Error)

	// слушатель подписывается на обновления асинхронно, поэтому доставка повторяется
	require.Eventually(t, func() bool {
		code, _ := s.do(t, http.MethodPost, "/api/v1/notifications/appstore", "", map[string]string{"signedPayload": payload})
		return code == http.StatusOK && s.purchaseState(t) == "purchased"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestRoutes_Metrics(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.srv.Client().Get(s.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "purchasekit_")
}
