package override

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type overrideStub struct {
	mu    sync.Mutex
	value *bool
	calls int
}

func (s *overrideStub) SetOverride(v *bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.value = v
}

func (s *overrideStub) Override() *bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestOverrideHandler_Put(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		wantStatusCode int
		wantValue      any
		wantCalls      int
	}{
		{name: "force purchased", body: `{"purchased":true}`, wantStatusCode: http.StatusOK, wantValue: true, wantCalls: 1},
		{name: "force not purchased", body: `{"purchased":false}`, wantStatusCode: http.StatusOK, wantValue: false, wantCalls: 1},
		{name: "clear", body: `{"purchased":null}`, wantStatusCode: http.StatusOK, wantValue: nil, wantCalls: 1},
		{name: "invalid json body", body: `{"purchased":`, wantStatusCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &overrideStub{}
			h := New(newNoopLogger(), svc)

			rec := httptest.NewRecorder()
			h.Put(rec, httptest.NewRequest(http.MethodPut, "/api/v1/admin/override", bytes.NewBufferString(tt.body)))

			assert.Equal(t, tt.wantStatusCode, rec.Code)
			assert.Equal(t, tt.wantCalls, svc.calls)
			if tt.wantStatusCode != http.StatusOK {
				return
			}
			var resp struct {
				Data map[string]any `json:"data"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantValue, resp.Data["purchased"])
		})
	}
}

func TestOverrideHandler_Get(t *testing.T) {
	v := true
	svc := &overrideStub{value: &v}

	rec := httptest.NewRecorder()
	New(newNoopLogger(), svc).Get(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/override", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, true, resp.Data["purchased"])
}
