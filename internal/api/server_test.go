package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingzero/mt5bridge/internal/bridge"
	"github.com/wingzero/mt5bridge/internal/broadcast"
	"github.com/wingzero/mt5bridge/internal/terminal/sim"
	"github.com/wingzero/mt5bridge/internal/wsgateway"
)

const testKey = "test-key"

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	caster := broadcast.New()
	b := bridge.New(sim.New(sim.Config{}), caster, bridge.Config{
		SampleInterval: time.Hour,
		CallTimeout:    time.Second,
	})
	t.Cleanup(b.Disconnect)
	srv := New(Config{APIKey: testKey}, b, wsgateway.NewHub(caster), nil)
	return srv.Router()
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, authed bool) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rdr *strings.Reader
	if body == "" {
		rdr = strings.NewReader("")
	} else {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("X-API-Key", testKey)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var payload map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(w.Body.Bytes(), &payload)
	}
	return w, payload
}

func TestStatusIsOpen(t *testing.T) {
	h := newTestHandler(t)

	w, body := doJSON(t, h, http.MethodGet, "/api/v1/status", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, "disconnected", body["terminal_status"])
	assert.Equal(t, false, body["terminal_connected"])
}

func TestHealthz(t *testing.T) {
	h := newTestHandler(t)
	w, _ := doJSON(t, h, http.MethodGet, "/healthz", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIKeyRequired(t *testing.T) {
	h := newTestHandler(t)

	w, body := doJSON(t, h, http.MethodGet, "/api/v1/account", "", false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", body["error"])

	req := httptest.NewRequest(http.MethodGet, "/api/v1/account", nil)
	req.Header.Set("X-API-Key", "wrong")
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, req)
	assert.Equal(t, http.StatusUnauthorized, w2.Code)
}

func TestNotConnectedIsBadRequest(t *testing.T) {
	h := newTestHandler(t)

	for _, probe := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/account"},
		{http.MethodGet, "/api/v1/positions"},
		{http.MethodGet, "/api/v1/orders"},
		{http.MethodGet, "/api/v1/symbols"},
		{http.MethodGet, "/api/v1/market/EURUSD"},
	} {
		w, body := doJSON(t, h, probe.method, probe.path, "", true)
		assert.Equal(t, http.StatusBadRequest, w.Code, probe.path)
		assert.Contains(t, body["error"], "not connected", probe.path)
	}

	w, _ := doJSON(t, h, http.MethodPost, "/api/v1/orders",
		`{"symbol":"EURUSD","type":"buy","volume":0.1}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTradeRoundTrip(t *testing.T) {
	h := newTestHandler(t)

	w, _ := doJSON(t, h, http.MethodPost, "/api/v1/connect", "", true)
	require.Equal(t, http.StatusOK, w.Code)

	w, body := doJSON(t, h, http.MethodGet, "/api/v1/status", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["terminal_connected"])

	w, body = doJSON(t, h, http.MethodGet, "/api/v1/account", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10000.0, body["balance"])
	assert.Equal(t, "USD", body["currency"])

	w, body = doJSON(t, h, http.MethodGet, "/api/v1/market/EURUSD", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "EURUSD", body["symbol"])
	assert.Greater(t, body["ask"].(float64), body["bid"].(float64))

	w, body = doJSON(t, h, http.MethodPost, "/api/v1/orders",
		`{"symbol":"EURUSD","type":"buy","volume":0.1}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["success"])
	ticket := uint64(body["order_id"].(float64))
	require.NotZero(t, ticket)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/positions", nil)
	req.Header.Set("X-API-Key", testKey)
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, req)
	require.Equal(t, http.StatusOK, w2.Code)
	var positions []map[string]any
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &positions))
	require.Len(t, positions, 1)
	assert.Equal(t, float64(ticket), positions[0]["ticket"])

	w, body = doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/v1/positions/%d/close", ticket), "", true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["success"])

	w, _ = doJSON(t, h, http.MethodPost, "/api/v1/disconnect", "", true)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, h, http.MethodGet, "/api/v1/account", "", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCloseUnknownPosition(t *testing.T) {
	h := newTestHandler(t)
	w, _ := doJSON(t, h, http.MethodPost, "/api/v1/connect", "", true)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, h, http.MethodPost, "/api/v1/positions/123456/close", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = doJSON(t, h, http.MethodPost, "/api/v1/positions/notanumber/close", "", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnknownSymbolIsNotFound(t *testing.T) {
	h := newTestHandler(t)
	w, _ := doJSON(t, h, http.MethodPost, "/api/v1/connect", "", true)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, h, http.MethodGet, "/api/v1/market/BOGUS", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInvalidOrderBody(t *testing.T) {
	h := newTestHandler(t)
	w, _ := doJSON(t, h, http.MethodPost, "/api/v1/connect", "", true)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, h, http.MethodPost, "/api/v1/orders", `{"symbol":`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, h, http.MethodPost, "/api/v1/orders", `{"symbol":"EURUSD","type":"hold"}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Volume above the simulator's cap comes back as a rejection.
	w, body := doJSON(t, h, http.MethodPost, "/api/v1/orders",
		`{"symbol":"EURUSD","type":"buy","volume":1000}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "rejected")
}
