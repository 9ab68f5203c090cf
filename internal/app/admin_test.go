package app

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/pluginhost/internal/domain/unit"
	"github.com/felixgeelhaar/pluginhost/internal/units/kvcache"
)

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestAdminHandler_Health(t *testing.T) {
	h := newTestHost(t, serverConfig(), unit.SideServer)
	handler := h.AdminHandler()

	assert.Equal(t, http.StatusOK, get(t, handler, "/live").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, handler, "/ready").Code)

	_, err := h.Start(context.Background())
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, get(t, handler, "/ready").Code)
	assert.Equal(t, http.StatusOK, get(t, handler, "/ready?full=1").Code)
}

func TestAdminHandler_Metrics(t *testing.T) {
	h := newTestHost(t, serverConfig(), unit.SideServer)
	_, err := h.Start(context.Background())
	require.NoError(t, err)

	handler := h.AdminHandler()
	get(t, handler, "/ready")

	rec := get(t, handler, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `pluginhost_plugin_transitions_total{phase="enabled",side="server"} 2`)
	assert.Contains(t, body, "pluginhost_healthcheck_status")
	assert.Contains(t, body, "go_goroutines")
}

func TestAdminHandler_Units(t *testing.T) {
	h := newTestHost(t, serverConfig(), unit.SideServer)
	_, err := h.Start(context.Background())
	require.NoError(t, err)

	rec := get(t, h.AdminHandler(), "/units")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var snap struct {
		Host      string   `json:"host"`
		Side      string   `json:"side"`
		LoadOrder []string `json:"load_order"`
		Plugins   []struct {
			Name    string `json:"name"`
			Phase   string `json:"phase"`
			Enabled bool   `json:"enabled"`
		} `json:"plugins"`
		Jobs []struct {
			Name        string `json:"name"`
			Initialized bool   `json:"initialized"`
		} `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "arena", snap.Host)
	assert.Equal(t, "server", snap.Side)
	assert.Equal(t, kvcache.Name, snap.LoadOrder[0])
	require.Len(t, snap.Plugins, 2)
	for _, p := range snap.Plugins {
		assert.True(t, p.Enabled, p.Name)
		assert.Equal(t, "enabled", p.Phase)
	}
	require.Len(t, snap.Jobs, 1)
	assert.True(t, snap.Jobs[0].Initialized)
}

func TestAdminHandler_UnitsRejectsPost(t *testing.T) {
	h := newTestHost(t, serverConfig(), unit.SideServer)

	rec := httptest.NewRecorder()
	h.AdminHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/units", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodGet, rec.Header().Get("Allow"))
}

func TestAdminHandler_BuiltOnce(t *testing.T) {
	h := newTestHost(t, serverConfig(), unit.SideServer)
	assert.NotPanics(t, func() {
		h.AdminHandler()
		NewAdminServer(h, "127.0.0.1:0")
	})
}

func TestAdminServer_Serve(t *testing.T) {
	h := newTestHost(t, serverConfig(), unit.SideServer)
	srv := NewAdminServer(h, "127.0.0.1:0")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/live")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("admin server did not stop")
	}
}

func TestAdminServer_ListenError(t *testing.T) {
	h := newTestHost(t, serverConfig(), unit.SideServer)
	err := NewAdminServer(h, "256.0.0.1:99999").ListenAndServe(context.Background())
	assert.Error(t, err)
}
