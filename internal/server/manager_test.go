package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/scoreflow/config"
)

const waitTimeout = 5 * time.Second

// --- Config ---

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.ServerConfig{
		HTTPPort:        9191,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    7 * time.Second,
		ShutdownTimeout: 3 * time.Second,
	})
	assert.Equal(t, ":9191", cfg.Addr)
	assert.Equal(t, 5*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 7*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 10*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
}

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":9091", cfg.Addr)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
}

// --- Start / Shutdown lifecycle ---

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	return cfg
}

func TestManager_StartAndShutdown(t *testing.T) {
	m := NewManager(okHandler(), testConfig(), zap.NewNop())
	assert.False(t, m.IsRunning())

	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	assert.True(t, m.IsRunning())

	resp, err := http.Get("http://" + m.Addr() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
	require.NoError(t, m.Shutdown(context.Background()), "second shutdown is a no-op")
}

func TestManager_DoubleStart(t *testing.T) {
	m := NewManager(okHandler(), testConfig(), nil)
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	assert.ErrorContains(t, m.Start(), "already started")
}

func TestManager_StartAfterShutdown(t *testing.T) {
	m := NewManager(okHandler(), testConfig(), nil)
	require.NoError(t, m.Shutdown(context.Background()))
	assert.ErrorContains(t, m.Start(), "closed")
}

func TestManager_StartListenError(t *testing.T) {
	first := NewManager(okHandler(), testConfig(), nil)
	require.NoError(t, first.Start())
	t.Cleanup(func() { _ = first.Shutdown(context.Background()) })

	cfg := testConfig()
	cfg.Addr = first.Addr()
	second := NewManager(okHandler(), cfg, nil)
	assert.ErrorContains(t, second.Start(), "failed to listen")
}

func TestManager_RunStopsOnContext(t *testing.T) {
	m := NewManager(okHandler(), testConfig(), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, m.IsRunning, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, m.IsRunning())
}
