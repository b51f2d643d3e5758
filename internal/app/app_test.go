package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"chattrack/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Data.CacheDir = t.TempDir()
	cfg.Data.ArchiveDir = t.TempDir()
	cfg.Data.PreloadCron = ""
	cfg.Binance.Enabled = false
	cfg.Alpaca.Enabled = false
	cfg.App.HTTPAddr = "127.0.0.1:0"
	return cfg
}

func TestBuild_OfflineStack(t *testing.T) {
	cfg := testConfig(t)
	a, err := NewAppBuilder(cfg).Build(context.Background())
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Market())
	assert.Empty(t, a.Market().Sources())
	require.NotNil(t, a.Summary)
	text := a.Summary.String()
	assert.Contains(t, text, "实时源: (无)")
	assert.Contains(t, text, "SPY, AAPL, MSFT")

	rec := httptest.NewRecorder()
	a.HTTP().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/candles?symbol=SPY", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"source":"static-sample"`)
}

func TestBuild_WithSources(t *testing.T) {
	cfg := testConfig(t)
	cfg.Binance.Enabled = true
	cfg.Alpaca.Enabled = true
	cfg.Alpaca.APIKey, cfg.Alpaca.APISecret = "key", "secret"
	stack, err := buildMarketStack(cfg)
	require.NoError(t, err)
	defer stack.Close()
	assert.Equal(t, []string{"alpaca", "binance"}, stack.Sources)
}

func TestBuild_Errors(t *testing.T) {
	_, err := NewAppBuilder(nil).Build(context.Background())
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Metrics.RemoteURL = "://bad"
	_, err = NewAppBuilder(cfg).Build(context.Background())
	assert.Error(t, err)

	_, err = NewApp(nil)
	assert.Error(t, err)
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	a, err := buildAppWithWire(context.Background(), testConfig(t))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}
