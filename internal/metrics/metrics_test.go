package metrics

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chattrack/internal/backtest"
	"chattrack/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = int64(24 * time.Hour / time.Millisecond)

func TestCompute_TooFewPoints(t *testing.T) {
	assert.Equal(t, Summary{TradesCount: 3}, Compute(nil, Options{TradeCount: 3}))
	assert.Equal(t, Summary{}, Compute([]backtest.Point{{T: 1, Value: 100}}, Options{}))
	// 重复时间戳去重后只剩一个点
	assert.Equal(t, Summary{}, Compute([]backtest.Point{{T: 1, Value: 100}, {T: 1, Value: 120}}, Options{}))
}

func TestCompute_OneYear(t *testing.T) {
	pts := []backtest.Point{{T: 0, Value: 100}, {T: 365 * day, Value: 110}}
	got := Compute(pts, Options{TradeCount: 2})
	assert.InDelta(t, 10.0, got.TotalReturnPct, 1e-9)
	assert.InDelta(t, 10.0, got.CAGR, 1e-9)
	assert.Equal(t, 0.0, got.VolAnnualized, "single return has no sample std")
	assert.Equal(t, 0.0, got.Sharpe)
	assert.Equal(t, 0.0, got.MaxDDPct)
	assert.Equal(t, 2, got.TradesCount)
}

func TestCompute_DailySeries(t *testing.T) {
	pts := []backtest.Point{
		{T: 3 * day, Value: 114.95},
		{T: 0, Value: 100},
		{T: 2 * day, Value: 104.5},
		{T: day, Value: 110},
	}
	got := Compute(pts, Options{})

	std := math.Sqrt(0.0075)
	vol := std * math.Sqrt(365)
	sharpe := (0.05 - 0.02/365) * 365 / vol
	assert.InDelta(t, 14.95, got.TotalReturnPct, 1e-9)
	assert.InDelta(t, vol*100, got.VolAnnualized, 1e-6)
	assert.InDelta(t, sharpe, got.Sharpe, 1e-6)
	assert.InDelta(t, 5.0, got.MaxDDPct, 1e-9)
	wantCAGR := (math.Pow(1.1495, 365.0/3) - 1) * 100
	assert.InDelta(t, wantCAGR, got.CAGR, wantCAGR*1e-9)

	zero := Compute(pts, Options{}.WithRiskFree(0))
	assert.InDelta(t, 0.05*365/vol, zero.Sharpe, 1e-6)
}

func TestCompute_ShortSpanGuard(t *testing.T) {
	hour := int64(time.Hour / time.Millisecond)
	got := Compute([]backtest.Point{{T: 0, Value: 100}, {T: hour, Value: 101}}, Options{})
	assert.InDelta(t, 1.0, got.CAGR, 1e-9)
	assert.InDelta(t, 1.0, got.TotalReturnPct, 1e-9)
}

func TestCompute_DropsNonFinite(t *testing.T) {
	got := Compute([]backtest.Point{{T: 0, Value: 100}, {T: day, Value: math.NaN()}, {T: 2 * day, Value: 50}}, Options{})
	assert.InDelta(t, -50.0, got.TotalReturnPct, 1e-9)
	assert.InDelta(t, 50.0, got.MaxDDPct, 1e-9)
}

func TestRemoteClient(t *testing.T) {
	var seen Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/metrics", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&seen))
		_, _ = w.Write([]byte(`{"totalReturnPct":12.5,"cagr":3,"sharpe":1.25,"maxDDPct":4,"volAnnualized":20,"tradesCount":7}`))
	}))
	defer srv.Close()

	client, err := NewRemoteClient(config.MetricsConfig{RemoteURL: srv.URL + "/", TimeoutSeconds: 2})
	require.NoError(t, err)
	pts := []backtest.Point{{T: 0, Value: 100}, {T: day, Value: 101}}
	got, err := client.Compute(context.Background(), pts, Options{TradeCount: 7})
	require.NoError(t, err)
	assert.Equal(t, Summary{TotalReturnPct: 12.5, CAGR: 3, Sharpe: 1.25, MaxDDPct: 4, VolAnnualized: 20, TradesCount: 7}, got)
	assert.Equal(t, pts, seen.Equity)
	require.NotNil(t, seen.RiskFreeAnnual)
	assert.Equal(t, DefaultRiskFreeAnnual, *seen.RiskFreeAnnual)
	require.NotNil(t, seen.TradesCount)
	assert.Equal(t, 7, *seen.TradesCount)
}

func TestRemoteClient_Errors(t *testing.T) {
	_, err := NewRemoteClient(config.MetricsConfig{})
	assert.Error(t, err)

	_, err = decodeSummary([]byte(`[1,2]`))
	assert.Error(t, err)
	_, err = decodeSummary([]byte(`{"cagr":1}`))
	assert.Error(t, err)
	_, err = decodeSummary([]byte(`not json`))
	assert.Error(t, err)
}

func TestService_FallsBackToLocal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	client, err := NewRemoteClient(config.MetricsConfig{RemoteURL: srv.URL})
	require.NoError(t, err)

	pts := []backtest.Point{{T: 0, Value: 100}, {T: 365 * day, Value: 110}}
	svc := NewService(client, 0.01)
	got := svc.Compute(context.Background(), pts, svc.Options(4))
	assert.Equal(t, Compute(pts, Options{TradeCount: 4}.WithRiskFree(0.01)), got)

	local := NewService(nil, 0.02)
	assert.InDelta(t, 10.0, local.Compute(context.Background(), pts, Options{}).TotalReturnPct, 1e-9)
}
