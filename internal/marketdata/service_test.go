package marketdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"chattrack/internal/config"
	"chattrack/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// klineServer 模拟 /fapi/v1/klines：按 startTime/endTime/limit 返回 1m K 线，单次最多 1500 根。
func klineServer(t *testing.T, limits *[]int) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		start, _ := strconv.ParseInt(q.Get("startTime"), 10, 64)
		end, _ := strconv.ParseInt(q.Get("endTime"), 10, 64)
		limit, _ := strconv.Atoi(q.Get("limit"))
		if limit <= 0 || limit > 1500 {
			limit = 1500
		}
		mu.Lock()
		*limits = append(*limits, limit)
		mu.Unlock()

		rows := make([][]any, 0, limit)
		for ts := start; ts <= end && len(rows) < limit; ts += time.Minute.Milliseconds() {
			p := strconv.FormatFloat(60000+float64(len(rows)), 'f', 2, 64)
			rows = append(rows, []any{ts, p, p, p, p, "1", ts + 59999, "0", 1, "0", "0", "0"})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rows)
	}))
}

func TestService_PagesLongRanges(t *testing.T) {
	var limits []int
	srv := klineServer(t, &limits)
	defer srv.Close()

	src := NewBinanceSource(config.BinanceConfig{RESTBaseURL: srv.URL, TimeoutSeconds: 5}, []string{"USDT"})
	svc := newService(t, ServiceConfig{Sources: []Source{src}})

	end := base.Add(48 * time.Hour)
	got, err := svc.Fetch(context.Background(), Query{Symbol: "BTCUSDT", Interval: "1m", Start: base, End: end})
	require.NoError(t, err)
	assert.Equal(t, "binance", got.Source)
	require.Len(t, got.Candles, 2881)
	assert.Equal(t, base.UnixMilli(), got.RangeStart)
	assert.Equal(t, end.UnixMilli(), got.RangeEnd)
	assert.Equal(t, []int{1500, 1381}, limits)
}

type gatedSource struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSource) Name() string { return "alpaca" }

func (g *gatedSource) Supports(string) bool { return true }

func (g *gatedSource) Fetch(ctx context.Context, req FetchRequest) ([]market.Candle, error) {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return minuteCandles(5, 100), nil
}

func TestService_SharedFetchSurvivesCallerCancel(t *testing.T) {
	src := &gatedSource{entered: make(chan struct{}), release: make(chan struct{})}
	svc := newService(t, ServiceConfig{Sources: []Source{src}})
	q := Query{Symbol: "SPY", Start: base, End: base.Add(time.Hour)}

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := svc.Fetch(ctx, q)
		first <- err
	}()
	<-src.entered

	type result struct {
		series Series
		err    error
	}
	second := make(chan result, 1)
	go func() {
		s, err := svc.Fetch(context.Background(), q)
		second <- result{s, err}
	}()

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)
	close(src.release)

	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, "alpaca", res.series.Source)
	assert.Len(t, res.series.Candles, 5)
}
