package marketdata

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"chattrack/internal/market"
	"chattrack/internal/pkg/symbol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSource struct {
	mock.Mock
	name   string
	crypto bool
}

func (m *mockSource) Name() string { return m.name }

func (m *mockSource) Supports(s string) bool { return symbol.IsCrypto(s, nil) == m.crypto }

func (m *mockSource) Fetch(ctx context.Context, req FetchRequest) ([]market.Candle, error) {
	args := m.Called(req.Symbol, req.Interval)
	cs, _ := args.Get(0).([]market.Candle)
	return cs, args.Error(1)
}

var (
	base  = time.Date(2024, 10, 1, 14, 30, 0, 0, time.UTC)
	fixed = time.Date(2024, 10, 1, 16, 0, 0, 0, time.UTC)
)

func minuteCandles(n int, start float64) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		p := start + float64(i)
		out[i] = market.Candle{T: base.Add(time.Duration(i) * time.Minute).UnixMilli(), O: p, H: p + 1, L: p - 1, C: p, V: 10}
	}
	return out
}

func window() Query {
	return Query{Start: base, End: base.Add(time.Hour)}
}

func newService(t *testing.T, cfg ServiceConfig) *Service {
	t.Helper()
	svc, err := NewService(cfg)
	require.NoError(t, err)
	svc.SetClock(func() time.Time { return fixed })
	return svc
}

func TestSamples(t *testing.T) {
	s := NewSamples()
	assert.True(t, s.Has("spy"))
	assert.False(t, s.Has("QQQ"))

	cs, ok := s.Range("AAPL", 1727793060000, 1727793120000)
	require.True(t, ok)
	require.Len(t, cs, 2)
	assert.Equal(t, 170.05, cs[0].C)

	all, ok := s.Range("MSFT", 1, 2)
	require.True(t, ok)
	assert.Len(t, all, 6)

	_, ok = s.Range("QQQ", 0, 0)
	assert.False(t, ok)
}

func TestCache_RoundTripAndEviction(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCache(dir, 0)
	require.NoError(t, err)

	q1 := Query{Symbol: "SPY", Interval: "1m", Start: base, End: base.Add(time.Hour)}
	q2 := Query{Symbol: "BTC/USDT", Interval: "1m", Start: base, End: base.Add(time.Hour)}
	assert.Contains(t, c.Path(q1), "SPY_1m_202410011430_202410011530.parquet")
	assert.Contains(t, c.Path(q2), "BTC-USDT_1m_")

	_, _, ok := c.Get(q1)
	assert.False(t, ok)

	require.NoError(t, c.Put(q1, minuteCandles(5, 100)))
	got, _, ok := c.Get(q1)
	require.True(t, ok)
	assert.Equal(t, market.Candles(minuteCandles(5, 100)), got)

	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(c.Path(q1), old, old))
	require.NoError(t, c.Put(q2, minuteCandles(5, 200)))
	info, err := os.Stat(c.Path(q2))
	require.NoError(t, err)

	c.limit = info.Size() + 1
	c.enforceLimit()
	_, err = os.Stat(c.Path(q1))
	assert.True(t, os.IsNotExist(err), "oldest entry evicted")
	_, _, ok = c.Get(q2)
	assert.True(t, ok)
}

func TestCache_CorruptFileDropped(t *testing.T) {
	c, err := NewCache(t.TempDir(), 0)
	require.NoError(t, err)
	q := Query{Symbol: "SPY", Interval: "1m", Start: base, End: base}
	require.NoError(t, os.WriteFile(c.Path(q), []byte("not parquet"), 0o644))
	_, _, ok := c.Get(q)
	assert.False(t, ok)
	_, err = os.Stat(c.Path(q))
	assert.True(t, os.IsNotExist(err))
}

func TestArchive(t *testing.T) {
	a, err := NewArchive(t.TempDir())
	require.NoError(t, err)
	defer a.Close()
	ctx := context.Background()

	_, err = a.Manifest(ctx, "SPY", "1m")
	assert.ErrorIs(t, err, ErrNoData)

	n, err := a.Insert(ctx, "spy", "1M", minuteCandles(4, 100))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	_, err = a.Insert(ctx, "SPY", "1m", minuteCandles(2, 500))
	require.NoError(t, err)

	cs, err := a.Range(ctx, "SPY", "1m", 0, 0)
	require.NoError(t, err)
	require.Len(t, cs, 4)
	assert.Equal(t, 500.0, cs[0].C)
	assert.Equal(t, 102.0, cs[2].C)

	part, err := a.Range(ctx, "SPY", "1m", cs[1].T, cs[2].T)
	require.NoError(t, err)
	assert.Len(t, part, 2)

	m, err := a.Manifest(ctx, "SPY", "1m")
	require.NoError(t, err)
	assert.Equal(t, int64(4), m.Rows)
	assert.Equal(t, cs[0].T, m.MinTime)
	assert.Equal(t, cs[3].T, m.MaxTime)
	assert.Positive(t, m.LastSyncAt)
}

func TestService_LiveThenCache(t *testing.T) {
	src := &mockSource{name: "alpaca"}
	src.On("Fetch", "SPY", "1m").Return(minuteCandles(10, 100), nil).Once()
	cache, err := NewCache(t.TempDir(), 1<<20)
	require.NoError(t, err)
	archive, err := NewArchive(t.TempDir())
	require.NoError(t, err)
	defer archive.Close()

	svc := newService(t, ServiceConfig{Sources: []Source{src}, Cache: cache, Archive: archive})
	q := window()
	q.Symbol = "spy"
	got, err := svc.Fetch(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, "alpaca", got.Source)
	assert.False(t, got.Offline)
	assert.Len(t, got.Candles, 10)
	assert.Equal(t, "SPY", got.Symbol)
	assert.Equal(t, "1m", got.Aggregate)
	assert.Equal(t, got.Candles[0].T, got.RangeStart)
	assert.Equal(t, got.Candles[9].T, got.RangeEnd)
	assert.Equal(t, fixed.UnixMilli(), got.Updated)

	again, err := svc.Fetch(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, again.Source)
	assert.Equal(t, got.Candles, again.Candles)

	archived, err := archive.Range(context.Background(), "SPY", "1m", 0, 0)
	require.NoError(t, err)
	assert.Len(t, archived, 10)
	src.AssertExpectations(t)
}

func TestService_Aggregate(t *testing.T) {
	src := &mockSource{name: "alpaca"}
	src.On("Fetch", "SPY", "1m").Return(minuteCandles(10, 100), nil)
	svc := newService(t, ServiceConfig{Sources: []Source{src}})

	q := window()
	q.Symbol = "SPY"
	q.Aggregate = "5m"
	got, err := svc.Fetch(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, got.Candles, 2)
	assert.Equal(t, 100.0, got.Candles[0].O)
	assert.Equal(t, 104.0, got.Candles[0].C)
	assert.Equal(t, 50.0, got.Candles[0].V)

	q.Aggregate = "30s"
	_, err = svc.Fetch(context.Background(), q)
	assert.Error(t, err)
}

func TestService_Degrades(t *testing.T) {
	boom := errors.New("upstream down")
	src := &mockSource{name: "alpaca"}
	src.On("Fetch", mock.Anything, "1m").Return(nil, boom)
	archive, err := NewArchive(t.TempDir())
	require.NoError(t, err)
	defer archive.Close()
	_, err = archive.Insert(context.Background(), "AAPL", "1m", minuteCandles(3, 150))
	require.NoError(t, err)

	svc := newService(t, ServiceConfig{
		Sources:          []Source{src},
		Archive:          archive,
		Samples:          NewSamples(),
		BreakerThreshold: 2,
		BreakerCooldown:  time.Hour,
	})
	ctx := context.Background()

	t.Run("archive", func(t *testing.T) {
		got, err := svc.Fetch(ctx, Query{Symbol: "AAPL", Start: base, End: base.Add(time.Hour)})
		require.NoError(t, err)
		assert.Equal(t, SourceArchive, got.Source)
		assert.True(t, got.Offline)
		assert.Len(t, got.Candles, 3)
	})

	t.Run("samples", func(t *testing.T) {
		got, err := svc.Fetch(ctx, Query{Symbol: "SPY", Start: base, End: base.Add(2 * time.Minute)})
		require.NoError(t, err)
		assert.Equal(t, SourceSample, got.Source)
		assert.True(t, got.Offline)
		assert.Len(t, got.Candles, 3)
		assert.Equal(t, fixed.Add(-sampleAge).UnixMilli(), got.Updated)
	})

	t.Run("no data", func(t *testing.T) {
		_, err := svc.Fetch(ctx, Query{Symbol: "QQQ", Start: base, End: base.Add(time.Hour)})
		assert.ErrorIs(t, err, ErrNoData)
	})

	// 两次失败后熔断打开，第三次不再调用实时源
	src.AssertNumberOfCalls(t, "Fetch", 2)
}

func TestService_RoutesCrypto(t *testing.T) {
	equity := &mockSource{name: "alpaca"}
	crypto := &mockSource{name: "binance", crypto: true}
	crypto.On("Fetch", "BTCUSDT", "1m").Return(minuteCandles(3, 60000), nil)
	svc := newService(t, ServiceConfig{Sources: []Source{equity, crypto}})

	got, err := svc.Fetch(context.Background(), Query{Symbol: "btcusdt", Start: base, End: base.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, "binance", got.Source)
	equity.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
	assert.Equal(t, []string{"alpaca", "binance"}, svc.Sources())
}

func TestService_FetchAll(t *testing.T) {
	src := &mockSource{name: "alpaca"}
	src.On("Fetch", "AAPL", "1m").Return(minuteCandles(3, 150), nil)
	src.On("Fetch", mock.Anything, "1m").Return(nil, nil)
	svc := newService(t, ServiceConfig{Sources: []Source{src}, Samples: NewSamples()})

	got, err := svc.FetchAll(context.Background(), []string{"aapl", "SPY", "QQQ", "AAPL", ""}, window())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alpaca", got["AAPL"].Source)
	assert.Equal(t, SourceSample, got["SPY"].Source)
	_, ok := got["QQQ"]
	assert.False(t, ok)
}

type fakeFetcher struct {
	symbols []string
	query   Query
}

func (f *fakeFetcher) FetchAll(_ context.Context, symbols []string, q Query) (map[string]Series, error) {
	f.symbols, f.query = symbols, q
	return map[string]Series{"SPY": {Symbol: "SPY", Source: SourceSample}}, nil
}

func TestPreloader_RunOnce(t *testing.T) {
	f := &fakeFetcher{}
	p := NewPreloader(f, []string{"SPY", "AAPL"}, 7, "1m", "")
	p.now = func() time.Time { return fixed }

	assert.Equal(t, 1, p.RunOnce(context.Background()))
	assert.Equal(t, []string{"SPY", "AAPL"}, f.symbols)
	assert.Equal(t, fixed.AddDate(0, 0, -7), f.query.Start)
	assert.Equal(t, fixed, f.query.End)
	assert.Equal(t, "1m", f.query.Interval)

	bad := NewPreloader(f, nil, 0, "1m", "not a cron")
	assert.Error(t, bad.Start(context.Background()))
	bad.Stop()
}

func TestAlpacaTimeFrame(t *testing.T) {
	for in, want := range map[string]string{"1m": "1Min", "15m": "15Min", "1h": "1Hour", "1d": "1Day", "1w": "1Week"} {
		tf, err := alpacaTimeFrame(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, tf.String(), in)
	}
	_, err := alpacaTimeFrame("abc")
	assert.Error(t, err)
}
