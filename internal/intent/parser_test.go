package intent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_Examples(t *testing.T) {
	p := NewParser()
	cases := []struct {
		in   string
		want Action
	}{
		{"Start with 50k", SetCapital{Value: 50000}},
		{"set capital $100,000", SetCapital{Value: 100000}},
		{"capital 1.5m", SetCapital{Value: 1500000}},
		{"buy 5 aapl", Buy{Symbol: "AAPL", Qty: 5}},
		{"buy 5 shares of apple", Buy{Symbol: "AAPL", Qty: 5}},
		{"sell all tsla", Sell{Symbol: "TSLA", All: true}},
		{"sell all of my apple", Sell{Symbol: "AAPL", All: true}},
		{"buy everything spy", Buy{Symbol: "SPY", All: true}},
		{"buy $500 of spy", Buy{Symbol: "SPY", Notional: 500}},
		{"sell $1k of msft", Sell{Symbol: "MSFT", Notional: 1000}},
		{"buy 50k of spy", Buy{Symbol: "SPY", Notional: 50000}},
		{"sell 1.5m of msft", Sell{Symbol: "MSFT", Notional: 1500000}},
		{"liquidate", Liquidate{}},
		{"sell everything", Liquidate{}},
		{"close all positions", Liquidate{}},
		{"go to cash", Liquidate{}},
		{"allocate 60% to spy", Allocate{Symbol: "SPY", Weight: 0.6}},
		{"put 40% into aapl", Allocate{Symbol: "AAPL", Weight: 0.4}},
		{"weight 20% msft", Allocate{Symbol: "MSFT", Weight: 0.2}},
		{"rebalance", Allocate{}},
		{"backtest 2024-01-01 to 2024-03-01 5m", SetDateRange{Start: "2024-01-01", End: "2024-03-01", Interval: "5m"}},
		{"test 2024-01-01 - 2024-01-05", SetDateRange{Start: "2024-01-01", End: "2024-01-05", Interval: "1m"}},
		{"ma50", Rule{Name: RuleMovingAverage, Period: 50}},
		{"use a 200 day ma", Rule{Name: RuleMovingAverage, Period: 200}},
		{"exit if price drops 5%", Rule{Name: RuleTrailingStop, Threshold: 0.05}},
		{"trailing stop 8%", Rule{Name: RuleTrailingStop, Threshold: 0.08}},
		{"past 3 weeks", SetRelativeDateRange{Amount: 3, Unit: "week", Interval: "1m"}},
		{"last month", SetRelativeDateRange{Amount: 1, Unit: "month", Interval: "1m"}},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got := p.Parse(tc.in)
			if r, ok := tc.want.(Rule); ok && r.Name == RuleTrailingStop {
				gr, ok := got.(Rule)
				require.True(t, ok, "got %#v", got)
				assert.InDelta(t, r.Threshold, gr.Threshold, 1e-12)
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParser_NoOp(t *testing.T) {
	p := NewParser()
	for _, in := range []string{"hello there", "  what is the weather?  ", "buy 5 of", "buy 50x of spy", "allocate 150% to spy", ""} {
		got := p.Parse(in)
		assert.Equal(t, NoOp{Text: in}, got, in)
	}
}

func TestParser_Recurring(t *testing.T) {
	p := NewParser()

	t.Run("weekday buy", func(t *testing.T) {
		got, ok := p.Parse("buy SPY every friday").(Schedule)
		require.True(t, ok)
		assert.Equal(t, VerbBuy, got.Verb)
		assert.Equal(t, "SPY", got.Symbol)
		assert.Equal(t, Cadence("friday"), got.Cadence)
		assert.False(t, got.HasSize())
	})

	t.Run("notional monthly", func(t *testing.T) {
		got, ok := p.Parse("$100 into SPY every month").(Schedule)
		require.True(t, ok)
		assert.Equal(t, Monthly, got.Cadence)
		assert.Equal(t, 100.0, got.Notional)
	})

	t.Run("allocate monthly", func(t *testing.T) {
		got, ok := p.Parse("allocate 10% to QQQ every month").(Schedule)
		require.True(t, ok)
		assert.Equal(t, VerbAllocate, got.Verb)
		assert.InDelta(t, 0.1, got.Weight, 1e-12)
	})

	t.Run("rebalance monthly", func(t *testing.T) {
		got, ok := p.Parse("rebalance monthly").(Schedule)
		require.True(t, ok)
		assert.Equal(t, VerbRebalance, got.Verb)
		assert.Equal(t, Monthly, got.Cadence)
	})

	t.Run("holding period", func(t *testing.T) {
		got, ok := p.Parse("buy 2 AAPL every monday and sell after 3 days").(Schedule)
		require.True(t, ok)
		assert.Equal(t, 2.0, got.Qty)
		assert.Equal(t, 72*time.Hour, got.HoldFor)
		assert.False(t, got.ExitAll)
	})

	t.Run("exit all follow-up", func(t *testing.T) {
		got, ok := p.Parse("buy 1 spy every day then liquidate after 2 days").(Schedule)
		require.True(t, ok)
		assert.True(t, got.ExitAll)
		assert.Equal(t, 48*time.Hour, got.HoldFor)

		got, ok = p.Parse("buy 1 spy weekly and sell all").(Schedule)
		require.True(t, ok)
		assert.True(t, got.ExitAll)
		assert.Zero(t, got.HoldFor)
	})

	t.Run("random direction deterministic", func(t *testing.T) {
		text := "randomly buy or sell TSLA every day"
		a, ok := p.Parse(text).(Schedule)
		require.True(t, ok)
		b := p.Parse(text).(Schedule)
		assert.True(t, a.Random)
		assert.Equal(t, "TSLA", a.Symbol)
		assert.Equal(t, a.Seed, b.Seed)
		assert.Equal(t, seedOf(text), a.Seed)
		for _, key := range []string{"2024-01-01", "2024-01-02", "2024-01-03"} {
			assert.Equal(t, a.DirectionFor(key), b.DirectionFor(key))
		}
	})

	t.Run("unresolved symbol fails closed", func(t *testing.T) {
		got := p.Parse("buy something every friday")
		assert.Equal(t, NoOp{Text: "buy something every friday"}, got)
	})
}

func TestParser_TriggerDate(t *testing.T) {
	p := NewParser()
	got, ok := p.Parse("buy 5 aapl on 2024-03-01").(Buy)
	require.True(t, ok)
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, want, got.TriggerAt())
}

func TestParser_ParseAll(t *testing.T) {
	p := NewParser()
	acts := p.ParseAll("buy 10 spy over the past 2 weeks")
	require.Len(t, acts, 2)
	assert.Equal(t, Buy{Symbol: "SPY", Qty: 10}, acts[0])
	assert.Equal(t, SetRelativeDateRange{Amount: 2, Unit: "week", Interval: "1m"}, acts[1])

	assert.Len(t, p.ParseAll("past 2 weeks"), 1)
}

func TestParser_Aliases(t *testing.T) {
	p := NewParser(WithAliases(NewAliasTable(map[string]string{"berkshire": "brk.b"})))
	assert.Equal(t, Buy{Symbol: "BRK.B", Qty: 1}, p.Parse("buy 1 berkshire"))
	assert.Equal(t, Buy{Symbol: "BTCUSDT", Qty: 0.5}, p.Parse("buy 0.5 bitcoin"))
	assert.Equal(t, Buy{Symbol: "ETHUSDT", Qty: 2}, p.Parse("buy 2 ethusdt"))
}
