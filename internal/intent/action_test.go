package intent

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	_, err := NewBuy("", 1, 0, false)
	assert.Error(t, err)
	_, err = NewBuy("spy", 0, 0, false)
	assert.Error(t, err)
	_, err = NewSell("spy", -1, 0, false)
	assert.Error(t, err)
	b, err := NewBuy(" spy ", 2, 0, false)
	require.NoError(t, err)
	assert.Equal(t, "SPY", b.Symbol)

	_, err = NewSetCapital(0)
	assert.Error(t, err)
	_, err = NewAllocate("spy", 1.2)
	assert.Error(t, err)
	a, err := NewAllocate("", 0)
	require.NoError(t, err)
	assert.True(t, a.Rebalancing())

	_, err = NewDateRange("2024-02-01", "2024-01-01", "1m")
	assert.Error(t, err)
	_, err = NewRelativeDateRange(3, "fortnights", "")
	assert.Error(t, err)

	_, err = NewSchedule(Schedule{Verb: VerbBuy, Cadence: "friday"})
	assert.Error(t, err, "symbol required")
	_, err = NewSchedule(Schedule{Verb: VerbRebalance, Cadence: "hourly"})
	assert.Error(t, err)
	s, err := NewSchedule(Schedule{Verb: VerbRebalance, Cadence: "month"})
	require.NoError(t, err)
	assert.Equal(t, Monthly, s.Cadence)
}

func TestCadence_PeriodKey(t *testing.T) {
	fri := time.Date(2024, 10, 4, 15, 0, 0, 0, time.UTC)
	k, ok := Daily.PeriodKey(fri)
	assert.True(t, ok)
	assert.Equal(t, "2024-10-04", k)
	k, _ = Monthly.PeriodKey(fri)
	assert.Equal(t, "2024-10", k)
	k, _ = Weekly.PeriodKey(fri)
	assert.Equal(t, "2024-W40", k)

	k, ok = Cadence("friday").PeriodKey(fri)
	assert.True(t, ok)
	assert.Equal(t, "2024-W40", k)
	_, ok = Cadence("friday").PeriodKey(fri.AddDate(0, 0, 1))
	assert.False(t, ok)

	// ISO 周跨年
	k, _ = Weekly.PeriodKey(time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "2025-W01", k)
}

func TestCodec_RoundTrip(t *testing.T) {
	list := List{
		SetCapital{Value: 50000},
		WithTrigger(Buy{Symbol: "SPY", Qty: 10}, 1727793000000),
		Sell{Symbol: "TSLA", All: true},
		Allocate{Symbol: "QQQ", Weight: 0.25},
		Allocate{},
		Schedule{Verb: VerbBuy, Symbol: "AAPL", Cadence: "monday", Qty: 2, HoldFor: 72 * time.Hour},
		Rule{Name: RuleMovingAverage, Period: 50},
		Liquidate{},
		SetDateRange{Start: "2024-01-01", End: "2024-02-01", Interval: "5m"},
		SetRelativeDateRange{Amount: 3, Unit: "week"},
		NoOp{Text: "hi"},
	}
	raw, err := json.Marshal(list)
	require.NoError(t, err)

	var back List
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, list, back)
	assert.Equal(t, int64(1727793000000), back[1].TriggerAt())
}

func TestCodec_Decode(t *testing.T) {
	t.Run("legacy tags", func(t *testing.T) {
		var l List
		raw := `[{"type":"schedule","payload":{"action":"buy","symbol":"spy","cadence":"friday"}},
			{"type":"rebalance","payload":{}},
			{"type":"set_dates","payload":{"start":"2024-01-01","end":"2024-01-31"}}]`
		require.NoError(t, json.Unmarshal([]byte(raw), &l))
		require.Len(t, l, 3)
		assert.Equal(t, "SPY", l[0].(Schedule).Symbol)
		assert.True(t, l[1].(Allocate).Rebalancing())
		assert.Equal(t, KindSetDateRange, l[2].Kind())
	})

	t.Run("invalid payload", func(t *testing.T) {
		var l List
		err := json.Unmarshal([]byte(`[{"type":"buy","payload":{"symbol":"spy"}}]`), &l)
		assert.Error(t, err)
		err = json.Unmarshal([]byte(`[{"type":"teleport","payload":{}}]`), &l)
		assert.Error(t, err)
	})
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Starting capital set to $50000.", Describe(SetCapital{Value: 50000}))
	assert.Equal(t, "Queued buy of 10 SPY.", Describe(Buy{Symbol: "SPY", Qty: 10}))
	assert.Equal(t, "Selling all holdings of TSLA.", Describe(Sell{Symbol: "TSLA", All: true}))
	assert.Equal(t, "Targeting 60% allocation to SPY.", Describe(Allocate{Symbol: "SPY", Weight: 0.6}))
	assert.Equal(t, "Scheduled buy $100 for SPY monthly.", Describe(Schedule{Verb: VerbBuy, Symbol: "SPY", Cadence: Monthly, Notional: 100}))
	assert.Equal(t, "Echoing back: hello.", Describe(NoOp{Text: "hello"}))
}
