package backtest

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestLedger_BuySell(t *testing.T) {
	l := NewLedger(1000)
	assert.False(t, l.Touched())

	require.True(t, l.Buy("SPY", d(4), d(400), d(2)))
	assert.InDelta(t, 598.0, l.Cash(), 1e-9)
	assert.Equal(t, 4.0, l.Qty("SPY"))
	assert.InDelta(t, 100.5, l.AvgCost("SPY"), 1e-9)
	assert.True(t, l.Touched())

	assert.False(t, l.Buy("SPY", d(10), d(1000), d(0)), "cannot afford")
	assert.Equal(t, 4.0, l.Qty("SPY"))

	_, ok := l.Sell("SPY", d(5), d(500), d(0))
	assert.False(t, ok, "cannot sell more than held")

	pnl, ok := l.Sell("SPY", d(2), d(220), d(1))
	require.True(t, ok)
	assert.InDelta(t, 219.0-201.0, pnl.InexactFloat64(), 1e-9)
	assert.InDelta(t, 100.5, l.AvgCost("SPY"), 1e-9)

	pnl, ok = l.Sell("SPY", d(2), d(180), d(0))
	require.True(t, ok)
	assert.InDelta(t, -21.0, pnl.InexactFloat64(), 1e-9)
	assert.Empty(t, l.Symbols())
	assert.Equal(t, 0.0, l.AvgCost("SPY"))
	assert.InDelta(t, -3.0, l.Realized(), 1e-9)
	assert.Equal(t, 3, l.Trades())
}

func TestLedger_ResetCashAndCharge(t *testing.T) {
	l := NewLedger(-5)
	assert.Equal(t, 0.0, l.Cash())
	assert.False(t, l.ResetCash(0))
	assert.True(t, l.ResetCash(500))
	assert.Equal(t, 500.0, l.Cash())

	assert.True(t, l.Charge(d(0)).IsZero())
	assert.False(t, l.Touched())

	got := l.Charge(d(100))
	assert.Equal(t, "100", got.String())
	assert.False(t, l.ResetCash(1000), "ledger already touched")

	got = l.Charge(d(1000))
	assert.Equal(t, "400", got.String())
	assert.Equal(t, 0.0, l.Cash())
	assert.Equal(t, 0, l.Trades())
}

func TestPendingQueueOrder(t *testing.T) {
	var q pendingQueue
	q.push(pendingEvent{fireAt: 30, note: "c"})
	q.push(pendingEvent{fireAt: 10, note: "a"})
	q.push(pendingEvent{fireAt: 30, note: "d"})
	q.push(pendingEvent{fireAt: 20, note: "b"})

	assert.Empty(t, q.due(5))
	due := q.due(20)
	require.Len(t, due, 2)
	assert.Equal(t, "a", due[0].note)
	assert.Equal(t, "b", due[1].note)
	due = q.due(100)
	require.Len(t, due, 2)
	assert.Equal(t, "c", due[0].note)
	assert.Equal(t, "d", due[1].note)
	assert.Empty(t, q)
}
