package market

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	in := []Candle{
		{T: 3, C: 30},
		{T: 1, C: 10},
		{T: 2, C: 20},
		{T: 2, C: 21},
		{T: 4, C: 0},
		{T: 5, C: math.NaN()},
	}
	out := Normalize(in)
	require.Len(t, out, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{out[0].T, out[1].T, out[2].T})
	assert.Equal(t, 21.0, out[1].C)
	assert.Equal(t, int64(3), in[0].T, "input untouched")
	assert.Nil(t, Normalize(nil))

	t.Run("epoch zero and negative timestamps kept", func(t *testing.T) {
		out := Normalize([]Candle{{T: 1000, C: 110}, {T: 0, C: 100}, {T: -60000, C: 90}})
		require.Len(t, out, 3)
		assert.Equal(t, []int64{-60000, 0, 1000}, []int64{out[0].T, out[1].T, out[2].T})
	})
}

func TestIndex_PriceAt(t *testing.T) {
	idx := NewIndex(map[string][]Candle{
		"spy": {{T: 100, C: 1}, {T: 200, C: 2}, {T: 300, C: 3}},
		"EMPTY": nil,
	})

	t.Run("floor before first candle", func(t *testing.T) {
		p, ok := idx.PriceAt("SPY", 50)
		assert.True(t, ok)
		assert.Equal(t, 1.0, p)
	})
	t.Run("exact and between", func(t *testing.T) {
		p, _ := idx.PriceAt("SPY", 200)
		assert.Equal(t, 2.0, p)
		p, _ = idx.PriceAt("SPY", 299)
		assert.Equal(t, 2.0, p)
		p, _ = idx.PriceAt("SPY", 10_000)
		assert.Equal(t, 3.0, p)
	})
	t.Run("absent", func(t *testing.T) {
		_, ok := idx.PriceAt("EMPTY", 100)
		assert.False(t, ok)
		_, ok = idx.PriceAt("QQQ", 100)
		assert.False(t, ok)
	})
	t.Run("monotonic piecewise constant", func(t *testing.T) {
		prev := 0.0
		for ts := int64(0); ts <= 400; ts += 7 {
			p, ok := idx.PriceAt("SPY", ts)
			require.True(t, ok)
			assert.GreaterOrEqual(t, p, prev)
			prev = p
		}
	})
}

func TestIndex_Timeline(t *testing.T) {
	idx := NewIndex(map[string][]Candle{
		"A": {{T: 3, C: 1}, {T: 1, C: 1}},
		"B": {{T: 2, C: 1}, {T: 3, C: 1}},
	})
	assert.Equal(t, []int64{1, 2, 3}, idx.Timeline())
	assert.Equal(t, []string{"A", "B"}, idx.Symbols())
	assert.Equal(t, []float64{1}, idx.Closes("A", 2))

	zero := NewIndex(map[string][]Candle{"Z": {{T: -1000, C: 1}, {T: 0, C: 2}, {T: 1000, C: 3}}})
	assert.Equal(t, []float64{1, 2}, zero.Closes("Z", 0))
	assert.Empty(t, zero.Closes("Z", -2000))
}

func TestAggregate(t *testing.T) {
	base := time.Date(2024, 10, 1, 13, 30, 0, 0, time.UTC).UnixMilli()
	var cs Candles
	for i := 0; i < 10; i++ {
		cs = append(cs, Candle{T: base + int64(i)*60_000, O: float64(i), H: float64(i) + 1, L: float64(i) - 1, C: float64(i) + 0.5, V: 1})
	}
	out := Aggregate(cs, 5*time.Minute)
	require.Len(t, out, 2)
	assert.Equal(t, base, out[0].T)
	assert.Equal(t, 0.0, out[0].O)
	assert.Equal(t, 5.0, out[0].H)
	assert.Equal(t, -1.0, out[0].L)
	assert.Equal(t, 4.5, out[0].C)
	assert.Equal(t, 5.0, out[0].V)
	assert.Equal(t, cs, Aggregate(cs, 0))
}

func TestParseInterval(t *testing.T) {
	cases := map[string]time.Duration{"1m": time.Minute, "15m": 15 * time.Minute, "4h": 4 * time.Hour, "1d": 24 * time.Hour, "1w": 7 * 24 * time.Hour}
	for in, want := range cases {
		got, err := ParseInterval(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, bad := range []string{"", "m", "0m", "5x", "-1h"} {
		_, err := ParseInterval(bad)
		assert.Error(t, err, bad)
	}
}
