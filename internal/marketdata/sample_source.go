package marketdata

import (
	"strings"

	"chattrack/internal/market"
)

// 内置离线样本：2024-10-01 14:30Z 起的 6 根 1m K 线。
var sampleTimestamps = []int64{
	1727793000000,
	1727793060000,
	1727793120000,
	1727793180000,
	1727793240000,
	1727793300000,
}

var samplePrices = map[string][][5]float64{
	"SPY": {
		{430.1, 430.5, 429.9, 430.4, 1200000},
		{430.42, 430.6, 430.1, 430.2, 980000},
		{430.18, 430.55, 430.0, 430.48, 860000},
		{430.46, 430.8, 430.2, 430.7, 910000},
		{430.68, 431.0, 430.5, 430.95, 800000},
		{430.96, 431.1, 430.7, 430.85, 750000},
	},
	"AAPL": {
		{170.0, 170.2, 169.8, 170.1, 2200000},
		{170.12, 170.3, 169.9, 170.05, 2100000},
		{170.04, 170.25, 169.95, 170.2, 1900000},
		{170.22, 170.4, 170.0, 170.1, 2000000},
		{170.08, 170.35, 169.98, 170.25, 1850000},
		{170.26, 170.5, 170.1, 170.45, 1750000},
	},
	"MSFT": {
		{315.5, 315.9, 315.2, 315.7, 1500000},
		{315.72, 316.1, 315.4, 315.95, 1480000},
		{315.96, 316.3, 315.6, 316.18, 1420000},
		{316.2, 316.6, 315.9, 316.42, 1380000},
		{316.45, 316.9, 316.2, 316.75, 1330000},
		{316.78, 317.1, 316.5, 316.88, 1290000},
	},
}

// Samples 是最后一级兜底：少量内置 K 线，保证离线时也能演示回测。
type Samples struct {
	series map[string]market.Candles
}

func NewSamples() *Samples {
	s := &Samples{series: make(map[string]market.Candles, len(samplePrices))}
	for sym, rows := range samplePrices {
		cs := make(market.Candles, 0, len(rows))
		for i, r := range rows {
			cs = append(cs, market.Candle{T: sampleTimestamps[i], O: r[0], H: r[1], L: r[2], C: r[3], V: r[4]})
		}
		s.series[sym] = cs
	}
	return s
}

// Has 报告是否内置该符号。
func (s *Samples) Has(symbol string) bool {
	_, ok := s.series[strings.ToUpper(symbol)]
	return ok
}

// Range 返回区间内的样本；区间内为空时返回全部样本。
func (s *Samples) Range(symbol string, start, end int64) (market.Candles, bool) {
	base, ok := s.series[strings.ToUpper(symbol)]
	if !ok {
		return nil, false
	}
	subset := base.Between(start, end)
	if len(subset) == 0 {
		subset = base
	}
	return append(market.Candles(nil), subset...), true
}
