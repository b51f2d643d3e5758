package market

import (
	"math"
	"sort"
)

// Candle 是单根 K 线，时间戳为毫秒。JSON 键与前端/缓存格式保持一致。
type Candle struct {
	T int64   `json:"t" parquet:"t"`
	O float64 `json:"o" parquet:"o"`
	H float64 `json:"h" parquet:"h"`
	L float64 `json:"l" parquet:"l"`
	C float64 `json:"c" parquet:"c"`
	V float64 `json:"v" parquet:"v"`
}

type Candles []Candle

func (c Candle) valid() bool {
	return c.C > 0 && !math.IsNaN(c.C) && !math.IsInf(c.C, 0)
}

// Normalize 按时间升序排序，同一时间戳保留最后出现的一根，丢弃收盘价非法的 K 线。
// 返回新切片，不修改入参。
func Normalize(in []Candle) Candles {
	if len(in) == 0 {
		return nil
	}
	latest := make(map[int64]Candle, len(in))
	for _, c := range in {
		if !c.valid() {
			continue
		}
		latest[c.T] = c
	}
	out := make(Candles, 0, len(latest))
	for _, c := range latest {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].T < out[j].T })
	return out
}

// Closes 返回收盘价序列。
func (cs Candles) Closes() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.C
	}
	return out
}

// Between 返回 [start, end] 内的 K 线（0 表示不限制），要求 cs 已排序。
func (cs Candles) Between(start, end int64) Candles {
	lo := 0
	if start > 0 {
		lo = sort.Search(len(cs), func(i int) bool { return cs[i].T >= start })
	}
	hi := len(cs)
	if end > 0 {
		hi = sort.Search(len(cs), func(i int) bool { return cs[i].T > end })
	}
	if lo >= hi {
		return nil
	}
	return cs[lo:hi]
}

// Span 返回首尾时间戳，空序列返回 0,0。
func (cs Candles) Span() (int64, int64) {
	if len(cs) == 0 {
		return 0, 0
	}
	return cs[0].T, cs[len(cs)-1].T
}
