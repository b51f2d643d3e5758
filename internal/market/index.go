package market

import (
	"sort"
	"strings"
)

// Index 是多符号价格索引，构造后只读，可被多个回测并发读取。
type Index struct {
	series map[string]Candles
}

// NewIndex 对每个符号的 K 线做归一化；符号统一大写，空序列保留为“无数据”。
func NewIndex(data map[string][]Candle) *Index {
	idx := &Index{series: make(map[string]Candles, len(data))}
	for sym, cs := range data {
		key := normSymbol(sym)
		if key == "" {
			continue
		}
		merged := append(append([]Candle{}, idx.series[key]...), cs...)
		idx.series[key] = Normalize(merged)
	}
	return idx
}

func normSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// PriceAt 返回 ts 时刻（含）之前最后一根 K 线的收盘价。
// 首根 K 线晚于 ts 时用首根收盘价兜底；符号没有任何数据时返回 false。
func (x *Index) PriceAt(symbol string, ts int64) (float64, bool) {
	cs := x.series[normSymbol(symbol)]
	if len(cs) == 0 {
		return 0, false
	}
	i := sort.Search(len(cs), func(i int) bool { return cs[i].T > ts })
	if i == 0 {
		return cs[0].C, true
	}
	return cs[i-1].C, true
}

// Timeline 返回所有符号时间戳的升序并集。
func (x *Index) Timeline() []int64 {
	seen := make(map[int64]struct{})
	for _, cs := range x.series {
		for _, c := range cs {
			seen[c.T] = struct{}{}
		}
	}
	out := make([]int64, 0, len(seen))
	for ts := range seen {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Closes 返回 ts（含）之前的收盘价序列。
func (x *Index) Closes(symbol string, ts int64) []float64 {
	cs := x.series[normSymbol(symbol)]
	hi := sort.Search(len(cs), func(i int) bool { return cs[i].T > ts })
	return cs[:hi].Closes()
}

// Has 报告符号是否有数据。
func (x *Index) Has(symbol string) bool {
	return len(x.series[normSymbol(symbol)]) > 0
}

// Symbols 返回有数据的符号（排序）。
func (x *Index) Symbols() []string {
	out := make([]string, 0, len(x.series))
	for sym, cs := range x.series {
		if len(cs) > 0 {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}
