package market

import "time"

// Aggregate 把已排序的 K 线按 bucket 合并：开盘取首根，最高/最低取极值，收盘取末根，成交量求和。
// bucket 不大于 0 时原样返回。
func Aggregate(cs Candles, bucket time.Duration) Candles {
	step := bucket.Milliseconds()
	if step <= 0 || len(cs) == 0 {
		return cs
	}
	out := make(Candles, 0, len(cs)/2+1)
	var cur Candle
	open := false
	for _, c := range cs {
		key := AlignDown(c.T, step)
		if open && key == cur.T {
			if c.H > cur.H {
				cur.H = c.H
			}
			if c.L < cur.L {
				cur.L = c.L
			}
			cur.C = c.C
			cur.V += c.V
			continue
		}
		if open {
			out = append(out, cur)
		}
		cur = Candle{T: key, O: c.O, H: c.H, L: c.L, C: c.C, V: c.V}
		open = true
	}
	if open {
		out = append(out, cur)
	}
	return out
}
