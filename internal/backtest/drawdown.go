package backtest

// Drawdown 返回相对历史峰值的回撤百分比（<=0，首点为 0）。峰值为 0 时记为 0。
func Drawdown(equity []Point) []Point {
	out := make([]Point, 0, len(equity))
	if len(equity) == 0 {
		return out
	}
	peak := equity[0].Value
	for _, p := range equity {
		if p.Value > peak {
			peak = p.Value
		}
		dd := 0.0
		if peak > 0 {
			dd = (p.Value - peak) / peak * 100
		}
		out = append(out, Point{T: p.T, Value: dd})
	}
	return out
}
