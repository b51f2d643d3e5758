// Package metrics 由权益曲线计算绩效指标：总收益、CAGR、Sharpe、最大回撤、年化波动。
// 本地实现与远端 /api/metrics 使用同一套公式。
package metrics

import (
	"math"
	"sort"

	"chattrack/internal/backtest"
)

const secondsPerYear = 365 * 24 * 60 * 60

// DefaultRiskFreeAnnual 是未指定时的年化无风险利率。
const DefaultRiskFreeAnnual = 0.02

// Options 控制指标计算。RiskFreeAnnual 为 nil 时使用 DefaultRiskFreeAnnual，
// 显式的 0 保持为 0。
type Options struct {
	RiskFreeAnnual *float64
	TradeCount     int
}

// WithRiskFree 返回带利率的 Options 副本。
func (o Options) WithRiskFree(rf float64) Options {
	o.RiskFreeAnnual = &rf
	return o
}

func (o Options) riskFree() float64 {
	if o.RiskFreeAnnual == nil {
		return DefaultRiskFreeAnnual
	}
	return *o.RiskFreeAnnual
}

// Summary 的百分比字段均为百分数（12.5 表示 12.5%），JSON 字段名与前端一致。
type Summary struct {
	TotalReturnPct float64 `json:"totalReturnPct"`
	CAGR           float64 `json:"cagr"`
	Sharpe         float64 `json:"sharpe"`
	MaxDDPct       float64 `json:"maxDDPct"`
	VolAnnualized  float64 `json:"volAnnualized"`
	TradesCount    int     `json:"tradesCount"`
}

// Compute 计算绩效指标。少于 2 个有效点时除 TradesCount 外全部为 0。
func Compute(points []backtest.Point, opts Options) Summary {
	out := Summary{TradesCount: opts.TradeCount}
	series := prepare(points)
	if len(series) < 2 {
		return out
	}

	values := make([]float64, len(series))
	for i, p := range series {
		values[i] = p.Value
	}
	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] > 0 {
			returns = append(returns, values[i]/values[i-1]-1)
		}
	}

	duration := math.Max(float64(series[len(series)-1].T-series[0].T)/1000, 1)
	period := duration / float64(len(values)-1)
	annual := secondsPerYear / period

	rfPerPeriod := opts.riskFree() / annual
	vol := 0.0
	if len(returns) > 0 {
		vol = stddev(returns) * math.Sqrt(annual)
	}
	sharpe := 0.0
	if vol != 0 {
		excess := 0.0
		for _, r := range returns {
			excess += r - rfPerPeriod
		}
		excess /= float64(len(returns))
		sharpe = excess * annual / vol
	}

	total := 0.0
	if values[0] > 0 {
		total = values[len(values)-1]/values[0] - 1
	}
	out.TotalReturnPct = clean(total * 100)
	out.CAGR = clean(cagr(values, duration) * 100)
	out.Sharpe = clean(sharpe)
	out.MaxDDPct = clean(maxDrawdown(values) * 100)
	out.VolAnnualized = clean(vol * 100)
	return out
}

// prepare 排序并按时间戳去重（保留最后一个），丢弃非有限值。
func prepare(points []backtest.Point) []backtest.Point {
	out := make([]backtest.Point, 0, len(points))
	for _, p := range points {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].T < out[j].T })
	dedup := out[:0]
	for _, p := range out {
		if n := len(dedup); n > 0 && dedup[n-1].T == p.T {
			dedup[n-1] = p
			continue
		}
		dedup = append(dedup, p)
	}
	return dedup
}

// stddev 为样本标准差，少于 2 个样本时为 0。
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	ss := 0.0
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return math.Sqrt(math.Max(ss/float64(len(xs)-1), 0))
}

// maxDrawdown 返回最大峰谷跌幅（正数，0.2 表示 20%）。
func maxDrawdown(values []float64) float64 {
	peak := values[0]
	worst := 0.0
	for _, v := range values {
		peak = math.Max(peak, v)
		if peak > 0 {
			worst = math.Min(worst, v/peak-1)
		}
	}
	return math.Abs(worst)
}

// cagr 在时长不超过一天时直接返回总收益，避免指数爆炸。
func cagr(values []float64, durationSeconds float64) float64 {
	first, last := values[0], values[len(values)-1]
	if first <= 0 {
		return 0
	}
	ratio := last / first
	years := durationSeconds / secondsPerYear
	if years <= 1.0/365 {
		return ratio - 1
	}
	return math.Pow(ratio, 1/years) - 1
}

func clean(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
