package backtest

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

type rebalanceLeg struct {
	symbol string
	price  float64
	diff   float64 // 目标市值 - 当前市值
}

// rebalance 把持仓调整到归一化的目标权重。差额低于 RebalanceBand×权益的符号跳过；
// 先卖后买，同方向按符号排序。买入数量使含点差与手续费的总成本等于市值差额，
// 现金不足时以可用现金为上限。
func (r *run) rebalance(ts int64) {
	total := 0.0
	for _, w := range r.targets {
		total += w
	}
	if total <= 0 {
		return
	}
	eq := r.equity(ts)
	if eq <= 0 {
		return
	}
	symbols := make([]string, 0, len(r.targets))
	for sym := range r.targets {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	band := r.costs.RebalanceBand * eq
	var sells, buys []rebalanceLeg
	for _, sym := range symbols {
		price, ok := r.idx.PriceAt(sym, ts)
		if !ok || price <= 0 {
			continue
		}
		target := eq * r.targets[sym] / total
		diff := target - r.ledger.Qty(sym)*price
		if math.Abs(diff) < band {
			continue
		}
		leg := rebalanceLeg{symbol: sym, price: price, diff: diff}
		if diff < 0 {
			sells = append(sells, leg)
		} else {
			buys = append(buys, leg)
		}
	}
	for _, leg := range sells {
		qty := decimal.NewFromFloat(-leg.diff / leg.price)
		r.fillSell(ts, leg.symbol, qty, leg.price, noteRebalance)
	}
	spread := decimal.NewFromFloat(1 + r.costs.SpreadRate)
	fee := decimal.NewFromFloat(1 + r.costs.FeeRate)
	for _, leg := range buys {
		budget := decimal.Min(decimal.NewFromFloat(leg.diff), r.ledger.cash)
		unit := decimal.NewFromFloat(leg.price).Mul(spread).Mul(fee)
		qty := budget.Div(unit).Truncate(8)
		r.fillBuy(ts, leg.symbol, qty, leg.price, noteRebalance)
	}
}
