package backtest

import (
	"github.com/shopspring/decimal"
)

const (
	noteRebalance   = "Rebalance"
	noteLiquidation = "Liquidation"
	noteAutoExit    = "Auto-exit"
)

// buy 是买入原语：数量优先，其次金额，最后 all（权益的 BuyAllFraction）。
// 价格缺失或现金不足时静默跳过，返回成交数量。
func (r *run) buy(ts int64, symbol string, qty, notional float64, all bool, note string) float64 {
	price, ok := r.idx.PriceAt(symbol, ts)
	if !ok || price <= 0 {
		return 0
	}
	switch {
	case qty > 0:
	case notional > 0:
		qty = notional / price
	case all:
		if eq := r.equity(ts); eq > 0 {
			qty = eq * r.costs.BuyAllFraction / price
		}
	}
	if qty <= 0 {
		return 0
	}
	return r.fillBuy(ts, symbol, decimal.NewFromFloat(qty), price, note)
}

func (r *run) fillBuy(ts int64, symbol string, qty decimal.Decimal, quote float64, note string) float64 {
	if !qty.IsPositive() {
		return 0
	}
	exec := decimal.NewFromFloat(quote).Mul(decimal.NewFromFloat(1 + r.costs.SpreadRate))
	gross := exec.Mul(qty)
	fee := gross.Mul(decimal.NewFromFloat(r.costs.FeeRate))
	if !r.ledger.Buy(symbol, qty, gross, fee) {
		return 0
	}
	q := qty.InexactFloat64()
	r.trades = append(r.trades, TradeEntry{
		T:         ts,
		Side:      SideBuy,
		Symbol:    symbol,
		Qty:       q,
		Price:     exec.InexactFloat64(),
		Fee:       fee.InexactFloat64(),
		Notional:  gross.InexactFloat64(),
		CashAfter: r.ledger.Cash(),
		Note:      note,
	})
	return q
}

// sell 是卖出原语：all 卖出全部，否则 min(请求, 持仓)；金额按报价折算数量。
func (r *run) sell(ts int64, symbol string, qty, notional float64, all bool, note string) float64 {
	held := r.ledger.position(symbol)
	if !held.IsPositive() {
		return 0
	}
	price, ok := r.idx.PriceAt(symbol, ts)
	if !ok || price <= 0 {
		return 0
	}
	var q decimal.Decimal
	switch {
	case all:
		q = held
	case qty > 0:
		q = decimal.Min(decimal.NewFromFloat(qty), held)
	case notional > 0:
		q = decimal.Min(decimal.NewFromFloat(notional/price), held)
	}
	return r.fillSell(ts, symbol, q, price, note)
}

func (r *run) fillSell(ts int64, symbol string, qty decimal.Decimal, quote float64, note string) float64 {
	if !qty.IsPositive() {
		return 0
	}
	if held := r.ledger.position(symbol); qty.GreaterThan(held) {
		qty = held
	}
	exec := decimal.NewFromFloat(quote).Mul(decimal.NewFromFloat(1 - r.costs.SpreadRate))
	gross := exec.Mul(qty)
	fee := gross.Mul(decimal.NewFromFloat(r.costs.FeeRate))
	pnl, ok := r.ledger.Sell(symbol, qty, gross, fee)
	if !ok {
		return 0
	}
	q := qty.InexactFloat64()
	r.trades = append(r.trades, TradeEntry{
		T:         ts,
		Side:      SideSell,
		Symbol:    symbol,
		Qty:       q,
		Price:     exec.InexactFloat64(),
		Fee:       fee.InexactFloat64(),
		Notional:  gross.InexactFloat64(),
		PnL:       pnl.InexactFloat64(),
		CashAfter: r.ledger.Cash(),
		Note:      note,
	})
	return q
}

// liquidate 卖出全部持仓。
func (r *run) liquidate(ts int64) {
	for _, sym := range r.ledger.Symbols() {
		r.sell(ts, sym, 0, 0, true, noteLiquidation)
	}
}
