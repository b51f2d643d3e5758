package backtest

import (
	"sort"

	"github.com/shopspring/decimal"
)

// positionEpsilon 以下的残余持仓视为 0。
var positionEpsilon = decimal.New(1, -6)

type costBasis struct {
	qty  decimal.Decimal
	cost decimal.Decimal // 含手续费的总成本
}

// Ledger 记录现金、持仓与成本，仅由引擎在单次运行内修改。
type Ledger struct {
	cash      decimal.Decimal
	positions map[string]decimal.Decimal
	basis     map[string]costBasis
	trades    int
	realized  decimal.Decimal
	touched   bool
}

func NewLedger(cash float64) *Ledger {
	if cash < 0 {
		cash = 0
	}
	return &Ledger{
		cash:      decimal.NewFromFloat(cash),
		positions: make(map[string]decimal.Decimal),
		basis:     make(map[string]costBasis),
	}
}

func (l *Ledger) Cash() float64 { return l.cash.InexactFloat64() }

func (l *Ledger) Trades() int { return l.trades }

func (l *Ledger) Realized() float64 { return l.realized.InexactFloat64() }

// Touched 报告是否已发生过任何成交或扣费。
func (l *Ledger) Touched() bool { return l.touched }

func (l *Ledger) Qty(symbol string) float64 {
	return l.positions[symbol].InexactFloat64()
}

func (l *Ledger) position(symbol string) decimal.Decimal {
	return l.positions[symbol]
}

// AvgCost 返回含手续费的加权平均成本。
func (l *Ledger) AvgCost(symbol string) float64 {
	b, ok := l.basis[symbol]
	if !ok || b.qty.IsZero() {
		return 0
	}
	return b.cost.Div(b.qty).InexactFloat64()
}

// Symbols 返回当前持有的符号（排序）。
func (l *Ledger) Symbols() []string {
	out := make([]string, 0, len(l.positions))
	for sym := range l.positions {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Positions 返回持仓副本。
func (l *Ledger) Positions() map[string]float64 {
	out := make(map[string]float64, len(l.positions))
	for sym, q := range l.positions {
		out[sym] = q.InexactFloat64()
	}
	return out
}

// ResetCash 仅在账本未被使用前生效。
func (l *Ledger) ResetCash(v float64) bool {
	if l.touched || v <= 0 {
		return false
	}
	l.cash = decimal.NewFromFloat(v)
	return true
}

// CanAfford 报告现金是否足以支付 amount。
func (l *Ledger) CanAfford(amount decimal.Decimal) bool {
	return l.cash.GreaterThanOrEqual(amount)
}

// Buy 入账一笔买入：扣除 gross+fee，增加持仓与成本。调用方需先检查 CanAfford。
func (l *Ledger) Buy(symbol string, qty, gross, fee decimal.Decimal) bool {
	total := gross.Add(fee)
	if !qty.IsPositive() || !l.CanAfford(total) {
		return false
	}
	l.cash = l.cash.Sub(total)
	l.positions[symbol] = l.positions[symbol].Add(qty)
	b := l.basis[symbol]
	l.basis[symbol] = costBasis{qty: b.qty.Add(qty), cost: b.cost.Add(total)}
	l.trades++
	l.touched = true
	return true
}

// Sell 入账一笔卖出，qty 不得超过持仓，返回已实现盈亏（净收入减去按均价计算的成本）。
func (l *Ledger) Sell(symbol string, qty, gross, fee decimal.Decimal) (decimal.Decimal, bool) {
	held := l.positions[symbol]
	if !qty.IsPositive() || qty.GreaterThan(held) {
		return decimal.Zero, false
	}
	net := gross.Sub(fee)
	b := l.basis[symbol]
	var costOut decimal.Decimal
	if b.qty.IsPositive() {
		costOut = b.cost.Mul(qty).Div(b.qty)
	}
	pnl := net.Sub(costOut)
	l.cash = l.cash.Add(net)
	rest := held.Sub(qty)
	if rest.LessThanOrEqual(positionEpsilon) {
		delete(l.positions, symbol)
		delete(l.basis, symbol)
	} else {
		l.positions[symbol] = rest
		l.basis[symbol] = costBasis{qty: b.qty.Sub(qty), cost: b.cost.Sub(costOut)}
	}
	l.realized = l.realized.Add(pnl)
	l.trades++
	l.touched = true
	return pnl, true
}

// Charge 扣除非交易费用（隔夜融资），不超过现有现金，返回实际扣除额。
func (l *Ledger) Charge(amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	if amount.GreaterThan(l.cash) {
		amount = l.cash
	}
	l.cash = l.cash.Sub(amount)
	l.touched = true
	return amount
}
