// Package backtest 是确定性的逐 tick 组合模拟：把动作列表作用在多符号价格序列上，
// 输出权益曲线、回撤曲线和成交流水。单次运行不做 I/O、不启 goroutine。
package backtest

import (
	"fmt"
	"strings"
	"time"

	"chattrack/internal/intent"
	"chattrack/internal/market"

	"github.com/shopspring/decimal"
)

// Engine 持有成本参数；Run 之间不共享状态，可并发调用。
type Engine struct {
	costs Costs
}

func NewEngine(c Costs) *Engine {
	if c.BuyAllFraction <= 0 || c.BuyAllFraction > 1 {
		c.BuyAllFraction = DefaultCosts().BuyAllFraction
	}
	if c.RebalanceBand < 0 {
		c.RebalanceBand = 0
	}
	return &Engine{costs: c}
}

// Costs 返回引擎使用的成本参数。
func (e *Engine) Costs() Costs { return e.costs }

// run 是单次模拟的全部可变状态。
type run struct {
	costs   Costs
	idx     *market.Index
	ledger  *Ledger
	targets map[string]float64
	pending pendingQueue
	trades  []TradeEntry
	notes   []string
}

// Run 按时间线逐 tick 执行：隔夜融资 → 到期自动退出 → 一次性动作 → 定投 → 估值。
func (e *Engine) Run(req Request) Result {
	idx := req.Index
	if idx == nil {
		idx = market.NewIndex(req.Candles)
	}
	r := &run{
		costs:   e.costs,
		idx:     idx,
		ledger:  NewLedger(req.StartCash),
		targets: make(map[string]float64),
	}
	start := r.ledger.Cash()
	timeline := idx.Timeline()
	actions := normalizeActions(req.Actions)
	executed := make([]bool, len(actions))
	var recurring []*recurringEntry

	out := Result{
		Equity:    make([]Point, 0, len(timeline)),
		Positions: make([]PositionSnapshot, 0, len(timeline)),
	}
	prevDay := ""
	for i, ts := range timeline {
		day := time.UnixMilli(ts).UTC().Format("2006-01-02")
		if i > 0 && day != prevDay {
			r.financing(ts)
		}
		prevDay = day

		r.firePending(ts)

		for j, act := range actions {
			if executed[j] || act.TriggerAt() > ts {
				continue
			}
			executed[j] = true
			if s, ok := act.(intent.Schedule); ok {
				recurring = append(recurring, &recurringEntry{schedule: s})
				r.note(scheduleNote(s))
				continue
			}
			r.apply(act, ts)
		}

		for _, entry := range recurring {
			r.fireRecurring(entry, ts)
		}

		out.Equity = append(out.Equity, Point{T: ts, Value: r.equity(ts)})
		out.Positions = append(out.Positions, PositionSnapshot{T: ts, Positions: r.ledger.Positions()})
	}

	out.Drawdown = Drawdown(out.Equity)
	out.TradesCount = r.ledger.Trades()
	out.Notes = r.notes
	if out.Notes == nil {
		out.Notes = []string{}
	}
	out.Trades = r.trades
	if out.Trades == nil {
		out.Trades = []TradeEntry{}
	}
	out.RealizedPnL = r.ledger.Realized()
	out.StartCash = start
	out.FinalCash = r.ledger.Cash()
	return out
}

// normalizeActions 统一符号大小写，不修改调用方的切片。
func normalizeActions(in []intent.Action) []intent.Action {
	out := make([]intent.Action, 0, len(in))
	for _, a := range in {
		if a == nil {
			continue
		}
		switch v := a.(type) {
		case intent.Buy:
			v.Symbol = strings.ToUpper(strings.TrimSpace(v.Symbol))
			a = v
		case intent.Sell:
			v.Symbol = strings.ToUpper(strings.TrimSpace(v.Symbol))
			a = v
		case intent.Allocate:
			v.Symbol = strings.ToUpper(strings.TrimSpace(v.Symbol))
			a = v
		case intent.Schedule:
			v.Symbol = strings.ToUpper(strings.TrimSpace(v.Symbol))
			a = v
		}
		out = append(out, a)
	}
	return out
}

// apply 执行一次性动作。
func (r *run) apply(act intent.Action, ts int64) {
	switch v := act.(type) {
	case intent.SetCapital:
		if r.ledger.ResetCash(v.Value) {
			r.note(fmt.Sprintf("Starting capital set to %s", money(v.Value)))
		} else {
			r.note("Capital change ignored: ledger already in use")
		}
	case intent.Buy:
		r.buy(ts, v.Symbol, v.Qty, v.Notional, v.All, "")
	case intent.Sell:
		r.sell(ts, v.Symbol, v.Qty, v.Notional, v.All, "")
	case intent.Allocate:
		if !v.Rebalancing() {
			r.targets[v.Symbol] = v.Weight
		}
		r.rebalance(ts)
	case intent.Rule:
		r.applyRule(v, ts)
	case intent.Liquidate:
		r.liquidate(ts)
	case intent.SetDateRange, intent.SetRelativeDateRange, intent.NoOp:
	}
}

// financing 按当前总敞口扣除隔夜费用，记录一条 roll 流水（不计入成交次数）。
func (r *run) financing(ts int64) {
	if r.costs.OvernightRate <= 0 {
		return
	}
	exposure := 0.0
	for _, sym := range r.ledger.Symbols() {
		price, ok := r.idx.PriceAt(sym, ts)
		if !ok {
			continue
		}
		exposure += r.ledger.Qty(sym) * price
	}
	if exposure <= 0 {
		return
	}
	want := decimal.NewFromFloat(exposure * r.costs.OvernightRate)
	charged := r.ledger.Charge(want)
	if charged.LessThan(want) {
		r.note(fmt.Sprintf("Financing shortfall %s at %s", money(want.Sub(charged).InexactFloat64()), stamp(ts)))
	}
	if !charged.IsPositive() {
		return
	}
	c := charged.InexactFloat64()
	r.trades = append(r.trades, TradeEntry{
		T:         ts,
		Side:      SideRoll,
		Notional:  exposure,
		PnL:       -c,
		CashAfter: r.ledger.Cash(),
		Note:      "Overnight financing",
	})
}

// equity = 现金 + Σ 持仓 × 当时价格。
func (r *run) equity(ts int64) float64 {
	total := r.ledger.Cash()
	for _, sym := range r.ledger.Symbols() {
		price, ok := r.idx.PriceAt(sym, ts)
		if !ok {
			continue
		}
		total += r.ledger.Qty(sym) * price
	}
	return total
}

func (r *run) note(s string) {
	r.notes = append(r.notes, s)
}

func money(v float64) string {
	return "$" + decimal.NewFromFloat(v).Round(2).String()
}

func stamp(ts int64) string {
	return time.UnixMilli(ts).UTC().Format(time.RFC3339)
}
