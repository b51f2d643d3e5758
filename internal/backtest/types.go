package backtest

import (
	"chattrack/internal/intent"
	"chattrack/internal/market"
)

// Side 是成交记录的方向。roll 表示隔夜融资扣费。
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
	SideRoll Side = "roll"
)

// Point 是权益或回撤曲线上的一个点。
type Point struct {
	T     int64   `json:"t"`
	Value float64 `json:"value"`
}

// TradeEntry 是只追加的成交流水。
type TradeEntry struct {
	T         int64   `json:"t"`
	Side      Side    `json:"side"`
	Symbol    string  `json:"symbol,omitempty"`
	Qty       float64 `json:"qty"`
	Price     float64 `json:"price"`
	Fee       float64 `json:"fee"`
	Notional  float64 `json:"notional"`
	PnL       float64 `json:"pnl"`
	CashAfter float64 `json:"cash_after"`
	Note      string  `json:"note,omitempty"`
}

// PositionSnapshot 是每个 tick 收盘后的持仓快照。
type PositionSnapshot struct {
	T         int64              `json:"t"`
	Positions map[string]float64 `json:"positions"`
}

// Costs 是撮合成本参数，所有符号共用。
type Costs struct {
	FeeRate        float64
	SpreadRate     float64
	OvernightRate  float64
	RebalanceBand  float64
	BuyAllFraction float64
}

// DefaultCosts 返回默认费率：手续费 5bp、点差 2bp、隔夜 1bp、再平衡死区 0.5%、全仓买入 99%。
func DefaultCosts() Costs {
	return Costs{
		FeeRate:        0.0005,
		SpreadRate:     0.0002,
		OvernightRate:  0.0001,
		RebalanceBand:  0.005,
		BuyAllFraction: 0.99,
	}
}

// Request 是一次回测的输入。Index 为空时由 Candles 构建。
type Request struct {
	Candles   map[string][]market.Candle
	Index     *market.Index
	Actions   []intent.Action
	StartCash float64
}

// Result 是一次回测的完整输出。
type Result struct {
	Equity      []Point            `json:"equity"`
	Drawdown    []Point            `json:"drawdown"`
	Positions   []PositionSnapshot `json:"positions"`
	TradesCount int                `json:"trades_count"`
	Notes       []string           `json:"notes"`
	Trades      []TradeEntry       `json:"trades"`
	RealizedPnL float64            `json:"realized_pnl"`
	StartCash   float64            `json:"start_cash"`
	FinalCash   float64            `json:"final_cash"`
}
