// Package intent 定义回测动作（封闭的求和类型）以及把自由文本解析为动作的规则级联。
package intent

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Kind 是动作的类型标签，同时用于 JSON 编码。
type Kind string

const (
	KindSetCapital       Kind = "set_capital"
	KindBuy              Kind = "buy"
	KindSell             Kind = "sell"
	KindAllocate         Kind = "allocate"
	KindSchedule         Kind = "schedule"
	KindRule             Kind = "rule"
	KindLiquidate        Kind = "liquidate"
	KindSetDateRange     Kind = "set_dates"
	KindSetRelativeDates Kind = "set_relative_dates"
	KindNoOp             Kind = "noop"
)

// Action 是引擎消费的动作。实现集合封闭在本包内，创建后不可变。
type Action interface {
	Kind() Kind
	// TriggerAt 返回触发时间（毫秒），0 表示首个 tick 即执行。
	TriggerAt() int64
	sealed()
}

// Trigger 携带可选的显式触发时间。
type Trigger struct {
	At int64 `json:"-"`
}

func (t Trigger) TriggerAt() int64 { return t.At }
func (Trigger) sealed()            {}

type SetCapital struct {
	Trigger
	Value float64 `json:"value"`
}

// Buy 三选一：Qty、Notional 或 All。
type Buy struct {
	Trigger
	Symbol   string  `json:"symbol"`
	Qty      float64 `json:"qty,omitempty"`
	Notional float64 `json:"notional,omitempty"`
	All      bool    `json:"all,omitempty"`
}

type Sell struct {
	Trigger
	Symbol   string  `json:"symbol"`
	Qty      float64 `json:"qty,omitempty"`
	Notional float64 `json:"notional,omitempty"`
	All      bool    `json:"all,omitempty"`
}

// Allocate 设置目标权重后再平衡。Symbol 为空表示仅按现有目标再平衡。
type Allocate struct {
	Trigger
	Symbol string  `json:"symbol,omitempty"`
	Weight float64 `json:"weight,omitempty"`
}

// Rebalancing 报告是否为纯再平衡。
func (a Allocate) Rebalancing() bool { return a.Symbol == "" }

type RuleName string

const (
	RuleMovingAverage RuleName = "ma"
	RuleTrailingStop  RuleName = "trailing_stop"
)

type Rule struct {
	Trigger
	Name      RuleName `json:"rule"`
	Period    int      `json:"period,omitempty"`
	Threshold float64  `json:"threshold,omitempty"`
}

// Label 返回规则的可读标签，例如 ma50。
func (r Rule) Label() string {
	if r.Name == RuleMovingAverage {
		return fmt.Sprintf("ma%d", r.Period)
	}
	return string(r.Name)
}

type Liquidate struct {
	Trigger
}

// SetDateRange 使用 YYYY-MM-DD 表示的闭区间。
type SetDateRange struct {
	Trigger
	Start    string `json:"start"`
	End      string `json:"end"`
	Interval string `json:"interval,omitempty"`
}

// Range 返回以美股常规交易时段为界的 UTC 时间范围。
func (d SetDateRange) Range() (time.Time, time.Time) {
	start, _ := time.Parse(dateLayout, d.Start)
	end, _ := time.Parse(dateLayout, d.End)
	return start.Add(9*time.Hour + 30*time.Minute), end.Add(21 * time.Hour)
}

type SetRelativeDateRange struct {
	Trigger
	Amount   int    `json:"amount"`
	Unit     string `json:"unit"`
	Interval string `json:"interval,omitempty"`
}

// Range 返回 [now-amount*unit, now]。
func (d SetRelativeDateRange) Range(now time.Time) (time.Time, time.Time) {
	end := now.UTC()
	switch d.Unit {
	case "day":
		return end.AddDate(0, 0, -d.Amount), end
	case "week":
		return end.AddDate(0, 0, -7*d.Amount), end
	case "month":
		return end.AddDate(0, -d.Amount, 0), end
	default:
		return end.AddDate(-d.Amount, 0, 0), end
	}
}

// NoOp 原样携带无法识别的文本。
type NoOp struct {
	Trigger
	Text string `json:"message"`
}

func (SetCapital) Kind() Kind           { return KindSetCapital }
func (Buy) Kind() Kind                  { return KindBuy }
func (Sell) Kind() Kind                 { return KindSell }
func (Allocate) Kind() Kind             { return KindAllocate }
func (Schedule) Kind() Kind             { return KindSchedule }
func (Rule) Kind() Kind                 { return KindRule }
func (Liquidate) Kind() Kind            { return KindLiquidate }
func (SetDateRange) Kind() Kind         { return KindSetDateRange }
func (SetRelativeDateRange) Kind() Kind { return KindSetRelativeDates }
func (NoOp) Kind() Kind                 { return KindNoOp }

const dateLayout = "2006-01-02"

// Symbol 返回动作关联的符号（没有则为空）。
func Symbol(a Action) string {
	switch v := a.(type) {
	case Buy:
		return v.Symbol
	case Sell:
		return v.Symbol
	case Allocate:
		return v.Symbol
	case Schedule:
		return v.Symbol
	}
	return ""
}

// WithTrigger 返回设置了触发时间的副本。
func WithTrigger(a Action, at int64) Action {
	t := Trigger{At: at}
	switch v := a.(type) {
	case SetCapital:
		v.Trigger = t
		return v
	case Buy:
		v.Trigger = t
		return v
	case Sell:
		v.Trigger = t
		return v
	case Allocate:
		v.Trigger = t
		return v
	case Schedule:
		v.Trigger = t
		return v
	case Rule:
		v.Trigger = t
		return v
	case Liquidate:
		v.Trigger = t
		return v
	case SetDateRange:
		v.Trigger = t
		return v
	case SetRelativeDateRange:
		v.Trigger = t
		return v
	case NoOp:
		v.Trigger = t
		return v
	}
	return a
}

func NewSetCapital(value float64) (SetCapital, error) {
	if !finitePositive(value) {
		return SetCapital{}, fmt.Errorf("capital 必须为正数: %v", value)
	}
	return SetCapital{Value: value}, nil
}

func NewBuy(symbol string, qty, notional float64, all bool) (Buy, error) {
	sym, err := checkOrder(symbol, qty, notional, all)
	if err != nil {
		return Buy{}, err
	}
	return Buy{Symbol: sym, Qty: qty, Notional: notional, All: all}, nil
}

func NewSell(symbol string, qty, notional float64, all bool) (Sell, error) {
	sym, err := checkOrder(symbol, qty, notional, all)
	if err != nil {
		return Sell{}, err
	}
	return Sell{Symbol: sym, Qty: qty, Notional: notional, All: all}, nil
}

func checkOrder(symbol string, qty, notional float64, all bool) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return "", fmt.Errorf("symbol 不能为空")
	}
	if qty < 0 || notional < 0 || math.IsNaN(qty) || math.IsNaN(notional) || math.IsInf(qty, 0) || math.IsInf(notional, 0) {
		return "", fmt.Errorf("%s 数量/金额非法", sym)
	}
	if !all && qty == 0 && notional == 0 {
		return "", fmt.Errorf("%s 需要 qty、notional 或 all", sym)
	}
	return sym, nil
}

// NewAllocate 创建目标权重动作，symbol 为空时为纯再平衡。
func NewAllocate(symbol string, weight float64) (Allocate, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return Allocate{}, nil
	}
	if math.IsNaN(weight) || weight < 0 || weight > 1 {
		return Allocate{}, fmt.Errorf("%s 权重需在 [0,1] 内: %v", sym, weight)
	}
	return Allocate{Symbol: sym, Weight: weight}, nil
}

func NewMovingAverageRule(period int) (Rule, error) {
	if period < 2 || period > 500 {
		return Rule{}, fmt.Errorf("均线周期超出范围: %d", period)
	}
	return Rule{Name: RuleMovingAverage, Period: period}, nil
}

func NewTrailingStopRule(threshold float64) (Rule, error) {
	if !finitePositive(threshold) || threshold >= 1 {
		return Rule{}, fmt.Errorf("止损比例需在 (0,1) 内: %v", threshold)
	}
	return Rule{Name: RuleTrailingStop, Threshold: threshold}, nil
}

func NewDateRange(start, end, interval string) (SetDateRange, error) {
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return SetDateRange{}, fmt.Errorf("开始日期格式错误: %w", err)
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil {
		return SetDateRange{}, fmt.Errorf("结束日期格式错误: %w", err)
	}
	if e.Before(s) {
		return SetDateRange{}, fmt.Errorf("结束日期早于开始日期: %s < %s", end, start)
	}
	return SetDateRange{Start: start, End: end, Interval: strings.ToLower(strings.TrimSpace(interval))}, nil
}

func NewRelativeDateRange(amount int, unit, interval string) (SetRelativeDateRange, error) {
	u := normalizeUnit(unit)
	switch u {
	case "day", "week", "month", "year":
	default:
		return SetRelativeDateRange{}, fmt.Errorf("不支持的时间单位: %s", unit)
	}
	if amount <= 0 {
		return SetRelativeDateRange{}, fmt.Errorf("时间跨度必须为正: %d", amount)
	}
	return SetRelativeDateRange{Amount: amount, Unit: u, Interval: strings.ToLower(strings.TrimSpace(interval))}, nil
}

func normalizeUnit(unit string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(unit)), "s")
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
