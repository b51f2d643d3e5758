package intent

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"
)

// Verb 是定投动作执行的底层操作。
type Verb string

const (
	VerbBuy       Verb = "buy"
	VerbSell      Verb = "sell"
	VerbAllocate  Verb = "allocate"
	VerbRebalance Verb = "rebalance"
)

// Cadence 是重复规则：daily/weekly/monthly 或具体星期几。
type Cadence string

const (
	Daily   Cadence = "daily"
	Weekly  Cadence = "weekly"
	Monthly Cadence = "monthly"
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseCadence 接受 daily/day、weekly/week、monthly/month 以及星期名称（可带复数 s）。
func ParseCadence(token string) (Cadence, bool) {
	t := strings.ToLower(strings.TrimSpace(token))
	switch t {
	case "daily", "day", "days":
		return Daily, true
	case "weekly", "week", "weeks":
		return Weekly, true
	case "monthly", "month", "months":
		return Monthly, true
	}
	t = strings.TrimSuffix(t, "s")
	if _, ok := weekdays[t]; ok {
		return Cadence(t), true
	}
	return "", false
}

// PeriodKey 返回 t 所在周期的去重键；星期类规则在非当天时返回 false。
// 日键 2006-01-02，月键 2006-01，周键为 ISO 周 2006-W01。
func (c Cadence) PeriodKey(t time.Time) (string, bool) {
	t = t.UTC()
	switch c {
	case Daily:
		return t.Format(dateLayout), true
	case Weekly:
		return isoWeekKey(t), true
	case Monthly:
		return t.Format("2006-01"), true
	}
	day, ok := weekdays[string(c)]
	if !ok || t.Weekday() != day {
		return "", false
	}
	return isoWeekKey(t), true
}

func isoWeekKey(t time.Time) string {
	y, w := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", y, w)
}

// Schedule 是按周期重复执行的动作。
type Schedule struct {
	Trigger
	Verb     Verb
	Symbol   string
	Cadence  Cadence
	Qty      float64
	Notional float64
	All      bool
	Weight   float64
	// Random 为真时每个周期按 Seed 与周期键确定买或卖。
	Random bool
	Seed   uint64
	// HoldFor 大于 0 时成交后登记一个延迟卖出。
	HoldFor time.Duration
	// ExitAll 到期时平掉整个持仓而不是仅本次买入数量。
	ExitAll bool
}

// NewSchedule 校验并规范化定投动作。
func NewSchedule(s Schedule) (Schedule, error) {
	s.Symbol = strings.ToUpper(strings.TrimSpace(s.Symbol))
	c, ok := ParseCadence(string(s.Cadence))
	if !ok {
		return Schedule{}, fmt.Errorf("不支持的周期: %q", s.Cadence)
	}
	s.Cadence = c
	switch s.Verb {
	case VerbBuy, VerbSell:
		if s.Symbol == "" {
			return Schedule{}, fmt.Errorf("定投 %s 需要 symbol", s.Verb)
		}
	case VerbAllocate:
		if s.Symbol == "" {
			return Schedule{}, fmt.Errorf("定投 allocate 需要 symbol")
		}
		if math.IsNaN(s.Weight) || s.Weight < 0 || s.Weight > 1 {
			return Schedule{}, fmt.Errorf("权重需在 [0,1] 内: %v", s.Weight)
		}
	case VerbRebalance:
	default:
		return Schedule{}, fmt.Errorf("不支持的定投动作: %q", s.Verb)
	}
	if s.Qty < 0 || s.Notional < 0 || s.HoldFor < 0 {
		return Schedule{}, fmt.Errorf("定投参数不能为负")
	}
	if s.Random && s.Verb != VerbBuy && s.Verb != VerbSell {
		return Schedule{}, fmt.Errorf("随机方向只支持买卖")
	}
	return s, nil
}

// DirectionFor 返回给定周期的实际方向，随机方向由种子与周期键哈希决定，可重放。
func (s Schedule) DirectionFor(periodKey string) Verb {
	if !s.Random {
		return s.Verb
	}
	h := fnv.New64a()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], s.Seed)
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte(periodKey))
	if h.Sum64()%2 == 0 {
		return VerbBuy
	}
	return VerbSell
}

// HasSize 报告是否显式给出了数量、金额或 all。
func (s Schedule) HasSize() bool {
	return s.Qty > 0 || s.Notional > 0 || s.All
}

type schedulePayload struct {
	Verb       Verb    `json:"action"`
	Symbol     string  `json:"symbol,omitempty"`
	Cadence    Cadence `json:"cadence"`
	Qty        float64 `json:"qty,omitempty"`
	Notional   float64 `json:"notional,omitempty"`
	All        bool    `json:"all,omitempty"`
	Weight     float64 `json:"weight,omitempty"`
	Random     bool    `json:"random,omitempty"`
	Seed       uint64  `json:"seed,omitempty"`
	HoldForSec int64   `json:"hold_for_sec,omitempty"`
	ExitAll    bool    `json:"exit_all,omitempty"`
}

func (s Schedule) MarshalJSON() ([]byte, error) {
	return json.Marshal(schedulePayload{
		Verb: s.Verb, Symbol: s.Symbol, Cadence: s.Cadence,
		Qty: s.Qty, Notional: s.Notional, All: s.All, Weight: s.Weight,
		Random: s.Random, Seed: s.Seed,
		HoldForSec: int64(s.HoldFor / time.Second), ExitAll: s.ExitAll,
	})
}

func (s *Schedule) UnmarshalJSON(data []byte) error {
	var p schedulePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Schedule{
		Trigger: s.Trigger,
		Verb:    p.Verb, Symbol: p.Symbol, Cadence: p.Cadence,
		Qty: p.Qty, Notional: p.Notional, All: p.All, Weight: p.Weight,
		Random: p.Random, Seed: p.Seed,
		HoldFor: time.Duration(p.HoldForSec) * time.Second, ExitAll: p.ExitAll,
	}
	return nil
}
