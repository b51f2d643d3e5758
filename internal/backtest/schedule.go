package backtest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"chattrack/internal/intent"
)

// exitAllDefaultHold 是只有 "sell all"/"liquidate" 后续、没有持有期时的默认持有时长。
const exitAllDefaultHold = 24 * time.Hour

// recurringEntry 是一个已激活的定投及其去重状态。
type recurringEntry struct {
	schedule intent.Schedule
	lastKey  string
}

// pendingEvent 是延迟执行的自动退出。
type pendingEvent struct {
	fireAt int64
	sell   intent.Sell
	note   string
}

// pendingQueue 按 fireAt 升序，同一时间按登记顺序。
type pendingQueue []pendingEvent

func (q *pendingQueue) push(ev pendingEvent) {
	i := sort.Search(len(*q), func(i int) bool { return (*q)[i].fireAt > ev.fireAt })
	*q = append(*q, pendingEvent{})
	copy((*q)[i+1:], (*q)[i:])
	(*q)[i] = ev
}

// due 取出所有 fireAt <= ts 的事件。
func (q *pendingQueue) due(ts int64) []pendingEvent {
	n := sort.Search(len(*q), func(i int) bool { return (*q)[i].fireAt > ts })
	if n == 0 {
		return nil
	}
	out := append([]pendingEvent(nil), (*q)[:n]...)
	*q = (*q)[n:]
	return out
}

func (r *run) firePending(ts int64) {
	for _, ev := range r.pending.due(ts) {
		r.sell(ts, ev.sell.Symbol, ev.sell.Qty, 0, ev.sell.All, ev.note)
	}
}

// fireRecurring 在周期命中时执行定投；每个周期键最多一次，无论执行是否成交。
func (r *run) fireRecurring(e *recurringEntry, ts int64) {
	s := e.schedule
	key, ok := s.Cadence.PeriodKey(time.UnixMilli(ts))
	if !ok || key == e.lastKey {
		return
	}
	e.lastKey = key
	verb := s.DirectionFor(key)
	note := fmt.Sprintf("Scheduled %s (%s)", verb, s.Cadence)
	switch verb {
	case intent.VerbBuy:
		qty := s.Qty
		if !s.HasSize() {
			qty = 1
		}
		filled := r.buy(ts, s.Symbol, qty, s.Notional, s.All, note)
		if filled > 0 {
			r.scheduleExit(s, ts, filled)
		}
	case intent.VerbSell:
		r.sell(ts, s.Symbol, s.Qty, s.Notional, s.All || !s.HasSize(), note)
	case intent.VerbAllocate:
		r.targets[s.Symbol] = s.Weight
		r.rebalance(ts)
	case intent.VerbRebalance:
		r.rebalance(ts)
	}
}

// scheduleExit 登记持有期到期后的卖出：默认只释放本次成交数量，ExitAll 时平掉整个符号。
func (r *run) scheduleExit(s intent.Schedule, ts int64, filled float64) {
	hold := s.HoldFor
	if hold <= 0 {
		if !s.ExitAll {
			return
		}
		hold = exitAllDefaultHold
	}
	sell := intent.Sell{Symbol: s.Symbol, Qty: filled}
	if s.ExitAll {
		sell = intent.Sell{Symbol: s.Symbol, All: true}
	}
	r.pending.push(pendingEvent{
		fireAt: ts + hold.Milliseconds(),
		sell:   sell,
		note:   noteAutoExit,
	})
}

func scheduleNote(s intent.Schedule) string {
	return strings.Join(strings.Fields(fmt.Sprintf("Scheduled %s %s %s", s.Verb, s.Symbol, s.Cadence)), " ")
}
