package backtest

import (
	"fmt"
	"sort"
	"strings"

	"chattrack/internal/intent"

	"github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"
)

// applyRule 只记录规则；均线规则附带持仓/目标符号当前的 SMA。
func (r *run) applyRule(rule intent.Rule, ts int64) {
	switch rule.Name {
	case intent.RuleTrailingStop:
		r.note(fmt.Sprintf("Rule applied: trailing_stop %s%%", decimal.NewFromFloat(rule.Threshold*100).Round(2)))
	case intent.RuleMovingAverage:
		parts := []string{"Rule applied: " + rule.Label()}
		for _, sym := range r.ruleSymbols() {
			closes := r.idx.Closes(sym, ts)
			if len(closes) < rule.Period {
				continue
			}
			sma := talib.Sma(closes, rule.Period)
			parts = append(parts, fmt.Sprintf("%s sma%d=%s", sym, rule.Period, decimal.NewFromFloat(sma[len(sma)-1]).Round(4)))
		}
		r.note(strings.Join(parts, "; "))
	default:
		r.note("Rule applied: " + string(rule.Name))
	}
}

func (r *run) ruleSymbols() []string {
	seen := make(map[string]bool)
	for _, s := range r.ledger.Symbols() {
		seen[s] = true
	}
	for s := range r.targets {
		seen[s] = true
	}
	if len(seen) == 0 {
		for _, s := range r.idx.Symbols() {
			seen[s] = true
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
