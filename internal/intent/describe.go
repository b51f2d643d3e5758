package intent

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Describe 生成面向用户的确认语（英文，与聊天界面一致）。
func Describe(a Action) string {
	switch v := a.(type) {
	case SetCapital:
		return fmt.Sprintf("Starting capital set to $%s.", money(v.Value))
	case Buy:
		switch {
		case v.All:
			return fmt.Sprintf("Buying full allocation of %s.", v.Symbol)
		case v.Notional > 0:
			return fmt.Sprintf("Queued buy of $%s of %s.", money(v.Notional), v.Symbol)
		}
		return fmt.Sprintf("Queued buy of %s %s.", qty(v.Qty), v.Symbol)
	case Sell:
		switch {
		case v.All:
			return fmt.Sprintf("Selling all holdings of %s.", v.Symbol)
		case v.Notional > 0:
			return fmt.Sprintf("Queued sell of $%s of %s.", money(v.Notional), v.Symbol)
		}
		return fmt.Sprintf("Queued sell of %s %s.", qty(v.Qty), v.Symbol)
	case Allocate:
		if v.Rebalancing() {
			return "Rebalancing to current target weights."
		}
		return fmt.Sprintf("Targeting %s%% allocation to %s.", decimal.NewFromFloat(v.Weight*100).Round(2).String(), v.Symbol)
	case Schedule:
		return describeSchedule(v)
	case Rule:
		if v.Name == RuleTrailingStop {
			return fmt.Sprintf("Applying rule: trailing stop %s%%.", decimal.NewFromFloat(v.Threshold*100).Round(2).String())
		}
		return fmt.Sprintf("Applying rule: %s.", v.Label())
	case Liquidate:
		return "Liquidating all positions."
	case SetDateRange:
		return fmt.Sprintf("Backtesting from %s to %s.", v.Start, v.End)
	case SetRelativeDateRange:
		unit := v.Unit
		if v.Amount > 1 {
			unit += "s"
		}
		return fmt.Sprintf("Backtesting the last %d %s.", v.Amount, unit)
	case NoOp:
		return fmt.Sprintf("Echoing back: %s.", strings.TrimSpace(v.Text))
	}
	return "Instruction acknowledged."
}

func describeSchedule(s Schedule) string {
	target := s.Symbol
	if target == "" {
		target = "portfolio"
	}
	verb := string(s.Verb)
	if s.Random {
		verb = "buy or sell"
	}
	var b strings.Builder
	b.WriteString("Scheduled ")
	b.WriteString(verb)
	switch {
	case s.Notional > 0:
		fmt.Fprintf(&b, " $%s", money(s.Notional))
	case s.Qty > 0:
		fmt.Fprintf(&b, " %s", qty(s.Qty))
	case s.All:
		b.WriteString(" all")
	case s.Verb == VerbAllocate:
		fmt.Fprintf(&b, " %s%%", decimal.NewFromFloat(s.Weight*100).Round(2).String())
	}
	fmt.Fprintf(&b, " for %s %s", target, s.Cadence)
	if s.HoldFor > 0 {
		fmt.Fprintf(&b, ", exit after %s", s.HoldFor)
	} else if s.ExitAll {
		b.WriteString(", exit next day")
	}
	b.WriteString(".")
	return b.String()
}

func money(v float64) string {
	return decimal.NewFromFloat(v).Round(2).String()
}

func qty(v float64) string {
	return decimal.NewFromFloat(v).Round(8).String()
}
