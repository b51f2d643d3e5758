package intent

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	numPat    = `(\d[\d,]*(?:\.\d+)?)`
	suffixPat = `(k|mm|m|million|thousand|bn|b)?`
	tokenPat  = `([a-z0-9&.\-'’]+)`
)

var (
	cadenceRe  = regexp.MustCompile(`\bevery\s+(?:single\s+)?(day|week|month|(?:mon|tues|wednes|thurs|fri|satur|sun)days?)\b|\b(daily|weekly|monthly)\b|\b((?:mon|tues|wednes|thurs|fri|satur|sun)days)\b`)
	followUpRe = regexp.MustCompile(`(?:,|\band\b|\bthen\b)\s*(?:then\s+)?(sell|exit|close|liquidate)\b(?:\s+(all|everything|it|them|positions?))?(.*)$`)
	holdRe     = regexp.MustCompile(`\b(?:after|in|for)\s+(\d+)\s*(minutes?|mins?|hours?|hrs?|days?|weeks?)\b`)
	holdForRe  = regexp.MustCompile(`\bhold(?:ing)?\s+(?:it\s+|them\s+)?(?:for\s+)?(\d+)\s*(minutes?|mins?|hours?|hrs?|days?|weeks?)\b`)
	randomRe   = regexp.MustCompile(`\brandom(?:ly)?\b|\bbuy\s+or\s+sell\b|\bsell\s+or\s+buy\b`)
	randomSym  = regexp.MustCompile(`\b(?:buy\s+or\s+sell|sell\s+or\s+buy|trade|buy|sell)\s+(?:(\d+(?:\.\d+)?)\s+)?(?:shares?\s+(?:of\s+)?)?` + tokenPat)
	rebalRe    = regexp.MustCompile(`\brebalanc(?:e|ing)\b`)

	capitalRe = regexp.MustCompile(`\b(?:start(?:ing)?\s+(?:with|capital(?:\s+of)?)|set\s+(?:my\s+)?capital(?:\s+to)?|capital(?:\s+(?:of|to|is|at))?|begin\s+with)\s*[:=]?\s*\$?\s*` + numPat + `\s*` + suffixPat + `\b`)

	liquidateRe = regexp.MustCompile(`^(?:please\s+)?(?:liquidate(?:\s+(?:all|everything|positions|all\s+positions|(?:the|my)\s+portfolio))?|sell\s+(?:everything|all|all\s+positions|all\s+holdings)|close\s+(?:all|everything)(?:\s+positions)?|exit\s+(?:all|everything)(?:\s+positions)?|go\s+(?:to\s+)?cash|flatten)(?:\s+now)?(?:\s+on\s+\d{4}-\d{2}-\d{2})?\s*[.!]*$`)

	allRe      = regexp.MustCompile(`\b(buy|sell)\s+(?:all|everything)\s+(?:of\s+)?(?:my\s+)?(?:the\s+)?` + tokenPat)
	qtyRe      = regexp.MustCompile(`\b(buy|sell)\s+(\d+(?:\.\d+)?)(?:\s*(?:shares?|units?|coins?)\b)?\s+(?:of\s+)?` + tokenPat)
	notionalRe = regexp.MustCompile(`(?:\b(buy|sell|invest|put)\s+)?\$\s*` + numPat + `\s*` + suffixPat + `\s+(?:worth\s+)?(?:of|into|in)\s+` + tokenPat)
	// amountRe 是不带 $ 但带金额后缀的名义金额写法，如 "buy 50k of spy"。
	amountRe   = regexp.MustCompile(`\b(buy|sell)\s+` + numPat + `\s*(k|mm|million|m|thousand|bn|b)\s+(?:worth\s+)?(?:of|into|in)\s+` + tokenPat)
	plainRe    = regexp.MustCompile(`\b(buy|sell)\s+(?:some\s+)?` + tokenPat)

	allocRe     = regexp.MustCompile(`\b(?:allocate|weight|put|target)\s+(\d+(?:\.\d+)?)\s*%\s*(?:of\s+(?:my\s+)?(?:portfolio|capital)\s+)?(?:to|into|in|on)?\s*` + tokenPat)
	bareRebalRe = regexp.MustCompile(`^(?:please\s+)?rebalance(?:\s+(?:now|the\s+portfolio|my\s+portfolio|portfolio))?(?:\s+on\s+\d{4}-\d{2}-\d{2})?\s*[.!]*$`)

	dateRangeRe = regexp.MustCompile(`\b(?:backtest|test|from|between)\s+(\d{4}-\d{2}-\d{2})\s*(?:to|-|until|through|and)\s*(\d{4}-\d{2}-\d{2})(?:.*?\b(\d+[mhdw])\b)?`)
	maRe        = regexp.MustCompile(`\bma\s*-?\s*(\d{1,3})\b|\b(\d{1,3})\s*-?\s*(?:day\s+|period\s+)?(?:moving\s+average|sma|ma)\b`)
	stopRe      = regexp.MustCompile(`\b(?:exit|sell|stop)\s+if\s+(?:the\s+)?(?:price\s+)?(?:drops?|falls?)\s*(?:by\s+)?(\d+(?:\.\d+)?)\s*%|\btrailing[\s-]*stop(?:\s+(?:of|at))?\s*(\d+(?:\.\d+)?)\s*%`)
	relativeRe  = regexp.MustCompile(`\b(?:past|last|previous|prior)\s+(\d+)?\s*(days?|weeks?|months?|years?)\b`)
	onDateRe    = regexp.MustCompile(`\bon\s+(\d{4}-\d{2}-\d{2})\b`)
)

// recurringRule 识别带周期的指令，例如 "buy SPY every friday"、"$100 into SPY every month"、
// "randomly buy or sell TSLA every day"、"buy 2 AAPL every monday and sell after 3 days"。
func recurringRule(m message) (Action, bool) {
	sub := cadenceRe.FindStringSubmatch(m.lower)
	if sub == nil {
		return nil, false
	}
	cadence, ok := ParseCadence(firstNonEmpty(sub[1], sub[2], sub[3]))
	if !ok {
		return nil, false
	}
	primary, follow := splitFollowUp(m.lower)
	s := Schedule{Cadence: cadence}
	if follow != nil {
		verb, scope, rest := follow[1], follow[2], follow[3]
		s.ExitAll = verb == "liquidate" || scope == "all" || scope == "everything" || scope == "positions" || scope == "position"
		if d, ok := parseHold(holdRe.FindStringSubmatch(rest)); ok {
			s.HoldFor = d
		}
	}
	if d, ok := parseHold(holdForRe.FindStringSubmatch(primary)); ok && s.HoldFor == 0 {
		s.HoldFor = d
	}

	switch {
	case randomRe.MatchString(primary):
		s.Verb = VerbBuy
		s.Random = true
		s.Seed = seedOf(m.raw)
		rs := randomSym.FindStringSubmatch(primary)
		if rs == nil {
			return m.fail()
		}
		sym, ok := m.resolve(rs[2])
		if !ok {
			return m.fail()
		}
		s.Symbol = sym
		if rs[1] != "" {
			s.Qty, _ = strconv.ParseFloat(rs[1], 64)
		}
	case allocRe.MatchString(primary):
		a := allocRe.FindStringSubmatch(primary)
		sym, ok := m.resolve(a[2])
		if !ok {
			return m.fail()
		}
		pct, _ := strconv.ParseFloat(a[1], 64)
		s.Verb, s.Symbol, s.Weight = VerbAllocate, sym, pct/100
	case notionalRe.MatchString(primary):
		n := notionalRe.FindStringSubmatch(primary)
		sym, ok := m.resolve(n[4])
		if !ok {
			return m.fail()
		}
		amt, ok := parseAmount(n[2], n[3])
		if !ok {
			return m.fail()
		}
		s.Verb, s.Symbol, s.Notional = VerbBuy, sym, amt
		if n[1] == "sell" {
			s.Verb = VerbSell
		}
	case qtyRe.MatchString(primary):
		q := qtyRe.FindStringSubmatch(primary)
		sym, ok := m.resolve(q[3])
		if !ok {
			return m.fail()
		}
		s.Verb, s.Symbol = Verb(q[1]), sym
		s.Qty, _ = strconv.ParseFloat(q[2], 64)
	case allRe.MatchString(primary):
		a := allRe.FindStringSubmatch(primary)
		sym, ok := m.resolve(a[2])
		if !ok {
			return m.fail()
		}
		s.Verb, s.Symbol, s.All = Verb(a[1]), sym, true
	case plainRe.MatchString(primary):
		p := plainRe.FindStringSubmatch(primary)
		sym, ok := m.resolve(p[2])
		if !ok {
			return m.fail()
		}
		s.Verb, s.Symbol = Verb(p[1]), sym
	case rebalRe.MatchString(primary):
		s.Verb = VerbRebalance
	default:
		return nil, false
	}
	out, err := NewSchedule(s)
	if err != nil {
		return m.fail()
	}
	return out, true
}

// splitFollowUp 拆出 "and sell after 3 days" 之类的后续退出子句。
func splitFollowUp(lower string) (string, []string) {
	loc := followUpRe.FindStringIndex(lower)
	if loc == nil {
		return lower, nil
	}
	return lower[:loc[0]], followUpRe.FindStringSubmatch(lower)
}

func capitalRule(m message) (Action, bool) {
	sub := capitalRe.FindStringSubmatch(m.lower)
	if sub == nil {
		return nil, false
	}
	v, ok := parseAmount(sub[1], sub[2])
	if !ok {
		return m.fail()
	}
	act, err := NewSetCapital(v)
	if err != nil {
		return m.fail()
	}
	return act, true
}

func liquidateRule(m message) (Action, bool) {
	if !liquidateRe.MatchString(m.lower) {
		return nil, false
	}
	return WithTrigger(Liquidate{}, triggerDate(m.lower)), true
}

func tradeAllRule(m message) (Action, bool) {
	sub := allRe.FindStringSubmatch(m.lower)
	if sub == nil {
		return nil, false
	}
	sym, ok := m.resolve(sub[2])
	if !ok {
		return m.fail()
	}
	return order(m, sub[1], sym, 0, 0, true)
}

func tradeSizeRule(m message) (Action, bool) {
	if sub := amountRe.FindStringSubmatch(m.lower); sub != nil {
		sym, ok := m.resolve(sub[4])
		if !ok {
			return m.fail()
		}
		amt, ok := parseAmount(sub[2], sub[3])
		if !ok {
			return m.fail()
		}
		return order(m, sub[1], sym, 0, amt, false)
	}
	if sub := qtyRe.FindStringSubmatch(m.lower); sub != nil {
		sym, ok := m.resolve(sub[3])
		if !ok {
			return m.fail()
		}
		qty, err := strconv.ParseFloat(sub[2], 64)
		if err != nil {
			return m.fail()
		}
		return order(m, sub[1], sym, qty, 0, false)
	}
	if sub := notionalRe.FindStringSubmatch(m.lower); sub != nil {
		sym, ok := m.resolve(sub[4])
		if !ok {
			return m.fail()
		}
		amt, ok := parseAmount(sub[2], sub[3])
		if !ok {
			return m.fail()
		}
		verb := "buy"
		if sub[1] == "sell" {
			verb = "sell"
		}
		return order(m, verb, sym, 0, amt, false)
	}
	return nil, false
}

func order(m message, verb, sym string, qty, notional float64, all bool) (Action, bool) {
	at := triggerDate(m.lower)
	if verb == "sell" {
		s, err := NewSell(sym, qty, notional, all)
		if err != nil {
			return m.fail()
		}
		return WithTrigger(s, at), true
	}
	b, err := NewBuy(sym, qty, notional, all)
	if err != nil {
		return m.fail()
	}
	return WithTrigger(b, at), true
}

func allocateRule(m message) (Action, bool) {
	if bareRebalRe.MatchString(m.lower) {
		return WithTrigger(Allocate{}, triggerDate(m.lower)), true
	}
	sub := allocRe.FindStringSubmatch(m.lower)
	if sub == nil {
		return nil, false
	}
	sym, ok := m.resolve(sub[2])
	if !ok {
		return m.fail()
	}
	pct, err := strconv.ParseFloat(sub[1], 64)
	if err != nil {
		return m.fail()
	}
	a, err := NewAllocate(sym, pct/100)
	if err != nil {
		return m.fail()
	}
	return WithTrigger(a, triggerDate(m.lower)), true
}

func dateRangeRule(m message) (Action, bool) {
	sub := dateRangeRe.FindStringSubmatch(m.lower)
	if sub == nil {
		return nil, false
	}
	interval := sub[3]
	if interval == "" {
		interval = m.interval
	}
	d, err := NewDateRange(sub[1], sub[2], interval)
	if err != nil {
		return m.fail()
	}
	return d, true
}

func movingAverageRule(m message) (Action, bool) {
	sub := maRe.FindStringSubmatch(m.lower)
	if sub == nil {
		return nil, false
	}
	period, err := strconv.Atoi(firstNonEmpty(sub[1], sub[2]))
	if err != nil {
		return m.fail()
	}
	r, err := NewMovingAverageRule(period)
	if err != nil {
		return m.fail()
	}
	return r, true
}

func trailingStopRule(m message) (Action, bool) {
	sub := stopRe.FindStringSubmatch(m.lower)
	if sub == nil {
		return nil, false
	}
	pct, err := strconv.ParseFloat(firstNonEmpty(sub[1], sub[2]), 64)
	if err != nil {
		return m.fail()
	}
	r, err := NewTrailingStopRule(pct / 100)
	if err != nil {
		return m.fail()
	}
	return r, true
}

func relativeRangeRule(m message) (Action, bool) {
	sub := relativeRe.FindStringSubmatch(m.lower)
	if sub == nil {
		return nil, false
	}
	amount := 1
	if sub[1] != "" {
		n, err := strconv.Atoi(sub[1])
		if err != nil {
			return m.fail()
		}
		amount = n
	}
	r, err := NewRelativeDateRange(amount, sub[2], m.interval)
	if err != nil {
		return m.fail()
	}
	return r, true
}

// parseAmount 解析 "50", "1,000", "1.5" 加可选的 k/m/bn 后缀。
func parseAmount(num, suffix string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", ""), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	switch suffix {
	case "k", "thousand":
		v *= 1e3
	case "m", "mm", "million":
		v *= 1e6
	case "b", "bn":
		v *= 1e9
	}
	return v, true
}

func parseHold(sub []string) (time.Duration, bool) {
	if sub == nil {
		return 0, false
	}
	n, err := strconv.Atoi(sub[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	unit := sub[2]
	switch {
	case strings.HasPrefix(unit, "min"):
		return time.Duration(n) * time.Minute, true
	case strings.HasPrefix(unit, "h"):
		return time.Duration(n) * time.Hour, true
	case strings.HasPrefix(unit, "d"):
		return time.Duration(n) * 24 * time.Hour, true
	case strings.HasPrefix(unit, "w"):
		return time.Duration(n) * 7 * 24 * time.Hour, true
	}
	return 0, false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
