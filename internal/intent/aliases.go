package intent

import (
	"regexp"
	"strings"
)

// AliasTable 把公司名、指数、加密货币昵称映射到 ticker，构造后只读。
type AliasTable struct {
	names map[string]string
}

var defaultAliases = map[string]string{
	"apple":      "AAPL",
	"microsoft":  "MSFT",
	"tesla":      "TSLA",
	"amazon":     "AMZN",
	"google":     "GOOGL",
	"alphabet":   "GOOGL",
	"meta":       "META",
	"facebook":   "META",
	"nvidia":     "NVDA",
	"netflix":    "NFLX",
	"s&p":        "SPY",
	"s&p500":     "SPY",
	"sp500":      "SPY",
	"spx":        "SPY",
	"nasdaq":     "QQQ",
	"dow":        "DIA",
	"russell":    "IWM",
	"gold":       "GLD",
	"bonds":      "TLT",
	"treasuries": "TLT",
	"bitcoin":    "BTCUSDT",
	"btc":        "BTCUSDT",
	"ethereum":   "ETHUSDT",
	"ether":      "ETHUSDT",
	"eth":        "ETHUSDT",
	"solana":     "SOLUSDT",
	"sol":        "SOLUSDT",
	"dogecoin":   "DOGEUSDT",
	"doge":       "DOGEUSDT",
}

// 形似 ticker 但不能当作符号的常见词。
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "all": true, "of": true, "my": true,
	"some": true, "more": true, "it": true, "to": true, "into": true, "in": true,
	"and": true, "or": true, "then": true, "every": true, "each": true, "on": true,
	"at": true, "for": true, "me": true, "now": true, "after": true, "share": true,
	"units": true, "stock": true, "worth": true, "with": true, "half": true, "x": true,
	"buy": true, "sell": true, "hold": true, "cash": true, "day": true, "week": true, "month": true,
}

var (
	tickerShape = regexp.MustCompile(`^[a-z]{1,5}$`)
	cryptoShape = regexp.MustCompile(`^[a-z0-9]{2,12}(usdt|usdc|busd)$`)
)

// DefaultAliases 返回内置别名表。
func DefaultAliases() AliasTable {
	return NewAliasTable(nil)
}

// NewAliasTable 在内置表之上叠加 extra（extra 优先）。
func NewAliasTable(extra map[string]string) AliasTable {
	names := make(map[string]string, len(defaultAliases)+len(extra))
	for k, v := range defaultAliases {
		names[k] = v
	}
	for k, v := range extra {
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.ToUpper(strings.TrimSpace(v))
		if k == "" || v == "" {
			continue
		}
		names[k] = v
	}
	return AliasTable{names: names}
}

// Len 返回别名数量。
func (t AliasTable) Len() int { return len(t.names) }

// Resolve 解析单个词：先查别名，再接受 ticker 形态（1–5 个字母且不是停用词）或 XXXUSDT 形态。
func (t AliasTable) Resolve(token string) (string, bool) {
	tok := cleanToken(token)
	if tok == "" {
		return "", false
	}
	if sym, ok := t.names[tok]; ok {
		return sym, true
	}
	if cryptoShape.MatchString(tok) {
		return strings.ToUpper(tok), true
	}
	if tickerShape.MatchString(tok) && !stopWords[tok] {
		return strings.ToUpper(tok), true
	}
	return "", false
}

func cleanToken(token string) string {
	tok := strings.ToLower(strings.TrimSpace(token))
	tok = strings.TrimSuffix(tok, "'s")
	tok = strings.TrimSuffix(tok, "’s")
	tok = strings.Trim(tok, ".,!?;:\"'()$")
	return tok
}
