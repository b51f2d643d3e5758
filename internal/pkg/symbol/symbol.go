// Package symbol 区分美股代码与加密货币交易对，并在两者的交易所格式之间转换。
package symbol

import (
	"strings"
)

// DefaultQuotes 是识别加密交易对时使用的计价币。
var DefaultQuotes = []string{"USDT", "USDC", "BUSD"}

// Pair 是加密货币交易对。
type Pair struct {
	Base  string
	Quote string
}

// String 返回 BASE/QUOTE 形式。
func (p Pair) String() string {
	if p.Base == "" || p.Quote == "" {
		return ""
	}
	return p.Base + "/" + p.Quote
}

// Binance 返回 Binance REST 使用的无分隔符形式，如 BTCUSDT。
func (p Pair) Binance() string {
	if p.Base == "" || p.Quote == "" {
		return ""
	}
	return p.Base + p.Quote
}

// Clean 统一大小写并去掉空白。
func Clean(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Parse 识别 BTC/USDT、BTC-USDT、btcusdt 等写法；quotes 为空时使用 DefaultQuotes。
func Parse(s string, quotes []string) (Pair, bool) {
	s = Clean(s)
	if s == "" {
		return Pair{}, false
	}
	if len(quotes) == 0 {
		quotes = DefaultQuotes
	}
	for _, sep := range []string{"/", "-"} {
		if parts := strings.SplitN(s, sep, 2); len(parts) == 2 {
			base, quote := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
			if base != "" && hasQuote(quotes, quote) {
				return Pair{Base: base, Quote: quote}, true
			}
			return Pair{}, false
		}
	}
	for _, quote := range quotes {
		quote = Clean(quote)
		if quote != "" && strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Pair{Base: s[:len(s)-len(quote)], Quote: quote}, true
		}
	}
	return Pair{}, false
}

// IsCrypto 报告 s 是否为加密交易对。
func IsCrypto(s string, quotes []string) bool {
	_, ok := Parse(s, quotes)
	return ok
}

func hasQuote(quotes []string, q string) bool {
	for _, candidate := range quotes {
		if Clean(candidate) == q {
			return true
		}
	}
	return false
}
