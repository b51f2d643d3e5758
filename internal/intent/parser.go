package intent

import (
	"hash/fnv"
	"strings"
	"time"
)

// message 是单条待解析文本及其解析上下文。
type message struct {
	raw      string
	lower    string
	aliases  AliasTable
	interval string
}

// rule 是级联中的一条规则：命中返回 (动作, true)，否则交给下一条。
type rule func(m message) (Action, bool)

// 优先级从高到低。
var cascade = []rule{
	recurringRule,
	capitalRule,
	liquidateRule,
	tradeAllRule,
	tradeSizeRule,
	allocateRule,
	dateRangeRule,
	movingAverageRule,
	trailingStopRule,
	relativeRangeRule,
}

// Parser 把自由文本转换为动作。Parse 无状态，相同文本总是得到相同动作。
type Parser struct {
	aliases  func() AliasTable
	interval string
}

type Option func(*Parser)

// WithRegistry 使用可热更新的别名表，每次 Parse 取一次快照。
func WithRegistry(r *Registry) Option {
	return func(p *Parser) {
		if r != nil {
			p.aliases = r.Table
		}
	}
}

// WithAliases 使用固定的别名表。
func WithAliases(t AliasTable) Option {
	return func(p *Parser) {
		p.aliases = func() AliasTable { return t }
	}
}

// WithDefaultInterval 设置日期区间未指定周期时的默认值。
func WithDefaultInterval(interval string) Option {
	return func(p *Parser) {
		if iv := strings.ToLower(strings.TrimSpace(interval)); iv != "" {
			p.interval = iv
		}
	}
}

func NewParser(opts ...Option) *Parser {
	defaults := DefaultAliases()
	p := &Parser{
		aliases:  func() AliasTable { return defaults },
		interval: "1m",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse 返回第一条命中规则的动作；都不命中时返回携带原文的 NoOp。
func (p *Parser) Parse(text string) Action {
	m := message{
		raw:      text,
		lower:    strings.ToLower(strings.TrimSpace(text)),
		aliases:  p.aliases(),
		interval: p.interval,
	}
	if m.lower == "" {
		return NoOp{Text: text}
	}
	for _, r := range cascade {
		if act, ok := r(m); ok {
			return act
		}
	}
	return NoOp{Text: text}
}

// ParseAll 在 Parse 结果之外，若文本同时包含相对时间范围（如 past 3 weeks）且主动作不是日期类，
// 追加一个 SetRelativeDateRange。
func (p *Parser) ParseAll(text string) []Action {
	primary := p.Parse(text)
	out := []Action{primary}
	switch primary.Kind() {
	case KindSetDateRange, KindSetRelativeDates, KindNoOp:
		return out
	}
	m := message{raw: text, lower: strings.ToLower(text), aliases: p.aliases(), interval: p.interval}
	if rel, ok := relativeRangeRule(m); ok {
		out = append(out, rel)
	}
	return out
}

func (m message) resolve(token string) (string, bool) {
	return m.aliases.Resolve(token)
}

func (m message) fail() (Action, bool) {
	return NoOp{Text: m.raw}, true
}

// seedOf 是随机方向的种子：原文的 FNV-64a。
func seedOf(text string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return h.Sum64()
}

// triggerDate 解析 on YYYY-MM-DD 后缀，返回当日 00:00 UTC 的毫秒。
func triggerDate(lower string) int64 {
	sub := onDateRe.FindStringSubmatch(lower)
	if sub == nil {
		return 0
	}
	t, err := time.Parse(dateLayout, sub[1])
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}
