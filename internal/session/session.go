package session

import (
	"time"

	"chattrack/internal/backtest"
	"chattrack/internal/intent"
	"chattrack/internal/market"
	"chattrack/internal/metrics"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 是会话中的一条聊天记录。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	T       int64  `json:"t"`
}

// Snapshot 是会话状态的只读副本。
type Snapshot struct {
	ID           string            `json:"id"`
	Capital      float64           `json:"capital"`
	ActiveSymbol string            `json:"active_symbol"`
	Symbols      []string          `json:"symbols"`
	Start        time.Time         `json:"start"`
	End          time.Time         `json:"end"`
	Interval     string            `json:"interval"`
	Actions      intent.List       `json:"actions"`
	Messages     []Message         `json:"messages"`
	RunID        string            `json:"run_id,omitempty"`
	Result       *backtest.Result  `json:"result,omitempty"`
	Metrics      *metrics.Summary  `json:"metrics,omitempty"`
	Benchmark    []backtest.Point  `json:"benchmark,omitempty"`
	Offline      bool              `json:"offline"`
	Sources      map[string]string `json:"sources,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// state 是会话的可变状态，只在持有 session.mu 时访问。
type state struct {
	Snapshot
	latestRun string
}

func (s *state) say(role, content string, now time.Time) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content, T: now.UnixMilli()})
	s.UpdatedAt = now
}

func (s *state) addSymbol(sym string) {
	if sym == "" {
		return
	}
	for _, existing := range s.Symbols {
		if existing == sym {
			return
		}
	}
	s.Symbols = append(s.Symbols, sym)
}

func (s *state) snapshot() Snapshot {
	out := s.Snapshot
	out.Symbols = append([]string(nil), s.Symbols...)
	out.Actions = append(intent.List(nil), s.Actions...)
	out.Messages = append([]Message(nil), s.Messages...)
	out.Benchmark = append([]backtest.Point(nil), s.Benchmark...)
	if s.Sources != nil {
		out.Sources = make(map[string]string, len(s.Sources))
		for k, v := range s.Sources {
			out.Sources[k] = v
		}
	}
	if s.Result != nil {
		res := *s.Result
		out.Result = &res
	}
	if s.Metrics != nil {
		m := *s.Metrics
		out.Metrics = &m
	}
	return out
}

// Benchmark 把基准符号的收盘价按首根 K 线归一化到 capital，即买入并持有的权益曲线。
func Benchmark(cs []market.Candle, capital float64) []backtest.Point {
	if len(cs) == 0 {
		return nil
	}
	first := cs[0].C
	if first == 0 {
		first = 1
	}
	out := make([]backtest.Point, len(cs))
	for i, c := range cs {
		out[i] = backtest.Point{T: c.T, Value: c.C / first * capital}
	}
	return out
}
