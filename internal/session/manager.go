package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"chattrack/internal/backtest"
	"chattrack/internal/intent"
	"chattrack/internal/logger"
	"chattrack/internal/market"
	"chattrack/internal/marketdata"
	"chattrack/internal/runner"

	"github.com/google/uuid"
)

// ErrNotFound 表示会话不存在。
var ErrNotFound = errors.New("session not found")

const (
	DefaultSymbol  = "SPY"
	DefaultCapital = 100000

	welcomeSystem    = "Welcome to ChatTrack. Ask me to allocate capital, trade symbols, or set a date range."
	welcomeAssistant = `Try typing instructions like "Start with 100k" or "Buy 10 SPY" below to kick off a backtest.`
)

// Runner 执行一次回测。
type Runner interface {
	Run(ctx context.Context, task runner.Task) (runner.Outcome, error)
}

// Options 控制新会话的默认值。
type Options struct {
	DefaultCapital float64
	DefaultSymbol  string
	Interval       string
	LookbackDays   int
}

type session struct {
	mu sync.Mutex
	st state
}

// Manager 持有进程内的全部聊天会话。会话不落盘，进程重启后丢失。
type Manager struct {
	parser *intent.Parser
	data   marketdata.Fetcher
	runner Runner
	opts   Options
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewManager(parser *intent.Parser, data marketdata.Fetcher, run Runner, opts Options) *Manager {
	if parser == nil {
		parser = intent.NewParser()
	}
	if opts.DefaultCapital <= 0 {
		opts.DefaultCapital = DefaultCapital
	}
	opts.DefaultSymbol = strings.ToUpper(strings.TrimSpace(opts.DefaultSymbol))
	if opts.DefaultSymbol == "" {
		opts.DefaultSymbol = DefaultSymbol
	}
	if opts.Interval == "" {
		opts.Interval = "1m"
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 2
	}
	return &Manager{
		parser:   parser,
		data:     data,
		runner:   run,
		opts:     opts,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// SetClock 替换时间源（测试用）。
func (m *Manager) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// Create 新建会话：默认资金、默认符号、最近 LookbackDays 天。
func (m *Manager) Create() Snapshot {
	now := m.now().UTC()
	st := state{Snapshot: Snapshot{
		ID:           uuid.NewString(),
		Capital:      m.opts.DefaultCapital,
		ActiveSymbol: m.opts.DefaultSymbol,
		Symbols:      []string{m.opts.DefaultSymbol},
		Start:        now.AddDate(0, 0, -m.opts.LookbackDays),
		End:          now,
		Interval:     m.opts.Interval,
		CreatedAt:    now,
	}}
	st.say(RoleSystem, welcomeSystem, now)
	st.say(RoleAssistant, welcomeAssistant, now)

	m.mu.Lock()
	m.sessions[st.ID] = &session{st: st}
	m.mu.Unlock()
	logger.Infof("[session] 新建会话 %s", st.ID)
	return st.snapshot()
}

// Get 返回会话快照。
func (m *Manager) Get(id string) (Snapshot, error) {
	s, err := m.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.snapshot(), nil
}

// IDs 返回全部会话 ID（按创建时间）。
func (m *Manager) IDs() []string {
	m.mu.RLock()
	type entry struct {
		id string
		at time.Time
	}
	list := make([]entry, 0, len(m.sessions))
	for id, s := range m.sessions {
		s.mu.Lock()
		list = append(list, entry{id: id, at: s.st.CreatedAt})
		s.mu.Unlock()
	}
	m.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		if list[i].at.Equal(list[j].at) {
			return list[i].id < list[j].id
		}
		return list[i].at.Before(list[j].at)
	})
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = e.id
	}
	return out
}

func (m *Manager) lookup(id string) (*session, error) {
	m.mu.RLock()
	s, ok := m.sessions[strings.TrimSpace(id)]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return s, nil
}

// Post 处理一条用户消息：解析指令、更新会话上下文，然后重新拉数并回测。
// 同一会话的并发消息以最后发起的回测为准，旧结果直接丢弃。
func (m *Manager) Post(ctx context.Context, id, text string) (Snapshot, error) {
	s, err := m.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Snapshot{}, fmt.Errorf("消息不能为空")
	}

	s.mu.Lock()
	now := m.now().UTC()
	s.st.say(RoleUser, text, now)
	for _, act := range m.parser.ParseAll(text) {
		m.apply(&s.st, act, now)
	}
	runID := uuid.NewString()
	s.st.latestRun = runID
	in := runInput{
		capital:  s.st.Capital,
		actions:  append([]intent.Action(nil), s.st.Actions...),
		symbols:  append([]string{m.opts.DefaultSymbol}, s.st.Symbols...),
		query:    marketdata.Query{Interval: s.st.Interval, Start: s.st.Start, End: s.st.End},
		wasLive:  !s.st.Offline,
		hadRun:   s.st.RunID != "",
		symbol:   s.st.ActiveSymbol,
		interval: s.st.Interval,
	}
	s.st.UpdatedAt = now
	s.mu.Unlock()

	out, err := m.execute(ctx, runID, in)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.latestRun != runID {
		logger.Debugf("[session] %s 丢弃过期回测 %s", id, runID)
		return s.st.snapshot(), nil
	}
	now = m.now().UTC()
	if err != nil {
		if ctx.Err() != nil {
			return s.st.snapshot(), err
		}
		logger.Warnf("[session] %s 回测失败: %v", id, err)
		s.st.say(RoleAssistant, fmt.Sprintf("Unable to load %s data. Please try again.", in.symbol), now)
		return s.st.snapshot(), nil
	}
	s.st.RunID = runID
	s.st.Result = &out.outcome.Result
	s.st.Metrics = &out.outcome.Summary
	s.st.Benchmark = out.benchmark
	s.st.Sources = out.sources
	s.st.Offline = out.offline
	switch {
	case out.offline && (in.wasLive || !in.hadRun):
		s.st.say(RoleAssistant, fmt.Sprintf("Loaded %s using built-in sample data.", in.symbol), now)
	case !out.offline && !in.hadRun && out.latest > 0:
		s.st.say(RoleAssistant, fmt.Sprintf("Streaming live data for %s. Latest %s candle captured at %s.",
			in.symbol, in.interval, time.UnixMilli(out.latest).UTC().Format(time.RFC3339)), now)
	}
	s.st.UpdatedAt = now
	return s.st.snapshot(), nil
}

// apply 把一条解析结果写入会话上下文并回复确认语。
func (m *Manager) apply(st *state, act intent.Action, now time.Time) {
	switch v := act.(type) {
	case intent.SetCapital:
		st.Capital = v.Value
	case intent.SetDateRange:
		st.Start, st.End = v.Range()
		if v.Interval != "" {
			st.Interval = v.Interval
		}
		st.say(RoleAssistant, fmt.Sprintf("Backtesting %s from %s to %s.", st.ActiveSymbol, v.Start, v.End), now)
		return
	case intent.SetRelativeDateRange:
		st.Start, st.End = v.Range(now)
		if v.Interval != "" {
			st.Interval = v.Interval
		}
	case intent.NoOp:
	default:
		if sym := intent.Symbol(act); sym != "" {
			st.addSymbol(sym)
			st.ActiveSymbol = sym
		}
		st.Actions = append(st.Actions, act)
	}
	st.say(RoleAssistant, intent.Describe(act), now)
}

type runInput struct {
	capital  float64
	actions  []intent.Action
	symbols  []string
	query    marketdata.Query
	wasLive  bool
	hadRun   bool
	symbol   string
	interval string
}

type runOutput struct {
	outcome   runner.Outcome
	benchmark []backtest.Point
	sources   map[string]string
	offline   bool
	latest    int64
}

func (m *Manager) execute(ctx context.Context, runID string, in runInput) (runOutput, error) {
	if m.data == nil || m.runner == nil {
		return runOutput{}, fmt.Errorf("回测依赖未配置")
	}
	series, err := m.data.FetchAll(ctx, in.symbols, in.query)
	if err != nil {
		return runOutput{}, err
	}
	if len(series) == 0 {
		return runOutput{}, fmt.Errorf("%v: %w", in.symbols, marketdata.ErrNoData)
	}
	out := runOutput{sources: make(map[string]string, len(series))}
	candles := make(map[string][]market.Candle, len(series))
	for sym, s := range series {
		candles[sym] = s.Candles
		out.sources[sym] = s.Source
		out.offline = out.offline || s.Offline
		if sym == in.symbol {
			out.latest = s.RangeEnd
		}
	}
	if bench, ok := series[m.opts.DefaultSymbol]; ok {
		out.benchmark = Benchmark(bench.Candles, in.capital)
	}
	out.outcome, err = m.runner.Run(ctx, runner.Task{
		ID: runID,
		Request: backtest.Request{
			Candles:   candles,
			Actions:   in.actions,
			StartCash: in.capital,
		},
	})
	if err != nil {
		return runOutput{}, err
	}
	return out, nil
}
