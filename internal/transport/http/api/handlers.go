package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chattrack/internal/backtest"
	"chattrack/internal/intent"
	"chattrack/internal/market"
	"chattrack/internal/marketdata"
	"chattrack/internal/metrics"
	"chattrack/internal/runner"

	"github.com/gin-gonic/gin"
)

const defaultBacktestSymbol = "SPY"

func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{"ok": true}
	if s.candles != nil {
		resp["sources"] = s.candles.Sources()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCandles(c *gin.Context) {
	if s.candles == nil {
		writeError(c, fmt.Errorf("行情服务未启用: %w", errUnavailable))
		return
	}
	symbol := strings.TrimSpace(c.Query("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 必填"})
		return
	}
	start, err := parseTime(c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	end, err := parseTime(c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	series, err := s.candles.Fetch(c.Request.Context(), marketdata.Query{
		Symbol:    symbol,
		Interval:  c.Query("interval"),
		Aggregate: c.Query("aggregate"),
		Start:     start,
		End:       end,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

func (s *Server) handleMetrics(c *gin.Context) {
	var req metrics.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Equity) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "equity series must contain at least one point"})
		return
	}
	c.JSON(http.StatusOK, s.summaryFor(req.Equity, req.Options()))
}

type textRequest struct {
	Text string `json:"text" binding:"required"`
}

func (s *Server) handleParse(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	acts := s.parser.ParseAll(req.Text)
	replies := make([]string, len(acts))
	for i, a := range acts {
		replies[i] = intent.Describe(a)
	}
	c.JSON(http.StatusOK, gin.H{"actions": intent.List(acts), "replies": replies})
}

type backtestRequest struct {
	Text         string                     `json:"text"`
	Instructions []string                   `json:"instructions"`
	Actions      intent.List                `json:"actions"`
	Candles      map[string][]market.Candle `json:"candles"`
	Symbols      []string                   `json:"symbols"`
	StartCapital float64                    `json:"start_capital"`
	Interval     string                     `json:"interval"`
	Aggregate    string                     `json:"aggregate"`
	Start        string                     `json:"start"`
	End          string                     `json:"end"`
}

type backtestResponse struct {
	RunID     string            `json:"run_id"`
	Actions   intent.List       `json:"actions"`
	Replies   []string          `json:"replies,omitempty"`
	Result    backtest.Result   `json:"result"`
	Metrics   metrics.Summary   `json:"metrics"`
	Sources   map[string]string `json:"sources,omitempty"`
	Offline   bool              `json:"offline"`
	ElapsedMS int64             `json:"elapsed_ms"`
}

// backtestPlan 是从请求中整理出的回测输入。
type backtestPlan struct {
	capital float64
	query   marketdata.Query
	actions []intent.Action
	replies []string
	symbols []string
}

// add 把一条动作归入计划：资金与日期范围改写上下文，NoOp 只回显，其余交给引擎。
func (p *backtestPlan) add(a intent.Action, now time.Time) {
	switch v := a.(type) {
	case intent.SetCapital:
		p.capital = v.Value
	case intent.SetDateRange:
		p.query.Start, p.query.End = v.Range()
		if p.query.Interval == "" {
			p.query.Interval = v.Interval
		}
	case intent.SetRelativeDateRange:
		p.query.Start, p.query.End = v.Range(now)
		if p.query.Interval == "" {
			p.query.Interval = v.Interval
		}
	case intent.NoOp:
	default:
		p.actions = append(p.actions, a)
		if sym := intent.Symbol(a); sym != "" {
			p.symbols = append(p.symbols, sym)
		}
	}
}

func (s *Server) handleBacktest(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.schema.Validate(raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req backtestRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	plan, err := s.plan(req, time.Now().UTC())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.runner == nil {
		writeError(c, fmt.Errorf("回测执行器未启用: %w", errUnavailable))
		return
	}

	resp := backtestResponse{Actions: intent.List(plan.actions), Replies: plan.replies}
	candles := req.Candles
	if len(candles) == 0 {
		if s.candles == nil {
			writeError(c, fmt.Errorf("行情服务未启用: %w", errUnavailable))
			return
		}
		series, err := s.candles.FetchAll(c.Request.Context(), plan.symbols, plan.query)
		if err != nil {
			writeError(c, err)
			return
		}
		candles = make(map[string][]market.Candle, len(series))
		resp.Sources = make(map[string]string, len(series))
		for sym, sr := range series {
			candles[sym] = sr.Candles
			resp.Sources[sym] = sr.Source
			resp.Offline = resp.Offline || sr.Offline
		}
	}

	out, err := s.runner.Run(c.Request.Context(), runner.Task{Request: backtest.Request{
		Candles:   candles,
		Actions:   plan.actions,
		StartCash: plan.capital,
	}})
	if err != nil {
		writeError(c, err)
		return
	}
	resp.RunID = out.ID
	resp.Result = out.Result
	resp.Metrics = out.Summary
	resp.ElapsedMS = out.Elapsed.Milliseconds()
	c.JSON(http.StatusOK, resp)
}

func (s *Server) plan(req backtestRequest, now time.Time) (backtestPlan, error) {
	p := backtestPlan{
		capital: s.capital,
		query:   marketdata.Query{Interval: req.Interval, Aggregate: req.Aggregate},
	}
	var err error
	if p.query.Start, err = parseTime(req.Start); err != nil {
		return p, err
	}
	if p.query.End, err = parseTime(req.End); err != nil {
		return p, err
	}
	if req.StartCapital > 0 {
		p.capital = req.StartCapital
	}
	texts := req.Instructions
	if strings.TrimSpace(req.Text) != "" {
		texts = append([]string{req.Text}, texts...)
	}
	for _, text := range texts {
		for _, a := range s.parser.ParseAll(text) {
			p.add(a, now)
			p.replies = append(p.replies, intent.Describe(a))
		}
	}
	for _, a := range req.Actions {
		p.add(a, now)
	}
	p.symbols = append(p.symbols, req.Symbols...)
	if len(p.symbols) == 0 {
		p.symbols = []string{defaultBacktestSymbol}
	}
	return p, nil
}

func (s *Server) handleSessionList(c *gin.Context) {
	if s.sessions == nil {
		writeError(c, fmt.Errorf("会话未启用: %w", errUnavailable))
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": s.sessions.IDs()})
}

func (s *Server) handleSessionCreate(c *gin.Context) {
	if s.sessions == nil {
		writeError(c, fmt.Errorf("会话未启用: %w", errUnavailable))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": s.sessions.Create()})
}

func (s *Server) handleSessionGet(c *gin.Context) {
	if s.sessions == nil {
		writeError(c, fmt.Errorf("会话未启用: %w", errUnavailable))
		return
	}
	snap, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": snap})
}

func (s *Server) handleSessionMessage(c *gin.Context) {
	if s.sessions == nil {
		writeError(c, fmt.Errorf("会话未启用: %w", errUnavailable))
		return
	}
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := s.sessions.Post(c.Request.Context(), c.Param("id"), req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": snap})
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"}

// parseTime 接受 ISO 时间、日期或毫秒时间戳，空串返回零值。
func parseTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("时间格式无法识别: %q", v)
}
