package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"chattrack/internal/backtest"
	"chattrack/internal/intent"
	"chattrack/internal/logger"
	"chattrack/internal/marketdata"
	"chattrack/internal/metrics"
	"chattrack/internal/runner"
	"chattrack/internal/session"

	"github.com/gin-gonic/gin"
)

// Candles 是行情服务的最小接口。
type Candles interface {
	Fetch(ctx context.Context, q marketdata.Query) (marketdata.Series, error)
	FetchAll(ctx context.Context, symbols []string, q marketdata.Query) (map[string]marketdata.Series, error)
	Sources() []string
}

// Runner 执行一次回测。
type Runner interface {
	Run(ctx context.Context, task runner.Task) (runner.Outcome, error)
}

// Sessions 是聊天会话管理器的最小接口。
type Sessions interface {
	Create() session.Snapshot
	Get(id string) (session.Snapshot, error)
	Post(ctx context.Context, id, text string) (session.Snapshot, error)
	IDs() []string
}

// Config 描述 API Server 的依赖。Candles/Runner/Sessions 为空时对应接口返回 503。
type Config struct {
	Addr           string
	Candles        Candles
	Parser         *intent.Parser
	Runner         Runner
	Sessions       Sessions
	RiskFreeAnnual float64
	DefaultCapital float64
}

// Server 提供 chattrack 的 HTTP API。
type Server struct {
	addr     string
	router   *gin.Engine
	candles  Candles
	parser   *intent.Parser
	runner   Runner
	sessions Sessions
	schema   *requestSchema
	rf       float64
	capital  float64
}

// NewServer 构建 API Server。
func NewServer(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.Parser == nil {
		cfg.Parser = intent.NewParser()
	}
	if cfg.DefaultCapital <= 0 {
		cfg.DefaultCapital = session.DefaultCapital
	}
	schema, err := compileBacktestSchema()
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		addr:     cfg.Addr,
		router:   router,
		candles:  cfg.Candles,
		parser:   cfg.Parser,
		runner:   cfg.Runner,
		sessions: cfg.Sessions,
		schema:   schema,
		rf:       cfg.RiskFreeAnnual,
		capital:  cfg.DefaultCapital,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	api := s.router.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/candles", s.handleCandles)
	api.POST("/metrics", s.handleMetrics)
	api.POST("/parse", s.handleParse)
	api.POST("/backtest", s.handleBacktest)
	api.GET("/sessions", s.handleSessionList)
	api.POST("/sessions", s.handleSessionCreate)
	api.GET("/sessions/:id", s.handleSessionGet)
	api.POST("/sessions/:id/messages", s.handleSessionMessage)
}

// Handler 返回底层 http.Handler（测试与嵌入用）。
func (s *Server) Handler() http.Handler { return s.router }

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("[api] 监听 %s", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if q := c.Request.URL.RawQuery; q != "" {
			path += "?" + q
		}
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", c.Request.Method, path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

// writeError 把领域错误映射为 HTTP 状态码。
func writeError(c *gin.Context, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, marketdata.ErrNoData), errors.Is(err, session.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, runner.ErrStopped), errors.Is(err, errUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

var errUnavailable = errors.New("service unavailable")

// summaryFor 在本地计算指标，rf 缺省时使用配置值。
func (s *Server) summaryFor(points []backtest.Point, opts metrics.Options) metrics.Summary {
	if opts.RiskFreeAnnual == nil {
		opts = opts.WithRiskFree(s.rf)
	}
	return metrics.Compute(points, opts)
}
