package app

import (
	"context"
	"fmt"

	"chattrack/internal/backtest"
	"chattrack/internal/config"
	"chattrack/internal/intent"
	"chattrack/internal/logger"
	"chattrack/internal/metrics"
	"chattrack/internal/runner"
	"chattrack/internal/session"
	"chattrack/internal/transport/http/api"
)

type AppBuilder struct {
	cfg *config.Config

	marketStackFn func(*config.Config) (*MarketStack, error)
	metricsFn     func(config.MetricsConfig) (*metrics.Service, error)
	httpFn        func(api.Config) (*api.Server, error)
}

type AppBuilderOption func(*AppBuilder)

// WithMarketStack 替换行情栈构造（测试时可注入不联网的实现）。
func WithMarketStack(fn func(*config.Config) (*MarketStack, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.marketStackFn = fn
		}
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:           cfg,
		marketStackFn: buildMarketStack,
		metricsFn:     buildMetricsService,
		httpFn:        api.NewServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	app := &App{cfg: cfg}
	success := false
	defer func() {
		if !success {
			app.Close()
		}
	}()

	registry, err := intent.NewRegistry(cfg.Parser.AliasesPath)
	if err != nil {
		return nil, err
	}
	parser := intent.NewParser(
		intent.WithRegistry(registry),
		intent.WithDefaultInterval(cfg.Data.DefaultInterval),
	)
	logger.Infof("✓ 指令解析器就绪（别名 %d 个）", registry.Table().Len())

	stack, err := b.marketStackFn(cfg)
	if err != nil {
		return nil, err
	}
	app.market = stack
	app.closers = append(app.closers, stack.Close)

	metricsSvc, err := b.metricsFn(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	engine := backtest.NewEngine(engineCosts(cfg.Engine))
	app.dispatcher = runner.NewDispatcher(engine, metricsSvc, cfg.Runner)
	app.sessions = session.NewManager(parser, stack.Service, app.dispatcher, session.Options{
		DefaultCapital: cfg.Engine.DefaultCapital,
		Interval:       cfg.Data.DefaultInterval,
		LookbackDays:   cfg.Data.DefaultLookbackDays,
	})

	app.http, err = b.httpFn(api.Config{
		Addr:           cfg.App.HTTPAddr,
		Candles:        stack.Service,
		Parser:         parser,
		Runner:         app.dispatcher,
		Sessions:       app.sessions,
		RiskFreeAnnual: cfg.Metrics.RiskFreeAnnual,
		DefaultCapital: cfg.Engine.DefaultCapital,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 HTTP 服务失败: %w", err)
	}

	app.Summary = buildSummary(cfg, stack, registry.Table().Len())
	success = true
	return app, nil
}

func engineCosts(e config.EngineConfig) backtest.Costs {
	return backtest.Costs{
		FeeRate:        e.FeeRate,
		SpreadRate:     e.SpreadRate,
		OvernightRate:  e.OvernightRate,
		RebalanceBand:  e.RebalanceBand,
		BuyAllFraction: e.BuyAllFraction,
	}
}

func buildMetricsService(cfg config.MetricsConfig) (*metrics.Service, error) {
	if cfg.RemoteURL == "" {
		return metrics.NewService(nil, cfg.RiskFreeAnnual), nil
	}
	remote, err := metrics.NewRemoteClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化远端指标服务失败: %w", err)
	}
	logger.Infof("✓ 远端指标服务 %s", cfg.RemoteURL)
	return metrics.NewService(remote, cfg.RiskFreeAnnual), nil
}

type appBuilderDeps interface {
	Build(context.Context) (*App, error)
}

func provideAppFromBuilder(b appBuilderDeps, ctx context.Context) (*App, error) {
	return b.Build(ctx)
}

func provideAppBuilder(cfg *config.Config) *AppBuilder {
	return NewAppBuilder(cfg)
}
