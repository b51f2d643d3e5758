package app

import (
	"context"
	"fmt"

	"chattrack/internal/config"
	"chattrack/internal/logger"
	"chattrack/internal/marketdata"
	"chattrack/internal/runner"
	"chattrack/internal/session"
	"chattrack/internal/transport/http/api"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动回测执行器、预热任务与 HTTP 服务。
type App struct {
	cfg        *config.Config
	market     *MarketStack
	dispatcher *runner.Dispatcher
	sessions   *session.Manager
	http       *api.Server
	closers    []func() error
	Summary    *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.SetFormat(cfg.App.LogFormat)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动全部组件，阻塞直到 ctx 取消或任一组件出错。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.http == nil || a.dispatcher == nil {
		return fmt.Errorf("app dependencies not initialized")
	}
	defer a.Close()

	if a.Summary != nil {
		logger.InfoBlock(a.Summary.String())
	}

	a.dispatcher.Start(ctx)
	defer a.dispatcher.Stop()

	if a.market != nil && a.market.Preloader != nil {
		if err := a.market.Preloader.Start(ctx); err != nil {
			return err
		}
		defer a.market.Preloader.Stop()
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.http.Start(gctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	return group.Wait()
}

// Close 释放存储等资源，可重复调用。
func (a *App) Close() {
	if a == nil {
		return
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warnf("[app] 释放资源失败: %v", err)
		}
	}
	a.closers = nil
}

// Market 暴露行情服务（测试与调试用）。
func (a *App) Market() *marketdata.Service {
	if a == nil || a.market == nil {
		return nil
	}
	return a.market.Service
}

// HTTP 暴露 API Server（测试用）。
func (a *App) HTTP() *api.Server {
	if a == nil {
		return nil
	}
	return a.http
}
