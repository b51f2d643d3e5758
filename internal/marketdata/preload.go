package marketdata

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"chattrack/internal/logger"

	"github.com/robfig/cron/v3"
)

// Fetcher 是 Preloader 依赖的最小接口。
type Fetcher interface {
	FetchAll(ctx context.Context, symbols []string, q Query) (map[string]Series, error)
}

// Preloader 在启动时以及按 cron 周期预热常用符号最近 N 天的数据，
// 让实时源故障时归档里仍有较新的 K 线。
type Preloader struct {
	fetcher  Fetcher
	symbols  []string
	days     int
	interval string
	cronSpec string

	mu   sync.Mutex
	cron *cron.Cron
	now  func() time.Time
}

func NewPreloader(f Fetcher, symbols []string, days int, interval, cronSpec string) *Preloader {
	if days <= 0 {
		days = 7
	}
	return &Preloader{
		fetcher:  f,
		symbols:  append([]string(nil), symbols...),
		days:     days,
		interval: interval,
		cronSpec: strings.TrimSpace(cronSpec),
		now:      time.Now,
	}
}

// RunOnce 预热一次，返回成功加载的符号数。
func (p *Preloader) RunOnce(ctx context.Context) int {
	if len(p.symbols) == 0 {
		return 0
	}
	end := p.now().UTC()
	q := Query{Interval: p.interval, Start: end.AddDate(0, 0, -p.days), End: end}
	got, err := p.fetcher.FetchAll(ctx, p.symbols, q)
	if err != nil {
		logger.Infof("[marketdata] 预热中断: %v", err)
		return 0
	}
	for _, sym := range p.symbols {
		series, ok := got[strings.ToUpper(sym)]
		if !ok {
			logger.Infof("[marketdata] 预热 %s 失败: 无数据", sym)
			continue
		}
		logger.Debugf("[marketdata] 预热 %s 来源=%s 条数=%d", sym, series.Source, len(series.Candles))
	}
	logger.Infof("[marketdata] 预热完成 %d/%d", len(got), len(p.symbols))
	return len(got)
}

// Start 立即预热一次，并按 cron 表达式（带秒字段）注册周期任务。表达式为空时只预热一次。
func (p *Preloader) Start(ctx context.Context) error {
	go p.RunOnce(ctx)
	if p.cronSpec == "" {
		return nil
	}
	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(p.cronSpec, func() { p.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("注册预热任务失败: %w", err)
	}
	p.mu.Lock()
	p.cron = c
	p.mu.Unlock()
	c.Start()
	logger.Infof("[marketdata] 预热任务已启动 cron=%q symbols=%v", p.cronSpec, p.symbols)
	return nil
}

// Stop 停止周期任务并等待正在执行的任务结束。
func (p *Preloader) Stop() {
	p.mu.Lock()
	c := p.cron
	p.cron = nil
	p.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
}
