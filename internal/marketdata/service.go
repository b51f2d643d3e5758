package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"chattrack/internal/logger"
	"chattrack/internal/market"
	"chattrack/internal/pkg/circuit"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	sampleAge        = 365 * 24 * time.Hour
	fetchAllParallel = 4
	liveMaxBatch     = 1500
)

// ServiceConfig 配置 Service。Cache/Archive/Samples 均可为空。
type ServiceConfig struct {
	Sources          []Source
	Cache            *Cache
	Archive          *Archive
	Samples          *Samples
	DefaultInterval  string
	LookbackDays     int
	RateLimitPerMin  int
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Service 按 缓存 → 实时源（熔断、限流）→ 归档 → 内置样本 的顺序提供 K 线。
type Service struct {
	sources  []Source
	breakers map[string]*circuit.CircuitBreaker
	limiter  *rate.Limiter
	cache    *Cache
	archive  *Archive
	samples  *Samples

	interval string
	lookback time.Duration
	now      func() time.Time

	group singleflight.Group
}

func NewService(cfg ServiceConfig) (*Service, error) {
	interval := cleanInterval(cfg.DefaultInterval)
	if interval == "" {
		interval = "1m"
	}
	if _, err := market.ParseInterval(interval); err != nil {
		return nil, err
	}
	lookback := cfg.LookbackDays
	if lookback <= 0 {
		lookback = 2
	}
	perSec := rate.Limit(float64(cfg.RateLimitPerMin) / 60.0)
	if cfg.RateLimitPerMin <= 0 {
		perSec = rate.Inf
	}
	threshold := cfg.BreakerThreshold
	if threshold <= 0 {
		threshold = 3
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	svc := &Service{
		breakers: make(map[string]*circuit.CircuitBreaker),
		limiter:  rate.NewLimiter(perSec, 1),
		cache:    cfg.Cache,
		archive:  cfg.Archive,
		samples:  cfg.Samples,
		interval: interval,
		lookback: time.Duration(lookback) * 24 * time.Hour,
		now:      time.Now,
	}
	for _, src := range cfg.Sources {
		if src == nil {
			continue
		}
		svc.sources = append(svc.sources, src)
		svc.breakers[src.Name()] = circuit.NewCircuitBreaker(src.Name(), threshold, cooldown)
	}
	return svc, nil
}

// SetClock 替换时间源（测试用）。
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Sources 返回已注册的实时源名称。
func (s *Service) Sources() []string {
	out := make([]string, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, src.Name())
	}
	return out
}

// normalize 补齐默认周期与区间（默认最近 LookbackDays 天）。
func (s *Service) normalize(q Query) (Query, time.Duration, time.Duration, error) {
	q.Symbol = strings.ToUpper(strings.TrimSpace(q.Symbol))
	if q.Symbol == "" {
		return q, 0, 0, fmt.Errorf("symbol 不能为空")
	}
	q.Interval = cleanInterval(q.Interval)
	if q.Interval == "" {
		q.Interval = s.interval
	}
	step, err := market.ParseInterval(q.Interval)
	if err != nil {
		return q, 0, 0, err
	}
	q.Aggregate = cleanInterval(q.Aggregate)
	if q.Aggregate == "" {
		q.Aggregate = q.Interval
	}
	bucket, err := market.ParseInterval(q.Aggregate)
	if err != nil {
		return q, 0, 0, err
	}
	if bucket < step {
		return q, 0, 0, fmt.Errorf("aggregate %s 不能小于 interval %s", q.Aggregate, q.Interval)
	}
	if q.End.IsZero() {
		q.End = s.now()
	}
	if q.Start.IsZero() {
		q.Start = q.End.Add(-s.lookback)
	}
	if q.End.Before(q.Start) {
		q.Start, q.End = q.End, q.Start
	}
	q.Start, q.End = q.Start.UTC(), q.End.UTC()
	return q, step, bucket, nil
}

// Fetch 返回单个符号的 K 线；所有来源都没有数据时返回 ErrNoData。
func (s *Service) Fetch(ctx context.Context, q Query) (Series, error) {
	q, step, bucket, err := s.normalize(q)
	if err != nil {
		return Series{}, err
	}
	// 共享调用不随首个调用方取消；各调用方仍可凭自己的 ctx 提前返回。
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(q.key(), func() (any, error) {
		return s.resolve(shared, q, step)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return Series{}, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return Series{}, res.Err
	}
	series := res.Val.(Series)
	if bucket > step {
		series.Candles = market.Aggregate(series.Candles, bucket)
	}
	// singleflight 共享结果，返回副本避免调用方互相影响。
	series.Candles = append(market.Candles(nil), series.Candles...)
	return series, nil
}

func (s *Service) resolve(ctx context.Context, q Query, step time.Duration) (Series, error) {
	base := Series{Symbol: q.Symbol, Interval: q.Interval, Aggregate: q.Aggregate}

	if s.cache != nil {
		if cs, mtime, ok := s.cache.Get(q); ok {
			return fill(base, cs, SourceCache, false, mtime.UnixMilli()), nil
		}
	}

	for _, src := range s.sources {
		if !src.Supports(q.Symbol) {
			continue
		}
		cs, err := s.fetchLive(ctx, src, q, step)
		if err != nil {
			logger.Warnf("[marketdata] %s 拉取 %s %s 失败: %v", src.Name(), q.Symbol, q.Interval, err)
			continue
		}
		if len(cs) == 0 {
			logger.Debugf("[marketdata] %s 无 %s 数据", src.Name(), q.Symbol)
			continue
		}
		s.persist(ctx, q, cs)
		return fill(base, cs, src.Name(), false, s.now().UnixMilli()), nil
	}

	if s.archive != nil {
		cs, err := s.archive.Range(ctx, q.Symbol, q.Interval, q.Start.UnixMilli(), q.End.UnixMilli())
		if err != nil {
			logger.Warnf("[marketdata] 读取归档 %s 失败: %v", q.Symbol, err)
		} else if cs = market.Normalize(cs); len(cs) > 0 {
			updated := s.now().UnixMilli()
			if m, err := s.archive.Manifest(ctx, q.Symbol, q.Interval); err == nil {
				updated = m.LastSyncAt
			}
			return fill(base, cs, SourceArchive, true, updated), nil
		}
	}

	if s.samples != nil {
		if cs, ok := s.samples.Range(q.Symbol, q.Start.UnixMilli(), q.End.UnixMilli()); ok {
			return fill(base, cs, SourceSample, true, s.now().Add(-sampleAge).UnixMilli()), nil
		}
	}
	return Series{}, fmt.Errorf("%s %s: %w", q.Symbol, q.Interval, ErrNoData)
}

// fetchLive 经熔断器与限流器分批调用实时源：每批以上一批最后一根 + step 为起点，
// 直到覆盖 End 或源返回不足一批。任一批失败则整体失败，不返回残缺序列。
func (s *Service) fetchLive(ctx context.Context, src Source, q Query, step time.Duration) (market.Candles, error) {
	var collected []market.Candle
	err := s.breakers[src.Name()].Execute(func() error {
		req := q.request()
		stepMs := step.Milliseconds()
		if stepMs <= 0 {
			stepMs = 1
		}
		cursor, end := req.Start, req.End
		for cursor <= end {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
			remaining := int((end-cursor)/stepMs) + 1
			if remaining > liveMaxBatch {
				remaining = liveMaxBatch
			}
			req.Start, req.Limit = cursor, remaining
			batch, err := src.Fetch(ctx, req)
			if err != nil {
				return err
			}
			if len(batch) == 0 {
				break
			}
			collected = append(collected, batch...)
			last := batch[0].T
			for _, c := range batch[1:] {
				if c.T > last {
					last = c.T
				}
			}
			next := last + stepMs
			if len(batch) < remaining || next <= cursor {
				break
			}
			cursor = next
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return market.Normalize(collected).Between(q.Start.UnixMilli(), q.End.UnixMilli()), nil
}

// persist 写缓存与归档，失败只记录日志。
func (s *Service) persist(ctx context.Context, q Query, cs market.Candles) {
	if s.cache != nil {
		if err := s.cache.Put(q, cs); err != nil {
			logger.Warnf("[marketdata] 写缓存 %s 失败: %v", q.Symbol, err)
		}
	}
	if s.archive != nil {
		if _, err := s.archive.Insert(ctx, q.Symbol, q.Interval, cs); err != nil {
			logger.Warnf("[marketdata] 写归档 %s 失败: %v", q.Symbol, err)
		}
	}
}

func fill(base Series, cs market.Candles, source string, offline bool, updated int64) Series {
	base.Candles = cs
	base.Source = source
	base.Offline = offline
	base.RangeStart, base.RangeEnd = cs.Span()
	base.Updated = updated
	return base
}

// FetchAll 并行拉取多个符号，缺数据的符号不出现在结果中。仅在 ctx 取消时返回错误。
func (s *Service) FetchAll(ctx context.Context, symbols []string, q Query) (map[string]Series, error) {
	out := make(map[string]Series, len(symbols))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchAllParallel)
	seen := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		sym := sym
		g.Go(func() error {
			sq := q
			sq.Symbol = sym
			series, err := s.Fetch(gctx, sq)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if !errors.Is(err, ErrNoData) {
					logger.Warnf("[marketdata] %s 获取失败: %v", sym, err)
				}
				return nil
			}
			mu.Lock()
			out[sym] = series
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
