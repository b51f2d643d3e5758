package app

import (
	"errors"
	"fmt"

	"chattrack/internal/config"
	"chattrack/internal/logger"
	"chattrack/internal/marketdata"
)

// MarketStack 是行情侧的全部组件。
type MarketStack struct {
	Service   *marketdata.Service
	Cache     *marketdata.Cache
	Archive   *marketdata.Archive
	Preloader *marketdata.Preloader
	Sources   []string
}

// Close 关闭归档数据库。
func (m *MarketStack) Close() error {
	if m == nil || m.Archive == nil {
		return nil
	}
	return m.Archive.Close()
}

func buildMarketStack(cfg *config.Config) (*MarketStack, error) {
	data := cfg.Data
	stack := &MarketStack{}

	cache, err := marketdata.NewCache(data.CacheDir, data.CacheLimitBytes())
	if err != nil {
		return nil, fmt.Errorf("初始化 K 线缓存失败: %w", err)
	}
	stack.Cache = cache

	archive, err := marketdata.NewArchive(data.ArchiveDir)
	if err != nil {
		return nil, fmt.Errorf("初始化 K 线归档失败: %w", err)
	}
	stack.Archive = archive

	sources := buildSources(cfg)
	svc, err := marketdata.NewService(marketdata.ServiceConfig{
		Sources:          sources,
		Cache:            cache,
		Archive:          archive,
		Samples:          marketdata.NewSamples(),
		DefaultInterval:  data.DefaultInterval,
		LookbackDays:     data.DefaultLookbackDays,
		RateLimitPerMin:  data.RateLimitPerMin,
		BreakerThreshold: data.BreakerThreshold,
		BreakerCooldown:  data.BreakerCooldown(),
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("初始化行情服务失败: %w", err), archive.Close())
	}
	stack.Service = svc
	stack.Sources = svc.Sources()
	if len(stack.Sources) == 0 {
		logger.Warnf("[marketdata] 未启用任何实时源，仅使用缓存/归档/内置样本")
	}
	stack.Preloader = marketdata.NewPreloader(svc, data.PreloadSymbols, data.PreloadDays, data.DefaultInterval, data.PreloadCron)
	logger.Infof("✓ 行情服务就绪 sources=%v cache=%s archive=%s", stack.Sources, data.CacheDir, data.ArchiveDir)
	return stack, nil
}

func buildSources(cfg *config.Config) []marketdata.Source {
	var out []marketdata.Source
	if cfg.Alpaca.Enabled {
		out = append(out, marketdata.NewAlpacaSource(cfg.Alpaca, cfg.Data.CryptoQuotes))
	}
	if cfg.Binance.Enabled {
		out = append(out, marketdata.NewBinanceSource(cfg.Binance, cfg.Data.CryptoQuotes))
	}
	return out
}
