package config

import (
	"strings"
)

// 默认值常量
const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultAppLogFormat      = "text"
	defaultAppHTTPAddr       = ":8000"
	defaultFeeRate           = 0.0005
	defaultSpreadRate        = 0.0002
	defaultOvernightRate     = 0.0001
	defaultRebalanceBand     = 0.005
	defaultBuyAllFraction    = 0.99
	defaultCapital           = 100000
	defaultRiskFreeAnnual    = 0.02
	defaultMetricsTimeout    = 10
	defaultInterval          = "1m"
	defaultLookbackDays      = 2
	defaultCacheDir          = "data/cache"
	defaultCacheLimitMB      = 100
	defaultArchiveDir        = "data/archive"
	defaultRateLimitPerMin   = 180
	defaultBreakerThreshold  = 3
	defaultBreakerCooldown   = 60
	defaultPreloadCron       = "0 */30 * * * *"
	defaultPreloadDays       = 7
	defaultBinanceREST       = "https://fapi.binance.com"
	defaultBinanceTimeout    = 15
	defaultAlpacaFeed        = "iex"
	defaultRunnerWorkers     = 2
	defaultRunnerQueue       = 16
	defaultParserAliasesPath = ""
)

var (
	defaultPreloadSymbols = []string{"SPY", "AAPL", "MSFT"}
	defaultCryptoQuotes   = []string{"USDT", "USDC", "BUSD"}
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.Metrics.applyDefaults(keys)
	c.Data.applyDefaults(keys)
	c.Alpaca.applyDefaults(keys)
	c.Binance.applyDefaults(keys)
	c.Parser.applyDefaults(keys)
	c.Runner.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("engine.fee_rate", &e.FeeRate, defaultFeeRate),
		floatFieldDefault("engine.spread_rate", &e.SpreadRate, defaultSpreadRate),
		floatFieldDefault("engine.overnight_rate", &e.OvernightRate, defaultOvernightRate),
		floatFieldDefault("engine.rebalance_band", &e.RebalanceBand, defaultRebalanceBand),
		fieldDefault{
			key:   "engine.buy_all_fraction",
			need:  func() bool { return e.BuyAllFraction <= 0 || e.BuyAllFraction > 1 },
			apply: func() { e.BuyAllFraction = defaultBuyAllFraction },
		},
		fieldDefault{
			key:   "engine.default_capital",
			need:  func() bool { return e.DefaultCapital <= 0 },
			apply: func() { e.DefaultCapital = defaultCapital },
		},
	)
}

func (m *MetricsConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("metrics.rf_rate_annual", &m.RiskFreeAnnual, defaultRiskFreeAnnual),
		intFieldDefault("metrics.timeout_seconds", &m.TimeoutSeconds, defaultMetricsTimeout),
	)
	m.RemoteURL = strings.TrimRight(strings.TrimSpace(m.RemoteURL), "/")
}

func (d *DataConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("data.default_interval", &d.DefaultInterval, defaultInterval),
		intFieldDefault("data.default_lookback_days", &d.DefaultLookbackDays, defaultLookbackDays),
		stringFieldDefault("data.cache_dir", &d.CacheDir, defaultCacheDir),
		intFieldDefault("data.cache_limit_mb", &d.CacheLimitMB, defaultCacheLimitMB),
		stringFieldDefault("data.archive_dir", &d.ArchiveDir, defaultArchiveDir),
		intFieldDefault("data.rate_limit_per_min", &d.RateLimitPerMin, defaultRateLimitPerMin),
		intFieldDefault("data.breaker_threshold", &d.BreakerThreshold, defaultBreakerThreshold),
		intFieldDefault("data.breaker_cooldown_seconds", &d.BreakerCooldownSeconds, defaultBreakerCooldown),
		stringFieldDefault("data.preload_cron", &d.PreloadCron, defaultPreloadCron),
		intFieldDefault("data.preload_days", &d.PreloadDays, defaultPreloadDays),
		fieldDefault{
			key:   "data.preload_symbols",
			need:  func() bool { return len(d.PreloadSymbols) == 0 },
			apply: func() { d.PreloadSymbols = append([]string{}, defaultPreloadSymbols...) },
		},
		fieldDefault{
			key:   "data.crypto_quotes",
			need:  func() bool { return len(d.CryptoQuotes) == 0 },
			apply: func() { d.CryptoQuotes = append([]string{}, defaultCryptoQuotes...) },
		},
	)
	d.PreloadSymbols = normalizeSymbolList(d.PreloadSymbols)
	d.CryptoQuotes = normalizeSymbolList(d.CryptoQuotes)
}

func (a *AlpacaConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("alpaca.feed", &a.Feed, defaultAlpacaFeed),
	)
}

func (b *BinanceConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("binance.enabled", &b.Enabled, true),
		stringFieldDefault("binance.rest_base_url", &b.RESTBaseURL, defaultBinanceREST),
		intFieldDefault("binance.timeout_seconds", &b.TimeoutSeconds, defaultBinanceTimeout),
	)
}

func (p *ParserConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("parser.aliases_path", &p.AliasesPath, defaultParserAliasesPath),
	)
}

func (r *RunnerConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("runner.workers", &r.Workers, defaultRunnerWorkers),
		intFieldDefault("runner.queue", &r.Queue, defaultRunnerQueue),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func normalizeSymbolList(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	out := make([]string, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, s := range list {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
