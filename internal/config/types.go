package config

import (
	"strings"
	"time"
)

// Config 是 chattrack 的主配置载体。
type Config struct {
	App     AppConfig     `toml:"app"`
	Engine  EngineConfig  `toml:"engine"`
	Metrics MetricsConfig `toml:"metrics"`
	Data    DataConfig    `toml:"data"`
	Alpaca  AlpacaConfig  `toml:"alpaca"`
	Binance BinanceConfig `toml:"binance"`
	Parser  ParserConfig  `toml:"parser"`
	Runner  RunnerConfig  `toml:"runner"`
}

type AppConfig struct {
	Env       string `toml:"env"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	HTTPAddr  string `toml:"http_addr"`
	LogPath   string `toml:"log_path"`
}

// EngineConfig 控制模拟撮合的成本参数（全部符号共用一套费率）。
type EngineConfig struct {
	FeeRate        float64 `toml:"fee_rate"`
	SpreadRate     float64 `toml:"spread_rate"`
	OvernightRate  float64 `toml:"overnight_rate"` // 每个自然日按总敞口计提
	RebalanceBand  float64 `toml:"rebalance_band"` // 相对权益的再平衡死区
	BuyAllFraction float64 `toml:"buy_all_fraction"`
	DefaultCapital float64 `toml:"default_capital"`
}

type MetricsConfig struct {
	RiskFreeAnnual float64 `toml:"rf_rate_annual"`
	// RemoteURL 非空时通过远端 /api/metrics 计算指标。
	RemoteURL      string `toml:"remote_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// DataConfig 描述 K 线获取、缓存与离线兜底。
type DataConfig struct {
	DefaultInterval        string   `toml:"default_interval"`
	DefaultLookbackDays    int      `toml:"default_lookback_days"`
	CacheDir               string   `toml:"cache_dir"`
	CacheLimitMB           int      `toml:"cache_limit_mb"`
	ArchiveDir             string   `toml:"archive_dir"`
	RateLimitPerMin        int      `toml:"rate_limit_per_min"`
	BreakerThreshold       int      `toml:"breaker_threshold"`
	BreakerCooldownSeconds int      `toml:"breaker_cooldown_seconds"`
	PreloadSymbols         []string `toml:"preload_symbols"`
	PreloadCron            string   `toml:"preload_cron"`
	PreloadDays            int      `toml:"preload_days"`
	CryptoQuotes           []string `toml:"crypto_quotes"`
}

// BreakerCooldown 返回熔断冷却时长。
func (d DataConfig) BreakerCooldown() time.Duration {
	return time.Duration(d.BreakerCooldownSeconds) * time.Second
}

// CacheLimitBytes 返回 parquet 缓存目录的字节上限。
func (d DataConfig) CacheLimitBytes() int64 {
	return int64(d.CacheLimitMB) * 1024 * 1024
}

type AlpacaConfig struct {
	Enabled   bool   `toml:"enabled"`
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
	DataURL   string `toml:"data_url"`
	Feed      string `toml:"feed"`
}

type BinanceConfig struct {
	Enabled        bool   `toml:"enabled"`
	RESTBaseURL    string `toml:"rest_base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type ParserConfig struct {
	AliasesPath string `toml:"aliases_path"`
}

type RunnerConfig struct {
	Workers int `toml:"workers"`
	Queue   int `toml:"queue"`
}

type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值规则：key 已显式配置时跳过。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
