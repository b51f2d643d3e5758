package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := c.Metrics.validate(); err != nil {
		return err
	}
	if err := c.Data.validate(); err != nil {
		return err
	}
	if err := c.Alpaca.validate(); err != nil {
		return err
	}
	if err := c.Runner.validate(); err != nil {
		return err
	}
	return nil
}

func (e *EngineConfig) validate() error {
	rates := []struct {
		key string
		val float64
	}{
		{"engine.fee_rate", e.FeeRate},
		{"engine.spread_rate", e.SpreadRate},
		{"engine.overnight_rate", e.OvernightRate},
		{"engine.rebalance_band", e.RebalanceBand},
	}
	for _, r := range rates {
		if r.val < 0 || r.val >= 1 {
			return fmt.Errorf("%s must be within [0,1)", r.key)
		}
	}
	if e.BuyAllFraction <= 0 || e.BuyAllFraction > 1 {
		return fmt.Errorf("engine.buy_all_fraction must be within (0,1]")
	}
	if e.DefaultCapital <= 0 {
		return fmt.Errorf("engine.default_capital must be > 0")
	}
	return nil
}

func (m *MetricsConfig) validate() error {
	if m.RiskFreeAnnual < 0 || m.RiskFreeAnnual > 1 {
		return fmt.Errorf("metrics.rf_rate_annual must be within [0,1]")
	}
	if m.RemoteURL != "" && !strings.HasPrefix(m.RemoteURL, "http") {
		return fmt.Errorf("metrics.remote_url must be an http(s) url")
	}
	return nil
}

func (d *DataConfig) validate() error {
	if _, ok := parseIntervalKey(d.DefaultInterval); !ok {
		return fmt.Errorf("data.default_interval is invalid: %s", d.DefaultInterval)
	}
	if d.CacheLimitMB <= 0 {
		return fmt.Errorf("data.cache_limit_mb must be > 0")
	}
	if strings.TrimSpace(d.PreloadCron) != "" {
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(d.PreloadCron); err != nil {
			return fmt.Errorf("data.preload_cron is invalid: %w", err)
		}
	}
	return nil
}

func (a *AlpacaConfig) validate() error {
	if !a.Enabled {
		return nil
	}
	if strings.TrimSpace(a.APIKey) == "" || strings.TrimSpace(a.APISecret) == "" {
		return fmt.Errorf("alpaca.enabled requires api_key and api_secret")
	}
	switch strings.ToLower(a.Feed) {
	case "iex", "sip", "otc", "delayed_sip":
	default:
		return fmt.Errorf("alpaca.feed unsupported: %s", a.Feed)
	}
	return nil
}

func (r *RunnerConfig) validate() error {
	if r.Workers <= 0 {
		return fmt.Errorf("runner.workers must be > 0")
	}
	return nil
}

// parseIntervalKey 仅做格式检查（数字 + m/h/d/w），避免 config 依赖 market 包。
func parseIntervalKey(interval string) (string, bool) {
	interval = strings.ToLower(strings.TrimSpace(interval))
	if len(interval) < 2 {
		return "", false
	}
	unit := interval[len(interval)-1]
	if !strings.ContainsRune("mhdw", rune(unit)) {
		return "", false
	}
	for _, r := range interval[:len(interval)-1] {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return interval, true
}
