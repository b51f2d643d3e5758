package app

import (
	"fmt"
	"strings"

	"chattrack/internal/config"
)

type StartupSummary struct {
	HTTPAddr string
	Engine   EngineSummary
	Data     DataSummary
	Aliases  int
	Workers  int
}

type EngineSummary struct {
	FeeRate        float64
	SpreadRate     float64
	OvernightRate  float64
	RebalanceBand  float64
	DefaultCapital float64
}

type DataSummary struct {
	Sources        []string
	Interval       string
	CacheDir       string
	ArchiveDir     string
	PreloadSymbols []string
	PreloadCron    string
}

func buildSummary(cfg *config.Config, stack *MarketStack, aliases int) *StartupSummary {
	s := &StartupSummary{
		HTTPAddr: cfg.App.HTTPAddr,
		Engine: EngineSummary{
			FeeRate:        cfg.Engine.FeeRate,
			SpreadRate:     cfg.Engine.SpreadRate,
			OvernightRate:  cfg.Engine.OvernightRate,
			RebalanceBand:  cfg.Engine.RebalanceBand,
			DefaultCapital: cfg.Engine.DefaultCapital,
		},
		Data: DataSummary{
			Interval:       cfg.Data.DefaultInterval,
			CacheDir:       cfg.Data.CacheDir,
			ArchiveDir:     cfg.Data.ArchiveDir,
			PreloadSymbols: cfg.Data.PreloadSymbols,
			PreloadCron:    cfg.Data.PreloadCron,
		},
		Aliases: aliases,
		Workers: cfg.Runner.Workers,
	}
	if stack != nil {
		s.Data.Sources = stack.Sources
	}
	return s
}

// String 渲染启动摘要，供 logger.InfoBlock 逐行输出。
func (s *StartupSummary) String() string {
	var b strings.Builder
	line := strings.Repeat("=", 60)
	b.WriteString(line + "\n")
	b.WriteString("启动配置摘要 (STARTUP SUMMARY)\n")
	b.WriteString(line + "\n")

	b.WriteString("[HTTP]\n")
	fmt.Fprintf(&b, "  监听地址: %s\n", s.HTTPAddr)
	fmt.Fprintf(&b, "  回测 workers: %d\n", s.Workers)

	b.WriteString("[撮合成本 (ENGINE)]\n")
	fmt.Fprintf(&b, "  手续费: %s  点差: %s  隔夜: %s\n", pct(s.Engine.FeeRate), pct(s.Engine.SpreadRate), pct(s.Engine.OvernightRate))
	fmt.Fprintf(&b, "  再平衡死区: %s  默认资金: %.2f\n", pct(s.Engine.RebalanceBand), s.Engine.DefaultCapital)

	b.WriteString("[行情 (MARKET DATA)]\n")
	fmt.Fprintf(&b, "  实时源: %s\n", formatList(s.Data.Sources))
	fmt.Fprintf(&b, "  默认周期: %s\n", s.Data.Interval)
	fmt.Fprintf(&b, "  缓存目录: %s\n", s.Data.CacheDir)
	fmt.Fprintf(&b, "  归档目录: %s\n", s.Data.ArchiveDir)
	fmt.Fprintf(&b, "  预热: %s (%s)\n", formatList(s.Data.PreloadSymbols), orDash(s.Data.PreloadCron))

	b.WriteString("[解析器 (PARSER)]\n")
	fmt.Fprintf(&b, "  别名数量: %d\n", s.Aliases)
	b.WriteString(line)
	return b.String()
}

func pct(v float64) string {
	return fmt.Sprintf("%.4g%%", v*100)
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "(无)"
	}
	return strings.Join(items, ", ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
