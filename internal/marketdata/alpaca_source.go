package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chattrack/internal/config"
	"chattrack/internal/market"
	"chattrack/internal/pkg/symbol"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

// AlpacaSource 通过 Alpaca market-data API 拉取美股分钟/日线。
type AlpacaSource struct {
	client *marketdata.Client
	feed   string
	quotes []string
}

func NewAlpacaSource(cfg config.AlpacaConfig, cryptoQuotes []string) *AlpacaSource {
	opts := marketdata.ClientOpts{
		APIKey:    strings.TrimSpace(cfg.APIKey),
		APISecret: strings.TrimSpace(cfg.APISecret),
	}
	if cfg.DataURL != "" {
		opts.BaseURL = strings.TrimSpace(cfg.DataURL)
	}
	return &AlpacaSource{
		client: marketdata.NewClient(opts),
		feed:   strings.ToLower(strings.TrimSpace(cfg.Feed)),
		quotes: cryptoQuotes,
	}
}

func (a *AlpacaSource) Name() string { return "alpaca" }

// Supports 只服务非加密符号。
func (a *AlpacaSource) Supports(sym string) bool {
	return sym != "" && !symbol.IsCrypto(sym, a.quotes)
}

func (a *AlpacaSource) Fetch(ctx context.Context, req FetchRequest) ([]market.Candle, error) {
	if req.Symbol == "" || req.Interval == "" {
		return nil, fmt.Errorf("symbol/interval 不能为空")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tf, err := alpacaTimeFrame(req.Interval)
	if err != nil {
		return nil, err
	}
	bars, err := a.client.GetBars(symbol.Clean(req.Symbol), marketdata.GetBarsRequest{
		TimeFrame:  tf,
		Start:      time.UnixMilli(req.Start).UTC(),
		End:        optionalTime(req.End),
		TotalLimit: req.Limit,
		Feed:       marketdata.Feed(a.feed),
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars: %w", err)
	}
	out := make([]market.Candle, 0, len(bars))
	for _, b := range bars {
		out = append(out, market.Candle{
			T: b.Timestamp.UnixMilli(),
			O: b.Open,
			H: b.High,
			L: b.Low,
			C: b.Close,
			V: float64(b.Volume),
		})
	}
	return out, nil
}

// alpacaTimeFrame 把 1m/5m/1h/1d/1w 映射为 Alpaca 的 TimeFrame。
func alpacaTimeFrame(interval string) (marketdata.TimeFrame, error) {
	step, err := market.ParseInterval(interval)
	if err != nil {
		return marketdata.TimeFrame{}, err
	}
	switch {
	case step%(7*24*time.Hour) == 0:
		return marketdata.NewTimeFrame(int(step/(7*24*time.Hour)), marketdata.Week), nil
	case step%(24*time.Hour) == 0:
		return marketdata.NewTimeFrame(int(step/(24*time.Hour)), marketdata.Day), nil
	case step%time.Hour == 0:
		return marketdata.NewTimeFrame(int(step/time.Hour), marketdata.Hour), nil
	default:
		return marketdata.NewTimeFrame(int(step/time.Minute), marketdata.Min), nil
	}
}

func optionalTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
