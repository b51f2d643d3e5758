package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"chattrack/internal/config"
	"chattrack/internal/market"
	"chattrack/internal/pkg/convert"
	"chattrack/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2/futures"
)

const binanceMaxLimit = 1500

// BinanceSource 基于 go-binance SDK 的 USDT 合约 /fapi/v1/klines。
type BinanceSource struct {
	client *futures.Client
	quotes []string
}

func NewBinanceSource(cfg config.BinanceConfig, cryptoQuotes []string) *BinanceSource {
	client := futures.NewClient("", "")
	if base := strings.TrimSpace(cfg.RESTBaseURL); base != "" {
		client.BaseURL = strings.TrimRight(base, "/")
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client.HTTPClient = &http.Client{Timeout: timeout}
	return &BinanceSource{client: client, quotes: cryptoQuotes}
}

func (b *BinanceSource) Name() string { return "binance" }

// Supports 只服务加密交易对。
func (b *BinanceSource) Supports(sym string) bool {
	return symbol.IsCrypto(sym, b.quotes)
}

func (b *BinanceSource) Fetch(ctx context.Context, req FetchRequest) ([]market.Candle, error) {
	pair, ok := symbol.Parse(req.Symbol, b.quotes)
	if !ok || req.Interval == "" {
		return nil, fmt.Errorf("binance 不支持的符号或周期: %s %s", req.Symbol, req.Interval)
	}
	limit := req.Limit
	if limit <= 0 || limit > binanceMaxLimit {
		limit = binanceMaxLimit
	}
	svc := b.client.NewKlinesService().
		Symbol(pair.Binance()).
		Interval(cleanInterval(req.Interval)).
		Limit(limit)
	if req.Start > 0 {
		svc = svc.StartTime(req.Start)
	}
	if req.End > 0 {
		svc = svc.EndTime(req.End)
	}
	kls, err := svc.Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			T: kl.OpenTime,
			O: convert.ToFloat64(kl.Open),
			H: convert.ToFloat64(kl.High),
			L: convert.ToFloat64(kl.Low),
			C: convert.ToFloat64(kl.Close),
			V: convert.ToFloat64(kl.Volume),
		})
	}
	return out, nil
}
