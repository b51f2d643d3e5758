// Package marketdata 提供 K 线历史：实时数据源（Alpaca、Binance）经熔断与限流保护，
// 结果写入 parquet 缓存与 sqlite 归档；实时源不可用时依次降级到归档和内置样本。
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chattrack/internal/market"
)

// ErrNoData 表示所有来源都没有该符号的数据。
var ErrNoData = errors.New("no data")

// 数据来源标签。
const (
	SourceCache   = "cache"
	SourceArchive = "archive"
	SourceSample  = "static-sample"
)

// FetchRequest 描述一次实时源拉取（毫秒时间戳，End 为 0 表示不限制）。
type FetchRequest struct {
	Symbol   string
	Interval string
	Start    int64
	End      int64
	Limit    int
}

// Source 统一不同实时数据源的拉取行为。
type Source interface {
	Name() string
	// Supports 报告该源能否提供 symbol（如 Binance 只服务加密交易对）。
	Supports(symbol string) bool
	Fetch(ctx context.Context, req FetchRequest) ([]market.Candle, error)
}

// Query 是对外的 K 线查询。零值字段由 Service 补齐默认值。
type Query struct {
	Symbol    string
	Interval  string
	Aggregate string
	Start     time.Time
	End       time.Time
}

// Series 是一次查询的结果。Offline 为 true 表示数据来自归档或内置样本。
type Series struct {
	Symbol     string         `json:"symbol"`
	Interval   string         `json:"interval"`
	Aggregate  string         `json:"aggregate"`
	Candles    market.Candles `json:"candles"`
	Offline    bool           `json:"offline"`
	Source     string         `json:"source"`
	RangeStart int64          `json:"range_start"`
	RangeEnd   int64          `json:"range_end"`
	Updated    int64          `json:"updated"`
}

func (q Query) key() string {
	return fmt.Sprintf("%s|%s|%s|%d|%d", q.Symbol, q.Interval, q.Aggregate, q.Start.UnixMilli(), q.End.UnixMilli())
}

func (q Query) request() FetchRequest {
	return FetchRequest{
		Symbol:   q.Symbol,
		Interval: q.Interval,
		Start:    q.Start.UnixMilli(),
		End:      q.End.UnixMilli(),
	}
}

func cleanInterval(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
