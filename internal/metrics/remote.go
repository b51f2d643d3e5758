package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chattrack/internal/backtest"
	"chattrack/internal/config"
	"chattrack/internal/logger"

	"github.com/tidwall/gjson"
)

// Request 是 POST /api/metrics 的请求体。
type Request struct {
	Equity         []backtest.Point `json:"equity"`
	RiskFreeAnnual *float64         `json:"rf_rate_annual,omitempty"`
	TradesCount    *int             `json:"trades_count,omitempty"`
}

// Options 把请求体转换为本地计算参数。
func (r Request) Options() Options {
	opts := Options{RiskFreeAnnual: r.RiskFreeAnnual}
	if r.TradesCount != nil {
		opts.TradeCount = *r.TradesCount
	}
	return opts
}

// RemoteClient 调用远端指标服务。
type RemoteClient struct {
	endpoint   *url.URL
	httpClient *http.Client
}

// NewRemoteClient 以 metrics.remote_url 为基地址构造客户端。
func NewRemoteClient(cfg config.MetricsConfig) (*RemoteClient, error) {
	raw := strings.TrimSpace(cfg.RemoteURL)
	if raw == "" {
		return nil, fmt.Errorf("metrics.remote_url 不能为空")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("解析 metrics.remote_url 失败: %w", err)
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/") + "/api/metrics"
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RemoteClient{
		endpoint:   parsed,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Compute 请求远端计算指标。
func (c *RemoteClient) Compute(ctx context.Context, points []backtest.Point, opts Options) (Summary, error) {
	if c == nil {
		return Summary{}, fmt.Errorf("metrics client 未初始化")
	}
	if len(points) == 0 {
		return Summary{}, fmt.Errorf("equity 至少需要一个点")
	}
	rf := opts.riskFree()
	trades := opts.TradeCount
	buf, err := json.Marshal(Request{Equity: points, RiskFreeAnnual: &rf, TradesCount: &trades})
	if err != nil {
		return Summary{}, fmt.Errorf("序列化请求失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(buf))
	if err != nil {
		return Summary{}, fmt.Errorf("构造请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Summary{}, fmt.Errorf("调用指标服务失败: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Summary{}, fmt.Errorf("读取指标响应失败: %w", err)
	}
	if resp.StatusCode >= 300 {
		return Summary{}, fmt.Errorf("指标服务返回错误(%s): %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return decodeSummary(data)
}

func decodeSummary(data []byte) (Summary, error) {
	if !gjson.ValidBytes(data) {
		return Summary{}, fmt.Errorf("指标响应不是合法 JSON")
	}
	parsed := gjson.ParseBytes(data)
	if !parsed.IsObject() {
		return Summary{}, fmt.Errorf("指标响应根节点必须是对象")
	}
	for _, key := range []string{"totalReturnPct", "sharpe", "maxDDPct"} {
		if !parsed.Get(key).Exists() {
			return Summary{}, fmt.Errorf("指标响应缺少字段 %s", key)
		}
	}
	return Summary{
		TotalReturnPct: parsed.Get("totalReturnPct").Float(),
		CAGR:           parsed.Get("cagr").Float(),
		Sharpe:         parsed.Get("sharpe").Float(),
		MaxDDPct:       parsed.Get("maxDDPct").Float(),
		VolAnnualized:  parsed.Get("volAnnualized").Float(),
		TradesCount:    int(parsed.Get("tradesCount").Int()),
	}, nil
}

// Service 优先使用远端指标服务，失败时回退到本地公式。
type Service struct {
	remote *RemoteClient
	rf     float64
}

// NewService 构造指标服务；remote 为 nil 时只用本地计算。
func NewService(remote *RemoteClient, riskFreeAnnual float64) *Service {
	return &Service{remote: remote, rf: riskFreeAnnual}
}

// Options 返回带默认利率的参数。
func (s *Service) Options(trades int) Options {
	return Options{TradeCount: trades}.WithRiskFree(s.rf)
}

// Compute 计算指标，永不失败。
func (s *Service) Compute(ctx context.Context, points []backtest.Point, opts Options) Summary {
	if opts.RiskFreeAnnual == nil {
		opts = opts.WithRiskFree(s.rf)
	}
	if s.remote != nil && len(points) > 0 {
		sum, err := s.remote.Compute(ctx, points, opts)
		if err == nil {
			return sum
		}
		logger.Warnf("[metrics] 远端指标计算失败，改用本地公式: %v", err)
	}
	return Compute(points, opts)
}
