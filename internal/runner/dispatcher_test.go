package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"chattrack/internal/backtest"
	"chattrack/internal/config"
	"chattrack/internal/intent"
	"chattrack/internal/market"
	"chattrack/internal/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockScorer struct {
	mock.Mock
}

func (m *mockScorer) Compute(ctx context.Context, points []backtest.Point, opts metrics.Options) metrics.Summary {
	args := m.Called(len(points), opts.TradeCount)
	return args.Get(0).(metrics.Summary)
}

func (m *mockScorer) Options(trades int) metrics.Options {
	return metrics.Options{TradeCount: trades}
}

type panicScorer struct{}

func (panicScorer) Compute(context.Context, []backtest.Point, metrics.Options) metrics.Summary {
	panic("boom")
}

func (panicScorer) Options(int) metrics.Options { return metrics.Options{} }

func request() backtest.Request {
	start := time.Date(2024, 10, 1, 13, 30, 0, 0, time.UTC).UnixMilli()
	candles := make([]market.Candle, 5)
	for i := range candles {
		p := 100 + float64(i)
		candles[i] = market.Candle{T: start + int64(i)*60000, O: p, H: p, L: p, C: p, V: 1}
	}
	buy, _ := intent.NewBuy("SPY", 1, 0, false)
	return backtest.Request{
		Candles:   map[string][]market.Candle{"SPY": candles},
		Actions:   []intent.Action{buy},
		StartCash: 1000,
	}
}

func TestDispatcher_Run(t *testing.T) {
	scorer := &mockScorer{}
	scorer.On("Compute", 5, 1).Return(metrics.Summary{TotalReturnPct: 1.5, TradesCount: 1})

	d := NewDispatcher(nil, scorer, config.RunnerConfig{Workers: 2, Queue: 4})
	d.Start(context.Background())
	defer d.Stop()

	out, err := d.Run(context.Background(), Task{Request: request()})
	require.NoError(t, err)
	assert.NotEmpty(t, out.ID)
	assert.Equal(t, 1, out.Result.TradesCount)
	assert.Len(t, out.Result.Equity, 5)
	assert.Equal(t, 1.5, out.Summary.TotalReturnPct)
	scorer.AssertExpectations(t)
}

func TestDispatcher_LocalMetricsAndConcurrency(t *testing.T) {
	d := NewDispatcher(nil, nil, config.RunnerConfig{Workers: 3, Queue: 1})
	d.Start(context.Background())
	defer d.Stop()

	const n = 12
	var wg sync.WaitGroup
	results := make([]Outcome, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = <-d.Submit(Task{Request: request()})
		}(i)
	}
	wg.Wait()

	first := results[0]
	require.NoError(t, first.Err)
	assert.Equal(t, 1, first.Summary.TradesCount)
	ids := map[string]bool{}
	for _, out := range results {
		require.NoError(t, out.Err)
		assert.Equal(t, first.Result, out.Result, "runs are deterministic")
		ids[out.ID] = true
	}
	assert.Len(t, ids, n)
}

func TestDispatcher_KeepsTaskID(t *testing.T) {
	d := NewDispatcher(nil, nil, config.RunnerConfig{Workers: 1})
	d.Start(context.Background())
	defer d.Stop()
	out := <-d.Submit(Task{ID: "run-1", Request: request()})
	assert.Equal(t, "run-1", out.ID)
}

func TestDispatcher_RecoversPanic(t *testing.T) {
	d := NewDispatcher(nil, panicScorer{}, config.RunnerConfig{Workers: 1})
	d.Start(context.Background())
	defer d.Stop()

	out := <-d.Submit(Task{ID: "bad", Request: request()})
	require.Error(t, out.Err)
	assert.Contains(t, out.Err.Error(), "boom")

	// 工作协程在 panic 后仍可继续处理
	d.scorer = nil
	out = <-d.Submit(Task{Request: request()})
	assert.NoError(t, out.Err)
}

func TestDispatcher_Stopped(t *testing.T) {
	d := NewDispatcher(nil, nil, config.RunnerConfig{Workers: 1, Queue: 2})
	d.Start(context.Background())
	d.Stop()
	d.Stop()

	out := <-d.Submit(Task{ID: "late", Request: request()})
	assert.ErrorIs(t, out.Err, ErrStopped)
	assert.Equal(t, "late", out.ID)

	_, err := d.Run(context.Background(), Task{Request: request()})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestDispatcher_StopAnswersConcurrentSubmits(t *testing.T) {
	for round := 0; round < 20; round++ {
		d := NewDispatcher(nil, nil, config.RunnerConfig{Workers: 1, Queue: 1})
		d.Start(context.Background())

		const n = 16
		replies := make(chan (<-chan Outcome), n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				replies <- d.Submit(Task{Request: request()})
			}()
		}
		d.Stop()
		wg.Wait()
		close(replies)

		for reply := range replies {
			select {
			case out := <-reply:
				if out.Err != nil {
					assert.ErrorIs(t, out.Err, ErrStopped)
				}
			case <-time.After(2 * time.Second):
				t.Fatalf("round %d: submit never answered", round)
			}
		}
	}
}

func TestDispatcher_RunHonoursContext(t *testing.T) {
	d := NewDispatcher(nil, nil, config.RunnerConfig{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// 未启动的 Dispatcher 不会消费队列，等待只能由 ctx 结束
	_, err := d.Run(ctx, Task{ID: "wait", Request: request()})
	assert.ErrorIs(t, err, context.Canceled)
}
