package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"chattrack/internal/backtest"
	"chattrack/internal/config"
	"chattrack/internal/logger"
	"chattrack/internal/metrics"

	"github.com/google/uuid"
)

// ErrStopped 表示 Dispatcher 已停止，任务未被执行。
var ErrStopped = errors.New("runner stopped")

// Scorer 为一条权益曲线计算绩效指标。
type Scorer interface {
	Compute(ctx context.Context, points []backtest.Point, opts metrics.Options) metrics.Summary
	Options(trades int) metrics.Options
}

// Task 是一次独立的回测。ID 为空时自动生成。
type Task struct {
	ID      string
	Request backtest.Request
}

// Outcome 是任务的完整结果，不会返回部分结果。
type Outcome struct {
	ID      string
	Result  backtest.Result
	Summary metrics.Summary
	Elapsed time.Duration
	Err     error
}

type job struct {
	task  Task
	reply chan Outcome
}

// Dispatcher 是回测的消息边界：调用方投递 Task，工作协程各自同步执行一次回测，
// 通过只写一次的 reply 通道返回 Outcome。单次回测内部不并发、不可中途取消。
type Dispatcher struct {
	engine  *backtest.Engine
	scorer  Scorer
	workers int

	queue   chan job
	stopCh  chan struct{}
	wg      sync.WaitGroup
	pending sync.WaitGroup // 正在投递中的 submit

	mu      sync.Mutex
	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewDispatcher(engine *backtest.Engine, scorer Scorer, cfg config.RunnerConfig) *Dispatcher {
	if engine == nil {
		engine = backtest.NewEngine(backtest.DefaultCosts())
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	queue := cfg.Queue
	if queue < 0 {
		queue = 0
	}
	return &Dispatcher{
		engine:  engine,
		scorer:  scorer,
		workers: workers,
		queue:   make(chan job, queue),
		stopCh:  make(chan struct{}),
	}
}

// Start 启动工作协程，重复调用无副作用。
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true
	d.ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.loop(i)
	}
	logger.Infof("[runner] 已启动 workers=%d queue=%d", d.workers, cap(d.queue))
}

// Stop 停止接收任务并等待进行中的任务完成。队列中未执行的任务返回 ErrStopped。
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.stopCh)
	cancel := d.cancel
	d.mu.Unlock()

	d.wg.Wait()
	d.pending.Wait()
	if cancel != nil {
		cancel()
	}
	for {
		select {
		case j := <-d.queue:
			j.reply <- Outcome{ID: j.task.ID, Err: ErrStopped}
		default:
			logger.Infof("[runner] 已停止")
			return
		}
	}
}

// Submit 投递任务，返回的通道恰好收到一个 Outcome。队列已满时阻塞直到有空位或停止。
func (d *Dispatcher) Submit(task Task) <-chan Outcome {
	reply, _ := d.submit(context.Background(), task)
	return reply
}

// Run 投递任务并等待结果。ctx 只控制排队与等待，不会中断已开始的回测。
func (d *Dispatcher) Run(ctx context.Context, task Task) (Outcome, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	reply, err := d.submit(ctx, task)
	if err != nil {
		return Outcome{ID: task.ID}, err
	}
	select {
	case out := <-reply:
		return out, out.Err
	case <-ctx.Done():
		return Outcome{ID: task.ID}, ctx.Err()
	}
}

func (d *Dispatcher) submit(ctx context.Context, task Task) (<-chan Outcome, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	reply := make(chan Outcome, 1)
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		reply <- Outcome{ID: task.ID, Err: ErrStopped}
		return reply, nil
	}
	d.pending.Add(1)
	d.mu.Unlock()
	defer d.pending.Done()

	select {
	case d.queue <- job{task: task, reply: reply}:
	case <-d.stopCh:
		reply <- Outcome{ID: task.ID, Err: ErrStopped}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return reply, nil
}

func (d *Dispatcher) loop(worker int) {
	defer d.wg.Done()
	for {
		select {
		case <-d.stopCh:
			return
		case j := <-d.queue:
			j.reply <- d.execute(j.task)
			logger.Debugf("[runner] worker=%d 完成 %s", worker, j.task.ID)
		}
	}
}

func (d *Dispatcher) execute(task Task) (out Outcome) {
	start := time.Now()
	out.ID = task.ID
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[runner] 回测 %s panic: %v\n%s", task.ID, r, debug.Stack())
			out = Outcome{ID: task.ID, Err: fmt.Errorf("回测执行失败: %v", r)}
		}
		out.Elapsed = time.Since(start)
	}()

	out.Result = d.engine.Run(task.Request)
	if d.scorer != nil {
		out.Summary = d.scorer.Compute(d.context(), out.Result.Equity, d.scorer.Options(out.Result.TradesCount))
	} else {
		out.Summary = metrics.Compute(out.Result.Equity, metrics.Options{TradeCount: out.Result.TradesCount})
	}
	return out
}

func (d *Dispatcher) context() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return context.Background()
	}
	return d.ctx
}
