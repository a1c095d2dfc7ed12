// Package workerpool fans tasks out to a fixed set of workers and funnels
// their results through a single receiver.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrCanceled is returned by Post once the pool stopped accepting tasks.
var ErrCanceled = errors.New("worker pool canceled")

// A Worker processes tasks. Each worker goroutine owns its own Worker, so
// implementations need not be safe for concurrent use.
type Worker[T, R any] interface {
	// Setup runs once before the first task.
	Setup(ctx context.Context) error
	// Work turns a task into a result. An error drops the task.
	Work(ctx context.Context, task T) (R, error)
	// Done runs once after the last task.
	Done() error
}

// A Receiver consumes results one at a time, in arrival order.
type Receiver[R any] interface {
	Setup(ctx context.Context) error
	// Receive handles one result. An error is fatal to the pool.
	Receive(ctx context.Context, result R) error
	Done() error
}

// Config sizes a pool.
type Config struct {
	// Workers defaults to the number of CPUs.
	Workers int
	// QueueSize bounds both the task and the result queue. Post blocks
	// while the task queue is full.
	QueueSize int
	Logger    *slog.Logger
}

// Counts are running totals for a pool.
type Counts struct {
	Posted    int64
	Received  int64
	Failed    int64
	Discarded int64
}

// Pool runs Workers over posted tasks and hands their results to a
// single Receiver.
type Pool[T, R any] struct {
	log     *slog.Logger
	ctx     context.Context
	cancel  context.CancelCauseFunc
	tasks   chan T
	results chan R

	mu     sync.RWMutex
	closed bool

	errMu sync.Mutex
	err   error

	workers    sync.WaitGroup
	writerDone chan struct{}
	closeOnce  sync.Once

	posted, received, failed, discarded atomic.Int64
}

// New starts a pool. newWorker is called once per worker goroutine.
func New[T, R any](ctx context.Context, cfg Config,
	newWorker func(id int) Worker[T, R], recv Receiver[R]) *Pool[T, R] {

	if cfg.Workers < 1 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancelCause(ctx)
	p := &Pool[T, R]{
		log:        cfg.Logger,
		ctx:        ctx,
		cancel:     cancel,
		tasks:      make(chan T, cfg.QueueSize),
		results:    make(chan R, cfg.QueueSize),
		writerDone: make(chan struct{}),
	}

	for i := 0; i < cfg.Workers; i++ {
		p.workers.Add(1)
		go p.runWorker(i, newWorker(i))
	}
	go func() {
		p.workers.Wait()
		close(p.results)
	}()
	go p.runReceiver(recv)

	return p
}

// fail records the first fatal error and stops the workers.
func (p *Pool[T, R]) fail(err error) {
	p.errMu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.errMu.Unlock()
	p.cancel(err)
}

func (p *Pool[T, R]) runWorker(id int, w Worker[T, R]) {
	defer p.workers.Done()

	if err := w.Setup(p.ctx); err != nil {
		p.fail(fmt.Errorf("worker %d setup: %w", id, err))
		return
	}
	defer func() {
		if err := w.Done(); err != nil {
			p.log.Warn("worker teardown failed", "worker", id, "error", err)
		}
	}()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			if p.ctx.Err() != nil {
				p.discarded.Add(1)
				return
			}
			r, err := p.work(w, task)
			if err != nil {
				p.failed.Add(1)
				p.log.Warn("task failed", "worker", id, "error", err)
				continue
			}
			p.results <- r
		}
	}
}

func (p *Pool[T, R]) work(w Worker[T, R], task T) (r R, err error) {
	defer func() {
		if x := recover(); x != nil {
			err = fmt.Errorf("panic: %v", x)
		}
	}()
	return w.Work(p.ctx, task)
}

func (p *Pool[T, R]) runReceiver(recv Receiver[R]) {
	defer close(p.writerDone)

	// Results already produced are still written after a cancel.
	ctx := context.WithoutCancel(p.ctx)
	if err := recv.Setup(ctx); err != nil {
		p.fail(fmt.Errorf("receiver setup: %w", err))
		for range p.results {
			p.discarded.Add(1)
		}
		return
	}

	healthy := true
	for r := range p.results {
		if !healthy {
			p.discarded.Add(1)
			continue
		}
		if err := recv.Receive(ctx, r); err != nil {
			p.fail(err)
			healthy = false
			continue
		}
		p.received.Add(1)
	}

	if err := recv.Done(); err != nil {
		if healthy {
			p.fail(fmt.Errorf("receiver teardown: %w", err))
		} else {
			p.log.Warn("receiver teardown failed", "error", err)
		}
	}
}

// Post queues a task, blocking while the queue is full. It fails once the
// pool was canceled or hit a fatal error.
func (p *Pool[T, R]) Post(task T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed || p.ctx.Err() != nil {
		return p.stopReason()
	}
	select {
	case p.tasks <- task:
		p.posted.Add(1)
		return nil
	case <-p.ctx.Done():
		return p.stopReason()
	}
}

func (p *Pool[T, R]) stopReason() error {
	if err := p.Err(); err != nil {
		return err
	}
	return ErrCanceled
}

func (p *Pool[T, R]) finish() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		p.mu.Unlock()
	})
	<-p.writerDone
	// Tasks left in the queue were never picked up.
	for range p.tasks {
		p.discarded.Add(1)
	}
	return p.Err()
}

// Done declares that no more tasks will be posted and waits for every
// queued task to be worked and received. It returns the fatal error, if
// any.
func (p *Pool[T, R]) Done() error {
	err := p.finish()
	p.cancel(nil)
	return err
}

// Cancel stops the workers after their current task, lets the receiver
// drain the results already produced, and waits for both. Queued tasks
// are discarded. It may be called concurrently with Post.
func (p *Pool[T, R]) Cancel() error {
	p.cancel(ErrCanceled)
	return p.finish()
}

// Err is the error that aborted the pool, or nil.
func (p *Pool[T, R]) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

// Counts reports the pool's running totals.
func (p *Pool[T, R]) Counts() Counts {
	return Counts{
		Posted:    p.posted.Load(),
		Received:  p.received.Load(),
		Failed:    p.failed.Load(),
		Discarded: p.discarded.Load(),
	}
}
