// Package bridge offloads blocking browser work onto a worker pool so that
// async callers (websocket handlers, heartbeats) can wait on or cancel it.
package bridge

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrCancelled is returned by Wait when a future was cancelled before a
// result arrived.
var ErrCancelled = errors.New("bridge: future cancelled")

// ErrPoolClosed is returned by Submit after the pool shut down.
var ErrPoolClosed = errors.New("bridge: pool closed")

// Job is a unit of blocking work executed on a pool worker. The context is
// cancelled when the job's future is cancelled or the pool shuts down.
type Job func(ctx context.Context) (any, error)

// Future holds the single result of a submitted job. The first of
// resolve/reject/Cancel wins; later settlements are dropped.
type Future struct {
	done   chan struct{}
	cancel context.CancelFunc

	once  sync.Once
	value any
	err   error
}

func newFuture(cancel context.CancelFunc) *Future {
	return &Future{done: make(chan struct{}), cancel: cancel}
}

func (f *Future) settle(value any, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Cancel settles the future with ErrCancelled and signals the running job to
// stop. Safe to call more than once and after completion.
func (f *Future) Cancel() {
	f.cancel()
	f.settle(nil, ErrCancelled)
}

// Wait blocks until the job settles or the caller's context ends. A context
// expiry does not cancel the job itself; call Cancel for that.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done exposes completion for select loops.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

type task struct {
	ctx    context.Context
	job    Job
	future *Future
}

// Pool runs jobs on a fixed set of worker goroutines.
type Pool struct {
	tasks  chan task
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool starts a pool with the given number of workers.
func NewPool(workers int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		tasks:  make(chan task),
		logger: logger,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for t := range p.tasks {
		if err := t.ctx.Err(); err != nil {
			t.future.settle(nil, err)
			t.future.cancel()
			continue
		}
		value, err := t.job(t.ctx)
		if err != nil {
			p.logger.Debug("bridge job failed", zap.Int("worker", id), zap.Error(err))
		}
		t.future.settle(value, err)
		t.future.cancel()
	}
}

// Submit enqueues a job and returns its future. Blocks until a worker picks
// the job up or the caller's context ends.
func (p *Pool) Submit(ctx context.Context, job Job) (*Future, error) {
	// The read lock spans the send so Close cannot close the channel under a
	// blocked Submit.
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrPoolClosed
	}

	jobCtx, cancel := context.WithCancel(ctx)
	f := newFuture(cancel)
	select {
	case p.tasks <- task{ctx: jobCtx, job: job, future: f}:
		return f, nil
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}
}

// Close stops accepting jobs and waits for in-flight work to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
