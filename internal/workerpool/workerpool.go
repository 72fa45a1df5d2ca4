// Package workerpool runs fetch tasks on a bounded pond pool that rejects
// instead of blocking when its queue is full.
package workerpool

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned by TrySubmit when every queue slot is taken.
	ErrQueueFull = errors.New("worker pool queue full")
	// ErrClosed is returned by TrySubmit after Close has been called.
	ErrClosed = errors.New("worker pool closed")
)

// Task is one unit of work. It runs on a pool goroutine.
type Task func()

// Pool runs at most workers tasks at once with up to queueSize more waiting.
// Submission never blocks: a full queue rejects the task.
type Pool struct {
	pool   pond.Pool
	logger *zap.Logger

	mu     sync.RWMutex // guards closed and submission to pool
	closed bool

	stopOnce sync.Once
	done     chan struct{}
}

// New creates a pool of workers goroutines and a queue of queueSize slots.
// Non-positive sizes fall back to 1.
func New(workers, queueSize int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		pool: pond.NewPool(workers,
			pond.WithQueueSize(queueSize),
			pond.WithNonBlocking(true),
		),
		logger: logger,
		done:   make(chan struct{}),
	}
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker task panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	task()
}

// TrySubmit queues task without blocking.
func (p *Pool) TrySubmit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	err := p.pool.Go(func() { p.run(task) })
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pond.ErrQueueFull):
		return ErrQueueFull
	case errors.Is(err, pond.ErrPoolStopped):
		return ErrClosed
	default:
		return err
	}
}

// Pending returns the number of queued tasks not yet picked up by a worker.
func (p *Pool) Pending() int {
	return int(p.pool.WaitingTasks())
}

// Close stops accepting tasks and waits for queued and running tasks to finish.
// Returns ctx.Err() if ctx is done first; the pool keeps draining in the background.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.stopOnce.Do(func() {
		go func() {
			p.pool.StopAndWait()
			close(p.done)
		}()
	})

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
