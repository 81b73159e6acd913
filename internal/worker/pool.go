// Package worker runs external calls (transcription, inference, dispatch) on a
// fixed pool so a slow provider call for one meeting never delays ingestion for
// another. Pool size is independent of the number of active sessions.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

var (
	ErrQueueFull = errors.New("worker queue is full")
	ErrClosed    = errors.New("worker pool is closed")
)

type Task func(ctx context.Context)

type Pool struct {
	tasks  chan Task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closed    atomic.Bool
	processed atomic.Int64
}

func NewPool(size, queueDepth int) *Pool {
	if size <= 0 {
		size = 1
	}
	if queueDepth <= 0 {
		queueDepth = size * 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tasks:  make(chan Task, queueDepth),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.invoke(task)
		}
	}
}

func (p *Pool) invoke(task Task) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker task panicked", "panic", r)
		}
	}()
	task(p.ctx)
	p.processed.Add(1)
}

// Submit enqueues a task without blocking. A full queue is reported to the
// caller, which treats it as a transient failure.
func (p *Pool) Submit(task Task) error {
	if p.closed.Load() {
		return ErrClosed
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool) Processed() int64 {
	return p.processed.Load()
}

// Shutdown stops accepting tasks and waits for in-flight tasks until ctx
// expires, after which remaining tasks are cancelled.
func (p *Pool) Shutdown(ctx context.Context) {
	if p.closed.Swap(true) {
		return
	}
	close(p.tasks)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("worker pool drain timeout; cancelling remaining tasks")
		p.cancel()
		<-done
	}
	p.cancel()
}
