package service

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

var (
	ErrPoolClosed   = errors.New("worker pool is closed")
	ErrShuttingDown = errors.New("shutting down")
)

// WorkerPool runs one goroutine per task. At most `workers` tasks execute at
// once; the rest wait for a slot without blocking the caller of Go.
type WorkerPool struct {
	sem     *semaphore.Weighted
	workers int

	// admitCtx gates slot acquisition and is canceled as soon as shutdown
	// starts. runCtx is handed to tasks and is canceled only when shutdown
	// gives up waiting.
	admitCtx    context.Context
	stopAdmit   context.CancelFunc
	runCtx      context.Context
	stopRunning context.CancelCauseFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewWorkerPool creates a pool. workers <= 0 means no concurrency limit.
func NewWorkerPool(workers int) *WorkerPool {
	wp := &WorkerPool{workers: workers}
	if workers > 0 {
		wp.sem = semaphore.NewWeighted(int64(workers))
	}
	wp.admitCtx, wp.stopAdmit = context.WithCancel(context.Background())
	wp.runCtx, wp.stopRunning = context.WithCancelCause(context.Background())
	return wp
}

func (wp *WorkerPool) Workers() int {
	return wp.workers
}

// Go schedules run. If the pool shuts down before run got a slot, rejected
// is called instead. Exactly one of them runs.
func (wp *WorkerPool) Go(run func(ctx context.Context), rejected func()) error {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return ErrPoolClosed
	}
	wp.wg.Add(1)
	wp.mu.Unlock()

	go func() {
		defer wp.wg.Done()
		if wp.sem != nil {
			if err := wp.sem.Acquire(wp.admitCtx, 1); err != nil {
				if rejected != nil {
					rejected()
				}
				return
			}
			defer wp.sem.Release(1)
		}
		if wp.admitCtx.Err() != nil {
			if rejected != nil {
				rejected()
			}
			return
		}
		run(wp.runCtx)
	}()
	return nil
}

// Shutdown stops admitting work and waits for running tasks. When ctx
// expires first, running tasks are canceled with ErrShuttingDown and
// Shutdown still waits for them to return.
func (wp *WorkerPool) Shutdown(ctx context.Context) error {
	wp.mu.Lock()
	wp.closed = true
	wp.mu.Unlock()
	wp.stopAdmit()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.stopRunning(ErrShuttingDown)
		return nil
	case <-ctx.Done():
		wp.stopRunning(ErrShuttingDown)
		<-done
		return ctx.Err()
	}
}
