// Package workerpool runs jobs on a fixed set of goroutines. Results are
// gathered per Room, so unrelated callers can share one pool.
package workerpool

import (
	"context"
	"errors"
	"runtime"
	"sync"
)

var ErrPoolClosed = errors.New("worker pool is closed")

type WorkerPool struct {
	config    Config
	taskQueue chan func()

	mu      sync.RWMutex
	closed  bool
	workers sync.WaitGroup
}

type Config struct {
	WorkerCount  int
	GlobalBuffer int
}

// Result is what a job produced.
type Result[T any] struct {
	Value T
	Err   error
}

type Room[T any] struct {
	resultChan chan Result[T]
	wg         sync.WaitGroup
	wp         *WorkerPool
}

func NewWorkerPool(config Config) *WorkerPool {
	if config.WorkerCount < 1 {
		config.WorkerCount = runtime.NumCPU()
	}

	if config.GlobalBuffer < 1 {
		config.GlobalBuffer = 10000
	}

	wp := &WorkerPool{
		config:    config,
		taskQueue: make(chan func(), config.GlobalBuffer),
	}

	wp.workers.Add(config.WorkerCount)
	for i := 0; i < config.WorkerCount; i++ {
		go wp.worker()
	}

	return wp
}

func (wp *WorkerPool) WorkerCount() int {
	return wp.config.WorkerCount
}

func (wp *WorkerPool) worker() {
	defer wp.workers.Done()
	for run := range wp.taskQueue {
		run()
	}
}

// Close stops accepting tasks and waits until queued ones have run.
func (wp *WorkerPool) Close() {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return
	}
	wp.closed = true
	close(wp.taskQueue)
	wp.mu.Unlock()

	wp.workers.Wait()
}

// enqueue blocks until the task is queued or ctx is done.
func (wp *WorkerPool) enqueue(ctx context.Context, run func()) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.closed {
		return ErrPoolClosed
	}

	select {
	case wp.taskQueue <- run:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func CreateRoom[T any](wp *WorkerPool, size int) *Room[T] {
	return &Room[T]{
		resultChan: make(chan Result[T], size),
		wp:         wp,
	}
}

func (ro *Room[T]) task(job func() (T, error)) func() {
	return func() {
		v, err := job()
		ro.resultChan <- Result[T]{Value: v, Err: err}
		ro.wg.Done()
	}
}

// NewTaskWaitForFreeSlot queues job, waiting for room in the global queue.
// Results beyond the room size block their worker until Collect runs.
func (ro *Room[T]) NewTaskWaitForFreeSlot(ctx context.Context, job func() (T, error)) error {
	ro.wg.Add(1)
	if err := ro.wp.enqueue(ctx, ro.task(job)); err != nil {
		ro.wg.Done()
		return err
	}
	return nil
}

// Collect waits for every queued task of the room and returns the results
// in completion order. No tasks may be added afterwards.
func (ro *Room[T]) Collect() []Result[T] {
	go ro.waitAndClose()

	results := make([]Result[T], 0, cap(ro.resultChan))
	for result := range ro.resultChan {
		results = append(results, result)
	}
	return results
}

func (ro *Room[T]) waitAndClose() {
	ro.wg.Wait()
	close(ro.resultChan)
}

// Submit runs job on the pool and waits for its result or for ctx.
// job receives ctx and should return early once it is done.
func Submit[T any](ctx context.Context, wp *WorkerPool, job func(context.Context) (T, error)) (T, error) {
	var zero T
	done := make(chan Result[T], 1)

	err := wp.enqueue(ctx, func() {
		v, err := job(ctx)
		done <- Result[T]{Value: v, Err: err}
	})
	if err != nil {
		return zero, err
	}

	select {
	case r := <-done:
		return r.Value, r.Err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
