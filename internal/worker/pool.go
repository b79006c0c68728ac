// Package worker runs independent tasks on a fixed number of goroutines.
package worker

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolStopped is returned by Submit once Stop has been called.
var ErrPoolStopped = errors.New("worker pool stopped")

// Task represents a unit of work for the worker pool
type Task interface {
	Name() string
	Process(ctx context.Context) error
}

// Failure records a task that did not succeed within its attempts.
type Failure struct {
	Task Task
	Err  error
}

// WorkerPool manages a pool of worker goroutines and a queue of tasks
type WorkerPool struct {
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	workers     int
	maxAttempts int
	tasks       chan Task

	// queueMu guards sends on tasks against the close in Wait.
	queueMu sync.RWMutex
	stopped bool

	mu        sync.Mutex
	started   bool
	succeeded int
	failures  []Failure
}

// PoolStats holds monitoring information about the worker pool
type PoolStats struct {
	Workers     int
	QueueLength int
	Succeeded   int
	Failed      int
}

// NewWorkerPool creates a pool of workers that try each task up to
// maxAttempts times. Values below one are raised to one.
func NewWorkerPool(ctx context.Context, workers, maxAttempts int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	cctx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		ctx:         cctx,
		cancel:      cancel,
		workers:     workers,
		maxAttempts: maxAttempts,
		tasks:       make(chan Task, workers),
	}
}

// Start launches the worker goroutines
func (p *WorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.workerLoop()
	}
}

// Submit queues a task, blocking while the queue is full.
func (p *WorkerPool) Submit(task Task) error {
	p.queueMu.RLock()
	defer p.queueMu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.tasks <- task:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Wait closes the queue and blocks until every submitted task has finished.
func (p *WorkerPool) Wait() {
	p.queueMu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.tasks)
	}
	p.queueMu.Unlock()
	p.wg.Wait()
}

// Stop cancels in-flight tasks and waits for the workers to exit.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.Wait()
}

// workerLoop is the main loop for each worker goroutine
func (p *WorkerPool) workerLoop() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.process(task)
	}
}

// process runs a task up to maxAttempts times and records the outcome.
func (p *WorkerPool) process(task Task) {
	var err error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if err = p.ctx.Err(); err != nil {
			break
		}
		if err = task.Process(p.ctx); err == nil {
			break
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.failures = append(p.failures, Failure{Task: task, Err: err})
		return
	}
	p.succeeded++
}

// Failures returns the tasks that did not succeed.
func (p *WorkerPool) Failures() []Failure {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Failure(nil), p.failures...)
}

// Workers returns the number of worker goroutines
func (p *WorkerPool) Workers() int {
	return p.workers
}

// Stats returns current statistics about the worker pool
func (p *WorkerPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Workers:     p.workers,
		QueueLength: len(p.tasks),
		Succeeded:   p.succeeded,
		Failed:      len(p.failures),
	}
}
