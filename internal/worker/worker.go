// Package worker provides a small fixed-size task pool shared by
// concurrent submitters. The pool owns no completion state; a caller
// that needs to await its own tasks wraps them with a WaitGroup it
// owns, so overlapping callers never contend on shared wait state.
package worker

import (
	"context"
	"sync"
)

type Task func(ctx context.Context)

type Pool struct {
	numWorkers int
	tasks      chan Task
	workers    sync.WaitGroup
}

func NewPool(numWorkers, bufferSize int) *Pool {
	return &Pool{
		numWorkers: numWorkers,
		tasks:      make(chan Task, bufferSize),
	}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.workers.Add(1)
		go p.worker(ctx)
	}
}

// worker drains the task channel until it is closed. Tasks receive the
// pool context and are responsible for honoring its cancellation; the
// loop itself never drops a submitted task.
func (p *Pool) worker(ctx context.Context) {
	defer p.workers.Done()

	for task := range p.tasks {
		task(ctx)
	}
}

// Submit queues a task. It blocks when the buffer is full.
func (p *Pool) Submit(task Task) {
	p.tasks <- task
}

// Stop closes the queue and waits for the workers to drain it. No Submit
// may follow.
func (p *Pool) Stop() {
	close(p.tasks)
	p.workers.Wait()
}
