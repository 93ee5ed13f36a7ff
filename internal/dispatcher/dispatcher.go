// Package dispatcher manages worker fan-out over the fetch-task queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/shadwo/mediadock/internal/media"
	"github.com/shadwo/mediadock/internal/worker"
)

// Dispatcher fans out queued fetch tasks to a pool of workers. The pool
// is sized to the concurrency cap, so the cap holds even under
// submission bursts.
type Dispatcher struct {
	queue   media.Queue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue media.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, task media.FetchTask) error {
	if err := d.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
