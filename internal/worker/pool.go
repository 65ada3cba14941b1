// Package worker runs batches of image edits in parallel.
package worker

import (
	"context"
	"sync"
	"time"
)

// Processor edits one input file and writes the result.
type Processor interface {
	Process(ctx context.Context, task Task) (output string, err error)
}

// ProcessorFunc adapts a plain function to Processor.
type ProcessorFunc func(ctx context.Context, task Task) (string, error)

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, task Task) (string, error) {
	return f(ctx, task)
}

// Task is one file of a batch.
type Task struct {
	Input  string
	Output string
}

// Result is the outcome of a Task.
type Result struct {
	Task    Task
	Output  string
	Err     error
	Elapsed time.Duration
}

// ProgressFunc is called after each task completes.
type ProgressFunc func(completed, total, failed int)

// Config configures the worker pool.
type Config struct {
	Workers    int
	Processor  Processor
	OnProgress ProgressFunc
}

// Pool fans a batch out to a fixed number of workers.
type Pool struct {
	processor  Processor
	onProgress ProgressFunc
	workers    int
}

// New creates a new worker pool.
func New(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Pool{
		workers:    workers,
		processor:  cfg.Processor,
		onProgress: cfg.OnProgress,
	}
}

// Run executes all tasks and blocks until every one has a result. Results
// are returned in task order. Tasks not started before ctx is cancelled
// report ctx.Err().
func (p *Pool) Run(ctx context.Context, tasks []Task) []Result {
	if len(tasks) == 0 {
		return nil
	}

	indexCh := make(chan int)
	results := make([]Result, len(tasks))

	var (
		completed int
		failed    int
		mu        sync.Mutex
	)
	report := func(i int, r Result) {
		mu.Lock()
		results[i] = r
		completed++
		if r.Err != nil {
			failed++
		}
		c, f := completed, failed
		if p.onProgress != nil {
			p.onProgress(c, len(tasks), f)
		}
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indexCh {
				report(idx, p.run(ctx, tasks[idx]))
			}
		}()
	}

	next := 0
feed:
	for ; next < len(tasks); next++ {
		select {
		case indexCh <- next:
		case <-ctx.Done():
			break feed
		}
	}
	close(indexCh)
	wg.Wait()

	for ; next < len(tasks); next++ {
		report(next, Result{Task: tasks[next], Err: ctx.Err()})
	}

	return results
}

func (p *Pool) run(ctx context.Context, task Task) Result {
	if err := ctx.Err(); err != nil {
		return Result{Task: task, Err: err}
	}

	start := time.Now()
	out, err := p.processor.Process(ctx, task)
	return Result{
		Task:    task,
		Output:  out,
		Err:     err,
		Elapsed: time.Since(start),
	}
}
