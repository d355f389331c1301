// Package worker runs classification and resampling work on a bounded set
// of goroutines and paces calls to rate-limited endpoints.
package worker

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Task computes the value for index i
type Task[T any] func(ctx context.Context, i int) (T, error)

// Outcome is the value or error of one task
type Outcome[T any] struct {
	Index int
	Value T
	Err   error
}

// Pool bounds how many tasks run at once
type Pool struct {
	workers  int
	progress func(done, total int)
}

// NewPool sizes the pool; zero or negative workers means one per CPU
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{workers: workers}
}

func (p *Pool) Workers() int {
	return p.workers
}

// OnProgress registers a callback invoked after each finished task. Calls
// are serialized and done increases by one each time.
func (p *Pool) OnProgress(fn func(done, total int)) *Pool {
	p.progress = fn
	return p
}

// Map runs n tasks and returns their outcomes in index order. A failing task
// does not stop the others. Once ctx is done no further task starts, and
// every task that did not run carries ctx.Err().
func Map[T any](ctx context.Context, p *Pool, n int, task Task[T]) ([]Outcome[T], error) {
	out := make([]Outcome[T], n)
	for i := range out {
		out[i].Index = i
	}
	if n == 0 {
		return out, ctx.Err()
	}

	indices := make(chan int)
	started := make([]bool, n)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)
	for w := 0; w < min(p.workers, n); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				v, err := task(ctx, i)
				out[i].Value, out[i].Err = v, err

				mu.Lock()
				done++
				if p.progress != nil {
					p.progress(done, n)
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			break dispatch
		case indices <- i:
			started[i] = true
		}
	}
	close(indices)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		for i := range out {
			if !started[i] {
				out[i].Err = err
			}
		}
		return out, err
	}
	return out, nil
}

// All runs n tasks and stops at the first error, which it returns. The
// context passed to tasks is cancelled when any task fails.
func All(ctx context.Context, p *Pool, n int, task func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	var mu sync.Mutex
	done := 0
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := task(gctx, i); err != nil {
				return err
			}
			if p.progress != nil {
				mu.Lock()
				done++
				p.progress(done, n)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
