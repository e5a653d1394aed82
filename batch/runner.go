package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Runner executes chunk tasks on a bounded goroutine pool.
// A Runner is safe for concurrent use by multiple callers.
type Runner struct {
	pool   *ants.Pool
	logger *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner) error

// WithPoolSize sets the number of workers.
// Default is runtime.NumCPU(), with a minimum of 4.
func WithPoolSize(size int) Option {
	return func(r *Runner) error {
		if size < 1 {
			size = 1
		}
		if r.pool != nil {
			r.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		r.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRunner creates a Runner. Callers must Release it when done.
func NewRunner(opts ...Option) (*Runner, error) {
	pool, err := ants.NewPool(max(runtime.NumCPU(), 4))
	if err != nil {
		return nil, err
	}
	r := &Runner{
		pool:   pool,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			r.Release()
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "batch-runner")
	return r, nil
}

// Release stops the pool. The Runner must not be used afterwards.
func (r *Runner) Release() {
	if r != nil && r.pool != nil {
		r.pool.Release()
	}
}

// Map runs fn once per chunk, concurrently, and flattens the results in
// chunk order. Every chunk is attempted; if any chunk fails, the error of
// the first failing chunk is returned and the results are discarded.
// A nil Runner runs the chunks sequentially on the calling goroutine.
func Map[T, R any](ctx context.Context, r *Runner, chunks [][]T, fn func(ctx context.Context, chunk []T) ([]R, error)) ([]R, error) {
	switch len(chunks) {
	case 0:
		return nil, nil
	case 1:
		return fn(ctx, chunks[0])
	}

	results := make([][]R, len(chunks))
	errs := make([]error, len(chunks))

	if r == nil {
		for i, chunk := range chunks {
			results[i], errs[i] = fn(ctx, chunk)
		}
	} else {
		r.run(len(chunks), func(i int) {
			results[i], errs[i] = fn(ctx, chunks[i])
		}, errs)
	}

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("chunk %d of %d: %w", i+1, len(chunks), err)
		}
	}

	total := 0
	for _, res := range results {
		total += len(res)
	}
	flat := make([]R, 0, total)
	for _, res := range results {
		flat = append(flat, res...)
	}
	return flat, nil
}

// Each is Map for chunk functions that produce no results.
func Each[T any](ctx context.Context, r *Runner, chunks [][]T, fn func(ctx context.Context, chunk []T) error) error {
	_, err := Map(ctx, r, chunks, func(ctx context.Context, chunk []T) ([]struct{}, error) {
		return nil, fn(ctx, chunk)
	})
	return err
}

// run submits n tasks and blocks until all of them finish. Submission
// failures and panics are recorded in errs at the task's index.
func (r *Runner) run(n int, task func(i int), errs []error) {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		err := r.pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					r.logger.Error("chunk task panicked", "chunk", i, "panic", p)
					errs[i] = fmt.Errorf("%w: %v", ErrChunkPanicked, p)
				}
			}()
			task(i)
		})
		if err != nil {
			wg.Done()
			errs[i] = fmt.Errorf("%w: %w", ErrSubmitFailed, err)
		}
	}
	wg.Wait()
}
