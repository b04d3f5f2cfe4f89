package concurrent

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ForEach runs action for each element of in, with at most workers actions in
// flight (workers <= 0 means unbounded). It waits for all started actions and
// returns the first error encountered; after an error the context passed to
// the remaining actions is canceled and unstarted ones are skipped. When the
// parent context ends before every action ran, its error is returned.
func ForEach[T any](ctx context.Context, in []T, workers int, action func(ctx context.Context, idx int, value T) error) error {
	parent := ctx
	group, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		group.SetLimit(workers)
	}

	var skipped atomic.Bool
	for idx, value := range in {
		if ctx.Err() != nil {
			skipped.Store(true)
			break
		}
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				skipped.Store(true)
				return err
			}
			return action(ctx, idx, value)
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}
	if skipped.Load() {
		return parent.Err()
	}
	return nil
}

// ParallelMap applies mapFn to each element in parallel, preserving order.
// The workers parameter bounds the number of goroutines.
func ParallelMap[T any, R any](in []T, workers int, mapFn func(T) R) []R {
	out := make([]R, len(in))
	if workers <= 0 {
		workers = len(in)
	}
	if workers == 0 {
		return out
	}

	sem := semaphore.NewWeighted(int64(workers))
	ctx := context.Background()
	for idx, val := range in {
		// Acquire on a background context never fails.
		_ = sem.Acquire(ctx, 1)
		go func(i int, v T) {
			defer sem.Release(1)
			out[i] = mapFn(v)
		}(idx, val)
	}
	_ = sem.Acquire(ctx, int64(workers))
	return out
}
