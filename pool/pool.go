// Package pool implements the semaphore-gated spawner of spec.md §4.F:
// Pool(concurrency) bounds how many Tasks may run at once while
// presenting the same Spawn/pmap-family surface as package task/combine,
// with every blocking point routed through task.MayBlock so saturation
// waits count toward a Context's all-blocked detection.
//
// Adapted from the teacher's orchestrate/workflows.ProcessParallel
// worker-queue shape (indexedItem/indexedResult, collectResults'
// ordering-by-index) but built around a semaphore-gated task.Spawn per
// item rather than a fixed pool of long-lived worker goroutines, matching
// spec.md §4.F's "semaphore-gated spawner" description of Pool.
package pool

import (
	"context"
	"sync/atomic"

	"github.com/mikekap/gbatchy/combine"
	"github.com/mikekap/gbatchy/future"
	"github.com/mikekap/gbatchy/rtconfig"
	"github.com/mikekap/gbatchy/task"
)

// Pool bounds concurrent Task execution to a fixed capacity.
type Pool struct {
	sem chan struct{}
}

// New returns a Pool allowing at most concurrency Tasks to run at once.
func New(concurrency int) *Pool {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Pool{sem: make(chan struct{}, concurrency)}
}

// acquire reserves one slot, blocking (inside MayBlock) if the Pool is
// saturated. It reports whether a slot was actually reserved; release is
// a no-op unless acquired is true, so a caller that gave up on ctx being
// done never drains a slot some other, still-running caller holds.
func (p *Pool) acquire(ctx context.Context) (acquired bool, release func()) {
	scoped, markRunnable := task.MayBlock(ctx)
	defer markRunnable()
	select {
	case p.sem <- struct{}{}:
		return true, func() { <-p.sem }
	case <-scoped.Done():
		return false, func() {}
	}
}

// WaitAvailable blocks (inside MayBlock) until the Pool has a free slot,
// without holding it.
func (p *Pool) WaitAvailable(ctx context.Context) {
	scoped, release := task.MayBlock(ctx)
	defer release()
	select {
	case p.sem <- struct{}{}:
		<-p.sem
	case <-scoped.Done():
	}
}

// Spawn reserves a slot and runs fn as a Task once it's available,
// releasing the slot when fn returns. If ctx is canceled before a slot
// frees up, fn never runs and the returned Future settles with ctx's
// error instead.
func (p *Pool) Spawn(ctx context.Context, fn func(context.Context) (any, error)) *future.Future[any] {
	acquired, release := p.acquire(ctx)
	if !acquired {
		f := future.NewFromContext[any](ctx)
		f.SetError(future.NewErrInfo(future.KindUser, ctx.Err()))
		return f
	}
	return rtconfig.Spawn(ctx, func(inner context.Context) (any, error) {
		defer release()
		return fn(inner)
	})
}

// PMap runs fn over items with at most the Pool's concurrency running at
// once, returning results in input order (first error wins, matching
// combine.PMap).
func (p *Pool) PMap(ctx context.Context, items []int, fn func(context.Context, int) (any, error)) ([]any, error) {
	return PMap(p, ctx, items, fn)
}

// PMap is the free-function, fully generic form of Pool.PMap (Go methods
// can't introduce new type parameters).
func PMap[T, R any](p *Pool, ctx context.Context, items []T, fn func(context.Context, T) (R, error)) ([]R, error) {
	futs := make([]*future.Future[R], len(items))
	for i, item := range items {
		item := item
		raw := p.Spawn(ctx, func(inner context.Context) (any, error) {
			return fn(inner, item)
		})
		futs[i] = future.Transform(ctx, raw, func(v any) (R, error) { return v.(R), nil })
	}
	return combine.PGet(ctx, futs)
}

// IMap runs fn over items gated by the Pool and returns a pull iterator
// that yields results in input order, blocking (inside MayBlock) on
// each call until that index's result is ready.
func IMap[T, R any](p *Pool, ctx context.Context, items []T, fn func(context.Context, T) (R, error)) combine.Next[R] {
	futs := make([]*future.Future[R], len(items))
	for i, item := range items {
		item := item
		raw := p.Spawn(ctx, func(inner context.Context) (any, error) {
			return fn(inner, item)
		})
		futs[i] = future.Transform(ctx, raw, func(v any) (R, error) { return v.(R), nil })
	}

	idx := 0
	return func() (R, bool) {
		if idx >= len(futs) {
			var zero R
			return zero, false
		}
		f := futs[idx]
		idx++
		scoped, release := task.MayBlock(ctx)
		defer release()
		v, err := f.Get(scoped, true, 0)
		if err != nil {
			var zero R
			return zero, false
		}
		return v, true
	}
}

// IMapUnordered runs fn over items gated by the Pool and returns a pull
// iterator yielding results in completion order.
func IMapUnordered[T, R any](p *Pool, ctx context.Context, items []T, fn func(context.Context, T) (R, error)) combine.Next[combine.Result[R]] {
	ch := make(chan combine.Result[R], len(items))
	if len(items) == 0 {
		close(ch)
	}

	var remaining atomic.Int64
	remaining.Store(int64(len(items)))

	for i, item := range items {
		i, item := i, item
		raw := p.Spawn(ctx, func(inner context.Context) (any, error) {
			return fn(inner, item)
		})
		raw.Link(func(f *future.Future[any]) {
			v, err := f.Get(context.Background(), false, 0)
			if err != nil {
				ch <- combine.Result[R]{Index: i, Err: err}
			} else {
				ch <- combine.Result[R]{Index: i, Value: v.(R)}
			}
			if remaining.Add(-1) == 0 {
				close(ch)
			}
		})
	}

	return func() (combine.Result[R], bool) {
		scoped, release := task.MayBlock(ctx)
		defer release()
		select {
		case r, ok := <-ch:
			return r, ok
		case <-scoped.Done():
			var zero combine.Result[R]
			return zero, false
		}
	}
}
