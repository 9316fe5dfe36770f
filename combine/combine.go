// Package combine implements the combinators of spec.md §4.F built on
// top of future, task, and batchctx: pmap/pmap_unordered, pfilter/
// pfilter_unordered, pget, wait/iwait, immediate/immediate_error,
// transform/chain, and spawn_proxy.
//
// Grounded on original_source/gbatchy/utils.py's pget/pmap/pmap_unordered/
// pfilter/pfilter_unordered/transform/spawn_proxy, translated from
// gevent's iwait()-over-greenlets into Go channels fed by task.Spawn, with
// every blocking receive wrapped in task.MayBlock so pulling the next
// unordered result counts as awaiting batch work (spec.md §4.F).
package combine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mikekap/gbatchy/future"
	"github.com/mikekap/gbatchy/rtconfig"
	"github.com/mikekap/gbatchy/task"
)

// PGet joins every future in futs and reads each in order, matching
// original_source/gbatchy/utils.py's pget: join all, then get()
// each-in-order rather than aggregating every error.
func PGet[T any](ctx context.Context, futs []*future.Future[T]) ([]T, error) {
	for _, f := range futs {
		if err := Wait(ctx, f); err != nil {
			return nil, err
		}
	}
	out := make([]T, len(futs))
	for i, f := range futs {
		// Futures are already settled by the join loop above (Wait never
		// re-raises), so block=false here never actually blocks; it just
		// surfaces each future's own stored error, in order.
		v, err := f.Get(ctx, false, 0)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// PMap spawns one Task per item, awaits all of them, and returns their
// results in input order. The first error encountered (in input order)
// is returned; it does not aggregate every failure.
func PMap[T, R any](ctx context.Context, items []T, fn func(context.Context, T) (R, error)) ([]R, error) {
	futs := make([]*future.Future[R], len(items))
	for i, item := range items {
		item := item
		raw := rtconfig.Spawn(ctx, func(inner context.Context) (any, error) {
			return fn(inner, item)
		})
		futs[i] = future.Transform(ctx, raw, func(v any) (R, error) { return v.(R), nil })
	}
	return PGet(ctx, futs)
}

// Result is the per-item outcome PMapUnordered/PFilterUnordered deliver:
// the originating item's index, and either its value or the error fn
// produced for it.
type Result[R any] struct {
	Index int
	Value R
	Err   error
}

// Next is a pull-style iterator: each call blocks (inside MayBlock) until
// the next result is ready, returning ok=false once exhausted.
type Next[T any] func() (T, bool)

// PMapUnordered spawns one Task per item and returns a pull iterator
// yielding results in completion order rather than input order — the
// Go-native counterpart of gevent.iwait, translated to Go's pull-based
// iteration instead of a generator.
func PMapUnordered[T, R any](ctx context.Context, items []T, fn func(context.Context, T) (R, error)) Next[Result[R]] {
	ch := make(chan Result[R], len(items))
	if len(items) == 0 {
		close(ch)
	}

	var remaining atomic.Int64
	remaining.Store(int64(len(items)))

	for i, item := range items {
		i, item := i, item
		raw := rtconfig.Spawn(ctx, func(inner context.Context) (any, error) {
			return fn(inner, item)
		})
		raw.Link(func(f *future.Future[any]) {
			v, err := f.Get(context.Background(), false, 0)
			if err != nil {
				ch <- Result[R]{Index: i, Err: err}
			} else {
				ch <- Result[R]{Index: i, Value: v.(R)}
			}
			if remaining.Add(-1) == 0 {
				close(ch)
			}
		})
	}

	return func() (Result[R], bool) {
		scoped, release := task.MayBlock(ctx)
		defer release()
		select {
		case r, ok := <-ch:
			return r, ok
		case <-scoped.Done():
			var zero Result[R]
			return zero, false
		}
	}
}

// PFilter spawns one Task per item calling fn, awaits all in input
// order, and returns the items for which fn reported true.
func PFilter[T any](ctx context.Context, items []T, fn func(context.Context, T) (bool, error)) ([]T, error) {
	keep, err := PMap(ctx, items, fn)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(items))
	for i, k := range keep {
		if k {
			out = append(out, items[i])
		}
	}
	return out, nil
}

// PFilterUnordered returns a pull iterator over the items for which fn
// reported true, in completion order.
func PFilterUnordered[T any](ctx context.Context, items []T, fn func(context.Context, T) (bool, error)) Next[T] {
	next := PMapUnordered(ctx, items, fn)
	return func() (T, bool) {
		for {
			r, ok := next()
			if !ok {
				var zero T
				return zero, false
			}
			if r.Err == nil && r.Value {
				return items[r.Index], true
			}
		}
	}
}

// Immediate re-exports future.Immediate for combinator pipelines, posted
// to ctx's owning Context dispatcher if one is attached.
func Immediate[T any](ctx context.Context, v T) *future.Future[T] { return future.Immediate(ctx, v) }

// ImmediateError re-exports future.ImmediateError.
func ImmediateError[T any](ctx context.Context, err future.ErrInfo) *future.Future[T] {
	return future.ImmediateError[T](ctx, err)
}

// Transform re-exports future.Transform.
func Transform[S, T any](ctx context.Context, src *future.Future[S], fn func(S) (T, error)) *future.Future[T] {
	return future.Transform(ctx, src, fn)
}

// Chain re-exports future.Chain.
func Chain[S, T any](ctx context.Context, src *future.Future[S], fn func(S) (*future.Future[T], error)) *future.Future[T] {
	return future.Chain(ctx, src, fn)
}

// Wait blocks until f settles, discarding its value, inside a MayBlock
// scope so the calling Task counts as awaiting batch work for the
// duration — matching spec.md §4.F's requirement that wait/iwait must
// run inside may_block. A zero timeout never expires.
func Wait[T any](ctx context.Context, f *future.Future[T], timeout ...time.Duration) error {
	var d time.Duration
	if len(timeout) > 0 {
		d = timeout[0]
	}
	scoped, release := task.MayBlock(ctx)
	defer release()
	return f.Wait(scoped, d)
}

// IWait returns a pull iterator over futs in completion order, each
// call wrapped in MayBlock like PMapUnordered.
func IWait[T any](ctx context.Context, futs []*future.Future[T]) Next[*future.Future[T]] {
	ch := make(chan *future.Future[T], len(futs))
	if len(futs) == 0 {
		close(ch)
	}

	var remaining atomic.Int64
	remaining.Store(int64(len(futs)))

	for _, f := range futs {
		f.Link(func(settled *future.Future[T]) {
			ch <- settled
			if remaining.Add(-1) == 0 {
				close(ch)
			}
		})
	}

	return func() (*future.Future[T], bool) {
		scoped, release := task.MayBlock(ctx)
		defer release()
		select {
		case f, ok := <-ch:
			return f, ok
		case <-scoped.Done():
			return nil, false
		}
	}
}

// SpawnProxy spawns fn as a Task and returns a closure that, on first
// call, blocks for its result and caches it — the Go-native replacement
// for spec.md §4.F's LazyProxy-over-.get, since Go has no transparent
// proxy objects.
func SpawnProxy[T any](ctx context.Context, fn func(context.Context) (T, error)) func() (T, error) {
	raw := rtconfig.Spawn(ctx, func(inner context.Context) (any, error) {
		return fn(inner)
	})

	var once bool
	var value T
	var err error
	return func() (T, error) {
		if !once {
			var v any
			v, err = raw.Get(ctx, true, 0)
			if err == nil {
				value = v.(T)
			}
			once = true
		}
		return value, err
	}
}
