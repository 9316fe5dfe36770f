package batchctx

import (
	"context"

	"github.com/mikekap/gbatchy/future"
	"github.com/mikekap/gbatchy/rtconfig"
)

// Ensure runs fn inside a Context: if ctx already carries one, fn runs
// directly (matching original_source/gbatchy/context.py's batch_context
// "elif is_future: ... else: fn(*args, **kwargs)" plain-call branch); if
// not, Ensure roots a brand new Context, spawns fn as its root Task, and
// blocks the calling goroutine until that root Task settles. This is the
// Go-native equivalent of spec.md §6's batch_context decorator.
func Ensure(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	if FromContext(ctx) != nil {
		return fn(ctx)
	}
	rootCtx, f := spawnRoot(ctx, fn)
	return f.Get(rootCtx, true, 0)
}

// EnsureFuture is Ensure's as_future=true counterpart: outside any
// Context it still roots a new one and spawns fn, but returns the root
// Task's Future immediately instead of blocking; inside an existing
// Context it spawns fn as an ordinary child Task of that Context.
func EnsureFuture(ctx context.Context, fn func(context.Context) (any, error)) *future.Future[any] {
	if FromContext(ctx) != nil {
		return rtconfig.Spawn(ctx, fn)
	}
	_, f := spawnRoot(ctx, fn)
	return f
}

func spawnRoot(parent context.Context, fn func(context.Context) (any, error)) (context.Context, *future.Future[any]) {
	c := New()
	rootCtx := Attach(parent, c)
	return rootCtx, rtconfig.Spawn(rootCtx, fn)
}
