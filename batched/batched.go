// Package batched implements the @batched decoration of spec.md §4.E: it
// turns a bulk function (list-of-args -> list-of-results) into a
// single-call API that transparently enqueues on the current Context's
// Scheduler and awaits the per-call Future, so that N concurrent callers
// are indistinguishable from N synchronous calls except that the bulk
// function ran once (or as few times as the strategy permits).
//
// Grounded on original_source/gbatchy/batch.py's `batched`/`class_batched`
// decorators and `_batch_wait`; `fn_id = id(fn)` becomes scheduler.OpID
// via reflect.Value.Pointer(), and the reserved `as_future` keyword
// becomes the separate Call/CallFuture methods Go's lack of kwargs
// requires (see spec.md §4.E).
package batched

import (
	"context"

	"github.com/mikekap/gbatchy/batchctx"
	"github.com/mikekap/gbatchy/future"
	"github.com/mikekap/gbatchy/scheduler"
)

// BulkFunc is the user-supplied bulk operation: given the ordered
// per-call arguments accumulated for one firing, it returns an aligned
// slice of OneResult (or a plain error, which fails the whole batch).
type BulkFunc[A, R any] = scheduler.BulkFunc[A, R]

// OneResult is the tagged-variant per-call result a BulkFunc returns.
type OneResult[R any] = scheduler.OneResult[R]

// Value wraps a successful per-call result.
func Value[R any](v R) OneResult[R] { return scheduler.Value(v) }

// Raise wraps a per-call failure, replacing spec.md §6's Raise(error_info)
// sentinel.
func Raise[R any](e future.ErrInfo) OneResult[R] { return scheduler.Raise[R](e) }

// Options configures one @batched operation. MaxSize mirrors spec.md
// §6's max_size: when the i-th enqueue brings a pending entry to MaxSize,
// that entry fires immediately rather than waiting for the Context to go
// fully blocked.
type Options struct {
	MaxSize int
}

// Func is the callable spec.md §4.E describes: Call behaves like N
// ordinary synchronous calls to the wrapped per-call signature; CallFuture
// is the as_future=true variant, returning a Future instead of blocking.
type Func[A, R any] struct {
	opID scheduler.OpID
	boxd scheduler.BulkFunc[any, any]
	opts Options
}

// Batched wraps fn — the bulk operation — into a Func whose Call/CallFuture
// present a per-call interface to its users. fn's identity (its code
// pointer) becomes the operation's OpID, so concurrent calls to the same
// Batched value coalesce regardless of which goroutine issues them.
func Batched[A, R any](opts Options, fn BulkFunc[A, R]) *Func[A, R] {
	return &Func[A, R]{
		opID: scheduler.NewOpID(fn, ""),
		boxd: scheduler.Box(fn),
		opts: opts,
	}
}

// Call enqueues arg on the current Context's Scheduler (rooting a fresh
// Context via batchctx.Ensure if ctx isn't inside one yet) and blocks
// until that call's result settles.
func (b *Func[A, R]) Call(ctx context.Context, arg A) (R, error) {
	v, err := batchctx.Ensure(ctx, func(inner context.Context) (any, error) {
		return b.call(inner, arg)
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return v.(R), nil
}

// CallFuture is Call's as_future=true counterpart: it always enqueues
// immediately (rooting a Context first if needed) and returns a Future
// rather than blocking the calling goroutine.
func (b *Func[A, R]) CallFuture(ctx context.Context, arg A) *future.Future[R] {
	raw := batchctx.EnsureFuture(ctx, func(inner context.Context) (any, error) {
		return b.call(inner, arg)
	})
	return future.Transform(ctx, raw, func(v any) (R, error) {
		return v.(R), nil
	})
}

func (b *Func[A, R]) call(ctx context.Context, arg A) (any, error) {
	c := batchctx.FromContext(ctx)
	raw := c.Enqueue(ctx, b.opID, b.boxd, arg, b.opts.MaxSize)
	v, err := raw.Get(ctx, true, 0)
	if err != nil {
		return nil, err
	}
	return v, nil
}
