package batched

import (
	"context"

	"github.com/mikekap/gbatchy/future"
	"github.com/mikekap/gbatchy/scheduler"
)

// Identity is implemented by a receiver type that wants to control its
// own coalescing identity explicitly (spec.md §9: "require the user to
// supply or derive a stable identity"). Receivers that don't implement
// it are identified by their own pointer value, mirroring
// original_source/gbatchy/batch.py's class_batched use of id(self).
type Identity interface {
	BatchIdentity() string
}

// ClassFunc is the receiver-scoped counterpart of Func: it augments its
// OpID with the receiver's identity so that calls against different
// receivers never coalesce together, honoring spec.md §4.E's
// class-method coalescing contract.
type ClassFunc[S any, A, R any] struct {
	opID scheduler.OpID
	boxd func(S) scheduler.BulkFunc[any, any]
	opts Options
}

// ClassBatched wraps a receiver-scoped bulk function fn into a ClassFunc.
// fn's own code pointer anchors the operation's identity; Call further
// scopes it to the specific receiver passed in, so e.g. two cache client
// instances never share a pending batch.
func ClassBatched[S any, A, R any](opts Options, fn func(S, []A) ([]OneResult[R], error)) *ClassFunc[S, A, R] {
	return &ClassFunc[S, A, R]{
		opID: scheduler.NewOpID(fn, ""),
		boxd: func(recv S) scheduler.BulkFunc[any, any] {
			return scheduler.Box(func(args []A) ([]OneResult[R], error) {
				return fn(recv, args)
			})
		},
		opts: opts,
	}
}

func (b *ClassFunc[S, A, R]) forReceiver(recv S) *Func[A, R] {
	return &Func[A, R]{
		opID: scheduler.WithIdentity(b.opID, instanceIdentity(recv)),
		boxd: b.boxd(recv),
		opts: b.opts,
	}
}

// Call enqueues arg against recv's pending batch entry and blocks until
// that call's result settles.
func (b *ClassFunc[S, A, R]) Call(ctx context.Context, recv S, arg A) (R, error) {
	return b.forReceiver(recv).Call(ctx, arg)
}

// CallFuture is Call's as_future=true counterpart.
func (b *ClassFunc[S, A, R]) CallFuture(ctx context.Context, recv S, arg A) *future.Future[R] {
	return b.forReceiver(recv).CallFuture(ctx, arg)
}

func instanceIdentity[S any](recv S) string {
	if id, ok := any(recv).(Identity); ok {
		return id.BatchIdentity()
	}
	return scheduler.PointerIdentity(recv)
}
