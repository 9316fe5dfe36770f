// Package scheduler collects pending batched calls keyed by operation
// identity and decides when a batch is ready to fire.
package scheduler

import (
	"context"
	"reflect"
	"strconv"

	"github.com/mikekap/gbatchy/future"
)

// OpID is the operation identity a Scheduler groups enqueued calls by: a
// function's code pointer plus an optional receiver identity string for
// class-scoped coalescing (see batched.ClassBatched).
type OpID struct {
	fn       uintptr
	identity string
}

// NewOpID derives an OpID from a bulk function value and an optional
// receiver identity (empty for plain, non-class-scoped operations).
func NewOpID(fn any, identity string) OpID {
	return OpID{fn: reflect.ValueOf(fn).Pointer(), identity: identity}
}

// WithIdentity returns a copy of id scoped to the given receiver
// identity, for ClassBatched's per-instance coalescing.
func WithIdentity(id OpID, identity string) OpID {
	id.identity = identity
	return id
}

// PointerIdentity derives a stable identity string from recv's own
// pointer value, for receivers that don't implement a custom identity
// (spec.md §9: object identity is weaker in systems languages, so class
// coalescing falls back to the receiver's address when nothing else is
// supplied). Non-pointer receivers all collapse to one identity, since
// Go values have no stable address to key on — callers whose receiver
// coalescing needs to distinguish non-pointer instances should implement
// the Identity interface instead.
func PointerIdentity(recv any) string {
	v := reflect.ValueOf(recv)
	if v.Kind() == reflect.Ptr {
		return strconv.FormatUint(uint64(v.Pointer()), 16)
	}
	return "<non-pointer-receiver>"
}

// BulkFunc is the user-supplied bulk operation: it receives the ordered
// per-call arguments accumulated for one firing and returns an aligned
// slice of OneResult, or a plain error that fails the whole batch.
type BulkFunc[A, R any] func(args []A) ([]OneResult[R], error)

// OneResult is the tagged-variant result of a bulk call for one index:
// either a value or a carried error, replacing the Python Raise sentinel
// per the design note this runtime follows for per-index batch failures.
type OneResult[R any] struct {
	value R
	err   *future.ErrInfo
}

// Value wraps a successful per-index result.
func Value[R any](v R) OneResult[R] {
	return OneResult[R]{value: v}
}

// Raise wraps a per-index failure. Kept under this name for continuity
// with the library surface's Raise(error_info) sentinel constructor.
func Raise[R any](e future.ErrInfo) OneResult[R] {
	return OneResult[R]{err: &e}
}

func (o OneResult[R]) isErr() bool { return o.err != nil }

// Scheduler collects enqueued batched calls and decides when to fire them.
// A Context owns exactly one Scheduler instance (instantiated over
// A=any, R=any so one Scheduler can multiplex every @batched operation
// registered against that Context; batched.Batched handles the boxing
// to/from its own concrete A, R).
type Scheduler[A, R any] interface {
	// Enqueue appends arg to the pending entry for opID (creating one if
	// new) and returns a Future for that call's eventual result. If
	// maxSize > 0 and this enqueue brings the entry to that size, the
	// entry fires immediately and alone, independent of every other
	// pending entry.
	Enqueue(ctx context.Context, opID OpID, fn BulkFunc[A, R], arg A, maxSize int) *future.Future[R]
	// HasWork reports whether any entry is pending.
	HasWork() bool
	// RunNext fires every currently pending entry as a sibling task, then
	// clears the pending set.
	RunNext(ctx context.Context)
}
