package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mikekap/gbatchy/future"
	"github.com/mikekap/gbatchy/observability"
	"github.com/mikekap/gbatchy/rtconfig"
)

// entry is one pending-batch entry: the accumulated arguments, their
// parallel result Futures, and the bulk function that will eventually
// consume them. Shared by every Scheduler implementation.
type entry[A, R any] struct {
	mu      sync.Mutex
	fn      BulkFunc[A, R]
	args    []A
	futures []*future.Future[R]
	maxSize int
}

func newEntry[A, R any](fn BulkFunc[A, R], maxSize int) *entry[A, R] {
	return &entry[A, R]{fn: fn, maxSize: maxSize}
}

// append adds arg to the entry and returns its result Future, plus
// whether this append brought the entry to its maxSize cap. The returned
// Future is posted to ctx's owning Context dispatcher (see
// future.NewFromContext) since it is the per-call Future every @batched
// caller awaits — the most heavily used Future in the whole system, and
// one that must never deliver a Link callback inline under runBulk.
func (e *entry[A, R]) append(ctx context.Context, arg A) (*future.Future[R], bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f := future.NewFromContext[R](ctx)
	e.args = append(e.args, arg)
	e.futures = append(e.futures, f)
	capped := e.maxSize > 0 && len(e.args) >= e.maxSize
	return f, capped
}

// fire spawns a task running this entry's bulk function over its
// accumulated arguments and demultiplexes the result into the parallel
// futures. A no-op on an entry with no accumulated calls.
func (e *entry[A, R]) fire(ctx context.Context) {
	e.mu.Lock()
	args := e.args
	futures := e.futures
	fn := e.fn
	e.mu.Unlock()

	if len(args) == 0 {
		return
	}
	observability.Active().OnEvent(ctx, observability.Event{
		Type:      observability.EventBatchFired,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "scheduler.entry",
		Data:      map[string]any{"batch_size": len(args)},
	})
	rtconfig.Spawn(ctx, func(context.Context) (any, error) {
		runBulk(fn, args, futures)
		return nil, nil
	})
}

// runBulk implements the demultiplexing policy shared by every Scheduler
// strategy:
//  1. fn returning an error fails every future in the batch with it.
//  2. A result slice of the wrong length fails every future with
//     KindInvariantViolation naming the expected/actual lengths.
//  3. Otherwise each index's OneResult settles its own future: Value
//     normally, Raise with the carried ErrInfo — other indices are
//     unaffected.
//  4. A nil result slice is treated as len(args) Value entries holding
//     the zero value of R.
func runBulk[A, R any](fn BulkFunc[A, R], args []A, futures []*future.Future[R]) {
	results, err := fn(args)
	if err != nil {
		ei := asErrInfo(err)
		for _, f := range futures {
			f.SetError(ei)
		}
		return
	}

	if results == nil {
		var zero R
		for _, f := range futures {
			f.Set(zero)
		}
		return
	}

	if len(results) != len(args) {
		ei := future.NewErrInfo(future.KindInvariantViolation,
			fmt.Errorf("bulk function returned %d results for %d args", len(results), len(args)))
		for _, f := range futures {
			f.SetError(ei)
		}
		return
	}

	for i, r := range results {
		if r.isErr() {
			futures[i].SetError(*r.err)
		} else {
			futures[i].Set(r.value)
		}
	}
}

func asErrInfo(err error) future.ErrInfo {
	if ei, ok := err.(future.ErrInfo); ok {
		return ei
	}
	return future.NewErrInfo(future.KindUser, err)
}
