package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mikekap/gbatchy/future"
	"github.com/mikekap/gbatchy/observability"
)

// Body is the function a Task runs: it receives a context carrying this
// task's identity (so nested Spawn/batched calls inherit the same
// Context) and returns a value or an error, settling the task's result
// Future either way.
type Body func(context.Context) (any, error)

// owner is the accounting surface a Context (package batchctx) exposes to
// a Task without task importing batchctx — the same duck-typed pattern
// future uses for blockMarker, which keeps the dependency graph acyclic
// (batchctx depends on task, not the reverse).
type owner interface {
	OnTaskCreated()
	OnTaskBlocked()
	OnTaskRunnable()
	OnTaskFinished()
}

// Task is one cooperative execution unit: a goroutine running Body,
// accounted for in its owning Context's live/blocked counters.
type Task struct {
	mu      sync.Mutex
	blocked bool
	owner   owner
	Result  *future.Future[any]
}

type taskKey struct{}

func withTask(ctx context.Context, t *Task) context.Context {
	return context.WithValue(ctx, taskKey{}, t)
}

// FromContext returns the Task running on ctx, or nil outside any task.
func FromContext(ctx context.Context) *Task {
	t, _ := ctx.Value(taskKey{}).(*Task)
	return t
}

type ownerKey struct{}

// WithOwner attaches a Context's accounting hooks to ctx so that a Task
// spawned from it is counted against that Context. batchctx calls this
// once, when a new Context is created; every descendant Spawn/Task
// inherits it automatically via ctx propagation.
func WithOwner(ctx context.Context, o interface {
	OnTaskCreated()
	OnTaskBlocked()
	OnTaskRunnable()
	OnTaskFinished()
}) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner(o))
}

func ownerFromContext(ctx context.Context) owner {
	o, _ := ctx.Value(ownerKey{}).(owner)
	return o
}

// MarkBlocked declares the task as awaiting a Future, satisfying
// future.blockMarker. Idempotent: only the true transition notifies the
// owning Context.
func (t *Task) MarkBlocked() {
	t.mu.Lock()
	already := t.blocked
	t.blocked = true
	t.mu.Unlock()
	if !already {
		if t.owner != nil {
			t.owner.OnTaskBlocked()
		}
		observability.Active().OnEvent(context.Background(), observability.Event{
			Type:      observability.EventTaskBlocked,
			Level:     observability.LevelVerbose,
			Timestamp: time.Now(),
			Source:    "task.Task",
		})
	}
}

// MarkRunnable declares the task as no longer awaiting a Future.
func (t *Task) MarkRunnable() {
	t.mu.Lock()
	was := t.blocked
	t.blocked = false
	t.mu.Unlock()
	if was {
		if t.owner != nil {
			t.owner.OnTaskRunnable()
		}
		observability.Active().OnEvent(context.Background(), observability.Event{
			Type:      observability.EventTaskRunnable,
			Level:     observability.LevelVerbose,
			Timestamp: time.Now(),
			Source:    "task.Task",
		})
	}
}

// Spawn creates a child Task running fn as a goroutine and returns a
// Future settled with its result. A new task is accounted as blocked at
// creation (live++, blocked++ on the owning Context, if any is attached
// to parent) and flips runnable before Spawn returns, so a scheduler fire
// armed afterwards never runs ahead of a task whose goroutine has not
// started yet.
func Spawn(parent context.Context, fn Body) *future.Future[any] {
	o := ownerFromContext(parent)
	t := &Task{owner: o, blocked: true, Result: future.NewFromContext[any](parent)}
	if o != nil {
		o.OnTaskCreated()
	}

	childCtx := future.WithBlockMarker(parent, t)
	childCtx = withTask(childCtx, t)

	t.MarkRunnable()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				t.Result.SetError(future.NewErrInfo(future.KindUser, fmt.Errorf("task panic: %v", r)))
			}
			if o != nil {
				o.OnTaskFinished()
			}
		}()

		v, err := fn(childCtx)
		if err != nil {
			if ei, ok := err.(future.ErrInfo); ok {
				t.Result.SetError(ei)
			} else {
				t.Result.SetError(future.NewErrInfo(future.KindUser, err))
			}
			return
		}
		t.Result.Set(v)
	}()

	return t.Result
}
