// Package batchctx implements the per-root-task Context from spec.md §4.C:
// it tracks live/blocked task counts for one cooperative task tree, owns
// that tree's Scheduler, and idempotently arms a scheduler fire on its
// Dispatcher whenever the tree goes fully blocked or a member finishes.
//
// Grounded on the teacher's hub.Metrics-style mutex-guarded counters
// (orchestrate/hub/metrics.go) for the live/blocked bookkeeping, and on
// original_source/gbatchy/context.py's _Context.schedule_to_run /
// _maybe_run_scheduler for the idempotent-arming and teardown logic this
// package is a direct Go port of.
package batchctx

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mikekap/gbatchy/future"
	"github.com/mikekap/gbatchy/observability"
	"github.com/mikekap/gbatchy/scheduler"
	"github.com/mikekap/gbatchy/task"
)

// Context owns one Scheduler and tracks the live/blocked counts of every
// Task descended from its root. The scheduler fires exactly when
// liveCount == blockedCount and the scheduler reports pending work; a
// fire is idempotently armed so that a burst of OnTaskBlocked/
// OnTaskFinished calls within one dispatcher turn produces at most one
// fire callback.
type Context struct {
	mu         sync.Mutex
	live       int
	blocked    int
	armed      bool
	torn       bool
	scheduler  scheduler.Scheduler[any, any]
	dispatcher *task.Dispatcher

	// id identifies this Context in observability events, so a log
	// aggregator can correlate a run of batch-fired/task-blocked events
	// with the teardown that eventually ends them. Grounded on the
	// teacher's orchestrate/state.State.RunID convention
	// (uuid.New().String() stamped once at creation).
	id string

	// rootCtx is context.Background() carrying this Context's own owner/lookup
	// values, used when fire() spawns scheduler tasks on the dispatcher
	// goroutine, where there is no caller-supplied context.Context to
	// inherit from.
	rootCtx context.Context
}

type contextKey struct{}

// New constructs a Context with a fresh Dispatcher and the current
// default Scheduler strategy (see scheduler.SetDefault).
func New() *Context {
	c := &Context{
		scheduler:  scheduler.NewDefault(),
		dispatcher: task.NewDispatcher(),
		id:         uuid.NewString(),
	}
	c.rootCtx = attach(context.Background(), c)
	return c
}

// ID returns the Context's observability-correlation identifier, stable
// for its whole lifetime.
func (c *Context) ID() string { return c.id }

// Attach returns a context.Context carrying c as both the task-accounting
// owner (task.WithOwner) and the lookup key FromContext resolves, derived
// from parent. Used to root a new task tree under c.
func Attach(parent context.Context, c *Context) context.Context {
	return attach(parent, c)
}

func attach(parent context.Context, c *Context) context.Context {
	ctx := task.WithOwner(parent, c)
	ctx = future.WithPoster(ctx, c.Post)
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the Context attached to ctx, or nil outside any
// Context.
func FromContext(ctx context.Context) *Context {
	c, _ := ctx.Value(contextKey{}).(*Context)
	return c
}

// Dispatcher returns the Dispatcher this Context's link deliveries and
// scheduler fires run on.
func (c *Context) Dispatcher() *task.Dispatcher { return c.dispatcher }

// Post schedules fn to run on this Context's dispatcher goroutine, FIFO
// relative to every other closure posted to it. future.NewPosted(ctx.Post)
// is how a Future ties its link delivery order to one Context.
func (c *Context) Post(fn func()) { c.dispatcher.Post(fn) }

// Enqueue appends arg to the pending batch entry for opID on this
// Context's Scheduler, boxed to the Scheduler[any, any] every Context
// owns regardless of which @batched operation is calling in. See
// scheduler.Box for the per-call boxing package batched relies on.
func (c *Context) Enqueue(ctx context.Context, opID scheduler.OpID, fn scheduler.BulkFunc[any, any], arg any, maxSize int) *future.Future[any] {
	return c.scheduler.Enqueue(ctx, opID, fn, arg, maxSize)
}

// OnTaskCreated implements task's owner interface: a newly spawned Task
// starts counted as both live and blocked (spec.md §4.B: "a new task
// starts accounted as blocked; the runtime will flip it runnable on
// first dispatch").
func (c *Context) OnTaskCreated() {
	c.mu.Lock()
	c.live++
	c.blocked++
	c.mu.Unlock()
}

// OnTaskBlocked implements task's owner interface.
func (c *Context) OnTaskBlocked() {
	c.mu.Lock()
	c.blocked++
	arm := c.shouldArmLocked()
	c.mu.Unlock()
	if arm {
		c.dispatcher.Post(c.fire)
	}
}

// OnTaskRunnable implements task's owner interface.
func (c *Context) OnTaskRunnable() {
	c.mu.Lock()
	c.blocked--
	c.mu.Unlock()
}

// OnTaskFinished implements task's owner interface.
func (c *Context) OnTaskFinished() {
	c.mu.Lock()
	c.live--
	arm := c.shouldArmLocked()
	c.mu.Unlock()
	if arm {
		c.dispatcher.Post(c.fire)
	}
}

// shouldArmLocked reports whether a fire should be armed given the
// current counters, and marks it armed if so. Must be called with mu
// held. A fire is only ever armed once until it actually runs (fire
// clears the flag), matching spec.md §4.C's "idempotently scheduled."
func (c *Context) shouldArmLocked() bool {
	if c.armed || c.torn {
		return false
	}
	ready := c.live == 0 || (c.live == c.blocked)
	if !ready {
		return false
	}
	c.armed = true
	return true
}

// fire is the dispatcher-run callback spec.md §4.C describes: tear down
// a fully-drained Context, or run the Scheduler if every live Task is
// blocked and the Scheduler has pending work. A fire that spawns new
// Tasks leaves them runnable immediately (task.Spawn's contract); they
// will progress and eventually block again, re-arming this same logic.
func (c *Context) fire() {
	c.mu.Lock()
	c.armed = false
	live, blocked := c.live, c.blocked
	hasWork := c.scheduler.HasWork()
	if live == 0 && !hasWork {
		c.torn = true
		c.mu.Unlock()
		observability.Active().OnEvent(c.rootCtx, observability.Event{
			Type:      observability.EventContextTornDown,
			Level:     observability.LevelVerbose,
			Timestamp: time.Now(),
			Source:    "batchctx.Context",
			Data:      map[string]any{"context_id": c.id},
		})
		c.dispatcher.Close()
		return
	}
	c.mu.Unlock()

	if live == blocked && hasWork {
		c.scheduler.RunNext(c.rootCtx)
	}
}

// Snapshot returns the current live/blocked counters, for tests and
// diagnostics only.
func (c *Context) Snapshot() (live, blocked int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live, c.blocked
}
