package task

import "context"

// MayBlock marks the current task (if any) as blocked for the duration of
// a scope around a library call that parks the goroutine outside of
// Future.Get — a blocking queue receive, for instance — so that the
// scheduler can still observe "all live tasks are blocked" and fire a
// pending batch while such a call is in flight. The returned release
// function must be called exactly once, typically via defer, to restore
// the task to runnable.
//
// Grounded on the teacher's context-scoped WithoutCancel/cancel-function
// pairing (orchestrate/workflows.Scaffold, hub.Shutdown's timeout-channel
// release) — acquire on entry, guaranteed release on exit.
func MayBlock(ctx context.Context) (context.Context, func()) {
	t := FromContext(ctx)
	if t == nil {
		return ctx, func() {}
	}
	t.MarkBlocked()
	return ctx, t.MarkRunnable
}
