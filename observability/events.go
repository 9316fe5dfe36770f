package observability

// Runtime event types emitted by the batch-coalescing core, grounded on
// the teacher's kernel package declaring its own EventType constants
// against this same Event/Observer surface (run.start, tool.call, ...)
// retargeted here to the concerns this runtime actually has: batches
// firing, tasks blocking/unblocking, the retained-trace ring evicting,
// and batch-fn errors nobody ever read.
const (
	EventBatchFired       EventType = "scheduler.batch.fired"
	EventTaskBlocked      EventType = "task.blocked"
	EventTaskRunnable     EventType = "task.runnable"
	EventTraceRingEvicted EventType = "future.trace_ring.evicted"
	EventUnobservedError  EventType = "future.error.unobserved"
	EventContextTornDown  EventType = "batchctx.context.torn_down"
)
