package future

import "context"

// blockMarker is implemented by the task runtime's Task type so that
// Future.Get can mark the calling task blocked while it awaits settlement
// and runnable again once it resumes, without future importing task (which
// itself returns *Future[T] from Spawn). The interface is unexported; a
// caller in another package only needs a value whose method set satisfies
// it, not the type name itself.
type blockMarker interface {
	MarkBlocked()
	MarkRunnable()
}

type blockMarkerKey struct{}

// WithBlockMarker attaches m as the blocked/runnable sink for the current
// task to ctx. task.Spawn calls this once per spawned Task so that every
// Future.Get performed with that task's context accounts against the
// owning Context's live/blocked counters.
func WithBlockMarker(ctx context.Context, m interface {
	MarkBlocked()
	MarkRunnable()
}) context.Context {
	return context.WithValue(ctx, blockMarkerKey{}, blockMarker(m))
}

func blockerFromContext(ctx context.Context) blockMarker {
	m, _ := ctx.Value(blockMarkerKey{}).(blockMarker)
	return m
}
