package future

import (
	"context"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mikekap/gbatchy/observability"
)

// State is the lifecycle stage of a Future.
type State int

const (
	Pending State = iota
	Fulfilled
	Rejected
)

func (s State) String() string {
	switch s {
	case Fulfilled:
		return "Fulfilled"
	case Rejected:
		return "Rejected"
	default:
		return "Pending"
	}
}

// Future is a settable, awaitable single-value container with FIFO
// callback fan-out. It is settled exactly once, either with a value via
// Set or with an error via SetError; every other caller of Get/Wait/Link
// observes that same settlement.
type Future[T any] struct {
	mu    sync.Mutex
	state State
	value T
	err   ErrInfo
	done  chan struct{}
	links []func(*Future[T])

	// observed is set once a caller actually reads this Future's stored
	// error back out through Get, or a Link callback is registered for
	// it. Used only to decide whether an error settled with nobody
	// watching deserves an EventUnobservedError report.
	observed atomic.Bool

	// post, when non-nil, is used to schedule delivery of a Link callback
	// registered against an already-settled Future instead of invoking it
	// synchronously on the registering goroutine. Futures constructed via
	// NewPosted carry the owning Context's dispatcher here.
	post func(func())
}

// New returns an unsettled Future with no dispatcher poster: its Link
// deliveries run synchronously on the calling goroutine. Only ever
// appropriate for a Future that no Context owns — every Future reachable
// from inside a Context must instead be built with NewPosted or
// NewFromContext so its link deliveries run on that Context's dispatcher.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// NewPosted returns an unsettled Future whose Link deliveries — whether
// registered before or after settlement — are always scheduled via post
// rather than run inline. batchctx uses this when constructing futures
// owned by a Context's dispatcher so that link callbacks always run on
// that dispatcher goroutine, matching spec.md's "schedule delivery on the
// dispatcher".
func NewPosted[T any](post func(func())) *Future[T] {
	return &Future[T]{done: make(chan struct{}), post: post}
}

// posterKey is the context.Context key a Context's Post method is stored
// under, so that future constructors taking a plain ctx (Immediate,
// Transform, Chain) can discover the owning dispatcher without this
// package importing batchctx (which itself imports future).
type posterKey struct{}

// WithPoster returns a context carrying post as the dispatcher poster for
// every Future constructed from it via NewFromContext, Immediate,
// Transform, or Chain. batchctx.Attach calls this once per Context so
// every ctx descending from it resolves back to that Context's
// dispatcher.
func WithPoster(parent context.Context, post func(func())) context.Context {
	return context.WithValue(parent, posterKey{}, post)
}

func posterFromContext(ctx context.Context) func(func()) {
	if ctx == nil {
		return nil
	}
	p, _ := ctx.Value(posterKey{}).(func(func()))
	return p
}

// NewFromContext returns an unsettled Future posted to ctx's owning
// Context dispatcher if one is attached (see WithPoster), or a
// poster-less Future (see New) otherwise. This is the constructor every
// internal Future-producing call site (task.Spawn's result, a scheduler
// entry's per-call future, Immediate/Transform/Chain) should use instead
// of New, so link delivery never runs inline under a setter once a
// Context owns the Future.
func NewFromContext[T any](ctx context.Context) *Future[T] {
	if p := posterFromContext(ctx); p != nil {
		return NewPosted[T](p)
	}
	return New[T]()
}

// Set settles f with a value. Returns an ErrInfo of KindAlreadySet if f was
// already settled.
func (f *Future[T]) Set(v T) error {
	f.mu.Lock()
	if f.state != Pending {
		f.mu.Unlock()
		return alreadySetErr()
	}
	f.state = Fulfilled
	f.value = v
	links := f.links
	f.links = nil
	close(f.done)
	f.mu.Unlock()

	f.deliverAll(links)
	return nil
}

// SetError settles f with an error. Returns an ErrInfo of KindAlreadySet if
// f was already settled. If no Link callback is registered at the moment
// of settlement, f is armed with a finalizer that reports the error
// through the active observability.Observer as EventUnobservedError if it
// is garbage collected without ever being read via Get — the Go
// equivalent of the reference-counted "nobody ever looked at this
// exception" detection a refcounted runtime gets from object death.
func (f *Future[T]) SetError(ei ErrInfo) error {
	f.mu.Lock()
	if f.state != Pending {
		f.mu.Unlock()
		return alreadySetErr()
	}
	f.state = Rejected
	f.err = ei
	links := f.links
	f.links = nil
	needsFinalizer := len(links) == 0
	close(f.done)
	f.mu.Unlock()

	if needsFinalizer {
		runtime.SetFinalizer(f, func(ff *Future[T]) {
			if !ff.observed.Load() {
				reportUnobserved(ff.err)
			}
		})
	}

	f.deliverAll(links)
	return nil
}

func reportUnobserved(ei ErrInfo) {
	observability.Active().OnEvent(context.Background(), observability.Event{
		Type:      observability.EventUnobservedError,
		Level:     observability.LevelWarning,
		Timestamp: time.Now(),
		Source:    "future.Future",
		Data:      map[string]any{"kind": ei.Kind.String(), "err": ei.Err.Error()},
	})
}

// Ready reports whether f has settled, successfully or not.
func (f *Future[T]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Successful reports whether f settled with a value rather than an error.
// False for a still-pending Future.
func (f *Future[T]) Successful() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == Fulfilled
}

func (f *Future[T]) result() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Rejected {
		f.observed.Store(true)
		var zero T
		return zero, f.err
	}
	return f.value, nil
}

// Get returns the settled value or error. If the Future isn't ready and
// block is false, it fails immediately with a Timeout error. If block is
// true, the calling task is marked blocked (via any blockMarker attached
// to ctx) until the Future settles, ctx is canceled, or timeout (if
// nonzero) elapses.
func (f *Future[T]) Get(ctx context.Context, block bool, timeout time.Duration) (T, error) {
	if f.Ready() {
		return f.result()
	}
	if !block {
		var zero T
		return zero, timeoutErr()
	}
	return f.await(ctx, timeout)
}

// Wait blocks until f settles, ctx is canceled, or timeout elapses. Unlike
// Get, it never re-raises a stored error: a Future that settles with an
// error still makes Wait return nil, since Wait only reports whether the
// wait itself failed (Timeout or ctx cancellation), not the outcome of
// whatever it was waiting for.
func (f *Future[T]) Wait(ctx context.Context, timeout time.Duration) error {
	if f.Ready() {
		return nil
	}

	if m := blockerFromContext(ctx); m != nil {
		m.MarkBlocked()
		defer m.MarkRunnable()
	}

	var timerC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timerC = timer.C
	}

	select {
	case <-f.done:
		return nil
	case <-timerC:
		return timeoutErr()
	case <-ctx.Done():
		return NewErrInfo(KindUser, ctx.Err())
	}
}

func (f *Future[T]) await(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T

	if m := blockerFromContext(ctx); m != nil {
		m.MarkBlocked()
		defer m.MarkRunnable()
	}

	var timerC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timerC = timer.C
	}

	select {
	case <-f.done:
		return f.result()
	case <-timerC:
		return zero, timeoutErr()
	case <-ctx.Done():
		return zero, NewErrInfo(KindUser, ctx.Err())
	}
}

// Link registers cb to receive f once settled. If f is already settled,
// delivery is scheduled through f's poster (see NewPosted); a Future
// built with New has no poster and runs cb inline. Multiple links fire in
// FIFO registration order.
func (f *Future[T]) Link(cb func(*Future[T])) {
	f.observed.Store(true)
	f.mu.Lock()
	if f.state == Pending {
		f.links = append(f.links, cb)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	f.deliver(cb)
}

// deliver dispatches cb through f.post if f carries a dispatcher poster,
// falling back to an inline call only for a poster-less Future (one built
// with New rather than NewPosted/NewFromContext, i.e. never a Future owned
// by a Context).
func (f *Future[T]) deliver(cb func(*Future[T])) {
	if f.post != nil {
		f.post(func() { cb(f) })
		return
	}
	cb(f)
}

// deliverAll dispatches every link callback captured at settlement time the
// same way deliver dispatches a callback registered after settlement: for
// a Future with a poster, Set and SetError never invoke a Link callback
// inline on the setter's own call stack; a poster-less Future (see New)
// runs them inline, in FIFO order.
func (f *Future[T]) deliverAll(links []func(*Future[T])) {
	for _, cb := range links {
		f.deliver(cb)
	}
}

// Unlink removes cb from the link list on a best-effort basis: Go function
// values aren't comparable, so identity is approximated by code pointer,
// which can over-match: distinct closures created from the same function
// literal share one code pointer, so unlinking one removes all of them.
// Unlink is a no-op once f has already settled and delivered.
func (f *Future[T]) Unlink(cb func(*Future[T])) {
	target := reflect.ValueOf(cb).Pointer()
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.links[:0]
	for _, l := range f.links {
		if reflect.ValueOf(l).Pointer() != target {
			kept = append(kept, l)
		}
	}
	f.links = kept
}
