package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/mikekap/gbatchy/future"
)

// TimeWindowScheduler fires a pending entry at the earlier of the
// Context's all-blocked signal (via RunNext) or a fixed window elapsing
// since the first enqueue for that OpID. Grounded on the teacher's
// hub.Request time.After/ctx.Done() select-race pattern, adapted into a
// per-entry timer instead of a single request/response race.
type TimeWindowScheduler[A, R any] struct {
	mu      sync.Mutex
	window  time.Duration
	pending map[OpID]*entry[A, R]
	timers  map[OpID]*time.Timer
}

// NewTimeWindowScheduler returns a scheduler that force-fires a pending
// entry window after its first enqueue.
func NewTimeWindowScheduler[A, R any](window time.Duration) *TimeWindowScheduler[A, R] {
	return &TimeWindowScheduler[A, R]{
		window:  window,
		pending: make(map[OpID]*entry[A, R]),
		timers:  make(map[OpID]*time.Timer),
	}
}

func (s *TimeWindowScheduler[A, R]) Enqueue(ctx context.Context, opID OpID, fn BulkFunc[A, R], arg A, maxSize int) *future.Future[R] {
	s.mu.Lock()
	e, ok := s.pending[opID]
	first := !ok
	if !ok {
		e = newEntry(fn, maxSize)
		s.pending[opID] = e
	}
	s.mu.Unlock()

	f, capped := e.append(ctx, arg)
	if capped {
		s.removeAndFire(ctx, opID, e)
		return f
	}

	if first {
		s.mu.Lock()
		s.timers[opID] = time.AfterFunc(s.window, func() {
			s.removeAndFire(ctx, opID, e)
		})
		s.mu.Unlock()
	}
	return f
}

func (s *TimeWindowScheduler[A, R]) removeAndFire(ctx context.Context, opID OpID, e *entry[A, R]) {
	s.mu.Lock()
	cur, ok := s.pending[opID]
	fire := ok && cur == e
	if fire {
		delete(s.pending, opID)
	}
	if t, ok := s.timers[opID]; ok {
		t.Stop()
		delete(s.timers, opID)
	}
	s.mu.Unlock()

	if fire {
		e.fire(ctx)
	}
}

func (s *TimeWindowScheduler[A, R]) HasWork() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0
}

func (s *TimeWindowScheduler[A, R]) RunNext(ctx context.Context) {
	s.mu.Lock()
	batch := s.pending
	s.pending = make(map[OpID]*entry[A, R])
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = make(map[OpID]*time.Timer)
	s.mu.Unlock()

	for _, e := range batch {
		e.fire(ctx)
	}
}
