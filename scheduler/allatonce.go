package scheduler

import (
	"context"
	"sync"

	"github.com/mikekap/gbatchy/future"
)

// AllAtOnceScheduler is the default strategy: one pending entry per OpID;
// RunNext fires every distinct operation simultaneously, as sibling
// tasks, then clears the pending set.
type AllAtOnceScheduler[A, R any] struct {
	mu      sync.Mutex
	pending map[OpID]*entry[A, R]
}

// NewAllAtOnceScheduler returns an empty AllAtOnceScheduler.
func NewAllAtOnceScheduler[A, R any]() *AllAtOnceScheduler[A, R] {
	return &AllAtOnceScheduler[A, R]{pending: make(map[OpID]*entry[A, R])}
}

func (s *AllAtOnceScheduler[A, R]) Enqueue(ctx context.Context, opID OpID, fn BulkFunc[A, R], arg A, maxSize int) *future.Future[R] {
	s.mu.Lock()
	e, ok := s.pending[opID]
	if !ok {
		e = newEntry(fn, maxSize)
		s.pending[opID] = e
	}
	s.mu.Unlock()

	f, capped := e.append(ctx, arg)
	if capped {
		s.mu.Lock()
		if s.pending[opID] == e {
			delete(s.pending, opID)
		}
		s.mu.Unlock()
		e.fire(ctx)
	}
	return f
}

func (s *AllAtOnceScheduler[A, R]) HasWork() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0
}

func (s *AllAtOnceScheduler[A, R]) RunNext(ctx context.Context) {
	s.mu.Lock()
	batch := s.pending
	s.pending = make(map[OpID]*entry[A, R])
	s.mu.Unlock()

	for _, e := range batch {
		e.fire(ctx)
	}
}
