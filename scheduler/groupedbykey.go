package scheduler

import (
	"context"
	"sync"

	"github.com/mikekap/gbatchy/future"
)

// GroupedByKeyScheduler partitions the calls enqueued under one OpID
// further by a user-supplied key, firing each key-group as its own bulk
// call. Useful when a batched operation's bulk function is itself
// partitioned, e.g. a per-shard cache client that cannot accept a mixed
// arg list in one call.
type GroupedByKeyScheduler[A, R any, K comparable] struct {
	mu      sync.Mutex
	keyFn   func(A) K
	pending map[OpID]map[K]*entry[A, R]
}

// NewGroupedByKeyScheduler returns an empty scheduler grouping by keyFn.
func NewGroupedByKeyScheduler[A, R any, K comparable](keyFn func(A) K) *GroupedByKeyScheduler[A, R, K] {
	return &GroupedByKeyScheduler[A, R, K]{
		keyFn:   keyFn,
		pending: make(map[OpID]map[K]*entry[A, R]),
	}
}

func (s *GroupedByKeyScheduler[A, R, K]) Enqueue(ctx context.Context, opID OpID, fn BulkFunc[A, R], arg A, maxSize int) *future.Future[R] {
	key := s.keyFn(arg)

	s.mu.Lock()
	group, ok := s.pending[opID]
	if !ok {
		group = make(map[K]*entry[A, R])
		s.pending[opID] = group
	}
	e, ok := group[key]
	if !ok {
		e = newEntry(fn, maxSize)
		group[key] = e
	}
	s.mu.Unlock()

	f, capped := e.append(ctx, arg)
	if capped {
		s.mu.Lock()
		if group, ok := s.pending[opID]; ok && group[key] == e {
			delete(group, key)
			if len(group) == 0 {
				delete(s.pending, opID)
			}
		}
		s.mu.Unlock()
		e.fire(ctx)
	}
	return f
}

func (s *GroupedByKeyScheduler[A, R, K]) HasWork() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0
}

func (s *GroupedByKeyScheduler[A, R, K]) RunNext(ctx context.Context) {
	s.mu.Lock()
	batch := s.pending
	s.pending = make(map[OpID]map[K]*entry[A, R])
	s.mu.Unlock()

	for _, group := range batch {
		for _, e := range group {
			e.fire(ctx)
		}
	}
}
