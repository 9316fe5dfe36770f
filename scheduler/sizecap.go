package scheduler

import (
	"context"
	"sync"

	"github.com/mikekap/gbatchy/future"
)

// SizeCapScheduler fires purely on reaching maxSize and never on the
// Context's all-blocked signal; RunNext is a no-op. Useful for strictly
// bounded bulk RPCs that must never wait for the rest of a context to go
// idle (e.g. a fixed-arity protocol message).
type SizeCapScheduler[A, R any] struct {
	mu      sync.Mutex
	pending map[OpID]*entry[A, R]
}

// NewSizeCapScheduler returns an empty SizeCapScheduler.
func NewSizeCapScheduler[A, R any]() *SizeCapScheduler[A, R] {
	return &SizeCapScheduler[A, R]{pending: make(map[OpID]*entry[A, R])}
}

func (s *SizeCapScheduler[A, R]) Enqueue(ctx context.Context, opID OpID, fn BulkFunc[A, R], arg A, maxSize int) *future.Future[R] {
	if maxSize <= 0 {
		maxSize = 1
	}

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

// HasWork always reports false: a SizeCapScheduler never fires on the
// all-blocked signal, so it never asks to be counted as pending work.
func (s *SizeCapScheduler[A, R]) HasWork() bool { return false }

// RunNext is a no-op; entries only ever fire from Enqueue's cap check.
func (s *SizeCapScheduler[A, R]) RunNext(ctx context.Context) {}
