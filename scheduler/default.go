package scheduler

import "sync"

var (
	defaultMu      sync.Mutex
	defaultFactory = func() Scheduler[any, any] {
		return NewAllAtOnceScheduler[any, any]()
	}
)

// SetDefault swaps the factory used to construct the Scheduler for every
// Context created afterward, mirroring set_default_scheduler.
func SetDefault(factory func() Scheduler[any, any]) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultFactory = factory
}

// NewDefault constructs a fresh Scheduler using the current default
// factory. Called once per new batchctx.Context.
func NewDefault() Scheduler[any, any] {
	defaultMu.Lock()
	f := defaultFactory
	defaultMu.Unlock()
	return f()
}
