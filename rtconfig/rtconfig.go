// Package rtconfig holds process-wide runtime configuration: the
// retained-error trace ring's capacity, the active observer, and the
// registered auto-wrappers applied around every Task body spawned through
// Spawn. Grounded on the teacher's orchestrate/config.ParallelConfig
// (pointer-bool-for-explicit-false convention, a DefaultX constructor, and
// a Merge method that only overwrites fields the source actually set).
package rtconfig

import (
	"context"
	"sync"
	"time"

	"github.com/mikekap/gbatchy/future"
	"github.com/mikekap/gbatchy/observability"
	"github.com/mikekap/gbatchy/task"
)

// DefaultMaxExcInfos is MAX_EXC_INFOS: how many retained error traces the
// process keeps before evicting the oldest.
const DefaultMaxExcInfos = 10

// RuntimeConfig is the process-wide tuning knobs a host applies once at
// startup via Apply. Zero-value fields mean "use the default" when passed
// to Merge, matching every other Config in this tree.
type RuntimeConfig struct {
	// MaxSize is a per-operation batch size cap carried through Merge.
	// Apply does not install it: batched.Options reads only its own
	// MaxSize field.
	MaxSize int

	// Timeout is a per-call timeout carried through Merge; zero means no
	// timeout. Apply does not install it, and Future.Get/Wait use only the
	// timeout their caller passes.
	Timeout time.Duration

	// MaxExcInfos bounds the global retained-trace ring.
	MaxExcInfos int

	// StrictNil records whether unobserved errors are to be treated
	// strictly; use StrictNil to distinguish unset from an explicit false;
	// access via Strict(). Apply does not install it and nothing in the
	// runtime reads it: an unobserved error is only ever reported through
	// the observability hook, never turned into a panic.
	StrictNil *bool

	// AutoWrappers is merged into the global registry by Apply rather than
	// replacing it; call AddAutoWrapper directly for incremental
	// registration outside of a Merge/Apply pass.
	AutoWrappers []func(task.Body) task.Body

	// Observer, if set, becomes the process-wide observability.Observer
	// that future/task/scheduler report runtime events to.
	Observer observability.Observer
}

// Strict reports the StrictNil setting, defaulting to false when unset.
func (c *RuntimeConfig) Strict() bool {
	if c.StrictNil == nil {
		return false
	}
	return *c.StrictNil
}

// DefaultRuntimeConfig returns the out-of-the-box configuration.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		MaxExcInfos: DefaultMaxExcInfos,
	}
}

// Merge applies non-zero fields from source into c, following the same
// convention as session.Config/memory.Config/orchestrate/config's
// ParallelConfig.Merge.
func (c *RuntimeConfig) Merge(source *RuntimeConfig) {
	if source.MaxSize > 0 {
		c.MaxSize = source.MaxSize
	}
	if source.Timeout > 0 {
		c.Timeout = source.Timeout
	}
	if source.MaxExcInfos > 0 {
		c.MaxExcInfos = source.MaxExcInfos
	}
	if source.StrictNil != nil {
		c.StrictNil = source.StrictNil
	}
	if len(source.AutoWrappers) > 0 {
		c.AutoWrappers = append(c.AutoWrappers, source.AutoWrappers...)
	}
	if source.Observer != nil {
		c.Observer = source.Observer
	}
}

// Apply installs cfg as the process-wide configuration: resizes the
// future package's retained-trace ring, installs cfg.Observer as the
// active observability.Observer, and registers cfg's AutoWrappers.
// Intended to be called once at startup.
func Apply(cfg RuntimeConfig) {
	future.SetTraceRingCapacity(cfg.MaxExcInfos)
	if cfg.Observer != nil {
		observability.SetActive(cfg.Observer)
	}
	for _, w := range cfg.AutoWrappers {
		AddAutoWrapper(w)
	}
}

var (
	mu             sync.Mutex
	globalWrappers []func(task.Body) task.Body
)

// AddAutoWrapper registers fn to wrap every Task body spawned through
// Spawn from now on. Wrappers apply in registration order: the first
// registered wrapper is outermost, matching add_auto_wrapper's
// append-only, application-order semantics.
func AddAutoWrapper(fn func(task.Body) task.Body) {
	mu.Lock()
	defer mu.Unlock()
	globalWrappers = append(globalWrappers, fn)
}

// ResetAutoWrappers clears every registered wrapper. Exists for tests that
// need isolation between cases.
func ResetAutoWrappers() {
	mu.Lock()
	defer mu.Unlock()
	globalWrappers = nil
}

// Wrap applies every registered auto-wrapper to body, in registration
// order, and is the function batchctx/batched call in place of a bare
// task.Spawn so every Task body in the runtime is subject to the globally
// registered wrappers (logging, tracing, panics-to-errors, etc.).
func Wrap(body task.Body) task.Body {
	mu.Lock()
	wrappers := append([]func(task.Body) task.Body(nil), globalWrappers...)
	mu.Unlock()

	for i := len(wrappers) - 1; i >= 0; i-- {
		body = wrappers[i](body)
	}
	return body
}

// Spawn wraps body with every registered auto-wrapper and spawns it as a
// Task, the composition point AddAutoWrapper's doc comment promises.
func Spawn(ctx context.Context, body task.Body) *future.Future[any] {
	return task.Spawn(ctx, Wrap(body))
}
