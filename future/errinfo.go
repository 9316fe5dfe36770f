// Package future provides a settable, awaitable single-value container with
// FIFO callback fan-out, the foundation the rest of gbatchy is built on.
package future

import "fmt"

// ErrKind classifies the way a Future came to hold an error, mirroring the
// kinds a batch-coalescing runtime can produce on its own behalf as well as
// errors raised by user code.
type ErrKind int

const (
	// KindUser wraps an error returned by user-supplied code: a task body, a
	// batched bulk function, or a Transform/Chain callback.
	KindUser ErrKind = iota
	// KindTimeout is raised by Get/Wait when a timeout elapses before the
	// Future settles.
	KindTimeout
	// KindAlreadySet is raised by Set/SetError against an already-settled
	// Future.
	KindAlreadySet
	// KindInvariantViolation marks a batch-return-length mismatch or an
	// internal assertion failure in the scheduler.
	KindInvariantViolation
)

func (k ErrKind) String() string {
	switch k {
	case KindTimeout:
		return "Timeout"
	case KindAlreadySet:
		return "AlreadySet"
	case KindInvariantViolation:
		return "InvariantViolation"
	default:
		return "User"
	}
}

// ErrInfo is the error value stored in a settled Future. A single ErrInfo is
// shared by every Future in a batch that fails as a whole, matching the
// propagation policy in §7 of the spec: one value, many readers, rather than
// a per-reader copy.
type ErrInfo struct {
	Kind ErrKind
	Err  error

	// trace is a ring-managed handle to the retained stack trace, if any.
	// It may be cleared independently of Err by the global trace ring once
	// the ring's capacity is exceeded; Kind and Err are never touched by
	// that eviction.
	trace *traceHandle
}

// NewErrInfo builds an ErrInfo of the given kind around err, registering its
// stack trace with the global retained-trace ring.
func NewErrInfo(kind ErrKind, err error) ErrInfo {
	info := ErrInfo{Kind: kind, Err: err}
	info.trace = addTrace()
	return info
}

func (e ErrInfo) Error() string {
	if e.trace != nil {
		if t := e.trace.String(); t != "" {
			return fmt.Sprintf("%s: %v\n%s", e.Kind, e.Err, t)
		}
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap exposes the wrapped error for errors.Is/errors.As.
func (e ErrInfo) Unwrap() error {
	return e.Err
}

// Timeout reports whether this error came from a Get/Wait timeout.
func (e ErrInfo) Timeout() bool {
	return e.Kind == KindTimeout
}

var (
	// errAlreadySet is wrapped by an ErrInfo of KindAlreadySet when Set or
	// SetError targets an already-settled Future.
	errAlreadySet = fmt.Errorf("future: already set")
	// errTimeout is wrapped by an ErrInfo of KindTimeout.
	errTimeout = fmt.Errorf("future: timed out")
)

func alreadySetErr() ErrInfo {
	return ErrInfo{Kind: KindAlreadySet, Err: errAlreadySet}
}

func timeoutErr() ErrInfo {
	return ErrInfo{Kind: KindTimeout, Err: errTimeout}
}
