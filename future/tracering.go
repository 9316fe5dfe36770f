package future

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/mikekap/gbatchy/observability"
)

// defaultTraceRingCapacity is the default size of the retained-error-trace
// ring (MAX_EXC_INFOS in the spec's external-interfaces table).
const defaultTraceRingCapacity = 10

// traceHandle holds one retained stack trace. Once evicted from the ring,
// frames is cleared but the handle itself stays valid and referenced from
// any ErrInfo that captured it — only the trace text is lost.
type traceHandle struct {
	mu     sync.Mutex
	frames []uintptr
}

func (h *traceHandle) String() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.frames) == 0 {
		return ""
	}
	frames := runtime.CallersFrames(h.frames)
	var b strings.Builder
	for {
		frame, more := frames.Next()
		b.WriteString(frame.Function)
		b.WriteByte('\n')
		if !more {
			break
		}
	}
	return b.String()
}

func (h *traceHandle) clear() {
	h.mu.Lock()
	h.frames = nil
	h.mu.Unlock()
}

// traceRing is a bounded, process-global, mutex-protected ring of retained
// traces. It is a retention policy on traces, not on errors: evicting the
// oldest entry clears its captured frames but never touches the ErrKind or
// payload stored on the owning ErrInfo. Adapted from the teacher's
// memory.Cache mutex-guarded map, narrowed from a keyed cache to a
// fixed-capacity ring buffer.
type traceRing struct {
	mu       sync.Mutex
	entries  []*traceHandle
	capacity int
}

var globalTraceRing = &traceRing{
	entries:  make([]*traceHandle, 0, defaultTraceRingCapacity),
	capacity: defaultTraceRingCapacity,
}

// SetTraceRingCapacity resizes the global retained-trace ring. Intended to
// be called once at startup (see rtconfig.Apply); shrinking the ring evicts
// the oldest entries immediately.
func SetTraceRingCapacity(n int) {
	if n <= 0 {
		n = defaultTraceRingCapacity
	}
	globalTraceRing.mu.Lock()
	defer globalTraceRing.mu.Unlock()
	globalTraceRing.capacity = n
	evicted := 0
	for len(globalTraceRing.entries) > n {
		globalTraceRing.entries[0].clear()
		globalTraceRing.entries = globalTraceRing.entries[1:]
		evicted++
	}
	if evicted > 0 {
		reportTraceRingEvicted(evicted)
	}
}

func reportTraceRingEvicted(count int) {
	observability.Active().OnEvent(context.Background(), observability.Event{
		Type:      observability.EventTraceRingEvicted,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "future.traceRing",
		Data:      map[string]any{"evicted": count},
	})
}

func addTrace() *traceHandle {
	pc := make([]uintptr, 32)
	// Skip runtime.Callers, addTrace and NewErrInfo, so the trace starts
	// at NewErrInfo's caller.
	count := runtime.Callers(3, pc)
	h := &traceHandle{frames: pc[:count]}

	r := globalTraceRing
	r.mu.Lock()
	evicted := 0
	if len(r.entries) >= r.capacity {
		evicted = len(r.entries) - r.capacity + 1
		for i := 0; i < evicted; i++ {
			r.entries[i].clear()
		}
		r.entries = r.entries[evicted:]
	}
	r.entries = append(r.entries, h)
	r.mu.Unlock()

	if evicted > 0 {
		reportTraceRingEvicted(evicted)
	}
	return h
}

// traceRingLen reports the current ring occupancy; unexported, used only
// by the package-internal test file.
func traceRingLen() int {
	globalTraceRing.mu.Lock()
	defer globalTraceRing.mu.Unlock()
	return len(globalTraceRing.entries)
}
