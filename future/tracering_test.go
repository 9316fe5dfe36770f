package future

import (
	"errors"
	"testing"
)

func TestTraceRingBoundedCapacity(t *testing.T) {
	SetTraceRingCapacity(3)
	defer SetTraceRingCapacity(defaultTraceRingCapacity)

	var infos []ErrInfo
	for i := 0; i < 10; i++ {
		infos = append(infos, NewErrInfo(KindUser, errors.New("boom")))
	}

	if n := traceRingLen(); n != 3 {
		t.Fatalf("expected ring occupancy capped at 3, got %d", n)
	}

	// Evicted entries keep Kind and Err; only the stored trace is cleared.
	for i := 0; i < 7; i++ {
		if infos[i].Kind != KindUser {
			t.Errorf("entry %d: Kind was touched by eviction", i)
		}
		if infos[i].Err == nil {
			t.Errorf("entry %d: Err was touched by eviction", i)
		}
		if got := infos[i].trace.String(); got != "" {
			t.Errorf("entry %d: expected evicted trace to be empty, got %q", i, got)
		}
	}

	// The most recent entries are still within the ring and retain a trace.
	for i := 7; i < 10; i++ {
		if infos[i].trace.String() == "" {
			t.Errorf("entry %d: expected retained trace to be non-empty", i)
		}
	}
}

func TestAddTraceCapturesCaller(t *testing.T) {
	SetTraceRingCapacity(defaultTraceRingCapacity)
	info := NewErrInfo(KindUser, errors.New("x"))
	if info.trace.String() == "" {
		t.Errorf("expected a non-empty captured trace")
	}
}
