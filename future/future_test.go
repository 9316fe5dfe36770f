package future_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mikekap/gbatchy/future"
)

func TestSetThenGet(t *testing.T) {
	f := future.New[int]()
	if err := f.Set(42); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := f.Get(context.Background(), true, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != 42 {
		t.Errorf("got %d, want 42", v)
	}
	if !f.Ready() || !f.Successful() {
		t.Errorf("expected ready and successful")
	}
}

func TestSetTwiceFails(t *testing.T) {
	f := future.New[int]()
	if err := f.Set(1); err != nil {
		t.Fatalf("first Set: %v", err)
	}
	err := f.Set(2)
	if err == nil {
		t.Fatalf("expected error on second Set")
	}
	var ei future.ErrInfo
	if !errors.As(err, &ei) || ei.Kind != future.KindAlreadySet {
		t.Errorf("expected KindAlreadySet, got %v", err)
	}
}

func TestGetNonBlockingNotReady(t *testing.T) {
	f := future.New[int]()
	_, err := f.Get(context.Background(), false, 0)
	if err == nil {
		t.Fatalf("expected Timeout error")
	}
	var ei future.ErrInfo
	if !errors.As(err, &ei) || !ei.Timeout() {
		t.Errorf("expected Timeout error, got %v", err)
	}
}

func TestGetBlocksUntilSet(t *testing.T) {
	f := future.New[string]()
	go func() {
		time.Sleep(10 * time.Millisecond)
		f.Set("done")
	}()
	v, err := f.Get(context.Background(), true, time.Second)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "done" {
		t.Errorf("got %q, want %q", v, "done")
	}
}

func TestGetTimeoutExpires(t *testing.T) {
	f := future.New[int]()
	_, err := f.Get(context.Background(), true, 10*time.Millisecond)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	var ei future.ErrInfo
	if !errors.As(err, &ei) || !ei.Timeout() {
		t.Errorf("expected Timeout, got %v", err)
	}
	if f.Ready() {
		t.Errorf("future should be unaffected by a single awaiter's timeout")
	}
}

func TestGetContextCanceled(t *testing.T) {
	f := future.New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Get(ctx, true, 0)
	if err == nil {
		t.Fatalf("expected context-canceled error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled wrapped, got %v", err)
	}
}

func TestSetErrorPropagates(t *testing.T) {
	f := future.New[int]()
	want := errors.New("boom")
	f.SetError(future.NewErrInfo(future.KindUser, want))

	_, err := f.Get(context.Background(), true, 0)
	if !errors.Is(err, want) {
		t.Errorf("expected %v wrapped, got %v", want, err)
	}
	if f.Successful() {
		t.Errorf("expected unsuccessful future")
	}
}

func TestLinkFIFOOrder(t *testing.T) {
	f := future.New[int]()
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		f.Link(func(*future.Future[int]) { order = append(order, i) })
	}
	f.Set(1)

	if len(order) != 3 {
		t.Fatalf("expected 3 callbacks, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Errorf("callback order[%d] = %d, want %d", i, v, i)
		}
	}
}

// TestSetNeverDeliversPreRegisteredLinkInline locks in spec.md §3/§4.A's
// "schedule delivery on the dispatcher... never inline under the
// setter": a Link registered before settlement must still be dispatched
// through the Future's poster, exactly like one registered afterwards,
// rather than invoked synchronously on Set's own call stack.
func TestSetNeverDeliversPreRegisteredLinkInline(t *testing.T) {
	posted := make(chan func(), 1)
	f := future.NewPosted[int](func(fn func()) { posted <- fn })

	delivered := false
	f.Link(func(g *future.Future[int]) {
		v, _ := g.Get(context.Background(), true, 0)
		if v != 7 {
			t.Errorf("got %d, want 7", v)
		}
		delivered = true
	})
	if err := f.Set(7); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if delivered {
		t.Fatalf("Set must not deliver a pre-registered Link callback inline")
	}

	select {
	case fn := <-posted:
		fn()
	case <-time.After(time.Second):
		t.Fatalf("expected a posted delivery")
	}
	if !delivered {
		t.Errorf("expected callback to have run once posted")
	}
}

// TestLinkAfterSettleRunsInlineWithoutPoster covers the one case where
// inline delivery remains correct: a bare future.New Future with no
// Context ever attached to it has no dispatcher to post to, so Link
// against an already-settled one falls back to running synchronously.
func TestLinkAfterSettleRunsInlineWithoutPoster(t *testing.T) {
	f := future.New[int]()
	f.Set(7)

	delivered := false
	f.Link(func(g *future.Future[int]) {
		v, _ := g.Get(context.Background(), true, 0)
		if v != 7 {
			t.Errorf("got %d, want 7", v)
		}
		delivered = true
	})
	if !delivered {
		t.Errorf("expected synchronous delivery for already-settled future with no poster")
	}
}

func TestNewPostedSchedulesDeliveryAfterSettle(t *testing.T) {
	posted := make(chan func(), 1)
	f := future.NewPosted[int](func(fn func()) { posted <- fn })
	f.Set(5)

	f.Link(func(*future.Future[int]) {})

	select {
	case fn := <-posted:
		fn()
	case <-time.After(time.Second):
		t.Fatalf("expected a posted delivery")
	}
}

func TestUnlinkBestEffort(t *testing.T) {
	f := future.New[int]()
	called := false
	cb := func(*future.Future[int]) { called = true }
	f.Link(cb)
	f.Unlink(cb)
	f.Set(1)
	if called {
		t.Errorf("expected unlinked callback not to run")
	}
}

func TestImmediate(t *testing.T) {
	f := future.Immediate(context.Background(), 9)
	if !f.Ready() || !f.Successful() {
		t.Fatalf("Immediate should be settled and successful")
	}
	v, err := f.Get(context.Background(), false, 0)
	if err != nil || v != 9 {
		t.Fatalf("got (%d, %v), want (9, nil)", v, err)
	}
}

func TestImmediateError(t *testing.T) {
	want := errors.New("bad")
	f := future.ImmediateError[int](context.Background(), future.NewErrInfo(future.KindUser, want))
	if f.Successful() {
		t.Fatalf("expected unsuccessful")
	}
	_, err := f.Get(context.Background(), false, 0)
	if !errors.Is(err, want) {
		t.Errorf("expected %v wrapped, got %v", want, err)
	}
}

func TestTransformRoundTrip(t *testing.T) {
	src := future.Immediate(context.Background(), 21)
	dst := future.Transform(context.Background(), src, func(v int) (int, error) { return v * 2, nil })
	v, err := dst.Get(context.Background(), false, 0)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if v != 42 {
		t.Errorf("got %d, want 42", v)
	}
}

func TestTransformPropagatesSourceError(t *testing.T) {
	want := errors.New("source failed")
	src := future.ImmediateError[int](context.Background(), future.NewErrInfo(future.KindUser, want))
	dst := future.Transform(context.Background(), src, func(v int) (string, error) { return "never", nil })
	_, err := dst.Get(context.Background(), false, 0)
	if !errors.Is(err, want) {
		t.Errorf("expected %v wrapped, got %v", want, err)
	}
}

func TestTransformFnErrorObservableViaGet(t *testing.T) {
	src := future.Immediate(context.Background(), 1)
	boom := errors.New("transform failed")
	dst := future.Transform(context.Background(), src, func(int) (int, error) { return 0, boom })
	_, err := dst.Get(context.Background(), false, 0)
	if !errors.Is(err, boom) {
		t.Errorf("expected %v wrapped, got %v", boom, err)
	}
}

// TestChainNotReadyUntilInnerSettles is scenario S6 from the testable
// properties: chain(immediate(2), fn: spawn-like inner future) should not
// be ready until the inner future itself settles, and the final value is
// that of the inner future.
func TestChainNotReadyUntilInnerSettles(t *testing.T) {
	src := future.Immediate(context.Background(), 2)
	inner := future.New[int]()

	dst := future.Chain(context.Background(), src, func(v int) (*future.Future[int], error) {
		return inner, nil
	})

	if dst.Ready() {
		t.Fatalf("expected chain result not ready before inner future settles")
	}

	inner.Set(2 * 4)

	v, err := dst.Get(context.Background(), true, time.Second)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != 8 {
		t.Errorf("got %d, want 8", v)
	}
}

func TestChainPropagatesInnerError(t *testing.T) {
	src := future.Immediate(context.Background(), 1)
	want := errors.New("inner failed")
	dst := future.Chain(context.Background(), src, func(int) (*future.Future[int], error) {
		return future.ImmediateError[int](context.Background(), future.NewErrInfo(future.KindUser, want)), nil
	})
	_, err := dst.Get(context.Background(), true, time.Second)
	if !errors.Is(err, want) {
		t.Errorf("expected %v wrapped, got %v", want, err)
	}
}
