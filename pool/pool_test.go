package pool_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mikekap/gbatchy/pool"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	p := pool.New(2)
	var running, maxRunning atomic.Int32

	items := make([]int, 6)
	for i := range items {
		items[i] = i
	}

	_, err := pool.PMap(p, context.Background(), items, func(ctx context.Context, v int) (int, error) {
		n := running.Add(1)
		for {
			old := maxRunning.Load()
			if n <= old || maxRunning.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return v, nil
	})
	if err != nil {
		t.Fatalf("PMap: %v", err)
	}
	if got := maxRunning.Load(); got > 2 {
		t.Errorf("observed %d concurrent tasks, want at most 2", got)
	}
}

func TestPoolPMapPreservesOrder(t *testing.T) {
	p := pool.New(3)
	items := []int{5, 4, 3, 2, 1}
	got, err := pool.PMap(p, context.Background(), items, func(ctx context.Context, v int) (int, error) {
		time.Sleep(time.Duration(v) * time.Millisecond)
		return v * v, nil
	})
	if err != nil {
		t.Fatalf("PMap: %v", err)
	}
	want := []int{25, 16, 9, 4, 1}
	for i, v := range want {
		if got[i] != v {
			t.Errorf("index %d: got %d, want %d", i, got[i], v)
		}
	}
}

func TestPoolIMapUnorderedYieldsAll(t *testing.T) {
	p := pool.New(2)
	items := []int{1, 2, 3}
	next := pool.IMapUnordered(p, context.Background(), items, func(ctx context.Context, v int) (int, error) {
		return v * 10, nil
	})

	seen := map[int]bool{}
	for {
		r, ok := next()
		if !ok {
			break
		}
		if r.Err != nil {
			t.Fatalf("unexpected error: %v", r.Err)
		}
		seen[r.Value] = true
	}
	for _, want := range []int{10, 20, 30} {
		if !seen[want] {
			t.Errorf("missing %d in results", want)
		}
	}
}

func TestPoolWaitAvailable(t *testing.T) {
	p := pool.New(1)
	done := make(chan struct{})
	p.Spawn(context.Background(), func(ctx context.Context) (any, error) {
		time.Sleep(10 * time.Millisecond)
		close(done)
		return nil, nil
	})

	p.WaitAvailable(context.Background())
	select {
	case <-done:
	default:
		t.Errorf("WaitAvailable returned before the sole slot was released")
	}
}
