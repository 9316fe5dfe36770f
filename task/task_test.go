package task_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mikekap/gbatchy/task"
)

// countingOwner is a minimal accounting stub satisfying task's owner
// interface structurally, used to assert the create/block/runnable/finish
// call sequence without depending on batchctx.
type countingOwner struct {
	mu                                 sync.Mutex
	created, blocked, runnable, finish int
}

func (c *countingOwner) OnTaskCreated()  { c.mu.Lock(); c.created++; c.mu.Unlock() }
func (c *countingOwner) OnTaskBlocked()  { c.mu.Lock(); c.blocked++; c.mu.Unlock() }
func (c *countingOwner) OnTaskRunnable() { c.mu.Lock(); c.runnable++; c.mu.Unlock() }
func (c *countingOwner) OnTaskFinished() { c.mu.Lock(); c.finish++; c.mu.Unlock() }

func (c *countingOwner) snapshot() (created, blocked, runnable, finish int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created, c.blocked, c.runnable, c.finish
}

func TestSpawnAccountsCreatedRunnableAndFinished(t *testing.T) {
	owner := &countingOwner{}
	ctx := task.WithOwner(context.Background(), owner)

	f := task.Spawn(ctx, func(context.Context) (any, error) {
		return 7, nil
	})

	v, err := f.Get(context.Background(), true, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != 7 {
		t.Errorf("got %v, want 7", v)
	}

	created, _, runnable, finish := owner.snapshot()
	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}
	if runnable != 1 {
		t.Errorf("runnable = %d, want 1 (flip to runnable at spawn)", runnable)
	}
	if finish != 1 {
		t.Errorf("finish = %d, want 1", finish)
	}
}

func TestSpawnPropagatesError(t *testing.T) {
	owner := &countingOwner{}
	ctx := task.WithOwner(context.Background(), owner)
	want := errors.New("boom")

	f := task.Spawn(ctx, func(context.Context) (any, error) {
		return nil, want
	})

	_, err := f.Get(context.Background(), true, 0)
	if !errors.Is(err, want) {
		t.Errorf("expected %v wrapped, got %v", want, err)
	}
}

func TestSpawnRecoversPanic(t *testing.T) {
	ctx := context.Background()
	f := task.Spawn(ctx, func(context.Context) (any, error) {
		panic("kaboom")
	})
	_, err := f.Get(context.Background(), true, 0)
	if err == nil {
		t.Fatalf("expected panic to surface as an error")
	}
}

func TestFromContextInsideSpawnedBody(t *testing.T) {
	ctx := context.Background()
	found := make(chan bool, 1)
	task.Spawn(ctx, func(inner context.Context) (any, error) {
		found <- task.FromContext(inner) != nil
		return nil, nil
	})
	if !<-found {
		t.Errorf("expected the spawned task to be retrievable from its own context")
	}
}

func TestMayBlockMarksBlockedForScopeDuration(t *testing.T) {
	owner := &countingOwner{}
	ctx := task.WithOwner(context.Background(), owner)

	done := make(chan struct{})
	task.Spawn(ctx, func(inner context.Context) (any, error) {
		scoped, release := task.MayBlock(inner)
		_ = scoped
		release()
		close(done)
		return nil, nil
	})
	<-done

	_, blocked, runnable, _ := owner.snapshot()
	if blocked == 0 {
		t.Errorf("expected MayBlock to mark the task blocked at least once")
	}
	if runnable < blocked {
		t.Errorf("expected a matching runnable transition for each MayBlock block, blocked=%d runnable=%d", blocked, runnable)
	}
}

func TestDispatcherRunsPostedClosuresFIFO(t *testing.T) {
	d := task.NewDispatcher()
	defer d.Close()

	var mu sync.Mutex
	var order []int
	wg := sync.WaitGroup{}
	wg.Add(5)
	for i := 0; i < 5; i++ {
		i := i
		d.Post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Errorf("order[%d] = %d, want %d (dispatcher must run closures FIFO)", i, v, i)
		}
	}
}
