package batched_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mikekap/gbatchy/batchctx"
	"github.com/mikekap/gbatchy/batched"
	"github.com/mikekap/gbatchy/future"
	"github.com/mikekap/gbatchy/rtconfig"
)

var errOdd = errors.New("odd arg rejected")

// S3 — per-index failure: one call in a batch fails without affecting
// the others' results.
func TestPerIndexError(t *testing.T) {
	fn := batched.Batched(batched.Options{}, func(args []int) ([]batched.OneResult[int], error) {
		out := make([]batched.OneResult[int], len(args))
		for i, a := range args {
			if a%2 != 0 {
				out[i] = batched.Raise[int](future.NewErrInfo(future.KindUser, errOdd))
				continue
			}
			out[i] = batched.Value(a)
		}
		return out, nil
	})

	_, err := batchctx.Ensure(context.Background(), func(ctx context.Context) (any, error) {
		oddF := rtconfig.Spawn(ctx, func(ctx context.Context) (any, error) {
			return fn.Call(ctx, 1)
		})
		evenF := rtconfig.Spawn(ctx, func(ctx context.Context) (any, error) {
			return fn.Call(ctx, 2)
		})

		if _, err := oddF.Get(ctx, true, 2*time.Second); err == nil {
			t.Errorf("expected odd call to fail")
		} else if !errors.Is(err, errOdd) {
			t.Errorf("got %v, want wrapping errOdd", err)
		}

		v, err := evenF.Get(ctx, true, 2*time.Second)
		if err != nil {
			t.Fatalf("even call: %v", err)
		}
		if v.(int) != 2 {
			t.Errorf("got %v, want 2", v)
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
}

// S4 — whole-batch failure: when the bulk function itself returns an
// error, every awaiter in the batch fails with an error wrapping it.
func TestWholeBatchError(t *testing.T) {
	errBoom := errors.New("boom")
	fn := batched.Batched(batched.Options{}, func(args []int) ([]batched.OneResult[int], error) {
		return nil, errBoom
	})

	_, err := batchctx.Ensure(context.Background(), func(ctx context.Context) (any, error) {
		f1 := rtconfig.Spawn(ctx, func(ctx context.Context) (any, error) {
			return fn.Call(ctx, 1)
		})
		f2 := rtconfig.Spawn(ctx, func(ctx context.Context) (any, error) {
			return fn.Call(ctx, 2)
		})

		if _, err := f1.Get(ctx, true, 2*time.Second); !errors.Is(err, errBoom) {
			t.Errorf("awaiter 1: got %v, want wrapping errBoom", err)
		}
		if _, err := f2.Get(ctx, true, 2*time.Second); !errors.Is(err, errBoom) {
			t.Errorf("awaiter 2: got %v, want wrapping errBoom", err)
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
}
