package memcache_test

import (
	"context"
	"net"
	"testing"
	"time"

	gomemcache "github.com/bradfitz/gomemcache/memcache"

	"github.com/mikekap/gbatchy/batchctx"
	"github.com/mikekap/gbatchy/clients/memcache"
	"github.com/mikekap/gbatchy/rtconfig"
)

const memcacheAddr = "127.0.0.1:11211"

// dialable mirrors original_source/tests/memcached_tests.py's setUp: skip
// the suite outright when no real server is reachable instead of mocking
// one out, since gomemcache's wire protocol isn't worth faking.
func dialable(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func requireMemcache(t *testing.T) *memcache.Client {
	t.Helper()
	if !dialable(memcacheAddr) {
		t.Skip("no memcached listening on 127.0.0.1:11211")
	}
	return memcache.New(gomemcache.New(memcacheAddr), 3)
}

func TestGetSetCoalesce(t *testing.T) {
	c := requireMemcache(t)
	prefix := time.Now().Format(time.RFC3339Nano) + "|"

	_, err := batchctx.Ensure(context.Background(), func(ctx context.Context) (any, error) {
		aSet := rtconfig.Spawn(ctx, func(ctx context.Context) (any, error) {
			return nil, c.Set(ctx, prefix+"a", []byte("1"), 100)
		})
		bSet := rtconfig.Spawn(ctx, func(ctx context.Context) (any, error) {
			return nil, c.Set(ctx, prefix+"b", []byte("2"), 100)
		})
		if _, err := aSet.Get(ctx, true, 0); err != nil {
			return nil, err
		}
		if _, err := bSet.Get(ctx, true, 0); err != nil {
			return nil, err
		}

		aGet := rtconfig.Spawn(ctx, func(ctx context.Context) (any, error) {
			v, err := c.Get(ctx, prefix+"a")
			return v, err
		})
		bGet := rtconfig.Spawn(ctx, func(ctx context.Context) (any, error) {
			v, err := c.Get(ctx, prefix+"b")
			return v, err
		})
		av, err := aGet.Get(ctx, true, 0)
		if err != nil {
			return nil, err
		}
		bv, err := bGet.Get(ctx, true, 0)
		if err != nil {
			return nil, err
		}
		a := av.(memcache.GetResult)
		b := bv.(memcache.GetResult)
		if !a.Found || string(a.Value) != "1" {
			t.Errorf("a: got %+v, want Found=true Value=1", a)
		}
		if !b.Found || string(b.Value) != "2" {
			t.Errorf("b: got %+v, want Found=true Value=2", b)
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
}

func TestDeleteThenMiss(t *testing.T) {
	c := requireMemcache(t)
	key := time.Now().Format(time.RFC3339Nano) + "|del"

	_, err := batchctx.Ensure(context.Background(), func(ctx context.Context) (any, error) {
		if err := c.Set(ctx, key, []byte("x"), 100); err != nil {
			return nil, err
		}
		if err := c.Delete(ctx, key); err != nil {
			return nil, err
		}
		r, err := c.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if r.Found {
			t.Errorf("expected miss after delete, got %+v", r)
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
}
