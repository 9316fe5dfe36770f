// Package rediscache is a thin @batched wrapper over *redis.Client,
// grounded on original_source/gbatchy/clients/redis.py's
// BatchRedisClient/_batch_call: concurrent callers queue commands against
// one Client, which pipelines every command pending in a batch into a
// single round trip via go-redis's Pipelined, then demultiplexes each
// Cmder back to its caller. Unlike the Python original's __getattr__-based
// dynamic dispatch, commands are expressed as closures over a
// redis.Pipeliner — Go has no duck-typed attribute lookup, so the
// dispatch that original_source performs at call time happens at Go
// compile time instead, per spec.md §9's guidance to replace weak
// identity/dispatch tricks with explicit, typed constructs.
package rediscache

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cenkalti/backoff/v5"

	"github.com/mikekap/gbatchy/batched"
	"github.com/mikekap/gbatchy/future"
)

// Client coalesces concurrent Redis commands issued against the same
// *redis.Client into one pipeline per batch.
type Client struct {
	rdb     *goredis.Client
	retries uint
}

// New wraps rdb. retries bounds the backoff.Retry attempts a whole
// pipeline makes when the round trip itself fails (a dropped connection,
// not an individual command's own error, which always demultiplexes to
// its own caller regardless of retries).
func New(rdb *goredis.Client, retries uint) *Client {
	if retries == 0 {
		retries = 1
	}
	return &Client{rdb: rdb, retries: retries}
}

// command is one queued pipeline operation: build enqueues it against a
// live Pipeliner: the queued command is returned unchanged so exec can
// read each Cmder's own result once the pipeline executes.
type command struct {
	build func(pipe goredis.Pipeliner) goredis.Cmder
}

var execBatch = batched.ClassBatched[*Client, command, goredis.Cmder](batched.Options{}, func(c *Client, cmds []command) ([]batched.OneResult[goredis.Cmder], error) {
	cmders, err := backoff.Retry(context.Background(), func() ([]goredis.Cmder, error) {
		cmders, err := c.rdb.Pipelined(context.Background(), func(pipe goredis.Pipeliner) error {
			for _, cmd := range cmds {
				cmd.build(pipe)
			}
			return nil
		})
		// Pipelined returns a non-nil error whenever any queued command got
		// an error reply (including an expected redis.Nil cache miss). The
		// round trip itself succeeded then, so it is not retried; each
		// command's own error is demultiplexed below.
		var replyErr goredis.Error
		if err != nil && errors.As(err, &replyErr) {
			return cmders, nil
		}
		return cmders, err
	}, backoff.WithMaxTries(c.retries))

	// A failed round trip is only fatal to the whole batch when the
	// pipeline didn't even return one Cmder per queued command; otherwise
	// each Cmder carries its own error to its own caller.
	if err != nil && len(cmders) != len(cmds) {
		return nil, err
	}

	out := make([]batched.OneResult[goredis.Cmder], len(cmds))
	for i, cmder := range cmders {
		if cmdErr := cmder.Err(); cmdErr != nil && cmdErr != goredis.Nil {
			out[i] = batched.Raise[goredis.Cmder](future.NewErrInfo(future.KindUser, cmdErr))
			continue
		}
		out[i] = batched.Value(cmder)
	}
	return out, nil
})

func (c *Client) exec(ctx context.Context, build func(pipe goredis.Pipeliner) goredis.Cmder) (goredis.Cmder, error) {
	return execBatch.Call(ctx, c, command{build: build})
}

// Get fetches key, coalescing with every other command pending on the
// same Context's batch into one pipeline round trip. A missing key
// returns ("", nil), matching go-redis's Nil convention rather than
// surfacing it as an error.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	cmder, err := c.exec(ctx, func(pipe goredis.Pipeliner) goredis.Cmder { return pipe.Get(ctx, key) })
	if err != nil {
		return "", err
	}
	sc := cmder.(*goredis.StringCmd)
	if sc.Err() == goredis.Nil {
		return "", nil
	}
	return sc.Val(), nil
}

// Set stores key, coalescing with every other pending command.
func (c *Client) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	_, err := c.exec(ctx, func(pipe goredis.Pipeliner) goredis.Cmder { return pipe.Set(ctx, key, value, expiration) })
	return err
}

// Del removes keys, coalescing with every other pending command.
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	cmder, err := c.exec(ctx, func(pipe goredis.Pipeliner) goredis.Cmder { return pipe.Del(ctx, keys...) })
	if err != nil {
		return 0, err
	}
	return cmder.(*goredis.IntCmd).Val(), nil
}

// Incr increments key by one, coalescing with every other pending
// command.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	cmder, err := c.exec(ctx, func(pipe goredis.Pipeliner) goredis.Cmder { return pipe.Incr(ctx, key) })
	if err != nil {
		return 0, err
	}
	return cmder.(*goredis.IntCmd).Val(), nil
}

// Expire sets key's TTL, coalescing with every other pending command.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	cmder, err := c.exec(ctx, func(pipe goredis.Pipeliner) goredis.Cmder { return pipe.Expire(ctx, key, ttl) })
	if err != nil {
		return false, err
	}
	return cmder.(*goredis.BoolCmd).Val(), nil
}

// Exists reports how many of keys exist, coalescing with every other
// pending command.
func (c *Client) Exists(ctx context.Context, keys ...string) (int64, error) {
	cmder, err := c.exec(ctx, func(pipe goredis.Pipeliner) goredis.Cmder { return pipe.Exists(ctx, keys...) })
	if err != nil {
		return 0, err
	}
	return cmder.(*goredis.IntCmd).Val(), nil
}
