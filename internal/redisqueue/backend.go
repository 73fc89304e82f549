package redisqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func queueKey(name string) string { return fmt.Sprintf("mail:queue:%s", name) }
func jobKey(id string) string     { return fmt.Sprintf("mail:job:%s", id) }
func uniqueKey(sig string) string { return fmt.Sprintf("mail:unique:%s", sig) }

// backend is the set of Redis operations the queue needs.
type backend interface {
	// push stores data under key and pushes id onto list atomically.
	push(ctx context.Context, key string, data []byte, list, id string) error
	// pop blocks up to timeout for an id from list. It returns "" on timeout.
	pop(ctx context.Context, list string, timeout time.Duration) (string, error)
	get(ctx context.Context, key string) ([]byte, error)
	set(ctx context.Context, key string, data []byte) error
	// claim sets key only if it does not exist yet and reports whether it did.
	claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// release drops a claim taken by claim.
	release(ctx context.Context, key string) error
}

type redisBackend struct {
	rdb redis.UniversalClient
}

func (b *redisBackend) push(ctx context.Context, key string, data []byte, list, id string) error {
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		pipe.LPush(ctx, list, id)
		return nil
	})
	return err
}

func (b *redisBackend) pop(ctx context.Context, list string, timeout time.Duration) (string, error) {
	res, err := b.rdb.BRPop(ctx, timeout, list).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	// res[0] is the list key, res[1] the popped value.
	return res[1], nil
}

func (b *redisBackend) get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return data, err
}

func (b *redisBackend) set(ctx context.Context, key string, data []byte) error {
	return b.rdb.Set(ctx, key, data, 0).Err()
}

func (b *redisBackend) claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return b.rdb.SetNX(ctx, key, 1, ttl).Result()
}

func (b *redisBackend) release(ctx context.Context, key string) error {
	return b.rdb.Del(ctx, key).Err()
}
