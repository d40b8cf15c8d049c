// Package rediscache backs the cache store with Redis: keys hold the
// serialized per-scope collections and pub/sub fans writes out to sibling
// contexts on other connections.
package rediscache

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	c *redis.Client
}

func New(addr string) *RedisCache {
	return &RedisCache{
		c: redis.NewClient(&redis.Options{
			Addr: addr,
		}),
	}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.c.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "redis get")
	}
	return val, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	if err := r.c.Set(ctx, key, value, 0).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

// Publish sends a change notification to every context subscribed to the key
func (r *RedisCache) Publish(ctx context.Context, key string, payload []byte) error {
	if err := r.c.Publish(ctx, channelFor(key), payload).Err(); err != nil {
		return errors.Wrap(err, "redis publish")
	}
	return nil
}

// Subscribe delivers notifications published for the key until the returned
// function is called.
func (r *RedisCache) Subscribe(key string, handler func(payload []byte)) (func(), error) {
	sub := r.c.Subscribe(context.Background(), channelFor(key))
	// Wait for the subscription to be confirmed so publishes issued right
	// after Subscribe returns are not lost.
	if _, err := sub.Receive(context.Background()); err != nil {
		_ = sub.Close()
		return nil, errors.Wrap(err, "redis subscribe")
	}

	done := make(chan struct{})
	go func() {
		ch := sub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		_ = sub.Close()
	}, nil
}

func channelFor(key string) string {
	return key + ":changes"
}
