package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"locallibrary/pkg/circuitbreaker"
)

var (
	ErrFailedToParseRedisURL = errors.New("failed to parse redis connection string")
	ErrRedisNotReady         = errors.New("redis did not become ready within the given time period")
)

const keyPrefix = "session:"

// Connect pings the redis server behind url until it answers or attempts
// run out.
func Connect(ctx context.Context, url string, attempts int, interval time.Duration) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisURL, err)
	}
	if attempts < 1 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(interval):
		}
	}
	return nil, ErrRedisNotReady
}

// RedisStore keeps each session as a JSON value under "session:<id>" with
// the session lifetime as key expiry.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) Get(ctx context.Context, id string) (Data, error) {
	raw, err := r.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Data{}, ErrNotFound
	}
	if err != nil {
		return Data{}, fmt.Errorf("redis get session: %w", err)
	}
	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return Data{}, fmt.Errorf("decode session: %w", err)
	}
	return data, nil
}

func (r *RedisStore) Save(ctx context.Context, id string, data Data) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, keyPrefix+id, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, keyPrefix+id).Err()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// BreakerStore fails fast with circuitbreaker.ErrOpen while the wrapped
// store keeps failing. A missing session is an answer, not a failure.
type BreakerStore struct {
	store   Store
	breaker *circuitbreaker.CircuitBreaker
}

func NewBreakerStore(store Store, breaker *circuitbreaker.CircuitBreaker) *BreakerStore {
	return &BreakerStore{store: store, breaker: breaker}
}

func (b *BreakerStore) Get(ctx context.Context, id string) (Data, error) {
	var data Data
	var missing bool
	err := b.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		data, err = b.store.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			missing = true
			return nil
		}
		return err
	})
	if err == nil && missing {
		return Data{}, ErrNotFound
	}
	return data, err
}

func (b *BreakerStore) Save(ctx context.Context, id string, data Data) error {
	return b.breaker.Execute(ctx, func(ctx context.Context) error {
		return b.store.Save(ctx, id, data)
	})
}

func (b *BreakerStore) Delete(ctx context.Context, id string) error {
	return b.breaker.Execute(ctx, func(ctx context.Context) error {
		return b.store.Delete(ctx, id)
	})
}

func (b *BreakerStore) Ping(ctx context.Context) error {
	return b.breaker.Execute(ctx, b.store.Ping)
}

func (b *BreakerStore) State() circuitbreaker.State {
	return b.breaker.GetState()
}
