package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"locallibrary/pkg/circuitbreaker"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestStores(t *testing.T) {
	_, client := setupRedis(t)

	stores := map[string]Store{
		"memory": NewMemoryStore(time.Hour),
		"redis":  NewRedisStore(client, time.Hour),
		"breaker": NewBreakerStore(NewMemoryStore(time.Hour),
			circuitbreaker.NewCircuitBreaker(1, time.Second)),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Save(ctx, "abc", Data{UserID: 7, NumVisits: 3}))
			data, err := store.Get(ctx, "abc")
			require.NoError(t, err)
			assert.Equal(t, Data{UserID: 7, NumVisits: 3}, data)

			require.NoError(t, store.Delete(ctx, "abc"))
			_, err = store.Get(ctx, "abc")
			assert.ErrorIs(t, err, ErrNotFound)

			assert.NoError(t, store.Ping(ctx))
		})
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "abc", Data{NumVisits: 1}))
	now = now.Add(2 * time.Minute)
	_, err := store.Get(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, store.Len())
}

func TestRedisStoreExpiry(t *testing.T) {
	mr, client := setupRedis(t)
	store := NewRedisStore(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "abc", Data{NumVisits: 1}))
	assert.True(t, mr.Exists("session:abc"))

	mr.FastForward(2 * time.Minute)
	_, err := store.Get(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBreakerStoreOpensOnRedisFailure(t *testing.T) {
	mr, client := setupRedis(t)
	store := NewBreakerStore(NewRedisStore(client, time.Hour), circuitbreaker.NewCircuitBreaker(1, time.Minute))
	ctx := context.Background()

	mr.SetError("ERR server unavailable")
	for i := 0; i < 2; i++ {
		assert.Error(t, store.Save(ctx, "abc", Data{}))
	}
	assert.Equal(t, circuitbreaker.StateOpen, store.State())

	mr.SetError("")
	_, err := store.Get(ctx, "abc")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
}

func TestBreakerStoreMissingIsNotFailure(t *testing.T) {
	store := NewBreakerStore(NewMemoryStore(time.Hour), circuitbreaker.NewCircuitBreaker(0, time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, circuitbreaker.StateClosed, store.State())
}

func TestConnect(t *testing.T) {
	mr, _ := setupRedis(t)
	ctx := context.Background()

	client, err := Connect(ctx, "redis://"+mr.Addr()+"/0", 2, 10*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	_, err = Connect(ctx, "://bad", 1, 0)
	assert.ErrorIs(t, err, ErrFailedToParseRedisURL)

	addr := mr.Addr()
	mr.Close()
	_, err = Connect(ctx, "redis://"+addr+"/0", 2, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrRedisNotReady)
}

func TestTokenRoundTrip(t *testing.T) {
	m := NewManager(NewMemoryStore(time.Hour), "secret", time.Hour)

	token, err := m.Sign("sid-1")
	require.NoError(t, err)
	sid, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "sid-1", sid)

	other := NewManager(NewMemoryStore(time.Hour), "other-secret", time.Hour)
	_, err = other.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = m.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsOtherAlgorithms(t *testing.T) {
	m := NewManager(NewMemoryStore(time.Hour), "secret", time.Hour)

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims{
		SID:              "sid-1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = m.Parse(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManagerLifecycle(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	m := NewManager(store, "secret", time.Hour)
	ctx := context.Background()

	s, err := m.Load(ctx, "")
	require.NoError(t, err)
	assert.False(t, s.IsAuthenticated())
	assert.Equal(t, 0, s.Visit())

	token, err := m.Save(ctx, s)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	s, err = m.Load(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Visit())
	assert.Equal(t, 2, s.Data.NumVisits)

	anonID := s.ID
	s.Login(42)
	assert.NotEqual(t, anonID, s.ID)
	token, err = m.Save(ctx, s)
	require.NoError(t, err)
	_, err = store.Get(ctx, anonID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, store.Len())

	s, err = m.Load(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), s.UserID())
	assert.Equal(t, 2, s.Data.NumVisits)

	unchanged, err := m.Save(ctx, s)
	require.NoError(t, err)
	assert.Empty(t, unchanged)

	s.Logout()
	token, err = m.Save(ctx, s)
	require.NoError(t, err)
	s, err = m.Load(ctx, token)
	require.NoError(t, err)
	assert.False(t, s.IsAuthenticated())
	assert.Equal(t, 0, s.Data.NumVisits)
}

func TestLoadFallsBackToFreshSession(t *testing.T) {
	m := NewManager(NewMemoryStore(time.Hour), "secret", time.Hour)
	ctx := context.Background()

	s, err := m.Load(ctx, "garbage")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)

	token, err := m.Sign("forgotten")
	require.NoError(t, err)
	s, err = m.Load(ctx, token)
	require.NoError(t, err)
	assert.NotEqual(t, "forgotten", s.ID)
}
