package proxy

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyKey(t *testing.T) {
	base := IdempotencyKey("jane@example.com", "correct-horse")

	assert.Equal(t, base, IdempotencyKey(" Jane@Example.com ", "correct-horse"))
	assert.NotEqual(t, base, IdempotencyKey("jane@example.com", "Correct-horse"))
	assert.NotEqual(t, base, IdempotencyKey("john@example.com", "correct-horse"))
	assert.NotContains(t, base, "jane")
	assert.NotContains(t, base, "correct-horse")
}

func TestRedisIdempotency_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisIdempotency(client, time.Hour)
	ctx := context.Background()

	_, found, err := store.Lookup(ctx, "Jane@Example.com", "correct-horse")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Remember(ctx, "Jane@Example.com", "correct-horse", "aff_1"))

	id, found, err := store.Lookup(ctx, " jane@example.com", "correct-horse")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "aff_1", id)
	assert.Equal(t, time.Hour, mr.TTL(IdempotencyKey("jane@example.com", "correct-horse")))

	_, found, err = store.Lookup(ctx, "jane@example.com", "battery-staple")
	require.NoError(t, err)
	assert.False(t, found, "a different password must not match")

	require.NoError(t, store.Remember(ctx, "jane@example.com", "correct-horse", "aff_2"))
	id, _, err = store.Lookup(ctx, "jane@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "aff_2", id)

	mr.FastForward(2 * time.Hour)
	_, found, err = store.Lookup(ctx, "jane@example.com", "correct-horse")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisIdempotency_Errors(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisIdempotency(client, time.Minute)
	ctx := context.Background()
	key := IdempotencyKey("jane@example.com", "pw")

	mock.ExpectGet(key).SetErr(assert.AnError)
	_, _, err := store.Lookup(ctx, "jane@example.com", "pw")
	require.Error(t, err)

	mock.ExpectSet(key, "aff_1", time.Minute).SetErr(assert.AnError)
	require.Error(t, store.Remember(ctx, "jane@example.com", "pw", "aff_1"))

	require.NoError(t, store.Remember(ctx, "jane@example.com", "pw", ""))
	assert.NoError(t, mock.ExpectationsWereMet())
}
