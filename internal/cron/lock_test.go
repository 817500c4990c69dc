package cron

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRedis struct {
	values map[string]string
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{values: map[string]string{}}
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	value, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func TestRedisLockExcludesSecondAcquirer(t *testing.T) {
	store := newMemoryRedis()
	ctx := context.Background()

	first, err := NewRedisLock(store, "lock:order-expiry", time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "lock:order-expiry", time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Release(ctx))

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockReleaseOnlyOwn(t *testing.T) {
	store := newMemoryRedis()
	ctx := context.Background()

	holder, err := NewRedisLock(store, "lock:order-expiry", time.Minute)
	require.NoError(t, err)
	bystander, err := NewRedisLock(store, "lock:order-expiry", time.Minute)
	require.NoError(t, err)

	ok, err := holder.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Never acquired, so release must not clear the holder's lock.
	require.NoError(t, bystander.Release(ctx))

	ok, err = bystander.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
