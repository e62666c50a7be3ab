package cache

import (
	"context"
	"testing"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, utils.ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, utils.ErrCacheMiss)
}

func TestMemoryCache_LockIsExclusive(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)

	token, ok, err := c.Lock(ctx, "chunk", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = c.Lock(ctx, "chunk", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "повторный захват должен быть отклонен")

	require.NoError(t, c.Unlock(ctx, "chunk", token))

	_, ok, err = c.Lock(ctx, "chunk", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCache_LockExpires(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)

	_, ok, _ := c.Lock(ctx, "job", 20*time.Millisecond)
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)

	_, ok, err := c.Lock(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCache_UnlockKeepsForeignLock(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)

	first, ok, err := c.Lock(ctx, "chunk", 20*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)

	second, ok, err := c.Lock(ctx, "chunk", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, first, second)

	// первый владелец опоздал, его Unlock не должен снять чужую блокировку
	require.NoError(t, c.Unlock(ctx, "chunk", first))

	_, ok, err = c.Lock(ctx, "chunk", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Unlock(ctx, "chunk", second))
	_, ok, err = c.Lock(ctx, "chunk", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
