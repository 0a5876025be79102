package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/mahuta/internal/core/domain"
)

func TestCachingStorage_WriteThenReadHitsCache(t *testing.T) {
	store := newMockStorage()
	c, err := NewCachingStorage(store, 4)
	require.NoError(t, err)
	ctx := context.Background()

	cid, err := c.Write(ctx, []byte("cached"))
	require.NoError(t, err)

	data, err := c.Read(ctx, cid)
	require.NoError(t, err)
	assert.Equal(t, []byte("cached"), data)
	assert.Equal(t, 0, store.readCount())
}

func TestCachingStorage_ReadMissFillsCache(t *testing.T) {
	store := newMockStorage()
	cid, err := store.Write(context.Background(), []byte("stored"))
	require.NoError(t, err)

	c, err := NewCachingStorage(store, 4)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		data, err := c.Read(ctx, cid)
		require.NoError(t, err)
		assert.Equal(t, []byte("stored"), data)
	}
	assert.Equal(t, 1, store.readCount())
	assert.Equal(t, 1, c.Len())
}

func TestCachingStorage_ReturnsCopies(t *testing.T) {
	c, err := NewCachingStorage(newMockStorage(), 4)
	require.NoError(t, err)
	ctx := context.Background()

	cid, err := c.Write(ctx, []byte("immutable"))
	require.NoError(t, err)

	first, err := c.Read(ctx, cid)
	require.NoError(t, err)
	first[0] = 'X'

	second, err := c.Read(ctx, cid)
	require.NoError(t, err)
	assert.Equal(t, []byte("immutable"), second)
}

func TestCachingStorage_Eviction(t *testing.T) {
	store := newMockStorage()
	c, err := NewCachingStorage(store, 1)
	require.NoError(t, err)
	ctx := context.Background()

	a, err := c.Write(ctx, []byte("a"))
	require.NoError(t, err)
	_, err = c.Write(ctx, []byte("b"))
	require.NoError(t, err)

	_, err = c.Read(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 1, store.readCount())
}

func TestCachingStorage_ErrorsNotCached(t *testing.T) {
	store := newMockStorage()
	c, err := NewCachingStorage(store, 4)
	require.NoError(t, err)

	_, err = c.Read(context.Background(), "cid-missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 0, c.Len())
}

func TestNewCachingStorage_InvalidSize(t *testing.T) {
	_, err := NewCachingStorage(newMockStorage(), 0)
	assert.Error(t, err)
}
