package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutGetDelete(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "tok1", []byte("<html></html>"), time.Minute))

	doc, err := s.Get(ctx, "tok1")
	require.NoError(t, err)
	assert.Equal(t, []byte("<html></html>"), doc)

	require.NoError(t, s.Delete(ctx, "tok1"))
	_, err = s.Get(ctx, "tok1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "tok1", []byte("doc"), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	// Expired before the janitor runs: Get must still refuse it.
	_, err := s.Get(ctx, "tok1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreJanitorEvicts(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "tok1", []byte("doc"), 5*time.Millisecond))
	require.NoError(t, s.Put(ctx, "tok2", []byte("doc"), time.Hour))
	time.Sleep(20 * time.Millisecond)

	s.evictExpired(time.Now())

	s.mu.RLock()
	_, gone := s.entries["tok1"]
	_, kept := s.entries["tok2"]
	s.mu.RUnlock()
	assert.False(t, gone)
	assert.True(t, kept)
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "tok1", []byte("abc"), time.Minute))
	doc, err := s.Get(ctx, "tok1")
	require.NoError(t, err)
	doc[0] = 'x'

	again, err := s.Get(ctx, "tok1")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}
