package cache

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"evalsurvey/backend/config"
	"evalsurvey/backend/models"
	"evalsurvey/backend/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() []models.Domain {
	return []models.Domain{{Code: "D1", Title: "Gestión", Weight: 1}}
}

func TestGetOrLoadCachesUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	c := NewTreeCache(NewMemoryStore(time.Minute), utils.NopLogger())

	var loads int32
	load := func(context.Context) ([]models.Domain, error) {
		atomic.AddInt32(&loads, 1)
		return sampleTree(), nil
	}

	for i := 0; i < 3; i++ {
		tree, err := c.GetOrLoad(ctx, "k", load)
		require.NoError(t, err)
		assert.Equal(t, "D1", tree[0].Code)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&loads))

	c.Invalidate(ctx)
	_, err := c.GetOrLoad(ctx, "k", load)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&loads))
}

func TestGetOrLoadDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	c := NewTreeCache(NewMemoryStore(time.Minute), utils.NopLogger())

	boom := errors.New("db down")
	_, err := c.GetOrLoad(ctx, "k", func(context.Context) ([]models.Domain, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	tree, err := c.GetOrLoad(ctx, "k", func(context.Context) ([]models.Domain, error) { return sampleTree(), nil })
	require.NoError(t, err)
	assert.Len(t, tree, 1)
}

func TestConcurrentMissesShareOneLoad(t *testing.T) {
	ctx := context.Background()
	c := NewTreeCache(NewMemoryStore(time.Minute), utils.NopLogger())

	var loads int32
	release := make(chan struct{})
	load := func(context.Context) ([]models.Domain, error) {
		atomic.AddInt32(&loads, 1)
		<-release
		return sampleTree(), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.GetOrLoad(ctx, "k", load)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&loads), int32(2))
}

func TestMemoryStoreExpires(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, 0, "k", sampleTree()))
	_, ok, _ := s.Get(ctx, 0, "k")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, _ = s.Get(ctx, 0, "k")
	assert.False(t, ok)
}

func TestMemoryStoreIgnoresStaleGeneration(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)

	gen, err := s.Generation(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Clear(ctx))

	require.NoError(t, s.Set(ctx, gen, "k", sampleTree()))
	current, err := s.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, gen+1, current)
	_, ok, _ := s.Get(ctx, current, "k")
	assert.False(t, ok)
}

func TestLoadFinishingAfterInvalidateIsNotCached(t *testing.T) {
	ctx := context.Background()
	c := NewTreeCache(NewMemoryStore(time.Minute), utils.NopLogger())

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.GetOrLoad(ctx, "k", func(context.Context) ([]models.Domain, error) {
			close(started)
			<-release
			return []models.Domain{{Code: "OLD"}}, nil
		})
	}()

	<-started
	c.Invalidate(ctx)
	close(release)
	<-done

	var loads int32
	fresh := func(context.Context) ([]models.Domain, error) {
		atomic.AddInt32(&loads, 1)
		return []models.Domain{{Code: "NEW"}}, nil
	}
	for i := 0; i < 2; i++ {
		tree, err := c.GetOrLoad(ctx, "k", fresh)
		require.NoError(t, err)
		assert.Equal(t, "NEW", tree[0].Code)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&loads))
}

func TestCallersAfterInvalidateDoNotJoinOlderLoad(t *testing.T) {
	ctx := context.Background()
	c := NewTreeCache(NewMemoryStore(time.Minute), utils.NopLogger())

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.GetOrLoad(ctx, "k", func(context.Context) ([]models.Domain, error) {
			close(started)
			<-release
			return []models.Domain{{Code: "OLD"}}, nil
		})
	}()
	<-started
	c.Invalidate(ctx)

	tree, err := c.GetOrLoad(ctx, "k", func(context.Context) ([]models.Domain, error) {
		return []models.Domain{{Code: "NEW"}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "NEW", tree[0].Code)

	close(release)
	<-done
}

type failingStore struct{}

func (failingStore) Generation(context.Context) (uint64, error) { return 0, errors.New("unreachable") }
func (failingStore) Get(context.Context, uint64, string) ([]models.Domain, bool, error) {
	return nil, false, errors.New("unreachable")
}
func (failingStore) Set(context.Context, uint64, string, []models.Domain) error {
	return errors.New("unreachable")
}
func (failingStore) Clear(context.Context) error { return errors.New("unreachable") }

func TestStoreFailureFallsBackToLoad(t *testing.T) {
	c := NewTreeCache(failingStore{}, utils.NopLogger())
	tree, err := c.GetOrLoad(context.Background(), "k", func(context.Context) ([]models.Domain, error) {
		return sampleTree(), nil
	})
	require.NoError(t, err)
	assert.Len(t, tree, 1)
	c.Invalidate(context.Background())
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("set REDIS_ADDR to run redis cache tests")
	}
	ctx := context.Background()
	s, err := NewRedisStore(&config.Config{RedisAddr: addr, TreeCacheTTL: time.Minute})
	require.NoError(t, err)
	defer s.Close()

	gen, err := s.Generation(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, gen, "test", sampleTree()))
	tree, ok, err := s.Get(ctx, gen, "test")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "D1", tree[0].Code)

	require.NoError(t, s.Clear(ctx))
	next, err := s.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, gen+1, next)
	_, ok, err = s.Get(ctx, next, "test")
	require.NoError(t, err)
	assert.False(t, ok)

	// A write tagged with the old generation stays invisible.
	require.NoError(t, s.Set(ctx, gen, "test", sampleTree()))
	_, ok, err = s.Get(ctx, next, "test")
	require.NoError(t, err)
	assert.False(t, ok)
}
