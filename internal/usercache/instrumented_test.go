package usercache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMetrics struct {
	hits   []string
	misses []string
}

func (f *fakeMetrics) RecordCacheHit(cacheType string)  { f.hits = append(f.hits, cacheType) }
func (f *fakeMetrics) RecordCacheMiss(cacheType string) { f.misses = append(f.misses, cacheType) }

func TestInstrument_RecordsHitAndMiss(t *testing.T) {
	t.Parallel()

	metrics := &fakeMetrics{}
	store := Instrument(NewInMemoryStore(time.Minute), "memory", metrics)
	ctx := context.Background()

	_, err := store.Get(ctx, "user-1")
	require.ErrorIs(t, err, ErrMiss)
	assert.Equal(t, []string{"memory"}, metrics.misses)

	require.NoError(t, store.Set(ctx, "user-1", "ctx-abc"))
	got, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "ctx-abc", got)
	assert.Equal(t, []string{"memory"}, metrics.hits)
}

func TestInstrument_NilMetricsReturnsUnwrapped(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore(time.Minute)
	wrapped := Instrument(store, "memory", nil)
	assert.Same(t, Store(store), wrapped)
}
