package cachestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemCacheStoreBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCacheStore(10, time.Minute)

	v, err := cs.Get(ctx, "webhook-seen", "evt_1")
	assert.NoError(err)
	assert.Equal("", v)

	assert.NoError(cs.Set(ctx, "webhook-seen", "evt_1", "1"))
	v, err = cs.Get(ctx, "webhook-seen", "evt_1")
	assert.NoError(err)
	assert.Equal("1", v)

	// namespaces do not bleed into each other
	v, err = cs.Get(ctx, "other", "evt_1")
	assert.NoError(err)
	assert.Equal("", v)

	assert.NoError(cs.Purge(ctx, "webhook-seen", "evt_1"))
	v, err = cs.Get(ctx, "webhook-seen", "evt_1")
	assert.NoError(err)
	assert.Equal("", v)
}

func TestMemCacheStoreBounded(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCacheStore(2, time.Minute)
	assert.NoError(cs.Set(ctx, "ns", "a", "1"))
	assert.NoError(cs.Set(ctx, "ns", "b", "2"))
	assert.NoError(cs.Set(ctx, "ns", "c", "3"))

	// the oldest entry was evicted
	v, err := cs.Get(ctx, "ns", "a")
	assert.NoError(err)
	assert.Equal("", v)
	v, err = cs.Get(ctx, "ns", "c")
	assert.NoError(err)
	assert.Equal("3", v)
}
