package countstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemCountStoreBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()

	c, err := cs.GetCount(ctx, "messages", "user_1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)
	assert.NoError(cs.Increment(ctx, "messages", "user_1"))
	assert.NoError(cs.Increment(ctx, "messages", "user_1"))

	for _, period := range []string{PeriodTotal, PeriodDay, PeriodHour} {
		c, err = cs.GetCount(ctx, "messages", "user_1", period)
		assert.NoError(err)
		assert.Equal(2, c)
	}

	// counters are scoped per name and value
	c, err = cs.GetCount(ctx, "messages", "user_2", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)

	c, err = cs.GetCountDistinct(ctx, "channel-authors", "c1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)
	assert.NoError(cs.IncrementDistinct(ctx, "channel-authors", "c1", "user_1"))
	assert.NoError(cs.IncrementDistinct(ctx, "channel-authors", "c1", "user_1"))
	assert.NoError(cs.IncrementDistinct(ctx, "channel-authors", "c1", "user_1"))
	c, err = cs.GetCountDistinct(ctx, "channel-authors", "c1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, c)

	assert.NoError(cs.IncrementDistinct(ctx, "channel-authors", "c1", "user_2"))
	assert.NoError(cs.IncrementDistinct(ctx, "channel-authors", "c1", "user_3"))

	for _, period := range []string{PeriodTotal, PeriodDay, PeriodHour} {
		c, err = cs.GetCountDistinct(ctx, "channel-authors", "c1", period)
		assert.NoError(err)
		assert.Equal(3, c)
	}
}

func TestMemCountStoreConcurrent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()

	// Increment two different values from four goroutines while two more
	// read; run with -race. The short sleep yields to the scheduler so the
	// interleaving is decently random.
	var wg sync.WaitGroup
	fnInc := func(name, val string, times int) {
		for i := 0; i < times; i++ {
			assert.NoError(cs.Increment(ctx, name, val))
			assert.NoError(cs.IncrementDistinct(ctx, name, name, val))
			time.Sleep(time.Nanosecond)
		}
		wg.Done()
	}
	fnRead := func(name, val string, times int) {
		for i := 0; i < times; i++ {
			_, err := cs.GetCount(ctx, name, val, PeriodTotal)
			assert.NoError(err)
			time.Sleep(time.Nanosecond)
		}
	}
	wg.Add(4)
	go fnInc("messages", "user_1", 10)
	go fnInc("messages", "user_1", 10)
	go fnRead("messages", "user_1", 10)
	go fnInc("posts", "user_2", 6)
	go fnInc("posts", "user_2", 6)
	go fnRead("posts", "user_2", 6)
	wg.Wait()

	c, err := cs.GetCount(ctx, "messages", "user_1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(20, c)
	c, err = cs.GetCount(ctx, "posts", "user_2", PeriodTotal)
	assert.NoError(err)
	assert.Equal(12, c)

	// only one distinct value was ever written per bucket
	c, err = cs.GetCountDistinct(ctx, "messages", "messages", PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, c)
	c, err = cs.GetCountDistinct(ctx, "posts", "posts", PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, c)
}
