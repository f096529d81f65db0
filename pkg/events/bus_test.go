package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDelivers(t *testing.T) {
	b := NewBus[int](4, DropOldest, 0)
	assert.True(t, b.Publish(1))
	assert.True(t, b.Publish(2))
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 1, <-b.Events())
	assert.Equal(t, 2, <-b.Events())
	assert.Equal(t, uint64(0), b.Dropped())
}

func TestBusDropOldest(t *testing.T) {
	b := NewBus[int](2, DropOldest, 0)
	require.True(t, b.Publish(1))
	require.True(t, b.Publish(2))

	// Full: 1 is evicted to make room for 3.
	assert.False(t, b.Publish(3))
	assert.Equal(t, uint64(1), b.Dropped())

	assert.Equal(t, 2, <-b.Events())
	assert.Equal(t, 3, <-b.Events())
}

func TestBusBlockDropsAfterBudget(t *testing.T) {
	b := NewBus[int](1, Block, time.Millisecond)
	require.True(t, b.Publish(1))

	start := time.Now()
	assert.False(t, b.Publish(2))
	assert.GreaterOrEqual(t, time.Since(start), time.Millisecond)
	assert.Equal(t, uint64(1), b.Dropped())

	// The queued event is intact; the new one was the casualty.
	assert.Equal(t, 1, <-b.Events())
	assert.Equal(t, 0, b.Len())
}

func TestBusBlockDeliversWhenConsumerCatchesUp(t *testing.T) {
	b := NewBus[int](1, Block, 500*time.Millisecond)
	require.True(t, b.Publish(1))

	done := make(chan bool)
	go func() {
		done <- b.Publish(2)
	}()

	assert.Equal(t, 1, <-b.Events())
	assert.True(t, <-done)
	assert.Equal(t, 2, <-b.Events())
}

func TestBusConcurrentPublishers(t *testing.T) {
	b := NewBus[int](1024, DropOldest, 0)
	const workers = 8
	const perWorker = 100

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				b.Publish(i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker, b.Len())
	assert.Equal(t, uint64(0), b.Dropped())
}

func TestBusClose(t *testing.T) {
	b := NewBus[int](4, DropOldest, 0)
	b.Publish(1)
	b.Close()

	v, ok := <-b.Events()
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = <-b.Events()
	assert.False(t, ok)
}

func TestParsePolicy(t *testing.T) {
	assert.Equal(t, Block, ParsePolicy("block"))
	assert.Equal(t, DropOldest, ParsePolicy("drop-oldest"))
	assert.Equal(t, DropOldest, ParsePolicy("bogus"))
}
