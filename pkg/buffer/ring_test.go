package buffer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingDropOldest(t *testing.T) {
	var dropped []int
	r := NewRing(3, WithDropCallback(func(item int) {
		dropped = append(dropped, item)
	}))

	for i := 1; i <= 5; i++ {
		r.Put(i)
	}

	assert.Equal(t, []int{1, 2}, dropped)
	assert.Equal(t, 3, r.Len())

	var got []int
	for {
		item, ok := r.Get()
		if !ok {
			break
		}
		got = append(got, item)
	}
	assert.Equal(t, []int{3, 4, 5}, got, "FIFO order after overflow")

	stats := r.Stats()
	assert.Equal(t, uint64(5), stats.Writes)
	assert.Equal(t, uint64(2), stats.Drops)
	assert.Equal(t, uint64(3), stats.Reads)
}

func TestRingPutNeverBlocks(t *testing.T) {
	r := NewRing[int](1)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			r.Put(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Put blocked on a full ring")
	}
}

func TestGetWaitDeliversAcrossGoroutines(t *testing.T) {
	r := NewRing[string](4)

	var wg sync.WaitGroup
	wg.Add(1)
	var got string
	var ok bool
	go func() {
		defer wg.Done()
		got, ok = r.GetWait(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	r.Put("hello")
	wg.Wait()

	require.True(t, ok)
	assert.Equal(t, "hello", got)
}

func TestGetWaitHonorsContext(t *testing.T) {
	r := NewRing[int](4)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, ok := r.GetWait(ctx)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCloseDrainsThenStops(t *testing.T) {
	r := NewRing[int](4)
	r.Put(1)
	r.Put(2)
	r.Close()

	// Buffered items remain readable after close.
	item, ok := r.GetWait(context.Background())
	require.True(t, ok)
	assert.Equal(t, 1, item)
	item, ok = r.GetWait(context.Background())
	require.True(t, ok)
	assert.Equal(t, 2, item)

	_, ok = r.GetWait(context.Background())
	assert.False(t, ok)

	// Puts after close are dropped.
	assert.True(t, r.Put(3))
	assert.Equal(t, 0, r.Len())
}
