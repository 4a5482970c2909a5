package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestTTLCache_Expiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c := NewTTLCache[int](4, time.Second, "test").WithClock(clock.Now)

	c.Put(1, 10)
	v, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, 10, v)

	clock.Advance(999 * time.Millisecond)
	_, ok = c.Get(1)
	assert.True(t, ok)

	clock.Advance(time.Millisecond)
	_, ok = c.Get(1)
	assert.False(t, ok)

	c.Put(1, 11)
	v, ok = c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, 11, v)
}

func TestTTLCache_EvictsLeastRecentlyWritten(t *testing.T) {
	c := NewTTLCache[string](2, time.Minute, "test")
	c.Put(1, "a")
	c.Put(2, "b")
	c.Put(1, "a2")
	c.Put(3, "c")

	_, ok := c.Get(2)
	assert.False(t, ok)
	v, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "a2", v)
	assert.Equal(t, 2, c.Len())

	c.Delete(1)
	assert.Equal(t, 1, c.Len())
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("round", "r1"), Key("round", "r1"))
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
}

func TestTTLCache_Concurrent(t *testing.T) {
	c := NewTTLCache[int](16, time.Minute, "test")
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.Put(uint64(i%32), i)
				c.Get(uint64((i + g) % 32))
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 16)
}
