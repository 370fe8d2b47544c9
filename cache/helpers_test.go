package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:       mr.Addr(),
		MaxRetries: -1,
	})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

// storeFactories runs a test against every Store backend. advance moves the
// backend's notion of time forward.
type storeFactory struct {
	name string
	make func(t *testing.T) (Store, func(time.Duration))
}

var storeFactories = []storeFactory{
	{
		name: "inmemory",
		make: func(t *testing.T) (Store, func(time.Duration)) {
			clock := newFakeClock()
			s := NewInMemory(context.Background(), WithClock(clock.Now))
			t.Cleanup(func() { s.Close() })
			return s, clock.Advance
		},
	},
	{
		name: "redis",
		make: func(t *testing.T) (Store, func(time.Duration)) {
			mr, client := newTestRedis(t)
			return NewRedis(client, WithPrefix("test")), mr.FastForward
		},
	},
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store, advance func(time.Duration))) {
	for _, f := range storeFactories {
		t.Run(f.name, func(t *testing.T) {
			s, advance := f.make(t)
			fn(t, s, advance)
		})
	}
}
