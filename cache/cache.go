package cache

import (
	"context"
	"time"

	"github.com/agentuity/go-memocache/logger"
)

// ListPush appends Value to the list stored at Key.
type ListPush struct {
	Key   string
	Value string
}

// Store is the backing key/value store shared by every cache operation.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put inserts or overwrites key. A ttl <= 0 means the entry never expires.
	Put(ctx context.Context, key string, val Value, ttl time.Duration) error
	// Get returns the value for key, or found=false if it was never set or
	// has expired. A missing key is not an error.
	Get(ctx context.Context, key string) (Value, bool, error)
	// Incr increments the counter at key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	// Counter returns the counter at key, or 0 if it was never incremented.
	Counter(ctx context.Context, key string) (int64, error)
	// Push appends to one or more lists as a single atomic step.
	Push(ctx context.Context, pushes ...ListPush) error
	// List returns the list at key in insertion order.
	List(ctx context.Context, key string) ([]string, error)
	// Flush removes every entry, counter and list.
	Flush(ctx context.Context) error
	// Close releases resources held by the store.
	Close() error
}

// DefaultQueryTimeout is the per-operation timeout for stores that perform
// network I/O.
const DefaultQueryTimeout = 5 * time.Second

// DefaultShards is the number of entry shards used by the in-memory store.
const DefaultShards = 32

type config struct {
	queryTimeout time.Duration
	expiryCheck  time.Duration
	prefix       string
	shards       int
	now          func() time.Time
	logger       logger.Logger
}

// Option configures a Store implementation.
type Option func(*config)

func defaultConfig() config {
	return config{
		queryTimeout: DefaultQueryTimeout,
		shards:       DefaultShards,
		now:          time.Now,
		logger:       logger.NewConsoleLogger(logger.LevelNone),
	}
}

func applyOptions(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithQueryTimeout sets the per-operation timeout for the Redis store.
// Defaults to DefaultQueryTimeout (5 seconds).
func WithQueryTimeout(d time.Duration) Option {
	return func(c *config) { c.queryTimeout = d }
}

// WithExpiryCheck enables a background sweep of expired entries in the
// in-memory store. Expiry is always enforced on read; the sweep only bounds
// memory. Disabled by default.
func WithExpiryCheck(d time.Duration) Option {
	return func(c *config) { c.expiryCheck = d }
}

// WithPrefix namespaces every key written to the Redis store.
func WithPrefix(p string) Option {
	return func(c *config) { c.prefix = p }
}

// WithShards sets the number of entry shards in the in-memory store.
func WithShards(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.shards = n
		}
	}
}

// WithClock replaces the wall clock used for expiry by the in-memory store.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithStoreLogger sets the logger used by a Store.
func WithStoreLogger(l logger.Logger) Option {
	return func(c *config) { c.logger = l }
}
