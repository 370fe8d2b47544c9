package cache

import (
	"context"

	"github.com/agentuity/go-memocache/logger"
)

// OpStore is the operation name under which Cache.Store is counted and
// recorded.
const OpStore = "store"

// Cache stores values under generated keys and reads them back with optional
// coercion. Every Store call is counted and recorded.
type Cache struct {
	store    Store
	keys     KeyGenerator
	recorder *Recorder
	logger   logger.Logger
	put      Operation[Value, string]
}

type cacheConfig struct {
	keys         KeyGenerator
	logger       logger.Logger
	recorderOpts []RecorderOption
	flush        bool
}

// CacheOption configures a Cache.
type CacheOption func(*cacheConfig)

// WithKeyGenerator replaces the UUID key generator.
func WithKeyGenerator(k KeyGenerator) CacheOption {
	return func(c *cacheConfig) { c.keys = k }
}

// WithLogger sets the logger used by the Cache.
func WithLogger(l logger.Logger) CacheOption {
	return func(c *cacheConfig) { c.logger = l }
}

// WithRecorderOptions passes options to the Cache's Recorder.
func WithRecorderOptions(opts ...RecorderOption) CacheOption {
	return func(c *cacheConfig) { c.recorderOpts = append(c.recorderOpts, opts...) }
}

// WithoutFlush keeps whatever the Store already holds instead of flushing it
// at construction.
func WithoutFlush() CacheOption {
	return func(c *cacheConfig) { c.flush = false }
}

// New returns a Cache over store. The store is flushed first so the cache
// starts from an empty namespace, unless WithoutFlush is given.
func New(ctx context.Context, store Store, opts ...CacheOption) (*Cache, error) {
	cfg := cacheConfig{
		keys:   UUIDKeys,
		logger: logger.NewConsoleLogger(logger.LevelNone),
		flush:  true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.flush {
		if err := store.Flush(ctx); err != nil {
			return nil, err
		}
	}
	log := cfg.logger.With(map[string]interface{}{"component": "cache"})
	c := &Cache{
		store:    store,
		keys:     cfg.keys,
		recorder: NewRecorder(store, append([]RecorderOption{WithRecorderLogger(log)}, cfg.recorderOpts...)...),
		logger:   log,
	}
	c.put = Instrument[Value, string](c.recorder, OpStore, c.put0)
	return c, nil
}

func (c *Cache) put0(ctx context.Context, val Value) (string, error) {
	key := c.keys.Generate()
	if err := c.store.Put(ctx, key, val, 0); err != nil {
		return "", err
	}
	c.logger.Trace("stored %s value at %s", val.Kind(), key)
	return key, nil
}

// Store saves val under a freshly generated key and returns the key.
func (c *Cache) Store(ctx context.Context, val Value) (string, error) {
	return c.put(ctx, val)
}

// Retrieve returns the raw stored value. A missing or expired key returns
// found=false and no error. A stored value the backend cannot decode returns
// found=true and ErrCoercion.
func (c *Cache) Retrieve(ctx context.Context, key string) (Value, bool, error) {
	return c.store.Get(ctx, key)
}

// RetrieveText returns the value at key as UTF-8 text.
func (c *Cache) RetrieveText(ctx context.Context, key string) (string, bool, error) {
	return Retrieve(ctx, c, key, AsText)
}

// RetrieveInt returns the value at key parsed as a base-10 integer.
func (c *Cache) RetrieveInt(ctx context.Context, key string) (int64, bool, error) {
	return Retrieve(ctx, c, key, AsInt)
}

// RetrieveFloat returns the value at key parsed as a float.
func (c *Cache) RetrieveFloat(ctx context.Context, key string) (float64, bool, error) {
	return Retrieve(ctx, c, key, AsFloat)
}

// RetrieveBytes returns the raw bytes stored at key.
func (c *Cache) RetrieveBytes(ctx context.Context, key string) ([]byte, bool, error) {
	return Retrieve(ctx, c, key, AsBytes)
}

// CountOf returns how many times the named operation was invoked.
func (c *Cache) CountOf(ctx context.Context, name string) (int64, error) {
	return c.recorder.CountOf(ctx, name)
}

// Replay returns the recorded call trace of the named operation.
func (c *Cache) Replay(ctx context.Context, name string) (*Trace, error) {
	return c.recorder.Replay(ctx, name)
}

// Recorder returns the Recorder shared by this Cache, so other operations
// can be instrumented into the same history.
func (c *Cache) Recorder() *Recorder { return c.recorder }

// Backend returns the underlying Store.
func (c *Cache) Backend() Store { return c.store }

// Retrieve reads key from c and applies fn to it. Errors returned by fn are
// reported as ErrCoercion with found=true, so a present but unconvertible
// value can be told apart from a missing key.
func Retrieve[T any](ctx context.Context, c *Cache, key string, fn Coercion[T]) (T, bool, error) {
	var zero T
	val, found, err := c.store.Get(ctx, key)
	if err != nil || !found {
		return zero, false, err
	}
	if fn == nil {
		if typed, ok := any(val).(T); ok {
			return typed, true, nil
		}
		return zero, true, coercionError(nil, "cache: no coercion from %s to %T", val.Kind(), zero)
	}
	out, err := fn(val)
	if err != nil {
		return zero, true, coercionError(err, "cache: coerce %s", key)
	}
	return out, true, nil
}
