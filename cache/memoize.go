package cache

import (
	"context"
	"time"

	"github.com/agentuity/go-memocache/logger"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/singleflight"
)

// OpFetch is the operation name under which Memoizer.Fetch is counted and
// recorded.
const OpFetch = "fetch"

// DefaultFetchTTL is how long a fetched resource stays cached.
const DefaultFetchTTL = 10 * time.Second

// FetchFunc loads a resource from outside the cache, e.g. over HTTP.
type FetchFunc func(ctx context.Context, url string) (string, error)

// ContentKey is the Store key a fetched resource is cached under.
func ContentKey(url string) string { return "content:" + url }

// HitsKey is the Store key counting accesses to one resource.
func HitsKey(url string) string { return "count:" + url }

// Memoizer caches the result of an expensive FetchFunc for a fixed TTL.
// A cached resource is returned without calling out; a missing or expired
// one is fetched and stored. Fetch failures are never cached.
type Memoizer struct {
	store    Store
	fetchFn  FetchFunc
	recorder *Recorder
	logger   logger.Logger
	ttl      time.Duration
	timeout  time.Duration
	group    *singleflight.Group
	fetch    Operation[string, string]
}

type memoConfig struct {
	ttl          time.Duration
	timeout      time.Duration
	singleFlight bool
	logger       logger.Logger
	recorder     *Recorder
}

// MemoOption configures a Memoizer.
type MemoOption func(*memoConfig)

// WithTTL sets how long fetched resources are cached. Defaults to
// DefaultFetchTTL.
func WithTTL(d time.Duration) MemoOption {
	return func(c *memoConfig) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithFetchTimeout bounds each external fetch. A fetch that runs past it
// fails with ErrFetch. Zero means only the caller's context applies.
func WithFetchTimeout(d time.Duration) MemoOption {
	return func(c *memoConfig) { c.timeout = d }
}

// WithSingleFlight coalesces concurrent misses on the same resource into one
// external fetch. Every caller is still counted and recorded.
func WithSingleFlight() MemoOption {
	return func(c *memoConfig) { c.singleFlight = true }
}

// WithMemoLogger sets the logger used by the Memoizer.
func WithMemoLogger(l logger.Logger) MemoOption {
	return func(c *memoConfig) { c.logger = l }
}

// WithMemoRecorder shares an existing Recorder, e.g. the one of a Cache over
// the same Store.
func WithMemoRecorder(r *Recorder) MemoOption {
	return func(c *memoConfig) { c.recorder = r }
}

// NewMemoizer returns a Memoizer that caches fetchFn's results in store.
func NewMemoizer(store Store, fetchFn FetchFunc, opts ...MemoOption) *Memoizer {
	cfg := memoConfig{
		ttl:    DefaultFetchTTL,
		logger: logger.NewConsoleLogger(logger.LevelNone),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	log := cfg.logger.With(map[string]interface{}{"component": "memoizer"})
	if cfg.recorder == nil {
		cfg.recorder = NewRecorder(store, WithRecorderLogger(log))
	}
	m := &Memoizer{
		store:    store,
		fetchFn:  fetchFn,
		recorder: cfg.recorder,
		logger:   log,
		ttl:      cfg.ttl,
		timeout:  cfg.timeout,
	}
	if cfg.singleFlight {
		m.group = &singleflight.Group{}
	}
	m.fetch = Instrument[string, string](m.recorder, OpFetch, m.lookup)
	return m
}

// Fetch returns the resource at url, from the cache when a fresh copy is
// held and from the FetchFunc otherwise.
func (m *Memoizer) Fetch(ctx context.Context, url string) (string, error) {
	return m.fetch(ctx, url)
}

func (m *Memoizer) lookup(ctx context.Context, url string) (string, error) {
	if _, err := m.store.Incr(ctx, HitsKey(url)); err != nil {
		return "", err
	}
	val, found, err := m.store.Get(ctx, ContentKey(url))
	if err != nil {
		return "", err
	}
	if found {
		m.logger.WithContext(ctx).Debug("cache hit for %s", url)
		return val.AsText()
	}
	m.logger.WithContext(ctx).Debug("cache miss for %s", url)
	if m.group == nil {
		return m.load(ctx, url)
	}
	ch := m.group.DoChan(url, func() (interface{}, error) {
		return m.load(context.WithoutCancel(ctx), url)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", fetchError(ctx.Err(), url)
	}
}

// load calls the FetchFunc and caches the result. Nothing is written unless
// the fetch finished successfully within its deadline.
func (m *Memoizer) load(ctx context.Context, url string) (string, error) {
	fctx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	content, err := m.call(fctx, url)
	if err == nil {
		err = fctx.Err()
	}
	if err != nil {
		m.logger.WithContext(ctx).Warn("fetch of %s failed: %s", url, err)
		return "", fetchError(err, url)
	}
	if err := m.store.Put(ctx, ContentKey(url), Text(content), m.ttl); err != nil {
		return "", err
	}
	return content, nil
}

// call runs the FetchFunc but stops waiting once ctx is done, for fetch
// functions that do not honor cancellation themselves.
func (m *Memoizer) call(ctx context.Context, url string) (string, error) {
	type result struct {
		content string
		err     error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: errors.Newf("fetch panicked: %v", r)}
			}
		}()
		content, err := m.fetchFn(ctx, url)
		done <- result{content, err}
	}()
	select {
	case r := <-done:
		return r.content, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Hits returns how many times url was requested through Fetch.
func (m *Memoizer) Hits(ctx context.Context, url string) (int64, error) {
	return m.store.Counter(ctx, HitsKey(url))
}

// CountOf returns how many times Fetch was invoked.
func (m *Memoizer) CountOf(ctx context.Context) (int64, error) {
	return m.recorder.CountOf(ctx, OpFetch)
}

// Replay returns the recorded Fetch history.
func (m *Memoizer) Replay(ctx context.Context) (*Trace, error) {
	return m.recorder.Replay(ctx, OpFetch)
}

// TTL returns the configured cache lifetime of a fetched resource.
func (m *Memoizer) TTL() time.Duration { return m.ttl }
