package cache

import (
	"context"
	"testing"
	"time"

	"github.com/agentuity/go-memocache/logger"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, s Store, opts ...CacheOption) *Cache {
	t.Helper()
	c, err := New(context.Background(), s, opts...)
	require.NoError(t, err)
	return c
}

func TestCacheRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, _ func(time.Duration)) {
		ctx := context.Background()
		c := newTestCache(t, s)
		for _, v := range []Value{Text("foo"), Bytes([]byte("bar")), Int(3), Float(2.5)} {
			key, err := c.Store(ctx, v)
			require.NoError(t, err)
			got, found, err := c.Retrieve(ctx, key)
			require.NoError(t, err)
			assert.True(t, found)
			assert.True(t, v.Equal(got))
		}
	})
}

func TestCacheMissingKey(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, _ func(time.Duration)) {
		ctx := context.Background()
		c := newTestCache(t, s)
		_, found, err := c.Retrieve(ctx, "never-stored")
		assert.NoError(t, err)
		assert.False(t, found)
		_, found, err = c.RetrieveInt(ctx, "never-stored")
		assert.NoError(t, err)
		assert.False(t, found)
	})
}

func TestCacheFlushesOnConstruction(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory(ctx)
	defer s.Close()
	require.NoError(t, s.Put(ctx, "stale", Text("x"), 0))

	kept := newTestCache(t, s, WithoutFlush())
	_, found, err := kept.Retrieve(ctx, "stale")
	require.NoError(t, err)
	assert.True(t, found)

	c := newTestCache(t, s)
	_, found, err = c.Retrieve(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCacheScenario(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, _ func(time.Duration)) {
		ctx := context.Background()
		c := newTestCache(t, s)

		k1, err := c.Store(ctx, Text("hello"))
		require.NoError(t, err)

		val, found, err := c.Retrieve(ctx, k1)
		require.NoError(t, err)
		assert.True(t, found)
		assert.True(t, Text("hello").Equal(val))

		text, found, err := c.RetrieveText(ctx, k1)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "hello", text)

		length, found, err := Retrieve[int](ctx, c, k1, func(v Value) (int, error) { return v.Len(), nil })
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, 5, length)
	})
}

func TestCacheCoercion(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, _ func(time.Duration)) {
		ctx := context.Background()
		c := newTestCache(t, s)

		k, err := c.Store(ctx, Int(123))
		require.NoError(t, err)
		n, found, err := c.RetrieveInt(ctx, k)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, int64(123), n)

		k, err = c.Store(ctx, Text("abc"))
		require.NoError(t, err)
		// present but not convertible
		_, found, err = c.RetrieveInt(ctx, k)
		assert.True(t, found)
		assert.True(t, errors.Is(err, ErrCoercion))

		k, err = c.Store(ctx, Float(0.5))
		require.NoError(t, err)
		f, _, err := c.RetrieveFloat(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, 0.5, f)
		b, _, err := c.RetrieveBytes(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, []byte("0.5"), b)

		// caller coercion errors are marked too
		_, _, err = Retrieve[int](ctx, c, k, func(Value) (int, error) { return 0, errors.New("nope") })
		assert.True(t, errors.Is(err, ErrCoercion))

		// a nil coercion only succeeds for Value itself
		v, found, err := Retrieve[Value](ctx, c, k, nil)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, KindFloat, v.Kind())
		_, found, err = Retrieve[string](ctx, c, k, nil)
		assert.True(t, found)
		assert.True(t, errors.Is(err, ErrCoercion))

		// coercion is never attempted on a missing key
		_, found, err = c.RetrieveInt(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestCacheRetrieveOperationNames(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, _ func(time.Duration)) {
		ctx := context.Background()
		c := newTestCache(t, s)

		_, err := c.Store(ctx, Text("hello"))
		require.NoError(t, err)

		// counters and history of the store operation are not values
		for _, key := range []string{OpStore, InputsKey(OpStore), OutputsKey(OpStore)} {
			val, found, err := c.Retrieve(ctx, key)
			require.NoError(t, err, key)
			assert.False(t, found, key)
			assert.True(t, val.IsZero(), key)
		}
		text, found, err := c.RetrieveText(ctx, OpStore)
		require.NoError(t, err)
		assert.False(t, found)
		assert.Empty(t, text)
	})
}

func TestCacheCountsAndReplaysStore(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, _ func(time.Duration)) {
		ctx := context.Background()
		n := 0
		keys := KeyGeneratorFunc(func() string {
			n++
			return "key-" + string(rune('0'+n))
		})
		c := newTestCache(t, s, WithKeyGenerator(keys))

		count, err := c.CountOf(ctx, OpStore)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)

		for _, v := range []Value{Text("foo"), Text("bar"), Int(42)} {
			_, err := c.Store(ctx, v)
			require.NoError(t, err)
		}

		count, err = c.CountOf(ctx, OpStore)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)

		trace, err := c.Replay(ctx, OpStore)
		require.NoError(t, err)
		assert.Equal(t, int64(3), trace.Count)
		assert.Equal(t, []Call{
			{Index: 0, Input: `"foo"`, Output: `"key-1"`},
			{Index: 1, Input: `"bar"`, Output: `"key-2"`},
			{Index: 2, Input: `42`, Output: `"key-3"`},
		}, trace.Calls)
		assert.Equal(t, "store was called 3 times:\n"+
			`store("foo") -> "key-1"`+"\n"+
			`store("bar") -> "key-2"`+"\n"+
			`store(42) -> "key-3"`, trace.String())
	})
}

func TestCacheReplayUnknownOperation(t *testing.T) {
	c := newTestCache(t, NewInMemory(context.Background()))
	trace, err := c.Replay(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Equal(t, int64(0), trace.Count)
	assert.Empty(t, trace.Calls)
	assert.Equal(t, "nothing was called 0 times:", trace.String())
}

func TestCacheLogsStores(t *testing.T) {
	log := logger.NewTestLogger()
	c := newTestCache(t, NewInMemory(context.Background()),
		WithLogger(log),
		WithKeyGenerator(KeyGeneratorFunc(func() string { return "k" })))
	_, err := c.Store(context.Background(), Int(1))
	require.NoError(t, err)
	entries := log.Entries()
	require.NotEmpty(t, entries)
	assert.Equal(t, "TRACE", entries[len(entries)-1].Severity)
	assert.Equal(t, "cache", entries[len(entries)-1].Metadata["component"])
}
