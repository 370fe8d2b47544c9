// Package cache provides an instrumented key/value cache, a memoizer for
// expensive external fetches, and per-operation call counting and history.
//
// # Store
//
// The [Store] interface is the backing key/value contract: values with an
// optional TTL, counters, and append-only lists. Two implementations are
// provided:
//
//   - [NewInMemory]: in-process maps. Entries are sharded by an xxhash of the
//     key, each shard guarded by its own mutex; counters and lists live in
//     lock-free xsync maps. Expiry is evaluated on read against the
//     configured clock ([WithClock]). An optional background sweep
//     ([WithExpiryCheck]) reclaims expired entries. Lost on process restart.
//
//   - [NewRedis]: backed by Redis using [github.com/redis/go-redis/v9].
//     Values are encoded with msgpack, expiry uses native Redis TTL, counters
//     use INCR and history lists RPUSH inside MULTI. An optional key prefix
//     ([WithPrefix]) namespaces the store. The caller owns the
//     [redis.Client]; [Store.Close] is a no-op. Network failures are reported
//     as [ErrUnavailable] and are never retried.
//
// # Values
//
// A [Value] is one of text, bytes, integer or float. It is stored and
// returned unchanged; conversion happens only when the caller asks for it
// through a [Coercion]:
//
//	key, _ := c.Store(ctx, cache.Int(123))
//	n, found, err := c.RetrieveInt(ctx, key)
//
// Coercions that cannot succeed (e.g. text "abc" as an integer) return an
// error matching [ErrCoercion]. A missing key is not an error; it is
// reported through the found flag.
//
// # Instrumentation
//
// [Counted], [Recorded] and [Traced] wrap an [Operation] with a call
// counter, a call history and an OpenTelemetry span. [Instrument] applies
// all three. The counter is incremented before the wrapped operation runs,
// so failed calls are counted too.
//
// History has two modes. [HistoryPaired], the default, appends the input
// and the result (or "error: ...") together after the call finishes, keeping
// both lists the same length even when calls fail or run concurrently.
// [HistoryInputFirst] appends the input before the call and the output only
// on success.
//
// [Replay] reads an operation's history back as a [Trace]:
//
//	t, _ := c.Replay(ctx, cache.OpStore)
//	fmt.Println(t)
//	// store was called 1 times:
//	// store("hello") -> "7d4f..."
//
// # Memoizer
//
// [Memoizer] binds a [FetchFunc] to a Store with a fixed TTL
// ([DefaultFetchTTL], 10 seconds). Within the TTL repeated fetches of the
// same URL are served from the Store; after it the FetchFunc is called
// again. Failures, including [WithFetchTimeout] expiring, are reported as
// [ErrFetch] and leave nothing cached. [WithSingleFlight] makes concurrent
// misses on one URL share a single external call.
package cache
