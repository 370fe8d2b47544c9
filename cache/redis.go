package cache

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// wireValue is the msgpack form of a Value stored in Redis.
type wireValue struct {
	Kind Kind   `msgpack:"k"`
	Raw  []byte `msgpack:"r"`
}

type redisStore struct {
	client *redis.Client
	cfg    config
}

var _ Store = (*redisStore)(nil)

// NewRedis returns a Store backed by Redis.
// The caller owns the redis.Client lifecycle; Close does not close the client.
func NewRedis(client *redis.Client, opts ...Option) Store {
	cfg := applyOptions(opts)
	return &redisStore{
		client: client,
		cfg:    cfg,
	}
}

func (s *redisStore) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.cfg.queryTimeout)
}

// Values, counters and lists live in separate sub-namespaces so a Get never
// lands on an instrumentation key.
const (
	valueSpace   = "val:"
	counterSpace = "ctr:"
	listSpace    = "list:"
)

func (s *redisStore) prefixKey(key string) string {
	if s.cfg.prefix == "" {
		return key
	}
	return s.cfg.prefix + ":" + key
}

func (s *redisStore) valueKey(key string) string   { return s.prefixKey(valueSpace + key) }
func (s *redisStore) counterKey(key string) string { return s.prefixKey(counterSpace + key) }
func (s *redisStore) listKey(key string) string    { return s.prefixKey(listSpace + key) }

// classify keeps server replies (wrong type, script errors) as plain errors
// and reports everything else as the store being unreachable.
func (s *redisStore) classify(err error, op string) error {
	var rerr redis.Error
	if errors.As(err, &rerr) {
		return errors.Wrapf(err, "cache: %s", op)
	}
	return unavailable(err, op)
}

func (s *redisStore) Put(ctx context.Context, key string, val Value, ttl time.Duration) error {
	data, err := msgpack.Marshal(wireValue{Kind: val.kind, Raw: val.raw})
	if err != nil {
		return errors.Wrap(err, "cache: encode value")
	}
	if ttl < 0 {
		ttl = 0
	}
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	if err := s.client.Set(qctx, s.valueKey(key), data, ttl).Err(); err != nil {
		return s.classify(err, "put")
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, key string) (Value, bool, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	data, err := s.client.Get(qctx, s.valueKey(key)).Bytes()
	if err == redis.Nil {
		return Value{}, false, nil
	}
	if err != nil {
		return Value{}, false, s.classify(err, "get")
	}
	var w wireValue
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return Value{}, true, coercionError(err, "cache: decode value at %s", key)
	}
	v, err := newValue(w.Kind, w.Raw)
	if err != nil {
		return Value{}, true, err
	}
	return v, true, nil
}

func (s *redisStore) Incr(ctx context.Context, key string) (int64, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	n, err := s.client.Incr(qctx, s.counterKey(key)).Result()
	if err != nil {
		return 0, s.classify(err, "incr")
	}
	return n, nil
}

func (s *redisStore) Counter(ctx context.Context, key string) (int64, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	n, err := s.client.Get(qctx, s.counterKey(key)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, s.classify(err, "counter")
	}
	return n, nil
}

func (s *redisStore) Push(ctx context.Context, pushes ...ListPush) error {
	if len(pushes) == 0 {
		return nil
	}
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	_, err := s.client.TxPipelined(qctx, func(pipe redis.Pipeliner) error {
		for _, p := range pushes {
			pipe.RPush(qctx, s.listKey(p.Key), p.Value)
		}
		return nil
	})
	if err != nil {
		return s.classify(err, "push")
	}
	return nil
}

func (s *redisStore) List(ctx context.Context, key string) ([]string, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	items, err := s.client.LRange(qctx, s.listKey(key), 0, -1).Result()
	if err != nil {
		return nil, s.classify(err, "list")
	}
	return items, nil
}

// Flush empties the current database, or only the prefixed keys when a
// prefix is configured.
func (s *redisStore) Flush(ctx context.Context) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	if s.cfg.prefix == "" {
		if err := s.client.FlushDB(qctx).Err(); err != nil {
			return s.classify(err, "flush")
		}
		return nil
	}
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(qctx, cursor, s.cfg.prefix+":*", 256).Result()
		if err != nil {
			return s.classify(err, "flush")
		}
		if len(keys) > 0 {
			if err := s.client.Del(qctx, keys...).Err(); err != nil {
				return s.classify(err, "flush")
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Close is a no-op. The caller owns the redis.Client.
func (s *redisStore) Close() error {
	return nil
}
