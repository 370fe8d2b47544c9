package cache

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

type entry struct {
	val     Value
	expires time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

type shard struct {
	mutex   sync.RWMutex
	entries map[string]*entry
}

type list struct {
	mutex sync.Mutex
	items []string
}

type inMemoryStore struct {
	ctx       context.Context
	cancel    context.CancelFunc
	gate      sync.RWMutex // held exclusively by Flush
	shards    []*shard
	counters  *xsync.MapOf[string, *atomic.Int64]
	lists     *xsync.MapOf[string, *list]
	waitGroup sync.WaitGroup
	once      sync.Once
	cfg       config
}

var _ Store = (*inMemoryStore)(nil)

// NewInMemory returns a Store held in process memory. Entries are sharded by
// key so writers to unrelated keys do not contend.
func NewInMemory(parent context.Context, opts ...Option) Store {
	cfg := applyOptions(opts)
	ctx, cancel := context.WithCancel(parent)
	s := &inMemoryStore{
		ctx:      ctx,
		cancel:   cancel,
		shards:   make([]*shard, cfg.shards),
		counters: xsync.NewMapOf[string, *atomic.Int64](),
		lists:    xsync.NewMapOf[string, *list](),
		cfg:      cfg,
	}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	if cfg.expiryCheck > 0 {
		s.waitGroup.Add(1)
		go s.run()
	}
	return s
}

func (s *inMemoryStore) shardFor(key string) *shard {
	return s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}

func (s *inMemoryStore) Put(_ context.Context, key string, val Value, ttl time.Duration) error {
	e := &entry{val: val}
	if ttl > 0 {
		e.expires = s.cfg.now().Add(ttl)
	}
	s.gate.RLock()
	defer s.gate.RUnlock()
	sh := s.shardFor(key)
	sh.mutex.Lock()
	sh.entries[key] = e
	sh.mutex.Unlock()
	return nil
}

func (s *inMemoryStore) Get(_ context.Context, key string) (Value, bool, error) {
	s.gate.RLock()
	defer s.gate.RUnlock()
	sh := s.shardFor(key)
	sh.mutex.RLock()
	e, ok := sh.entries[key]
	sh.mutex.RUnlock()
	if !ok {
		return Value{}, false, nil
	}
	if e.expired(s.cfg.now()) {
		sh.mutex.Lock()
		if cur, ok := sh.entries[key]; ok && cur == e {
			delete(sh.entries, key)
		}
		sh.mutex.Unlock()
		return Value{}, false, nil
	}
	return e.val, true, nil
}

func (s *inMemoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.gate.RLock()
	defer s.gate.RUnlock()
	counter, _ := s.counters.LoadOrCompute(key, func() *atomic.Int64 {
		return new(atomic.Int64)
	})
	return counter.Add(1), nil
}

func (s *inMemoryStore) Counter(_ context.Context, key string) (int64, error) {
	s.gate.RLock()
	defer s.gate.RUnlock()
	if counter, ok := s.counters.Load(key); ok {
		return counter.Load(), nil
	}
	return 0, nil
}

func (s *inMemoryStore) Push(_ context.Context, pushes ...ListPush) error {
	if len(pushes) == 0 {
		return nil
	}
	s.gate.RLock()
	defer s.gate.RUnlock()

	// lock every target list in key order so multi-list pushes cannot deadlock
	keys := make([]string, 0, len(pushes))
	seen := make(map[string]*list, len(pushes))
	for _, p := range pushes {
		if _, ok := seen[p.Key]; ok {
			continue
		}
		l, _ := s.lists.LoadOrCompute(p.Key, func() *list { return &list{} })
		seen[p.Key] = l
		keys = append(keys, p.Key)
	}
	sort.Strings(keys)
	for _, k := range keys {
		seen[k].mutex.Lock()
	}
	for _, p := range pushes {
		l := seen[p.Key]
		l.items = append(l.items, p.Value)
	}
	for _, k := range keys {
		seen[k].mutex.Unlock()
	}
	return nil
}

func (s *inMemoryStore) List(_ context.Context, key string) ([]string, error) {
	s.gate.RLock()
	defer s.gate.RUnlock()
	l, ok := s.lists.Load(key)
	if !ok {
		return []string{}, nil
	}
	l.mutex.Lock()
	items := make([]string, len(l.items))
	copy(items, l.items)
	l.mutex.Unlock()
	return items, nil
}

func (s *inMemoryStore) Flush(_ context.Context) error {
	s.gate.Lock()
	defer s.gate.Unlock()
	for _, sh := range s.shards {
		sh.entries = make(map[string]*entry)
	}
	s.counters.Clear()
	s.lists.Clear()
	return nil
}

func (s *inMemoryStore) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.waitGroup.Wait()
	})
	return nil
}

func (s *inMemoryStore) sweep() int {
	now := s.cfg.now()
	var removed int
	s.gate.RLock()
	defer s.gate.RUnlock()
	for _, sh := range s.shards {
		sh.mutex.Lock()
		for key, e := range sh.entries {
			if e.expired(now) {
				delete(sh.entries, key)
				removed++
			}
		}
		sh.mutex.Unlock()
	}
	return removed
}

func (s *inMemoryStore) run() {
	defer s.waitGroup.Done()
	ticker := time.NewTicker(s.cfg.expiryCheck)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if n := s.sweep(); n > 0 {
				s.cfg.logger.Trace("swept %d expired entries", n)
			}
		}
	}
}
