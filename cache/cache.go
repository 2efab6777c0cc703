package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	pacscodec "gitlab.com/medical-research/pacs-codec"
)

// Cache metrics.
var (
	hitCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pacs_codec_cache_hit_count",
		Help: "Total number of cache hits",
	})
	missCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pacs_codec_cache_miss_count",
		Help: "Total number of cache misses, including lazy expiries",
	})
	evictionCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pacs_codec_cache_eviction_count",
		Help: "Total number of capacity-driven evictions",
	})
	itemGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pacs_codec_cache_item_count",
		Help: "Current number of live cache entries",
	})
)

// DefaultCapacity bounds the entry count when the caller does not.
const DefaultCapacity = 1000

// DefaultTTL applies to Set calls with a zero ttl when no default was
// configured.
const DefaultTTL = 15 * time.Minute

// Ensure service implements interface.
var _ pacscodec.CacheService = (*Service)(nil)

// Service is the PACS object cache. One mutex guards the entry table and
// all bookkeeping, so a Get never observes a half-written entry and TTL/LRU
// accounting cannot be bypassed. Values round-trip through JSON on the way
// in and out, so callers always receive copies, never the stored entry.
type Service struct {
	mu      sync.Mutex
	backend Backend

	capacity   int
	defaultTTL time.Duration

	index     map[string]*indexEntry
	lru       *list.List // front = most recently accessed
	byInsert  *list.List // front = most recently inserted
	totalSize int64

	// Running counters. Stats() is computed from these, never by scanning
	// the store.
	hits      uint64
	misses    uint64
	sets      uint64
	evictions uint64
}

// indexEntry is the Service's bookkeeping for one live key. It never leaves
// the Service.
type indexEntry struct {
	key          string
	insertedAt   time.Time
	expiresAt    time.Time
	lastAccessed time.Time
	size         int64

	lruElem    *list.Element
	insertElem *list.Element
}

// envelope is the encoded form handed to the backend.
type envelope struct {
	Value      json.RawMessage `json:"value"`
	InsertedAt time.Time       `json:"insertedAt"`
	ExpiresAt  time.Time       `json:"expiresAt"`
}

// Option configures a Service.
type Option func(*Service)

// WithCapacity bounds the number of live entries; the least recently
// accessed entries are evicted to stay under it.
func WithCapacity(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithDefaultTTL sets the expiry applied when Set is called with a zero ttl.
func WithDefaultTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.defaultTTL = d
		}
	}
}

// NewService returns a Service over backend. A nil backend gets the
// in-process memory backend.
func NewService(backend Backend, opts ...Option) *Service {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	s := &Service{
		backend:    backend,
		capacity:   DefaultCapacity,
		defaultTTL: DefaultTTL,
		index:      make(map[string]*indexEntry),
		lru:        list.New(),
		byInsert:   list.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get loads the live entry under key into dest and reports whether one was
// found. Expiry is lazy: an entry past its TTL is removed here, counted as
// a miss, and reported absent. Backend failures are logged and also treated
// as absent.
func (s *Service) Get(ctx context.Context, key string, dest interface{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.index[key]
	if !ok {
		s.miss()
		return false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		s.removeLocked(ctx, e)
		s.miss()
		return false
	}

	payload, err := s.backend.Get(ctx, key)
	if err != nil {
		if err != ErrKeyNotFound {
			log.Printf("[cache] backend get %q: %v", key, err)
		}
		s.removeLocked(ctx, e)
		s.miss()
		return false
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		log.Printf("[cache] corrupt entry %q: %v", key, err)
		s.removeLocked(ctx, e)
		s.miss()
		return false
	}
	if dest != nil {
		if err := json.Unmarshal(env.Value, dest); err != nil {
			log.Printf("[cache] entry %q does not decode into destination type: %v", key, err)
			s.miss()
			return false
		}
	}

	e.lastAccessed = time.Now()
	s.lru.MoveToFront(e.lruElem)
	s.hits++
	hitCount.Inc()
	return true
}

// Set stores value under key. A zero ttl means the configured default; a
// negative ttl stores a non-expiring entry. Capacity eviction happens here,
// silently: it never fails the Set caller.
func (s *Service) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return pacscodec.Errorf(pacscodec.EINVALID, "cache value for %q is not encodable: %v", key, err)
	}

	now := time.Now()
	env := envelope{Value: raw, InsertedAt: now}
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	if ttl > 0 {
		env.ExpiresAt = now.Add(ttl)
	}
	payload, err := json.Marshal(&env)
	if err != nil {
		return pacscodec.Errorf(pacscodec.EINTERNAL, "encoding cache envelope for %q: %v", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.index[key]; ok {
		s.removeLocked(ctx, old)
	}

	// Evict least recently accessed entries until the new entry fits.
	for len(s.index) >= s.capacity {
		oldest := s.lru.Back()
		if oldest == nil {
			break
		}
		s.removeLocked(ctx, oldest.Value.(*indexEntry))
		s.evictions++
		evictionCount.Inc()
	}

	if err := s.backend.Set(ctx, key, payload); err != nil {
		log.Printf("[cache] backend set %q: %v", key, err)
		return err
	}

	e := &indexEntry{
		key:          key,
		insertedAt:   now,
		expiresAt:    env.ExpiresAt,
		lastAccessed: now,
		size:         int64(len(payload)),
	}
	e.lruElem = s.lru.PushFront(e)
	e.insertElem = s.byInsert.PushFront(e)
	s.index[key] = e
	s.totalSize += e.size
	s.sets++
	itemGauge.Set(float64(len(s.index)))
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Service) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.index[key]; ok {
		s.removeLocked(ctx, e)
	}
	return nil
}

// Clear empties the store. Running hit/miss counters survive a Clear; the
// entry bookkeeping does not.
func (s *Service) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Clear(ctx); err != nil {
		log.Printf("[cache] backend clear: %v", err)
		return err
	}
	s.index = make(map[string]*indexEntry)
	s.lru.Init()
	s.byInsert.Init()
	s.totalSize = 0
	itemGauge.Set(0)
	return nil
}

// Stats returns a snapshot of the running counters.
func (s *Service) Stats() pacscodec.CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := pacscodec.CacheStats{
		TotalRequests: s.hits + s.misses,
		ItemCount:     len(s.index),
		CacheSize:     s.totalSize,
	}
	if stats.TotalRequests > 0 {
		stats.HitRate = float64(s.hits) / float64(stats.TotalRequests)
		stats.MissRate = float64(s.misses) / float64(stats.TotalRequests)
	}
	if oldest := s.byInsert.Back(); oldest != nil {
		stats.OldestItem = oldest.Value.(*indexEntry).insertedAt
	}
	if newest := s.byInsert.Front(); newest != nil {
		stats.NewestItem = newest.Value.(*indexEntry).insertedAt
	}
	return stats
}

// StartSweeper runs an optional periodic expiry sweep until ctx is done.
// Correctness never depends on it; it only bounds worst-case memory between
// accesses. The sweep takes the same lock as foreground operations.
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

func (s *Service) sweep(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*indexEntry
	for _, e := range s.index {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			expired = append(expired, e)
		}
	}
	for _, e := range expired {
		s.removeLocked(ctx, e)
	}
}

// miss records a miss. Callers hold mu.
func (s *Service) miss() {
	s.misses++
	missCount.Inc()
}

// removeLocked drops an entry from the backend and all bookkeeping.
// Callers hold mu. Backend delete failures are logged only: the entry is
// gone from the index either way, which is what the get/set semantics need.
func (s *Service) removeLocked(ctx context.Context, e *indexEntry) {
	if err := s.backend.Delete(ctx, e.key); err != nil {
		log.Printf("[cache] backend delete %q: %v", e.key, err)
	}
	s.lru.Remove(e.lruElem)
	s.byInsert.Remove(e.insertElem)
	delete(s.index, e.key)
	s.totalSize -= e.size
	itemGauge.Set(float64(len(s.index)))
}
