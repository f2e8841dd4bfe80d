package shards

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bastiangx/docserve/internal/logger"
	"github.com/bastiangx/docserve/pkg/index"
	"github.com/charmbracelet/log"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultWarmWorkers is the pool size Warm uses when given a non-positive one.
const DefaultWarmWorkers = 4

// Lister is implemented by sources that can enumerate their shard keys.
type Lister interface {
	Keys() ([]index.ShardKey, error)
}

// Store lazily loads shards from a Source and caches them for the lifetime of
// the Store. A Store is owned by one engine; nothing in it is process-global.
type Store struct {
	partitioner index.Partitioner
	source      Source
	decoder     Decoder
	cache       Cache
	logger      *log.Logger

	group singleflight.Group

	hits     atomic.Int64
	misses   atomic.Int64
	loads    atomic.Int64
	failures atomic.Int64
}

// Stats is a snapshot of store counters.
type Stats struct {
	Hits     int64
	Misses   int64
	Loads    int64
	Failures int64
	Cached   int
	Keys     []index.ShardKey
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithCache replaces the default unbounded cache.
func WithCache(c Cache) StoreOption {
	return func(s *Store) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithLogger sets the logger used for load events.
func WithLogger(l *log.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates a Store reading shards through source and decoder.
func NewStore(p index.Partitioner, source Source, decoder Decoder, opts ...StoreOption) *Store {
	s := &Store{
		partitioner: p,
		source:      source,
		decoder:     decoder,
		cache:       NewMapCache(),
		logger:      logger.New("shards"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ShardKey resolves the shard that owns key.
func (s *Store) ShardKey(key index.Key) (index.ShardKey, bool) {
	return s.partitioner.ShardKey(key)
}

// Cached returns the shard for key if it is already loaded.
func (s *Store) Cached(key index.ShardKey) (*index.Shard, bool) {
	return s.cache.Get(key)
}

// Load returns the shard for key, fetching and decoding it on a cache miss.
// Concurrent misses for the same key share a single fetch. The fetch runs
// detached from ctx: a caller that gives up returns ctx.Err() right away while
// the load still completes and fills the cache.
//
// Failures are reported as *UnavailableError and are not cached.
func (s *Store) Load(ctx context.Context, key index.ShardKey) (*index.Shard, error) {
	if shard, ok := s.cache.Get(key); ok {
		s.hits.Add(1)
		return shard, nil
	}
	s.misses.Add(1)

	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(string(key), func() (any, error) {
		return s.fetch(detached, key)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*index.Shard), nil
	}
}

func (s *Store) fetch(ctx context.Context, key index.ShardKey) (*index.Shard, error) {
	// a flight that finished between the caller's miss and DoChan already
	// published the shard
	if shard, ok := s.cache.Get(key); ok {
		return shard, nil
	}

	s.loads.Add(1)
	start := time.Now()

	data, err := s.source.Fetch(ctx, key)
	if err != nil {
		s.failures.Add(1)
		s.logger.Warn("shard fetch failed", "key", key, "err", err)
		return nil, &UnavailableError{Key: key, Err: err}
	}

	shard, err := s.decoder.Decode(key, data)
	if err != nil {
		s.failures.Add(1)
		s.logger.Warn("shard decode failed", "key", key, "err", err)
		return nil, &UnavailableError{Key: key, Err: err}
	}

	s.cache.Add(key, shard)
	s.logger.Debugf("Loaded shard %s: %d tokens, %d entries in %v",
		key, shard.Tokens(), shard.Len(), time.Since(start))
	return shard, nil
}

// Warm loads keys concurrently on a pool of workers. It waits for every load
// and joins the failures; shards that loaded stay cached either way.
func (s *Store) Warm(ctx context.Context, workers int, keys ...index.ShardKey) error {
	if len(keys) == 0 {
		return nil
	}
	if workers <= 0 {
		workers = DefaultWarmWorkers
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return fmt.Errorf("failed to create warm pool: %w", err)
	}
	defer pool.Release()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, key := range keys {
		wg.Add(1)
		key := key
		if err := pool.Submit(func() {
			defer wg.Done()
			if _, err := s.Load(ctx, key); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}); err != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, fmt.Errorf("failed to schedule shard %s: %w", key, err))
			mu.Unlock()
		}
	}
	wg.Wait()

	log.Debugf("Warmed %d shards (%d failed)", len(keys)-len(errs), len(errs))
	return errors.Join(errs...)
}

// Available lists the shard keys the source can serve, when it can tell.
func (s *Store) Available() ([]index.ShardKey, error) {
	l, ok := s.source.(Lister)
	if !ok {
		return nil, fmt.Errorf("source %T cannot list shards", s.source)
	}
	return l.Keys()
}

// Stats returns a snapshot of the store counters.
func (s *Store) Stats() Stats {
	keys := s.cache.Keys()
	return Stats{
		Hits:     s.hits.Load(),
		Misses:   s.misses.Load(),
		Loads:    s.loads.Load(),
		Failures: s.failures.Load(),
		Cached:   len(keys),
		Keys:     keys,
	}
}
