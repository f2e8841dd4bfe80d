package shards

import (
	"math"
	"sort"
	"sync"

	"github.com/bastiangx/docserve/pkg/index"
	"github.com/charmbracelet/log"
)

// Cache holds loaded shards. Implementations must be safe for concurrent use.
type Cache interface {
	Get(key index.ShardKey) (*index.Shard, bool)
	Add(key index.ShardKey, shard *index.Shard)
	Len() int
	Keys() []index.ShardKey
}

// NewCache returns an unbounded cache when maxShards <= 0, otherwise an LRU
// cache holding at most maxShards shards.
func NewCache(maxShards int) Cache {
	if maxShards <= 0 {
		return NewMapCache()
	}
	return NewLRUCache(maxShards)
}

// MapCache keeps every shard for the lifetime of the engine.
type MapCache struct {
	shards map[index.ShardKey]*index.Shard
	mu     sync.RWMutex
}

// NewMapCache creates an empty unbounded cache.
func NewMapCache() *MapCache {
	return &MapCache{shards: make(map[index.ShardKey]*index.Shard)}
}

func (c *MapCache) Get(key index.ShardKey) (*index.Shard, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.shards[key]
	return s, ok
}

func (c *MapCache) Add(key index.ShardKey, shard *index.Shard) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shards[key] = shard
}

func (c *MapCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.shards)
}

func (c *MapCache) Keys() []index.ShardKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedKeys(c.shards)
}

// LRUCache evicts the least recently used shard once maxShards is reached.
type LRUCache struct {
	shards      map[index.ShardKey]*index.Shard
	accessTime  map[index.ShardKey]int64
	accessCount int64
	maxShards   int
	mu          sync.Mutex
}

// NewLRUCache creates an LRU cache holding at most maxShards shards.
func NewLRUCache(maxShards int) *LRUCache {
	if maxShards < 1 {
		maxShards = 1
	}
	return &LRUCache{
		shards:     make(map[index.ShardKey]*index.Shard, maxShards),
		accessTime: make(map[index.ShardKey]int64, maxShards),
		maxShards:  maxShards,
	}
}

func (c *LRUCache) Get(key index.ShardKey) (*index.Shard, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.shards[key]
	if ok {
		c.markAccessed(key)
	}
	return s, ok
}

func (c *LRUCache) Add(key index.ShardKey, shard *index.Shard) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.shards[key]; !exists && len(c.shards) >= c.maxShards {
		c.evictLRU()
	}
	c.shards[key] = shard
	c.markAccessed(key)
}

func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.shards)
}

func (c *LRUCache) Keys() []index.ShardKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeys(c.shards)
}

func (c *LRUCache) markAccessed(key index.ShardKey) {
	c.accessCount++
	c.accessTime[key] = c.accessCount
}

func (c *LRUCache) evictLRU() {
	var oldestKey index.ShardKey
	var oldestTime int64 = math.MaxInt64
	for key, t := range c.accessTime {
		if t < oldestTime {
			oldestTime = t
			oldestKey = key
		}
	}
	if oldestTime == math.MaxInt64 {
		return
	}
	delete(c.shards, oldestKey)
	delete(c.accessTime, oldestKey)
	log.Debugf("Evicted shard '%s' from cache", oldestKey)
}

func sortedKeys(m map[index.ShardKey]*index.Shard) []index.ShardKey {
	keys := make([]index.ShardKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
