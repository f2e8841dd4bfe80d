package suggest

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/bastiangx/docserve/pkg/index"
	"github.com/charmbracelet/log"
)

// ShardLoader is the part of shards.Store a Lookup needs.
type ShardLoader interface {
	ShardKey(key index.Key) (index.ShardKey, bool)
	Load(ctx context.Context, key index.ShardKey) (*index.Shard, error)
}

// Lookup finds every entry whose token starts with a normalized key.
//
// A query's leading characters pick exactly one shard; prefixes are never
// merged across shard boundaries.
type Lookup struct {
	loader ShardLoader
	hot    atomic.Pointer[index.Shard]
}

// NewLookup creates a Lookup over loader.
func NewLookup(loader ShardLoader) *Lookup {
	return &Lookup{loader: loader}
}

// Lookup returns the matches for key in emission order. The empty key, and
// keys no shard can hold, match nothing and never load a shard.
// Shard failures are returned as is (shards.ErrShardUnavailable).
func (l *Lookup) Lookup(ctx context.Context, key index.Key) ([]index.Entry, error) {
	if key == "" {
		return nil, nil
	}
	shardKey, ok := l.loader.ShardKey(key)
	if !ok {
		log.Debugf("No shard for key %q", key)
		return nil, nil
	}

	shard, err := l.shard(ctx, shardKey)
	if err != nil {
		return nil, err
	}

	matches := shard.Prefix(key)
	filtered := matches[:0]
	for _, e := range matches {
		if strings.HasPrefix(string(index.Normalize(e.DisplayName)), string(key)) {
			filtered = append(filtered, e)
		}
	}
	if dropped := len(matches) - len(filtered); dropped > 0 {
		log.Debugf("Dropped %d entries in shard %s whose name does not start with %q", dropped, shardKey, key)
	}
	return filtered, nil
}

// shard returns the hot shard when it matches, otherwise loads and promotes
// the shard for key. The previous hot shard stays in the store cache.
func (l *Lookup) shard(ctx context.Context, key index.ShardKey) (*index.Shard, error) {
	if hot := l.hot.Load(); hot != nil && hot.Key() == key {
		return hot, nil
	}
	shard, err := l.loader.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if prev := l.hot.Swap(shard); prev != nil && prev.Key() != key {
		log.Debugf("Hot shard %s -> %s", prev.Key(), key)
	}
	return shard, nil
}

// Hot returns the key of the shard on the hot path, if any.
func (l *Lookup) Hot() (index.ShardKey, bool) {
	if hot := l.hot.Load(); hot != nil {
		return hot.Key(), true
	}
	return "", false
}
