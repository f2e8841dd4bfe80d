package shards

import (
	"context"
	"errors"
	"fmt"

	"github.com/bastiangx/docserve/internal/logger"
	"github.com/bastiangx/docserve/internal/utils"
	"github.com/bastiangx/docserve/pkg/index"
	"github.com/charmbracelet/log"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

const shardKeyPrefix = "shard:"

// BadgerSource keeps encoded shards in an embedded badger store, one value per
// shard key. It is filled by `docserve import` and read-only for the engine.
type BadgerSource struct {
	db *badger.DB
}

// badgerLogger adapts a charm logger to badger's Logger interface.
type badgerLogger struct {
	logger *log.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (bl *badgerLogger) Errorf(msg string, items ...any)   { bl.logger.Errorf(msg, items...) }
func (bl *badgerLogger) Warningf(msg string, items ...any) { bl.logger.Warnf(msg, items...) }
func (bl *badgerLogger) Infof(msg string, items ...any)    { bl.logger.Debugf(msg, items...) }
func (bl *badgerLogger) Debugf(msg string, items ...any)   { bl.logger.Debugf(msg, items...) }

// OpenBadgerSource opens (creating when needed) a badger store at path for
// writing. inMemory ignores path and keeps everything in memory, which tests
// use.
func OpenBadgerSource(path string, inMemory bool) (*BadgerSource, error) {
	if inMemory {
		return openBadger(badger.DefaultOptions("").WithInMemory(true))
	}
	if err := utils.WritableDir(path); err != nil {
		return nil, fmt.Errorf("failed to prepare badger dir: %w", err)
	}
	return openBadger(badger.DefaultOptions(path))
}

// OpenBadgerReader opens an existing store read-only. A missing path is an
// error instead of a fresh empty store.
func OpenBadgerReader(path string) (*BadgerSource, error) {
	if err := utils.ExistingDir(path); err != nil {
		return nil, fmt.Errorf("badger store not found: %w", err)
	}
	return openBadger(badger.DefaultOptions(path).WithReadOnly(true))
}

func openBadger(opts badger.Options) (*BadgerSource, error) {
	opts.Logger = &badgerLogger{logger: logger.New("badger")}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &BadgerSource{db: db}, nil
}

func makeShardKey(key index.ShardKey) []byte {
	return []byte(shardKeyPrefix + string(key))
}

// Fetch implements Source.
func (b *BadgerSource) Fetch(ctx context.Context, key index.ShardKey) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(makeShardKey(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read shard %s from badger: %w", key, err)
	}
	return data, nil
}

// Put stores the encoded bytes of a shard, replacing any previous value.
func (b *BadgerSource) Put(key index.ShardKey, data []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(makeShardKey(key), data)
	})
}

// Keys lists every shard key in the store.
func (b *BadgerSource) Keys() ([]index.ShardKey, error) {
	var keys []index.ShardKey
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(shardKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := string(it.Item().Key())
			keys = append(keys, index.ShardKey(k[len(shardKeyPrefix):]))
		}
		return nil
	})
	return keys, err
}

// Close closes the underlying store.
func (b *BadgerSource) Close() error {
	return b.db.Close()
}
