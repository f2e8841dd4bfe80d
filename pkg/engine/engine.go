// Package engine assembles the search pipeline from config. Each Engine owns
// its shard cache, so several engines can live in one process.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/bastiangx/docserve/internal/logger"
	"github.com/bastiangx/docserve/pkg/config"
	"github.com/bastiangx/docserve/pkg/index"
	"github.com/bastiangx/docserve/pkg/session"
	"github.com/bastiangx/docserve/pkg/shards"
	"github.com/bastiangx/docserve/pkg/suggest"
	"github.com/charmbracelet/log"
)

// Engine wires store, lookup and completer together.
type Engine struct {
	cfg       *config.Config
	store     *shards.Store
	lookup    *suggest.Lookup
	completer *suggest.Completer
	closer    io.Closer
	logger    *log.Logger
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	source shards.Source
	fsys   fs.FS
}

// WithSource overrides the configured backend.
func WithSource(src shards.Source) Option {
	return func(o *options) { o.source = src }
}

// WithFS reads shards from fsys using the configured pattern, e.g. an
// embed.FS bundled into the binary.
func WithFS(fsys fs.FS) Option {
	return func(o *options) { o.fsys = fsys }
}

// New builds an Engine from cfg. A nil cfg uses config.DefaultConfig.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	partitioner, err := NewPartitioner(cfg.Shards)
	if err != nil {
		return nil, err
	}
	decoder, err := NewDecoder(cfg.Shards)
	if err != nil {
		return nil, err
	}

	var closer io.Closer
	source := o.source
	switch {
	case source != nil:
	case o.fsys != nil:
		source = shards.NewFSSource(o.fsys, cfg.Shards.Pattern)
	default:
		source, closer, err = NewSource(cfg.Shards)
		if err != nil {
			return nil, err
		}
	}

	l := logger.New("engine")
	store := shards.NewStore(partitioner, source, decoder,
		shards.WithCache(shards.NewCache(cfg.Shards.CacheSize)),
		shards.WithLogger(logger.New("shards")),
	)
	lookup := suggest.NewLookup(store)
	completer := suggest.NewCompleter(
		index.NewNormalizer(cfg.Engine.MinQuery),
		lookup,
		suggest.WithMaxQuery(cfg.Engine.MaxQuery),
		suggest.WithMaxResults(cfg.Engine.MaxResults),
	)

	l.Debug("engine ready",
		"source", fmt.Sprintf("%T", source),
		"format", decoderName(decoder),
		"partition", cfg.Shards.Partition,
		"cache", cfg.Shards.CacheSize)

	return &Engine{
		cfg:       cfg,
		store:     store,
		lookup:    lookup,
		completer: completer,
		closer:    closer,
		logger:    l,
	}, nil
}

// NewPartitioner builds the configured partitioning scheme.
func NewPartitioner(cfg config.ShardsConfig) (index.Partitioner, error) {
	switch strings.ToLower(cfg.Partition) {
	case "", "prefix":
		return index.PrefixPartitioner{Width: cfg.PrefixWidth}, nil
	case "table":
		if cfg.TableChars == "" {
			return nil, errors.New("table partitioning needs shards.table_chars")
		}
		return index.TablePartitioner{Category: tableCategory(cfg), Chars: cfg.TableChars}, nil
	}
	return nil, fmt.Errorf("unknown partition scheme %q", cfg.Partition)
}

// NewDecoder picks the shard decoder from the format, or from the pattern's
// extension when no format is set.
func NewDecoder(cfg config.ShardsConfig) (shards.Decoder, error) {
	format, err := resolveFormat(cfg)
	if err != nil {
		return nil, err
	}
	if format == shards.FormatDoxygen {
		return shards.DoxygenDecoder{Category: tableCategory(cfg)}, nil
	}
	return shards.NewDecoder(format)
}

func tableCategory(cfg config.ShardsConfig) string {
	if cfg.TableCategory == "" {
		return "functions"
	}
	return cfg.TableCategory
}

func resolveFormat(cfg config.ShardsConfig) (shards.Format, error) {
	if cfg.Format != "" {
		return shards.ParseFormat(cfg.Format)
	}
	return shards.DetectFormat(cfg.Pattern)
}

// NewSource opens the configured backend. The returned closer is nil for
// backends that hold no resources.
func NewSource(cfg config.ShardsConfig) (shards.Source, io.Closer, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "dir":
		src, err := shards.NewDirSource(cfg.Dir, cfg.Pattern)
		return src, nil, err
	case "http":
		if cfg.URL == "" {
			return nil, nil, errors.New("http backend needs shards.url")
		}
		return shards.NewHTTPSource(cfg.URL, cfg.Pattern, nil), nil, nil
	case "badger":
		if cfg.BadgerPath == "" {
			return nil, nil, errors.New("badger backend needs shards.badger_path")
		}
		src, err := shards.OpenBadgerReader(cfg.BadgerPath)
		if err != nil {
			return nil, nil, err
		}
		return src, src, nil
	}
	return nil, nil, fmt.Errorf("unknown shard backend %q", cfg.Backend)
}

func decoderName(d shards.Decoder) string {
	switch d.(type) {
	case shards.MsgpackCodec:
		return shards.FormatMsgpack.String()
	case shards.JSONCodec:
		return shards.FormatJSON.String()
	case shards.DoxygenDecoder:
		return shards.FormatDoxygen.String()
	}
	return fmt.Sprintf("%T", d)
}

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config { return e.cfg }

// Store returns the engine's shard store.
func (e *Engine) Store() *shards.Store { return e.store }

// Complete runs a single synchronous query, bypassing sessions.
func (e *Engine) Complete(ctx context.Context, raw string, limit int) (suggest.Completion, error) {
	return e.completer.Complete(ctx, raw, limit)
}

// NewSession starts a session using the configured debounce and result
// limit; opts are applied after those defaults.
func (e *Engine) NewSession(opts ...session.Option) *session.Session {
	defaults := []session.Option{
		session.WithDebounce(e.cfg.Engine.Debounce()),
		session.WithLimit(e.cfg.Engine.MaxResults),
	}
	return session.New(e.completer, append(defaults, opts...)...)
}

// Warm preloads keys, or the configured preload list when keys is empty.
func (e *Engine) Warm(ctx context.Context, keys ...index.ShardKey) error {
	if len(keys) == 0 {
		for _, k := range e.cfg.Shards.Preload {
			keys = append(keys, index.ShardKey(k))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	err := e.store.Warm(ctx, e.cfg.Shards.WarmWorkers, keys...)
	if err != nil {
		e.logger.Warn("warm-up incomplete", "err", err)
	}
	return err
}

// Stats returns the shard store counters.
func (e *Engine) Stats() shards.Stats {
	return e.store.Stats()
}

// Close releases the shard backend.
func (e *Engine) Close() error {
	if e.closer != nil {
		return e.closer.Close()
	}
	return nil
}

// HotShard returns the shard the last query ran against.
func (e *Engine) HotShard() (index.ShardKey, bool) {
	return e.lookup.Hot()
}
