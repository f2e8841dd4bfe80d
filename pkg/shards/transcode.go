package shards

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bastiangx/docserve/internal/utils"
	"github.com/bastiangx/docserve/pkg/index"
	"github.com/charmbracelet/log"
)

// Sink stores encoded shards. BadgerSource is a Sink.
type Sink interface {
	Put(key index.ShardKey, data []byte) error
}

// DirSink writes each shard to its own file in a directory.
type DirSink struct {
	dir     string
	pattern string
}

// NewDirSink creates dir if needed and writes ShardName(pattern, key) files.
func NewDirSink(dir, pattern string) (*DirSink, error) {
	if err := utils.WritableDir(dir); err != nil {
		return nil, fmt.Errorf("failed to prepare shard dir: %w", err)
	}
	return &DirSink{dir: dir, pattern: pattern}, nil
}

// Put implements Sink.
func (s *DirSink) Put(key index.ShardKey, data []byte) error {
	path := filepath.Join(s.dir, ShardName(s.pattern, key))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write shard %s: %w", key, err)
	}
	return nil
}

// TranscodeStats summarises a Transcode run.
type TranscodeStats struct {
	Shards  int
	Tokens  int
	Entries int
}

// Transcode reads keys from src, decodes them with dec and stores them in
// sink re-encoded with enc. It stops at the first failing shard.
func Transcode(ctx context.Context, src Source, keys []index.ShardKey, dec Decoder, enc Encoder, sink Sink) (TranscodeStats, error) {
	var stats TranscodeStats
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		data, err := src.Fetch(ctx, key)
		if err != nil {
			return stats, &UnavailableError{Key: key, Err: err}
		}
		shard, err := dec.Decode(key, data)
		if err != nil {
			return stats, &UnavailableError{Key: key, Err: err}
		}
		out, err := enc.Encode(shard)
		if err != nil {
			return stats, fmt.Errorf("failed to encode shard %s: %w", key, err)
		}
		if err := sink.Put(key, out); err != nil {
			return stats, err
		}

		stats.Shards++
		stats.Tokens += shard.Tokens()
		stats.Entries += shard.Len()
		log.Debugf("Transcoded shard %s: %d tokens, %d bytes -> %d bytes", key, shard.Tokens(), len(data), len(out))
	}
	return stats, nil
}
