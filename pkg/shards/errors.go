package shards

import (
	"errors"
	"fmt"

	"github.com/bastiangx/docserve/pkg/index"
)

var (
	// ErrShardUnavailable matches every failure to fetch or decode a shard.
	ErrShardUnavailable = errors.New("shard unavailable")

	// ErrNotFound is returned by sources that have no data for a shard key.
	ErrNotFound = errors.New("shard not found")

	// ErrEncodeUnsupported is returned by codecs that can only decode.
	ErrEncodeUnsupported = errors.New("format does not support encoding")
)

// UnavailableError scopes a load failure to a single shard key.
type UnavailableError struct {
	Key index.ShardKey
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("shard %q unavailable: %v", e.Key, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is reports ErrShardUnavailable as a match so callers can test with errors.Is.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrShardUnavailable
}
