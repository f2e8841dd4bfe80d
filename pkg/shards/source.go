package shards

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bastiangx/docserve/pkg/index"
	"github.com/charmbracelet/log"
)

// KeyPlaceholder is replaced by the shard key in source name patterns.
const KeyPlaceholder = "{key}"

// Source fetches the raw bytes of one shard from its backing storage.
// Implementations must be safe for concurrent use.
type Source interface {
	Fetch(ctx context.Context, key index.ShardKey) ([]byte, error)
}

// ShardName expands a pattern such as "{key}.js" for key.
func ShardName(pattern string, key index.ShardKey) string {
	if pattern == "" {
		pattern = KeyPlaceholder
	}
	return strings.ReplaceAll(pattern, KeyPlaceholder, string(key))
}

// FSSource reads shards from a file system: a directory on disk or a bundled
// embed.FS.
type FSSource struct {
	fsys    fs.FS
	pattern string
}

// NewFSSource creates a Source reading ShardName(pattern, key) from fsys.
func NewFSSource(fsys fs.FS, pattern string) *FSSource {
	return &FSSource{fsys: fsys, pattern: pattern}
}

// NewDirSource creates a Source over a directory of shard files.
func NewDirSource(dir, pattern string) (*FSSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat shard dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	return NewFSSource(os.DirFS(dir), pattern), nil
}

// Fetch implements Source.
func (s *FSSource) Fetch(ctx context.Context, key index.ShardKey) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := ShardName(s.pattern, key)
	data, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to read shard file %s: %w", name, err)
	}
	log.Debugf("Read shard file %s (%d bytes)", name, len(data))
	return data, nil
}

// Keys lists the shard keys available in the file system by matching the
// pattern against its top-level entries.
func (s *FSSource) Keys() ([]index.ShardKey, error) {
	prefix, suffix, found := strings.Cut(s.pattern, KeyPlaceholder)
	if !found {
		return nil, fmt.Errorf("pattern %q has no %s placeholder", s.pattern, KeyPlaceholder)
	}
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to scan for shard files: %w", err)
	}

	var keys []index.ShardKey
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		key := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
		if key != "" {
			keys = append(keys, index.ShardKey(key))
		}
	}
	return keys, nil
}

// HTTPSource fetches shards from a documentation site, e.g.
// https://example.org/docs/search/{key}.js.
type HTTPSource struct {
	baseURL string
	pattern string
	client  *http.Client
}

// NewHTTPSource creates a Source fetching baseURL + ShardName(pattern, key).
// A nil client uses a client with a 30 second timeout.
func NewHTTPSource(baseURL, pattern string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPSource{
		baseURL: strings.TrimSuffix(baseURL, "/") + "/",
		pattern: pattern,
		client:  client,
	}
}

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context, key index.ShardKey) ([]byte, error) {
	url := s.baseURL + ShardName(s.pattern, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetching %s: unexpected status %s", url, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", url, err)
	}
	return data, nil
}
