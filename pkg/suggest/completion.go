package suggest

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/bastiangx/docserve/pkg/index"
	"github.com/bastiangx/docserve/pkg/rank"
	"github.com/charmbracelet/log"
)

// ErrInvalidQuery is returned for raw input the engine refuses to normalize.
var ErrInvalidQuery = errors.New("invalid query")

// Completion is the outcome of one query.
type Completion struct {
	Query   string
	Key     index.Key
	Results []rank.Result
	Elapsed time.Duration
}

// Completer runs normalize, lookup and rank for a raw query.
type Completer struct {
	normalizer index.Normalizer
	lookup     *Lookup
	maxQuery   int
	maxResults int
}

// Option configures a Completer.
type Option func(*Completer)

// WithMaxQuery rejects raw queries longer than n runes; 0 disables the check.
func WithMaxQuery(n int) Option {
	return func(c *Completer) { c.maxQuery = n }
}

// WithMaxResults caps every result list at n; 0 leaves it to the caller.
func WithMaxResults(n int) Option {
	return func(c *Completer) { c.maxResults = n }
}

// NewCompleter creates a Completer using normalizer and lookup.
func NewCompleter(normalizer index.Normalizer, lookup *Lookup, opts ...Option) *Completer {
	c := &Completer{
		normalizer: normalizer,
		lookup:     lookup,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Normalize exposes the configured normalizer.
func (c *Completer) Normalize(raw string) index.Key {
	return c.normalizer.Normalize(raw)
}

// Complete implements ICompleter. An empty key completes with no results and
// no shard load.
func (c *Completer) Complete(ctx context.Context, raw string, limit int) (Completion, error) {
	start := time.Now()
	out := Completion{Query: raw}

	if c.maxQuery > 0 && utf8.RuneCountInString(raw) > c.maxQuery {
		return out, fmt.Errorf("%w: %d characters exceeds the maximum of %d",
			ErrInvalidQuery, utf8.RuneCountInString(raw), c.maxQuery)
	}

	out.Key = c.normalizer.Normalize(raw)
	if out.Key == "" {
		out.Elapsed = time.Since(start)
		return out, nil
	}

	entries, err := c.lookup.Lookup(ctx, out.Key)
	if err != nil {
		return out, err
	}

	out.Results = rank.Rank(entries, out.Key, c.clampLimit(limit))
	out.Elapsed = time.Since(start)
	log.Debugf("Completed %q: %d matches, %d results in %v", out.Key, len(entries), len(out.Results), out.Elapsed)
	return out, nil
}

func (c *Completer) clampLimit(limit int) int {
	if c.maxResults > 0 && (limit <= 0 || limit > c.maxResults) {
		return c.maxResults
	}
	return limit
}
