package index

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Partitioner maps a normalized key onto the shard that owns it. The scheme
// is fixed by whatever generated the shards, so it is always configured and
// never guessed. ok is false when no shard can hold the key.
type Partitioner interface {
	ShardKey(key Key) (shard ShardKey, ok bool)
}

// PrefixPartitioner buckets keys by their first Width runes.
type PrefixPartitioner struct {
	Width int
}

// ShardKey implements Partitioner.
func (p PrefixPartitioner) ShardKey(key Key) (ShardKey, bool) {
	if key == "" {
		return "", false
	}
	width := p.Width
	if width < 1 {
		width = 1
	}

	s := string(key)
	end := 0
	for i := 0; i < width && end < len(s); i++ {
		_, size := utf8.DecodeRuneInString(s[end:])
		end += size
	}
	return ShardKey(s[:end]), true
}

// TablePartitioner reproduces the Doxygen scheme: each category has a table of
// the leading characters it has content for, and shard N of the category holds
// the tokens starting with the N-th character, e.g. "functions_8".
type TablePartitioner struct {
	Category string
	Chars    string
}

// ShardKey implements Partitioner.
func (p TablePartitioner) ShardKey(key Key) (ShardKey, bool) {
	if key == "" {
		return "", false
	}
	lead, _ := utf8.DecodeRuneInString(string(key))

	pos := 0
	for _, c := range strings.ToLower(p.Chars) {
		if c == lead {
			return ShardKey(fmt.Sprintf("%s_%d", p.Category, pos)), true
		}
		pos++
	}
	return "", false
}

// CategoryOf returns the category part of a table shard key ("functions" for
// "functions_8"), or the whole key when it has no numeric suffix.
func CategoryOf(shard ShardKey) string {
	s := string(shard)
	i := strings.LastIndexByte(s, '_')
	if i <= 0 || i == len(s)-1 {
		return s
	}
	for _, c := range s[i+1:] {
		if c < '0' || c > '9' {
			return s
		}
	}
	return s[:i]
}
