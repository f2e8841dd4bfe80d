package index

import (
	"sort"
	"strings"

	"github.com/tchap/go-patricia/v2/patricia"
)

// Shard maps normalized tokens to the entries the generator emitted for them.
// A Shard is built once by a decoder and treated as read-only afterwards, so a
// loaded Shard is safe for concurrent readers.
type Shard struct {
	key     ShardKey
	trie    *patricia.Trie
	tokens  int
	entries int
}

// NewShard creates an empty shard to be filled with Add.
func NewShard(key ShardKey) *Shard {
	return &Shard{
		key:  key,
		trie: patricia.NewTrie(),
	}
}

// Key returns the shard key this shard was built for.
func (s *Shard) Key() ShardKey { return s.key }

// Tokens returns the number of distinct tokens in the shard.
func (s *Shard) Tokens() int { return s.tokens }

// Len returns the number of entries in the shard.
func (s *Shard) Len() int { return s.entries }

// Add appends entries under token, keeping emission order. The token is
// lowercased so lookups by normalized keys stay case-insensitive.
// Add must only be called while the shard is being built.
func (s *Shard) Add(token string, entries ...Entry) {
	token = strings.ToLower(token)
	if token == "" || len(entries) == 0 {
		return
	}

	for i := range entries {
		entries[i].Order = s.entries
		s.entries++
	}

	prefix := patricia.Prefix(token)
	if existing := s.trie.Get(prefix); existing != nil {
		merged := append(existing.([]Entry), entries...)
		s.trie.Set(prefix, merged)
		return
	}
	s.trie.Insert(prefix, append([]Entry(nil), entries...))
	s.tokens++
}

// Prefix returns every entry whose token starts with key, in emission order.
// An empty key matches nothing.
func (s *Shard) Prefix(key Key) []Entry {
	if key == "" || s == nil {
		return nil
	}

	var matched []Entry
	_ = s.trie.VisitSubtree(patricia.Prefix(key), func(_ patricia.Prefix, item patricia.Item) error {
		matched = append(matched, item.([]Entry)...)
		return nil
	})

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Order < matched[j].Order
	})
	return matched
}

// Get returns the entries stored under exactly token.
func (s *Shard) Get(token string) []Entry {
	item := s.trie.Get(patricia.Prefix(strings.ToLower(token)))
	if item == nil {
		return nil
	}
	return append([]Entry(nil), item.([]Entry)...)
}

// Visit calls fn for every token in the shard in emission order of its first
// entry, which is the order an encoder must write them back out.
func (s *Shard) Visit(fn func(token string, entries []Entry) error) error {
	type tokenEntries struct {
		token   string
		entries []Entry
	}
	all := make([]tokenEntries, 0, s.tokens)
	_ = s.trie.Visit(func(p patricia.Prefix, item patricia.Item) error {
		all = append(all, tokenEntries{token: string(p), entries: item.([]Entry)})
		return nil
	})
	sort.Slice(all, func(i, j int) bool {
		return all[i].entries[0].Order < all[j].entries[0].Order
	})

	for _, te := range all {
		if err := fn(te.token, te.entries); err != nil {
			return err
		}
	}
	return nil
}
