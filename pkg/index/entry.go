// Package index holds the data model shared by every stage of the search
// pipeline: normalized keys, symbol entries, immutable shards and the
// partitioning scheme that maps a key onto the shard that owns it.
package index

import "strings"

// Key is a normalized query key. The empty Key means "no query".
type Key string

// ShardKey names one shard of the index, e.g. "s" or "functions_8".
type ShardKey string

// Kind tags what sort of symbol an Entry points at.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindFunction
	KindType
	KindVariable
	KindMacro
	KindEnum
	KindEnumValue
	KindTypedef
	KindNamespace
	KindFile
	KindGroup
	KindPage
)

var kindNames = [...]string{
	KindUnknown:   "unknown",
	KindFunction:  "function",
	KindType:      "type",
	KindVariable:  "variable",
	KindMacro:     "macro",
	KindEnum:      "enum",
	KindEnumValue: "enumvalue",
	KindTypedef:   "typedef",
	KindNamespace: "namespace",
	KindFile:      "file",
	KindGroup:     "group",
	KindPage:      "page",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[KindUnknown]
}

// ParseKind maps a kind name back to its Kind. Unrecognised names map to
// KindUnknown instead of failing, since shards come from an external generator.
func ParseKind(name string) Kind {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == name {
			return Kind(k)
		}
	}
	return KindUnknown
}

// Entry is one indexable occurrence of a symbol.
// A display name may map to many entries (overloads, same name in other scopes).
type Entry struct {
	DisplayName string
	Scope       string
	Anchor      string
	Kind        Kind
	Signature   string

	// Order is the emission position inside the owning shard, assigned when
	// the shard is built. It is the final ranking tie-break.
	Order int
}

// GroupKey identifies the heading an entry is displayed under; true overloads
// share a group key but keep distinct anchors.
func (e Entry) GroupKey() string {
	return strings.ToLower(e.DisplayName) + "\x00" + e.Scope
}

// QualifiedName joins scope and display name the way C++ documentation does.
func (e Entry) QualifiedName() string {
	if e.Scope == "" {
		return e.DisplayName
	}
	return e.Scope + "::" + e.DisplayName
}
