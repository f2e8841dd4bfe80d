package index

import (
	"strings"
	"unicode/utf8"
)

// DefaultMinLength is the shortest normalized key accepted by default.
const DefaultMinLength = 1

// Normalizer canonicalizes raw user input into a lookup Key.
type Normalizer struct {
	MinLength int
}

// NewNormalizer returns a Normalizer rejecting keys shorter than minLength runes.
// Values below 1 fall back to DefaultMinLength.
func NewNormalizer(minLength int) Normalizer {
	if minLength < 1 {
		minLength = DefaultMinLength
	}
	return Normalizer{MinLength: minLength}
}

// Normalize lowercases raw, trims it and collapses internal whitespace runs
// into a single space. Inputs that end up shorter than MinLength yield the
// empty Key, which callers treat as "no query".
func (n Normalizer) Normalize(raw string) Key {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return ""
	}
	key := strings.ToLower(strings.Join(fields, " "))

	minLength := n.MinLength
	if minLength < 1 {
		minLength = DefaultMinLength
	}
	if utf8.RuneCountInString(key) < minLength {
		return ""
	}
	return Key(key)
}

// Normalize applies a default Normalizer.
func Normalize(raw string) Key {
	return Normalizer{MinLength: DefaultMinLength}.Normalize(raw)
}
