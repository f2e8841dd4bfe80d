package utils

// AnchorFilter drops repeated anchors from an ordered result stream.
// It is not safe for concurrent use; create one per ranking pass.
type AnchorFilter struct {
	seen map[string]struct{}
}

// NewAnchorFilter creates an empty filter sized for n anchors.
func NewAnchorFilter(n int) *AnchorFilter {
	return &AnchorFilter{seen: make(map[string]struct{}, n)}
}

// ShouldInclude reports whether anchor is seen for the first time.
// Returns false for every later occurrence.
func (f *AnchorFilter) ShouldInclude(anchor string) bool {
	if _, dup := f.seen[anchor]; dup {
		return false
	}
	f.seen[anchor] = struct{}{}
	return true
}
