package utils

// CreateRankList returns 1-based ranks for count items that are already
// sorted best first.
func CreateRankList(count int) []uint16 {
	if count <= 0 {
		return []uint16{}
	}
	ranks := make([]uint16, count)
	for i := range ranks {
		ranks[i] = uint16(min(i+1, 0xffff))
	}
	return ranks
}
