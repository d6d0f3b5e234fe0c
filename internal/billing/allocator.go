package billing

import (
	"strconv"
	"strings"
)

// SplitTableID derives the split-bill identifier for slot k of a base table,
// e.g. ("5", 2) -> "5.2".
func SplitTableID(baseTableID string, k int) string {
	return baseTableID + "." + strconv.Itoa(k)
}

// ParseSplitSuffix extracts the positive integer suffix of a split-bill
// identifier derived from baseTableID. ("5", "5.3") -> (3, true).
func ParseSplitSuffix(baseTableID, tableID string) (int, bool) {
	prefix := baseTableID + "."
	if !strings.HasPrefix(tableID, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(tableID[len(prefix):])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// UsedSuffixes collects the split suffixes of baseTableID present in tableIDs.
// Non-matching and malformed identifiers are ignored.
func UsedSuffixes(baseTableID string, tableIDs []string) []int {
	used := make([]int, 0, len(tableIDs))
	seen := make(map[int]struct{}, len(tableIDs))
	for _, id := range tableIDs {
		n, ok := ParseSplitSuffix(baseTableID, id)
		if !ok {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		used = append(used, n)
	}
	return used
}

// NextSplitSuffix returns the first-fit slot: the smallest integer in
// [1, max(used)] not present in used, or max(used)+1 when the range is full.
// An empty set yields 1.
func NextSplitSuffix(used []int) int {
	if len(used) == 0 {
		return 1
	}
	set := make(map[int]struct{}, len(used))
	high := 0
	for _, n := range used {
		if n < 1 {
			continue
		}
		set[n] = struct{}{}
		if n > high {
			high = n
		}
	}
	for k := 1; k <= high; k++ {
		if _, taken := set[k]; !taken {
			return k
		}
	}
	return high + 1
}
