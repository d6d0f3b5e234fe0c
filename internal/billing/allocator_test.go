package billing

import "testing"

func TestNextSplitSuffix(t *testing.T) {
	cases := []struct {
		name     string
		used     []int
		expected int
	}{
		{name: "empty set starts at one", used: nil, expected: 1},
		{name: "gap is reclaimed first", used: []int{1, 3}, expected: 2},
		{name: "dense set extends", used: []int{1, 2, 3}, expected: 4},
		{name: "leading gap", used: []int{2, 3}, expected: 1},
		{name: "unordered input", used: []int{4, 1, 3}, expected: 2},
		{name: "duplicates ignored", used: []int{1, 1, 2}, expected: 3},
		{name: "non-positive ignored", used: []int{0, -2, 1}, expected: 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NextSplitSuffix(tc.used); got != tc.expected {
				t.Fatalf("expected %d, got %d", tc.expected, got)
			}
		})
	}
}

func TestParseSplitSuffix(t *testing.T) {
	cases := []struct {
		name    string
		base    string
		tableID string
		want    int
		ok      bool
	}{
		{name: "simple split", base: "5", tableID: "5.2", want: 2, ok: true},
		{name: "base itself is not a split", base: "5", tableID: "5", ok: false},
		{name: "other table", base: "5", tableID: "6.1", ok: false},
		{name: "longer base prefix", base: "5", tableID: "51.1", ok: false},
		{name: "zero suffix rejected", base: "5", tableID: "5.0", ok: false},
		{name: "negative rejected", base: "5", tableID: "5.-1", ok: false},
		{name: "non-numeric rejected", base: "5", tableID: "5.x", ok: false},
		{name: "dotted base", base: "A1", tableID: "A1.7", want: 7, ok: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseSplitSuffix(tc.base, tc.tableID)
			if ok != tc.ok {
				t.Fatalf("expected ok=%v, got %v", tc.ok, ok)
			}
			if ok && got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestUsedSuffixes(t *testing.T) {
	got := UsedSuffixes("5", []string{"5.1", "5.3", "5", "6.2", "5.3", "5.bad"})
	if len(got) != 2 {
		t.Fatalf("expected 2 suffixes, got %v", got)
	}
	set := map[int]bool{}
	for _, n := range got {
		set[n] = true
	}
	if !set[1] || !set[3] {
		t.Fatalf("expected suffixes {1,3}, got %v", got)
	}
}

func TestSplitTableID(t *testing.T) {
	if got := SplitTableID("5", 2); got != "5.2" {
		t.Fatalf("expected 5.2, got %s", got)
	}
}

func TestAllocatorFirstFitSequence(t *testing.T) {
	// Claims for table "5" as new sessions arrive and one slot frees up.
	claims := []string{}
	next := func() string {
		k := NextSplitSuffix(UsedSuffixes("5", claims))
		id := SplitTableID("5", k)
		claims = append(claims, id)
		return id
	}

	if got := next(); got != "5.1" {
		t.Fatalf("first allocation: expected 5.1, got %s", got)
	}
	if got := next(); got != "5.2" {
		t.Fatalf("second allocation: expected 5.2, got %s", got)
	}
	if got := next(); got != "5.3" {
		t.Fatalf("third allocation: expected 5.3, got %s", got)
	}

	// Slot 2 released by expiry sweep; the next session reclaims it.
	claims = []string{"5.1", "5.3"}
	if got := next(); got != "5.2" {
		t.Fatalf("reclaim: expected 5.2, got %s", got)
	}
}
