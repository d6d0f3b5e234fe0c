package billing

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		allowed  bool
	}{
		{StatusPlaced, StatusPreparing, true},
		{StatusPreparing, StatusReady, true},
		{StatusReady, StatusCompleted, true},
		{StatusPlaced, StatusCompleted, true},
		{StatusPreparing, StatusPlaced, false},
		{StatusCompleted, StatusReady, false},
		{StatusPlaced, StatusPlaced, false},
		{"bogus", StatusReady, false},
		{StatusPlaced, "bogus", false},
	}

	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.allowed {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}

func TestIsValidStatus(t *testing.T) {
	for _, s := range []string{StatusPlaced, StatusPreparing, StatusReady, StatusCompleted} {
		if !IsValidStatus(s) {
			t.Fatalf("expected %s to be valid", s)
		}
	}
	if IsValidStatus("PLACED") {
		t.Fatalf("statuses are lowercase")
	}
}
