package handlers

import "testing"

func TestBaseTableID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"5", "5"},
		{"5.1", "5"},
		{"5.12", "5"},
		{"12.3", "12"},
		{"A7.2", "A7"},
		{".5", ".5"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := baseTableID(tc.in); got != tc.want {
			t.Errorf("baseTableID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
