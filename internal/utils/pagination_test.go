package utils

import "testing"

func TestAtoiDefault_PageQueryValues(t *testing.T) {
	cases := []struct {
		name  string
		query string
		def   int
		want  int
	}{
		{"page omitted", "", 1, 1},
		{"page_size omitted", "", 20, 20},
		{"explicit page", "3", 1, 3},
		{"explicit page_size", "50", 20, 50},
		{"zero page is returned for clamping", "0", 1, 0},
		{"negative page_size is returned for clamping", "-5", 20, -5},
		{"leading zeros", "007", 1, 7},
		{"word", "last", 1, 1},
		{"float", "2.5", 20, 20},
		{"padded", " 2", 1, 1},
		{"overflow", "99999999999999999999", 20, 20},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := AtoiDefault(tc.query, tc.def); got != tc.want {
				t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.query, tc.def, got, tc.want)
			}
		})
	}
}
