package money

import "testing"

func TestFormat(t *testing.T) {
	cases := map[int]string{
		0:      "€0.00",
		5:      "€0.05",
		1000:   "€10.00",
		123456: "€1234.56",
	}
	for cents, want := range cases {
		if got := Format(cents); got != want {
			t.Fatalf("Format(%d) = %q, want %q", cents, got, want)
		}
	}
}

func TestPercentOf(t *testing.T) {
	cases := []struct {
		cents, percent, want int
	}{
		{cents: 5000, percent: 150, want: 7500},
		{cents: 2000, percent: 10, want: 200},
		{cents: 999, percent: 15, want: 150}, // 149.85 rounds up
		{cents: 333, percent: 50, want: 167}, // 166.5 rounds away from zero
		{cents: 0, percent: 20, want: 0},
	}
	for _, tc := range cases {
		if got := PercentOf(tc.cents, tc.percent); got != tc.want {
			t.Fatalf("PercentOf(%d, %d) = %d, want %d", tc.cents, tc.percent, got, tc.want)
		}
	}
}

func TestParse(t *testing.T) {
	cases := map[string]int{
		"10":     1000,
		"10.5":   1050,
		"€15.00": 1500,
		" 0.01 ": 1,
	}
	for in, want := range cases {
		got, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q) unexpected error: %v", in, err)
		}
		if got != want {
			t.Fatalf("Parse(%q) = %d, want %d", in, got, want)
		}
	}
	for _, bad := range []string{"", "abc", "1.005"} {
		if _, err := Parse(bad); err == nil {
			t.Fatalf("Parse(%q) expected error", bad)
		}
	}
}
