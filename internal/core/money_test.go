package core

import "testing"

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"8500", 850000, true},
		{"0", 0, true},
		{".5", 50, true},
		{"-1", 0, false},
		{"+1", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{".", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyFormat(t *testing.T) {
	cases := map[int64]string{
		850000: "8500.00",
		1234:   "12.34",
		5:      "0.05",
		0:      "0.00",
		-250:   "-2.50",
	}
	for cents, want := range cases {
		if got := (Money{Cents: cents}).Format(); got != want {
			t.Fatalf("Format(%d) = %q, want %q", cents, got, want)
		}
	}
}

func TestSummarize(t *testing.T) {
	entries := []LedgerEntry{
		{Label: "Auto-debit: Rent", Amount: Money{Cents: 850000}},
		{Label: "Manual debit: Gym", Amount: Money{Cents: 30000}},
		{Label: "Manual debit: Gym", Amount: Money{Cents: 30000}},
		{Label: "Auto-debit: Internet", Amount: Money{Cents: 60000}},
	}
	s := Summarize(2025, 11, entries)
	if s.Total.Cents != 970000 {
		t.Fatalf("unexpected total %d", s.Total.Cents)
	}
	if len(s.ByLabel) != 3 {
		t.Fatalf("expected 3 labels, got %d", len(s.ByLabel))
	}
	if s.ByLabel[0].Label != "Auto-debit: Rent" {
		t.Fatalf("largest label should come first, got %q", s.ByLabel[0].Label)
	}
	if s.ByLabel[1].Label != "Auto-debit: Internet" || s.ByLabel[2].Label != "Manual debit: Gym" {
		t.Fatalf("ties should order by label: %+v", s.ByLabel)
	}
	if s.ByLabel[2].Count != 2 {
		t.Fatalf("expected gym count 2, got %d", s.ByLabel[2].Count)
	}
}
