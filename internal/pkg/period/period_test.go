package period

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-03-15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Year != 2026 || d.Month != time.March || d.Day != 15 {
		t.Fatalf("parsed %v", d)
	}

	for _, bad := range []string{"", "15/03/2026", "2026-13-01", "yesterday"} {
		if _, err := ParseDate(bad); err == nil {
			t.Errorf("ParseDate(%q) accepted", bad)
		}
	}
}

func TestAdvance(t *testing.T) {
	tests := []struct {
		name string
		from string
		freq Frequency
		n    int
		want string
	}{
		{"one week", "2026-01-01", Weekly, 1, "2026-01-08"},
		{"four weeks cross month", "2026-01-15", Weekly, 4, "2026-02-12"},
		{"one month", "2026-01-01", Monthly, 1, "2026-02-01"},
		{"month end normalizes", "2026-01-31", Monthly, 1, "2026-03-03"},
		{"year boundary", "2025-12-10", Monthly, 2, "2026-02-10"},
		{"zero periods", "2026-05-05", Weekly, 0, "2026-05-05"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, err := ParseDate(tt.from)
			if err != nil {
				t.Fatal(err)
			}
			if got := Advance(from, tt.freq, tt.n); got.String() != tt.want {
				t.Fatalf("Advance(%s, %s, %d) = %s, want %s", tt.from, tt.freq, tt.n, got, tt.want)
			}
		})
	}
}

func TestPeriodIndex(t *testing.T) {
	start, _ := ParseDate("2026-01-01")

	tests := []struct {
		name string
		date string
		freq Frequency
		want int
	}{
		{"on start", "2026-01-01", Weekly, 0},
		{"within first week", "2026-01-07", Weekly, 0},
		{"second week boundary", "2026-01-08", Weekly, 1},
		{"third month", "2026-03-10", Monthly, 2},
		{"before start", "2025-12-31", Weekly, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDate(tt.date)
			if err != nil {
				t.Fatal(err)
			}
			if got := PeriodIndex(start, d, tt.freq); got != tt.want {
				t.Fatalf("PeriodIndex(%s) = %d, want %d", tt.date, got, tt.want)
			}
		})
	}
}

func TestDaysSince(t *testing.T) {
	a, _ := ParseDate("2026-02-01")
	b, _ := ParseDate("2026-01-25")
	if got := a.DaysSince(b); got != 7 {
		t.Fatalf("DaysSince = %d, want 7", got)
	}
	if got := b.DaysSince(a); got != -7 {
		t.Fatalf("reverse DaysSince = %d, want -7", got)
	}
	if got := a.DaysSince(a); got != 0 {
		t.Fatalf("same-day DaysSince = %d, want 0", got)
	}
}

func TestDateComparisons(t *testing.T) {
	a, _ := ParseDate("2026-06-01")
	b := a.AddDays(1)
	if !a.Before(b) || b.Before(a) {
		t.Fatal("Before is wrong")
	}
	if !b.After(a) || a.After(b) {
		t.Fatal("After is wrong")
	}
	if !a.Equal(a) || a.Equal(b) {
		t.Fatal("Equal is wrong")
	}
	if (Date{}).IsZero() != true || a.IsZero() {
		t.Fatal("IsZero is wrong")
	}
}

func TestFrequency(t *testing.T) {
	if Weekly.PeriodsPerYear() != 52 || Monthly.PeriodsPerYear() != 12 {
		t.Fatal("wrong annualization divisor")
	}
	if !Weekly.Valid() || !Monthly.Valid() || Frequency("DAILY").Valid() {
		t.Fatal("Valid is wrong")
	}
}
