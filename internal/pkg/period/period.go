package period

import (
	"fmt"
	"time"
)

// Frequency is a contribution/repayment cadence.
type Frequency string

const (
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
)

// PeriodsPerYear returns the annualization divisor for interest rates.
func (f Frequency) PeriodsPerYear() int {
	if f == Weekly {
		return 52
	}
	return 12
}

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	return f == Weekly || f == Monthly
}

// Date is a civil date (no time-of-day). The zero Date is invalid.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf truncates t to a civil date in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Today returns the current civil date in loc.
func Today(loc *time.Location) Date {
	return DateOf(time.Now().In(loc))
}

// Time returns midnight of the date in loc.
func (d Date) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// IsZero reports whether d is the zero date.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// AddDays returns the date n days later (or earlier for negative n).
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time(time.UTC).AddDate(0, 0, n))
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return d.Time(time.UTC).Before(other.Time(time.UTC))
}

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool {
	return other.Before(d)
}

// Equal reports whether the two dates are the same day.
func (d Date) Equal(other Date) bool {
	return d == other
}

// DaysSince returns the number of whole days from other to d.
func (d Date) DaysSince(other Date) int {
	return int(d.Time(time.UTC).Sub(other.Time(time.UTC)) / (24 * time.Hour))
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q, use YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

// Advance moves the date forward by n periods of the given frequency.
// Monthly arithmetic follows time.AddDate semantics (Jan 31 + 1 month
// normalizes to Mar 2/3); anchors should prefer days 1..28.
func Advance(d Date, f Frequency, n int) Date {
	t := d.Time(time.UTC)
	if f == Weekly {
		return DateOf(t.AddDate(0, 0, 7*n))
	}
	return DateOf(t.AddDate(0, n, 0))
}

// PeriodIndex returns the zero-based period containing the given date for a
// cadence starting at start, or -1 when the date precedes start.
func PeriodIndex(start, d Date, f Frequency) int {
	if d.Before(start) {
		return -1
	}
	idx := 0
	for !d.Before(Advance(start, f, idx+1)) {
		idx++
	}
	return idx
}
