// Package month provides the calendar month value type that indexes all valuation state.
//
// Market data is reported as month-end figures. A figure observed at any point during a month is
// treated as effective on the first day of the following month, so every transaction and price is
// normalized to the first of a month before it is compared with anything else.
package month

import (
	"encoding/json"
	"fmt"
	"iter"
	"time"
)

// Format is the storage and display format of a Month (always the first day).
const Format = "2006-01-02"

const readFormat = "2006-1-2"

// Month identifies a calendar month. The zero value is not a valid month.
type Month struct {
	y int
	m time.Month
}

// Of returns the month for the given year and month, normalizing overflow (e.g. month 13).
func Of(year int, m time.Month) Month {
	t := time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
	return Month{t.Year(), t.Month()}
}

// Normalize maps a date to its reporting month: the first of the next month, unless the date is
// already the first of a month.
func Normalize(t time.Time) Month {
	y, m, d := t.Date()
	if d == 1 {
		return Of(y, m)
	}
	return Of(y, m+1)
}

// Today returns the reporting month of the current date.
func Today() Month { return Normalize(time.Now().UTC()) }

// Year returns the year of the month.
func (m Month) Year() int { return m.y }

// Month returns the calendar month.
func (m Month) Month() time.Month { return m.m }

// IsZero reports whether m is the zero value.
func (m Month) IsZero() bool { return m.y == 0 && m.m == 0 }

// Time returns the first day of the month at midnight UTC.
func (m Month) Time() time.Time { return time.Date(m.y, m.m, 1, 0, 0, 0, 0, time.UTC) }

// Next returns the following month.
func (m Month) Next() Month { return Of(m.y, m.m+1) }

// Previous returns the preceding month.
func (m Month) Previous() Month { return Of(m.y, m.m-1) }

// Add returns the month n steps after m (n may be negative).
func (m Month) Add(n int) Month { return Of(m.y, m.m+time.Month(n)) }

// Before reports whether m is strictly before x.
func (m Month) Before(x Month) bool { return Span(m, x) > 0 }

// After reports whether m is strictly after x.
func (m Month) After(x Month) bool { return Span(m, x) < 0 }

// Equal reports whether m and x are the same month.
func (m Month) Equal(x Month) bool { return m == x }

// Compare returns -1, 0 or +1 depending on whether m is before, equal or after x.
func (m Month) Compare(x Month) int {
	switch s := Span(m, x); {
	case s > 0:
		return -1
	case s < 0:
		return 1
	}
	return 0
}

// String formats the month as its first day, e.g. 2024-03-01.
func (m Month) String() string { return m.Time().Format(Format) }

// Span returns the number of month steps from a to b. It is negative when b is before a.
func Span(a, b Month) int {
	return (b.y-a.y)*12 + int(b.m) - int(a.m)
}

// Min returns the earlier of a and b.
func Min(a, b Month) Month {
	if b.Before(a) {
		return b
	}
	return a
}

// Max returns the later of a and b.
func Max(a, b Month) Month {
	if b.After(a) {
		return b
	}
	return a
}

// Range iterates over every month from `from` to `to`, both inclusive.
// Nothing is yielded when to is before from.
func Range(from, to Month) iter.Seq[Month] {
	return func(yield func(Month) bool) {
		for m := from; !m.After(to); m = m.Next() {
			if !yield(m) {
				return
			}
		}
	}
}

// Parse parses a date string and returns its month. The date must be the first of a month.
func Parse(str string) (Month, error) {
	t, err := time.Parse(readFormat, str)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q want format %q: %w", str, Format, err)
	}
	if t.Day() != 1 {
		return Month{}, fmt.Errorf("invalid month %q: not the first day of a month", str)
	}
	return Of(t.Year(), t.Month()), nil
}

// MustParse is like Parse but panics on error.
func MustParse(str string) Month {
	m, err := Parse(str)
	if err != nil {
		panic(err.Error())
	}
	return m
}

// MarshalJSON implements json.Marshaler.
func (m Month) MarshalJSON() ([]byte, error) { return json.Marshal(m.String()) }

// UnmarshalJSON implements json.Unmarshaler.
func (m *Month) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
