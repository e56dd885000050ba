// Package window restricts transactions to a single calendar month.
package window

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// Month is a target calendar month.
type Month struct {
	Year  int
	Month time.Month
}

// Of returns the month containing t, in t's location.
func Of(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// Parse reads a "YYYY-MM" month. An empty string yields the month of ref.
func Parse(s string, ref time.Time) (Month, error) {
	if s == "" {
		return Of(ref), nil
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("parsing month %q: %w", s, err)
	}
	return Of(t), nil
}

// Contains reports whether d falls in the same year and month.
func (m Month) Contains(d civil.Date) bool {
	return d.Year == m.Year && d.Month == m.Month
}

// First returns the first day of the month.
func (m Month) First() civil.Date {
	return civil.Date{Year: m.Year, Month: m.Month, Day: 1}
}

// Last returns the last day of the month.
func (m Month) Last() civil.Date {
	return civil.DateOf(time.Date(m.Year, m.Month+1, 0, 0, 0, 0, 0, time.UTC))
}

// Since returns midnight of the first day in loc, for mailbox searches.
func (m Month) Since(loc *time.Location) time.Time {
	return m.First().In(loc)
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}
