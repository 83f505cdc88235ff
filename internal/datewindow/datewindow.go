// Package datewindow does calendar-date arithmetic for collaborator access
// expiration. Dates are timezone-naive YYYY-MM-DD values anchored at UTC
// midnight; comparisons are by calendar day, never by elapsed duration.
package datewindow

import (
	"fmt"
	"time"
)

// Layout is the wire and storage format of a Date.
const Layout = "2006-01-02"

// ExpirationDays approximates one year of tracked access.
const ExpirationDays = 365

// Date is a calendar day.
type Date struct {
	t time.Time
}

// New returns the given calendar day. Out-of-range values are normalized
// the way time.Date normalizes them (April 31 becomes May 1).
func New(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// Of returns the UTC calendar day containing t.
func Of(t time.Time) Date {
	u := t.UTC()
	return New(u.Year(), u.Month(), u.Day())
}

// Parse parses a YYYY-MM-DD string.
func Parse(s string) (Date, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.t.IsZero() {
		return ""
	}
	return d.t.Format(Layout)
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d.t.IsZero()
}

// AddDays returns d shifted by n calendar days, rolling over month and
// year boundaries.
func (d Date) AddDays(n int) Date {
	return Date{t: d.t.AddDate(0, 0, n)}
}

// DaysUntil returns the number of whole days from d to other. It is
// negative when other is before d.
func (d Date) DaysUntil(other Date) int {
	return int(other.t.Sub(d.t) / (24 * time.Hour))
}

// Equal reports whether d and other are the same calendar day.
func (d Date) Equal(other Date) bool {
	return d.t.Equal(other.t)
}

// Before reports whether d is an earlier day than other.
func (d Date) Before(other Date) bool {
	return d.t.Before(other.t)
}

// AddDays is the function form of Date.AddDays.
func AddDays(d Date, n int) Date {
	return d.AddDays(n)
}

// ExpirationDate stamps a new ticket: the event day plus ExpirationDays.
func ExpirationDate(eventDate Date) Date {
	return eventDate.AddDays(ExpirationDays)
}

// band is a half-open day range (low, high].
type band struct {
	low, high int
}

// notificationBands yield one reminder each at 21, 7 and 3 days out when
// the sweep runs once per calendar day.
var notificationBands = []band{
	{low: 20, high: 21},
	{low: 6, high: 7},
	{low: 2, high: 3},
}

// NotificationWindow reports whether an expiration reminder is due today.
func NotificationWindow(today, expiration Date) bool {
	remaining := today.DaysUntil(expiration)
	if remaining <= 0 {
		return false
	}
	for _, b := range notificationBands {
		if remaining > b.low && remaining <= b.high {
			return true
		}
	}
	return false
}
