package changelog

import (
	"fmt"
	"time"
)

// DateParseError reports a change record whose date is not YYYY-MM-DD.
type DateParseError struct {
	Date string
	Err  error
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("unable to parse date %q: %v", e.Date, e.Err)
}

func (e *DateParseError) Unwrap() error {
	return e.Err
}

// looseDateLayout accepts months and days without zero padding.
const looseDateLayout = "2006-1-2"

// ParseDate parses a change date as a calendar day in UTC. Month and day may
// omit zero padding.
func ParseDate(raw string) (time.Time, error) {
	day, err := time.Parse(DateLayout, raw)
	if err == nil {
		return day, nil
	}
	if loose, looseErr := time.Parse(looseDateLayout, raw); looseErr == nil {
		return loose, nil
	}
	return time.Time{}, &DateParseError{Date: raw, Err: err}
}

// SelectRecent keeps only changes dated on or after today minus numDays.
// The boundary day is inclusive. Changes with unparseable dates are dropped
// and returned as errors so the caller can log them.
func (c *Changelog) SelectRecent(numDays int, today time.Time) []error {
	cutoff := calendarDay(today).AddDate(0, 0, -numDays)

	var (
		recent  = make([]Change, 0, len(c.Changes))
		dropped []error
	)
	for _, change := range c.Changes {
		day, err := ParseDate(change.Date)
		if err != nil {
			dropped = append(dropped, err)
			continue
		}
		if !day.Before(cutoff) {
			recent = append(recent, change)
		}
	}
	c.Changes = recent
	return dropped
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
