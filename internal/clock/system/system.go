// Package system provides the wall clock used to decide what "today" is.
package system

import "time"

// Clock reports the current time in a fixed location.
type Clock struct {
	loc *time.Location
}

// New returns a clock in loc; nil means the host's local zone.
func New(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.Local
	}
	return &Clock{loc: loc}
}

// Load returns a clock for an IANA zone name; "" means the host's local zone.
func Load(name string) (*Clock, error) {
	if name == "" {
		return New(nil), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, err
	}
	return New(loc), nil
}

// Now returns the current time in the clock's location.
func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}
