package chrono

import "time"

// API is what anything that compares against "now" should depend on, overdue
// evaluation in particular.
type API interface {
	Now() time.Time
	Location() *time.Location
}

// StandardImpl reads the system clock in the local timezone of the machine.
//
// The platforms report due dates in the school's timezone, which is assumed
// to be the same as the machine running the scrape.
type StandardImpl struct {
	location *time.Location
}

func NewStandardImpl() StandardImpl {
	return StandardImpl{location: time.Local}
}

func (s StandardImpl) Now() time.Time {
	return time.Now().In(s.location)
}

func (s StandardImpl) Location() *time.Location {
	return s.location
}

// Fixed always returns the same instant.
type Fixed struct {
	At time.Time
}

func (f Fixed) Now() time.Time {
	return f.At
}

func (f Fixed) Location() *time.Location {
	return f.At.Location()
}
