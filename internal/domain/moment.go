package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Moment is a calendar day plus a time of day, in the store's canonical
// string forms (YYYYMMDD and HH:MM). Both parts are zero-padded, so
// lexicographic order is chronological order.
type Moment struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// Compare returns -1, 0 or 1 as m sorts before, equal to or after other.
func (m Moment) Compare(other Moment) int {
	if c := strings.Compare(m.Date, other.Date); c != 0 {
		return c
	}
	return strings.Compare(m.Time, other.Time)
}

func (m Moment) Before(other Moment) bool {
	return m.Compare(other) < 0
}

func (m Moment) String() string {
	return m.Date + " " + m.Time
}

var (
	dateRe = regexp.MustCompile(`^\d{8}$`)
	timeRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

// Validate rejects non-canonical date/time strings. Malformed moments would
// break the lexicographic ordering the planner relies on.
func (m Moment) Validate() error {
	if !dateRe.MatchString(m.Date) {
		return fmt.Errorf("invalid date %q, want YYYYMMDD", m.Date)
	}
	if !timeRe.MatchString(m.Time) {
		return fmt.Errorf("invalid time %q, want HH:MM", m.Time)
	}
	return nil
}
