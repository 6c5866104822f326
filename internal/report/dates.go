package report

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DateLayout is the calendar date format accepted for report boundaries.
	DateLayout = "2006-01-02"

	MinutesPerDay = 1440
)

// ErrInvalidDateFormat is returned when a report boundary is not a calendar date.
var ErrInvalidDateFormat = errors.New("invalid date format")

// DateError describes which boundary failed to parse.
type DateError struct {
	Field string
	Value string
	Err   error
}

func (e *DateError) Error() string {
	return fmt.Sprintf("%s: %q is not a calendar date (want YYYY-MM-DD): %v", e.Field, e.Value, e.Err)
}

func (e *DateError) Unwrap() error { return ErrInvalidDateFormat }

// ParseDate parses a YYYY-MM-DD string as midnight UTC.
func ParseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, &DateError{Field: field, Value: value, Err: err}
	}
	return t, nil
}

// MinutesBetween returns the whole minutes elapsed between midnight of start
// and midnight of end. The result is negative when end precedes start.
func MinutesBetween(start, end string) (int64, error) {
	from, err := ParseDate("date_start", start)
	if err != nil {
		return 0, err
	}
	to, err := ParseDate("date_end", end)
	if err != nil {
		return 0, err
	}
	return int64(to.Sub(from) / time.Minute), nil
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
