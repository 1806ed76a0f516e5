package stats

import (
	"errors"
	"fmt"
	"time"
)

// Period is a statistics bucket size.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

var (
	ErrInvalidPeriod    = errors.New("invalid period")
	ErrInvalidDateRange = errors.New("invalid date range")
)

// ParsePeriod validates a period tag.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
}

// TimestampLayout is the wire format of window bounds, always in UTC.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Window is the closed interval [Start, End] a periodic query covers.
// StartLabel and EndLabel are what the caller sees in the result; explicit
// bounds are echoed verbatim.
type Window struct {
	Start      time.Time
	End        time.Time
	StartLabel string
	EndLabel   string
}

// CalculateDateRange resolves the window of a periodic query. When both
// start and end are given they are used as-is (no ordering check). Otherwise
// the window is the current day, Monday-start week or calendar month of now
// in now's location.
func CalculateDateRange(period Period, start, end string, now time.Time) (Window, error) {
	if start != "" && end != "" {
		s, err := parseBound(start)
		if err != nil {
			return Window{}, err
		}
		e, err := parseBound(end)
		if err != nil {
			return Window{}, err
		}
		return Window{Start: s, End: e, StartLabel: start, EndLabel: end}, nil
	}

	loc := now.Location()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	var from, to time.Time
	switch period {
	case PeriodDaily:
		from = midnight
		to = from.Add(24*time.Hour - time.Millisecond)
	case PeriodWeekly:
		// Sunday is 0; it belongs to the week that started six days earlier.
		offset := (int(now.Weekday()) + 6) % 7
		from = midnight.AddDate(0, 0, -offset)
		to = from.Add(7*24*time.Hour - time.Millisecond)
	case PeriodMonthly:
		from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		// Day 0 of next month is the last day of this one.
		to = time.Date(now.Year(), now.Month()+1, 0, 23, 59, 59, int(999*time.Millisecond), loc)
	default:
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}

	return Window{
		Start:      from,
		End:        to,
		StartLabel: from.UTC().Format(TimestampLayout),
		EndLabel:   to.UTC().Format(TimestampLayout),
	}, nil
}

func parseBound(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateRange, s)
}
