package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPeriod is returned for a period kind outside the closed set.
var ErrInvalidPeriod = errors.New("invalid budget period")

const day = 24 * time.Hour

// Window is a half-open [Start, End) range covering one instance of a period.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Days returns the whole number of days the window spans.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start) / day)
}

// Equal reports whether both bounds match.
func (w Window) Equal(o Window) bool {
	return w.Start.Equal(o.Start) && w.End.Equal(o.End)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.DateOnly), w.End.Format(time.DateOnly))
}

// PeriodWindow returns the window of the given period that contains ref.
// Bounds are midnight UTC; weeks start on Monday.
func PeriodWindow(period BudgetPeriod, ref time.Time) (Window, error) {
	ref = ref.UTC()
	y, m, d := ref.Date()

	var start, end time.Time
	switch period {
	case PeriodDaily:
		start = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 0, 1)
	case PeriodWeekly:
		offset := (int(ref.Weekday()) + 6) % 7
		start = time.Date(y, m, d-offset, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 0, 7)
	case PeriodMonthly:
		start = time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
		// time.Date normalises month 13 into January of the next year.
		end = time.Date(y, m+1, 1, 0, 0, 0, 0, time.UTC)
	case PeriodQuarterly:
		first := time.Month((int(m)-1)/3*3 + 1)
		start = time.Date(y, first, 1, 0, 0, 0, 0, time.UTC)
		end = time.Date(y, first+3, 1, 0, 0, 0, 0, time.UTC)
	case PeriodAnnually:
		start = time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
		end = time.Date(y+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
	return Window{Start: start, End: end}, nil
}
