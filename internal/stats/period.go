package stats

import (
	"time"
)

const dateLayout = "2006-01-02"

// DateRange is the caller supplied window. Zero values mean "today".
type DateRange struct {
	From time.Time
	To   time.Time
}

// Period is a half-open interval of whole UTC days: [Start, End).
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod normalises a DateRange into whole UTC days, including the
// entire To day.
func NewPeriod(r DateRange, now time.Time) (Period, error) {
	from, to := r.From, r.To
	if from.IsZero() {
		from = now
	}
	if to.IsZero() {
		to = now
	}
	start := startOfDay(from)
	end := startOfDay(to)
	if start.After(end) {
		return Period{}, ErrInvalidRange
	}
	return Period{Start: start, End: end.AddDate(0, 0, 1)}, nil
}

// Days returns the number of calendar days covered.
func (p Period) Days() int {
	return int(p.End.Sub(p.Start).Hours() / 24)
}

// LastDays keeps at most the trailing n days of the period.
func (p Period) LastDays(n int) Period {
	if n <= 0 || p.Days() <= n {
		return p
	}
	return Period{Start: p.End.AddDate(0, 0, -n), End: p.End}
}

// FromLabel is the first day as YYYY-MM-DD.
func (p Period) FromLabel() string { return p.Start.Format(dateLayout) }

// ToLabel is the last included day as YYYY-MM-DD.
func (p Period) ToLabel() string { return p.End.AddDate(0, 0, -1).Format(dateLayout) }

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
