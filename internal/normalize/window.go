// Package normalize turns extraction results into canonical deals: validity
// windows, cleaned names, identity and per-batch deduplication.
package normalize

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/grocery-etl/internal/model"
)

// WindowPolicy names a default validity window for sources that publish none.
type WindowPolicy string

const (
	// WindowWeekly is the Sunday-to-Saturday week containing today.
	WindowWeekly WindowPolicy = "weekly"
	// WindowFlash is a one-day window starting today.
	WindowFlash WindowPolicy = "flash"
)

// Window is an inclusive calendar-date range.
type Window struct {
	From time.Time
	To   time.Time
}

// Days returns the number of calendar days covered, inclusive.
func (w Window) Days() int {
	return int(w.To.Sub(w.From).Hours()/24) + 1
}

// CurrentWeek returns the most recent Sunday on or before today through the
// following Saturday.
func CurrentWeek(today time.Time) Window {
	day := model.Date(today)
	from := day.AddDate(0, 0, -int(day.Weekday()))
	return Window{From: from, To: from.AddDate(0, 0, 6)}
}

// Flash returns today through tomorrow.
func Flash(today time.Time) Window {
	day := model.Date(today)
	return Window{From: day, To: day.AddDate(0, 0, 1)}
}

// For resolves a policy against today.
func (p WindowPolicy) For(today time.Time) (Window, error) {
	switch p {
	case WindowWeekly, "":
		return CurrentWeek(today), nil
	case WindowFlash:
		return Flash(today), nil
	default:
		return Window{}, eris.Errorf("normalize: unknown window policy %q", string(p))
	}
}
