// Package window converts requested date ranges into the bounded fetch
// windows the upstream search API can serve reliably.
package window

import (
	"fmt"
	"time"

	"github.com/convista/convsync/pkg/types"
)

// DateFormat is the CLI and filter-clause date layout.
const DateFormat = "2006-01-02"

// Span is one bounded fetch window: a single calendar day restricted to a
// time-of-day interval.
type Span struct {
	Date time.Time
	From string // "HH:MM" inclusive
	To   string // "HH:MM" inclusive
}

// FilterClause renders the span as the upstream date-range filter fragment:
// date_range,YYYY-MM-DD,YYYY-MM-DD||HH:MM,HH:MM.
func (s Span) FilterClause() string {
	d := s.Date.Format(DateFormat)
	return fmt.Sprintf("date_range,%s,%s||%s,%s", d, d, s.From, s.To)
}

// HalfDays splits [start, stop] inclusive into two spans per calendar day,
// 00:00-12:00 and 12:01-23:59, in chronological order. The upstream search
// degrades above a per-request result threshold; half-day bisection keeps
// any single request small for typical traffic.
func HalfDays(start, stop time.Time) []Span {
	start = truncateDay(start)
	stop = truncateDay(stop)

	var spans []Span
	for d := start; !d.After(stop); d = d.AddDate(0, 0, 1) {
		spans = append(spans,
			Span{Date: d, From: "00:00", To: "12:00"},
			Span{Date: d, From: "12:01", To: "23:59"},
		)
	}
	return spans
}

// Run describes one resolved ETL window.
type Run struct {
	Start time.Time
	Stop  time.Time
	// Historical is set when an explicit start date was given. Historical
	// runs skip the trailing incremental re-fetch.
	Historical bool
}

// ResolveRun resolves optional CLI date arguments into a run window.
// A missing stop defaults to yesterday, the last fully-elapsed day; a
// missing start means a single-day daily-sync window equal to stop.
// A malformed date is fatal before any network activity.
func ResolveRun(startArg, stopArg string, now time.Time) (Run, error) {
	var run Run

	if stopArg != "" {
		stop, err := parseDate(stopArg)
		if err != nil {
			return Run{}, err
		}
		run.Stop = stop
	} else {
		run.Stop = truncateDay(now).AddDate(0, 0, -1)
	}

	if startArg != "" {
		start, err := parseDate(startArg)
		if err != nil {
			return Run{}, err
		}
		run.Start = start
		run.Historical = true
	} else {
		run.Start = run.Stop
	}

	if run.Start.After(run.Stop) {
		return Run{}, fmt.Errorf("start date %s after stop date %s: %w",
			run.Start.Format(DateFormat), run.Stop.Format(DateFormat), types.ErrBadDate)
	}
	return run, nil
}

// Incremental returns the trailing re-fetch window ending at stop.
func Incremental(stop time.Time, nDays int) Run {
	return Run{Start: truncateDay(stop).AddDate(0, 0, -nDays), Stop: truncateDay(stop)}
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, types.ErrBadDate)
	}
	return t, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
