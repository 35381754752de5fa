// Package window resolves the inclusive date range a run is responsible for,
// given a scheduling mode and the invocation time. All arithmetic is on UTC
// calendar days; "now" is injectable so every rule is testable against a
// frozen clock.
package window

import (
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"fedflow/pkg/contracts/domain"
)

// DefaultMaxSpanDays caps the window size to guard against accidental
// multi-year backfills.
const DefaultMaxSpanDays = 366

// InvalidWindowError reports an unusable date window. Window errors are fatal
// and abort a run before any I/O is attempted.
type InvalidWindowError struct {
	Mode   domain.Mode
	Reason string
}

func (e *InvalidWindowError) Error() string {
	return fmt.Sprintf("invalid window for mode %q: %s", e.Mode, e.Reason)
}

func invalidWindow(mode domain.Mode, format string, args ...interface{}) error {
	return &InvalidWindowError{Mode: mode, Reason: fmt.Sprintf(format, args...)}
}

// Request carries the caller's window parameters. Start/End, when both set,
// override the mode-derived window.
type Request struct {
	Mode         domain.Mode
	BackfillDays int
	Start        time.Time
	End          time.Time
}

// Resolver computes windows from requests.
type Resolver struct {
	clock       clock.PassiveClock
	maxSpanDays int
}

// NewResolver returns a resolver using the given clock. maxSpanDays <= 0
// falls back to DefaultMaxSpanDays.
func NewResolver(c clock.PassiveClock, maxSpanDays int) *Resolver {
	if c == nil {
		c = clock.RealClock{}
	}
	if maxSpanDays <= 0 {
		maxSpanDays = DefaultMaxSpanDays
	}
	return &Resolver{clock: c, maxSpanDays: maxSpanDays}
}

// Now returns the resolver's current time. Run identifiers derive from it so
// window resolution and run identity share one clock.
func (r *Resolver) Now() time.Time { return r.clock.Now() }

// Resolve computes the inclusive window for the request.
//
// daily resolves to yesterday alone; weekly to the last 7 complete days ending
// yesterday; monthly to the last 30 complete days ending yesterday; backfill
// to [today-N, yesterday]. An explicit Start/End pair overrides the mode and
// must satisfy Start <= End. Windows wider than the configured maximum are
// rejected.
func (r *Resolver) Resolve(req Request) (domain.Window, error) {
	mode := req.Mode
	if !mode.Valid() {
		return domain.Window{}, invalidWindow(mode, "unknown mode")
	}

	if !req.Start.IsZero() || !req.End.IsZero() {
		if req.Start.IsZero() || req.End.IsZero() {
			return domain.Window{}, invalidWindow(mode, "explicit range requires both start and end")
		}
		w := domain.Window{Start: day(req.Start), End: day(req.End)}
		return r.check(domain.ModeRange, w)
	}

	if mode == domain.ModeRange {
		return domain.Window{}, invalidWindow(mode, "range mode requires explicit start and end")
	}

	today := day(r.clock.Now())
	yesterday := today.AddDate(0, 0, -1)

	var w domain.Window
	switch mode {
	case domain.ModeDaily:
		w = domain.Window{Start: yesterday, End: yesterday}
	case domain.ModeWeekly:
		w = domain.Window{Start: yesterday.AddDate(0, 0, -6), End: yesterday}
	case domain.ModeMonthly:
		w = domain.Window{Start: yesterday.AddDate(0, 0, -29), End: yesterday}
	case domain.ModeBackfill:
		if req.BackfillDays < 1 {
			return domain.Window{}, invalidWindow(mode, "backfill days must be >= 1, got %d", req.BackfillDays)
		}
		w = domain.Window{Start: today.AddDate(0, 0, -req.BackfillDays), End: yesterday}
	}

	return r.check(mode, w)
}

// check applies the ordering and span rules common to all modes.
func (r *Resolver) check(mode domain.Mode, w domain.Window) (domain.Window, error) {
	if w.Start.After(w.End) {
		return domain.Window{}, invalidWindow(mode, "start %s is after end %s",
			w.Start.Format(domain.DateLayout), w.End.Format(domain.DateLayout))
	}
	if w.Days() > r.maxSpanDays {
		return domain.Window{}, invalidWindow(mode, "window spans %d days, maximum is %d", w.Days(), r.maxSpanDays)
	}
	return w, nil
}

// day truncates t to its UTC calendar day.
func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
