// Package schedule holds the time-window math shared by the actuation
// engine and the schedule write API: minute-of-day windows, weekday sets and
// the local↔UTC normalization transform.
package schedule

import (
	"errors"
	"fmt"
)

const MinutesPerDay = 24 * 60

var (
	// ErrBadOffset rejects UTC offsets no real timezone can produce.
	ErrBadOffset = errors.New("utc offset out of range")
	// ErrBadTime rejects minute-of-day values outside [0, 1440).
	ErrBadTime = errors.New("time of day out of range")
)

// Window is a recurring time window at minute resolution. Start and End are
// minutes of day; Days are the calendar days the window starts on. A window
// with Start == End never fires.
type Window struct {
	Start int
	End   int
	Days  DaySet
}

// Normalize converts a window entered in local time to UTC. Each boundary is
// shifted by -offsetMinutes; the day set follows the shift. When the two
// boundaries land on different calendar-day deltas (a window hugging local
// midnight), the resulting day set is the union of both shifted sets so the
// window matches under either UTC representation.
func Normalize(w Window, offsetMinutes int) (Window, error) {
	return convert(w, -offsetMinutes)
}

// Denormalize converts a stored UTC window back to local time with the
// user's offset. It is the exact inverse of Normalize for windows whose two
// boundaries shifted by the same day delta; union-normalized windows come
// back as the union of their local representations.
func Denormalize(w Window, offsetMinutes int) (Window, error) {
	return convert(w, offsetMinutes)
}

func convert(w Window, by int) (Window, error) {
	if by < -MinutesPerDay || by > MinutesPerDay {
		return Window{}, fmt.Errorf("%w: %dmin", ErrBadOffset, by)
	}
	if w.Start < 0 || w.Start >= MinutesPerDay || w.End < 0 || w.End >= MinutesPerDay {
		return Window{}, fmt.Errorf("%w: start=%d end=%d", ErrBadTime, w.Start, w.End)
	}

	start, dStart := shiftMinute(w.Start, by)
	end, dEnd := shiftMinute(w.End, by)

	days := w.Days.Shift(dStart)
	if dEnd != dStart {
		days = days.Union(w.Days.Shift(dEnd))
	}
	return Window{Start: start, End: end, Days: days}, nil
}

// shiftMinute moves a minute-of-day by the given amount and returns the new
// minute-of-day plus the calendar-day delta of the move. Floored division
// keeps the delta correct for negative results; Shift reduces it mod 7, so
// even an absurd |offset| ≥ 24h cannot push it out of range.
func shiftMinute(m, by int) (minute, dayDelta int) {
	t := m + by
	dayDelta = t / MinutesPerDay
	if t%MinutesPerDay < 0 {
		dayDelta--
	}
	return t - dayDelta*MinutesPerDay, dayDelta
}
