package schedule

import (
	"strings"
	"time"
)

// DaySet is a weekday bitmask; bit i corresponds to time.Weekday(i), so bit
// 0 is Sunday. The zero value is the empty set.
type DaySet uint8

const AllDays DaySet = 0x7f

func DaysOf(days ...time.Weekday) DaySet {
	var s DaySet
	for _, d := range days {
		s = s.With(d)
	}
	return s
}

func (s DaySet) With(d time.Weekday) DaySet { return s | 1<<uint(d) }
func (s DaySet) Has(d time.Weekday) bool    { return s&(1<<uint(d)) != 0 }
func (s DaySet) Union(o DaySet) DaySet      { return s | o }
func (s DaySet) Empty() bool                { return s&AllDays == 0 }

// Shift moves every member of the set by delta calendar days, wrapping
// around the week. Any delta is accepted; it is reduced mod 7.
func (s DaySet) Shift(delta int) DaySet {
	delta = ((delta % 7) + 7) % 7
	var out DaySet
	for d := 0; d < 7; d++ {
		if s&(1<<uint(d)) != 0 {
			out |= 1 << uint((d+delta)%7)
		}
	}
	return out
}

func (s DaySet) Weekdays() []time.Weekday {
	var out []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

func (s DaySet) String() string {
	var parts []string
	for _, d := range s.Weekdays() {
		parts = append(parts, d.String()[:3])
	}
	return strings.Join(parts, ",")
}

// ParseDay maps a three-letter (or full) English day name to a weekday.
func ParseDay(name string) (time.Weekday, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sun", "sunday":
		return time.Sunday, true
	case "mon", "monday":
		return time.Monday, true
	case "tue", "tuesday":
		return time.Tuesday, true
	case "wed", "wednesday":
		return time.Wednesday, true
	case "thu", "thursday":
		return time.Thursday, true
	case "fri", "friday":
		return time.Friday, true
	case "sat", "saturday":
		return time.Saturday, true
	}
	return 0, false
}
