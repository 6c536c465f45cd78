package logic

import "time"

// Weekday indexes the preset table, Monday first.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// WeekdayOf converts a time.Weekday (Sunday first) to a Monday-first index.
func WeekdayOf(d time.Weekday) Weekday {
	return Weekday((int(d) + 6) % 7)
}

// Preset is a default wake time of day.
type Preset struct {
	Hour   int
	Minute int
}

// Presets is the weekly default wake time table.
type Presets [7]Preset

// Window is the inclusive hour range in which manual adjustment is allowed.
type Window struct {
	MinHour int
	MaxHour int
}

// Contains reports whether hour lies inside the window.
func (w Window) Contains(hour int) bool {
	return hour >= w.MinHour && hour <= w.MaxHour
}

// DefaultFor returns the preset wake time on now's calendar date.
// The weekday used for the lookup is taken from now shifted back by dayShift,
// so the small hours still count toward the previous evening.
func DefaultFor(now time.Time, presets Presets, dayShift time.Duration) time.Time {
	p := presets[WeekdayOf(now.Add(-dayShift).Weekday())]
	y, m, d := now.Date()
	return time.Date(y, m, d, p.Hour, p.Minute, 0, 0, now.Location())
}

// Adjust moves t by one step in dir when t's hour lies inside window.
// Outside the window t is returned unchanged.
func Adjust(t time.Time, dir AdjustDirection, window Window, step time.Duration) time.Time {
	if !window.Contains(t.Hour()) {
		return t
	}
	if dir == Backward {
		return t.Add(-step)
	}
	return t.Add(step)
}

// RollIfPast moves t forward one calendar day when it is before now.
func RollIfPast(t, now time.Time) time.Time {
	if t.Before(now) {
		return t.AddDate(0, 0, 1)
	}
	return t
}
