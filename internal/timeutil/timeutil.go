package timeutil

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidPeriod = errors.New("invalid period")

// Range presets accepted by ResolveRange.
const (
	Preset7Days     = "7d"
	Preset30Days    = "30d"
	Preset90Days    = "90d"
	PresetThisMonth = "thismonth"
	PresetLastMonth = "lastmonth"
	PresetCustom    = "custom"
)

// DateLayout is the calendar-day layout used on the wire and in query strings.
const DateLayout = "2006-01-02"

// Window represents a [start, end) range anchored to a location.
type Window struct {
	period string
	start  time.Time
	end    time.Time
	loc    *time.Location
}

// EnsureLocation returns UTC when loc is nil.
func EnsureLocation(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// LoadLocation resolves a timezone name, falling back to UTC when empty.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

// NewWindow constructs a rolling window for the requested period (e.g., "7d", "24h").
func NewWindow(period string, now time.Time, loc *time.Location) (Window, error) {
	loc = EnsureLocation(loc)
	now = now.In(loc)
	dur, err := durationFromPeriod(period)
	if err != nil {
		return Window{}, err
	}
	return Window{
		period: normalizePeriod(period),
		start:  now.Add(-dur),
		end:    now,
		loc:    loc,
	}, nil
}

// NewWindowFromRange constructs a window covering the provided [start, end) bounds.
func NewWindowFromRange(start, end time.Time, loc *time.Location, label string) (Window, error) {
	loc = EnsureLocation(loc)
	start = start.In(loc)
	end = end.In(loc)
	if !end.After(start) {
		return Window{}, ErrInvalidPeriod
	}
	p := label
	if strings.TrimSpace(p) == "" {
		p = PresetCustom
	}
	return Window{
		period: normalizePeriod(p),
		start:  start,
		end:    end,
		loc:    loc,
	}, nil
}

// ResolveRange turns a dashboard preset into a day-aligned window ending at
// the close of today. Rolling presets include today, so "7d" covers the last
// seven calendar days. The custom preset takes inclusive from/to dates
// (YYYY-MM-DD); an empty to means today.
func ResolveRange(preset, from, to string, now time.Time, loc *time.Location) (Window, error) {
	loc = EnsureLocation(loc)
	today := TruncateToDay(now, loc)
	tomorrow := today.AddDate(0, 0, 1)

	switch p := normalizePeriod(preset); p {
	case "", Preset30Days:
		return NewWindowFromRange(tomorrow.AddDate(0, 0, -30), tomorrow, loc, Preset30Days)
	case Preset7Days:
		return NewWindowFromRange(tomorrow.AddDate(0, 0, -7), tomorrow, loc, p)
	case Preset90Days:
		return NewWindowFromRange(tomorrow.AddDate(0, 0, -90), tomorrow, loc, p)
	case PresetThisMonth:
		return NewWindowFromRange(StartOfMonth(today), tomorrow, loc, p)
	case PresetLastMonth:
		thisMonth := StartOfMonth(today)
		return NewWindowFromRange(thisMonth.AddDate(0, -1, 0), thisMonth, loc, p)
	case PresetCustom:
		start, err := ParseDate(from, loc)
		if err != nil {
			return Window{}, err
		}
		end := today
		if strings.TrimSpace(to) != "" {
			if end, err = ParseDate(to, loc); err != nil {
				return Window{}, err
			}
		}
		return NewWindowFromRange(start, end.AddDate(0, 0, 1), loc, p)
	default:
		return Window{}, ErrInvalidPeriod
	}
}

// ParseDate parses a YYYY-MM-DD date at midnight in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(value), EnsureLocation(loc))
	if err != nil {
		return time.Time{}, ErrInvalidPeriod
	}
	return t, nil
}

// Period returns the normalized period string (e.g., "7d").
func (w Window) Period() string { return w.period }

// Start returns the inclusive start of the window.
func (w Window) Start() time.Time { return w.start }

// End returns the exclusive end of the window.
func (w Window) End() time.Time { return w.end }

// Bounds returns the start/end timestamps.
func (w Window) Bounds() (time.Time, time.Time) { return w.start, w.end }

// LastDay returns midnight of the final calendar day the window touches.
func (w Window) LastDay() time.Time {
	return TruncateToDay(w.end.Add(-time.Nanosecond), w.Location())
}

// FromDate and ToDate format the inclusive calendar bounds for upstream queries.
func (w Window) FromDate() string { return w.start.In(w.Location()).Format(DateLayout) }

func (w Window) ToDate() string { return w.LastDay().Format(DateLayout) }

// Location returns the reporting timezone for the window.
func (w Window) Location() *time.Location { return EnsureLocation(w.loc) }

// Timezone returns the location name for JSON responses.
func (w Window) Timezone() string { return w.Location().String() }

// StartString returns the start timestamp formatted as RFC3339 in the window's zone.
func (w Window) StartString() string { return w.start.In(w.Location()).Format(time.RFC3339) }

// EndString returns the end timestamp formatted as RFC3339 in the window's zone.
func (w Window) EndString() string { return w.end.In(w.Location()).Format(time.RFC3339) }

// Duration returns the window length.
func (w Window) Duration() time.Duration { return w.end.Sub(w.start) }

// Contains reports whether the timestamp falls within [start, end).
func (w Window) Contains(ts time.Time) bool {
	return !ts.Before(w.start) && ts.Before(w.end)
}

// TruncateToDay normalizes the timestamp to midnight in the provided zone.
func TruncateToDay(t time.Time, loc *time.Location) time.Time {
	loc = EnsureLocation(loc)
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// StartOfMonth returns midnight on the first of t's month, in t's zone.
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// StartOfISOWeek returns midnight on the Monday of t's ISO week, in t's zone.
func StartOfISOWeek(t time.Time) time.Time {
	day := TruncateToDay(t, t.Location())
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// WindowFromPeriod returns the [start, end) timestamps for a rolling window (7d/30d/90d).
func WindowFromPeriod(period string, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	w, err := NewWindow(period, now, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return w.start, w.end, nil
}

func durationFromPeriod(period string) (time.Duration, error) {
	p := normalizePeriod(period)
	if len(p) < 2 {
		return 0, ErrInvalidPeriod
	}
	unit := p[len(p)-1]
	value, err := strconv.Atoi(p[:len(p)-1])
	if err != nil || value <= 0 {
		return 0, ErrInvalidPeriod
	}
	switch unit {
	case 'd':
		return time.Duration(value) * 24 * time.Hour, nil
	case 'h':
		return time.Duration(value) * time.Hour, nil
	default:
		return 0, ErrInvalidPeriod
	}
}

func normalizePeriod(period string) string {
	return strings.ToLower(strings.TrimSpace(period))
}
