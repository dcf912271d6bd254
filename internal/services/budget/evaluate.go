package budget

import (
	"time"

	decimal "github.com/shopspring/decimal"

	"github.com/ncecere/usage_console/internal/timeutil"
	"github.com/ncecere/usage_console/internal/usage"
)

// Window names one budget period.
type Window string

const (
	WindowMonthly Window = "monthly"
	WindowWeekly  Window = "weekly"
	WindowDaily   Window = "daily"
)

// WindowStatus is the spend of one window against its limit. A zero limit
// means the window is unbounded and never warns.
type WindowStatus struct {
	Window    Window          `json:"window"`
	Start     time.Time       `json:"start"`
	End       time.Time       `json:"end"`
	Spent     decimal.Decimal `json:"spent"`
	Limit     decimal.Decimal `json:"limit"`
	Remaining decimal.Decimal `json:"remaining"`
	Ratio     float64         `json:"ratio"`
	Warning   bool            `json:"warning"`
	Exceeded  bool            `json:"exceeded"`
}

// Level folds the window flags into an alert level.
func (w WindowStatus) Level() AlertLevel {
	switch {
	case w.Exceeded:
		return AlertLevelExceeded
	case w.Warning:
		return AlertLevelWarning
	default:
		return AlertLevelNone
	}
}

// Status is the evaluation of all windows for one subject.
type Status struct {
	Subject     string          `json:"subject"`
	Currency    string          `json:"currency"`
	EvaluatedAt time.Time       `json:"evaluated_at"`
	Windows     []WindowStatus  `json:"windows"`
	Undated     decimal.Decimal `json:"undated_spend"`
	Level       AlertLevel      `json:"level"`
}

// Window returns the status for w.
func (s Status) Window(w Window) (WindowStatus, bool) {
	for _, ws := range s.Windows {
		if ws.Window == w {
			return ws, true
		}
	}
	return WindowStatus{}, false
}

// Evaluate sums the spend of records for the calendar month to date, the ISO
// week to date and today, all in loc. Each window is summed on its own, so a
// week reaching back into the previous month is counted in full. Records
// without a resolvable day count toward the month when their month matches
// (or when they carry no date at all) and are reported separately as Undated.
func Evaluate(records []usage.EnhancedRecord, settings Settings, now time.Time, loc *time.Location) Status {
	loc = timeutil.EnsureLocation(loc)
	now = now.In(loc)
	today := timeutil.TruncateToDay(now, loc)
	tomorrow := today.AddDate(0, 0, 1)
	monthStart := timeutil.StartOfMonth(today)
	weekStart := timeutil.StartOfISOWeek(today)

	var monthly, weekly, daily, undated decimal.Decimal
	for _, rec := range records {
		day, ok := rec.Period.Date(loc)
		if !ok {
			if inMonth(rec.Period, monthStart) {
				monthly = monthly.Add(rec.Cost)
				undated = undated.Add(rec.Cost)
			}
			continue
		}
		if !day.Before(tomorrow) {
			continue
		}
		if !day.Before(monthStart) {
			monthly = monthly.Add(rec.Cost)
		}
		if !day.Before(weekStart) {
			weekly = weekly.Add(rec.Cost)
		}
		if day.Equal(today) {
			daily = daily.Add(rec.Cost)
		}
	}

	status := Status{
		Subject:     settings.Subject,
		Currency:    settings.Currency,
		EvaluatedAt: now,
		Undated:     undated,
		Windows: []WindowStatus{
			windowStatus(WindowMonthly, monthStart, tomorrow, monthly, settings.MonthlyLimit, settings.WarningThreshold),
			windowStatus(WindowWeekly, weekStart, tomorrow, weekly, settings.WeeklyLimit, settings.WarningThreshold),
			windowStatus(WindowDaily, today, tomorrow, daily, settings.DailyLimit, settings.WarningThreshold),
		},
	}
	status.Level = AlertLevelNone
	for _, w := range status.Windows {
		if alertSeverity(w.Level()) > alertSeverity(status.Level) {
			status.Level = w.Level()
		}
	}
	return status
}

func inMonth(p usage.Period, monthStart time.Time) bool {
	if !p.Dated() {
		return true
	}
	if p.Year == nil || p.Month == nil {
		return false
	}
	return *p.Year == monthStart.Year() && time.Month(*p.Month) == monthStart.Month()
}

func windowStatus(w Window, start, end time.Time, spent, limit decimal.Decimal, threshold float64) WindowStatus {
	ws := WindowStatus{
		Window: w,
		Start:  start,
		End:    end,
		Spent:  spent,
		Limit:  limit,
	}
	if !limit.IsPositive() {
		ws.Limit = decimal.Zero
		ws.Remaining = decimal.Zero
		return ws
	}
	ws.Remaining = decimal.Max(limit.Sub(spent), decimal.Zero)
	ws.Ratio = spent.Div(limit).InexactFloat64()
	ws.Exceeded = spent.GreaterThanOrEqual(limit)
	ws.Warning = !ws.Exceeded && threshold > 0 && ws.Ratio >= threshold
	return ws
}
