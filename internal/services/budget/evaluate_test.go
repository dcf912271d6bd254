package budget

import (
	"testing"
	"time"

	decimal "github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ncecere/usage_console/internal/usage"
)

func intPtr(v int) *int { return &v }

func dayRecord(year, month, day int, cost string) usage.EnhancedRecord {
	return usage.EnhancedRecord{
		Model:  "gpt-4o",
		Cost:   decimal.RequireFromString(cost),
		Period: usage.Period{Year: intPtr(year), Month: intPtr(month), Day: intPtr(day)},
	}
}

func testSettings() Settings {
	return Settings{
		Subject:          OrganizationSubject,
		MonthlyLimit:     decimal.NewFromInt(100),
		WeeklyLimit:      decimal.NewFromInt(6),
		DailyLimit:       decimal.NewFromInt(2),
		Currency:         "EUR",
		WarningThreshold: 0.8,
	}
}

func TestEvaluateSumsCalendarWindows(t *testing.T) {
	now := time.Date(2025, time.March, 12, 15, 0, 0, 0, time.UTC)
	records := []usage.EnhancedRecord{
		dayRecord(2025, 3, 12, "2"),
		dayRecord(2025, 3, 10, "3"),
		dayRecord(2025, 3, 2, "10"),
		dayRecord(2025, 2, 28, "50"),
		{Model: "gpt-4o", Cost: decimal.NewFromInt(1)},
		{Model: "gpt-4o", Cost: decimal.NewFromInt(4), Period: usage.Period{Year: intPtr(2025), Month: intPtr(3)}},
	}

	status := Evaluate(records, testSettings(), now, time.UTC)

	monthly, ok := status.Window(WindowMonthly)
	require.True(t, ok)
	require.Equal(t, "20", monthly.Spent.String())
	require.Equal(t, "80", monthly.Remaining.String())
	require.False(t, monthly.Warning)
	require.Equal(t, time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), monthly.Start)

	weekly, _ := status.Window(WindowWeekly)
	require.Equal(t, "5", weekly.Spent.String())
	require.True(t, weekly.Warning)
	require.False(t, weekly.Exceeded)
	require.Equal(t, time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC), weekly.Start)

	daily, _ := status.Window(WindowDaily)
	require.Equal(t, "2", daily.Spent.String())
	require.True(t, daily.Exceeded)
	require.False(t, daily.Warning)
	require.True(t, daily.Remaining.IsZero())

	require.Equal(t, "5", status.Undated.String())
	require.Equal(t, AlertLevelExceeded, status.Level)
}

func TestEvaluateWeekAcrossMonthBoundary(t *testing.T) {
	now := time.Date(2025, time.October, 2, 9, 0, 0, 0, time.UTC)
	records := []usage.EnhancedRecord{
		dayRecord(2025, 9, 29, "3"),
		dayRecord(2025, 10, 1, "1"),
		dayRecord(2025, 9, 28, "40"),
	}

	status := Evaluate(records, testSettings(), now, time.UTC)

	monthly, _ := status.Window(WindowMonthly)
	require.Equal(t, "1", monthly.Spent.String())
	weekly, _ := status.Window(WindowWeekly)
	require.Equal(t, "4", weekly.Spent.String())
	require.Equal(t, time.Date(2025, time.September, 29, 0, 0, 0, 0, time.UTC), weekly.Start)
}

func TestEvaluateZeroLimitNeverAlerts(t *testing.T) {
	settings := testSettings()
	settings.DailyLimit = decimal.Zero
	now := time.Date(2025, time.March, 12, 9, 0, 0, 0, time.UTC)

	status := Evaluate([]usage.EnhancedRecord{dayRecord(2025, 3, 12, "1")}, settings, now, time.UTC)

	daily, _ := status.Window(WindowDaily)
	require.False(t, daily.Exceeded)
	require.Zero(t, daily.Ratio)
	require.Equal(t, AlertLevelNone, status.Level)
}

func TestEvaluateUsesLocationForToday(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	// 23:30 UTC on the 11th is already the 12th in Berlin.
	now := time.Date(2025, time.March, 11, 23, 30, 0, 0, time.UTC)
	ts := time.Date(2025, time.March, 11, 23, 10, 0, 0, time.UTC)
	rec := usage.EnhancedRecord{Cost: decimal.RequireFromString("1.5"), Period: usage.Period{Timestamp: &ts}}

	status := Evaluate([]usage.EnhancedRecord{rec}, testSettings(), now, loc)

	daily, _ := status.Window(WindowDaily)
	require.Equal(t, "1.5", daily.Spent.String())
}
