package usage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func dated(rec EnhancedRecord, ts time.Time) EnhancedRecord {
	rec.Period = Period{Timestamp: &ts}
	return rec
}

func TestFilterByModelAndUser(t *testing.T) {
	records := []EnhancedRecord{
		enhanced("alice", "gpt-4o", 1, 0, 0, "0"),
		enhanced("bob", "GPT-4O", 1, 0, 0, "0"),
		enhanced("bob", "gpt-4o-mini", 1, 0, 0, "0"),
	}
	require.Len(t, FilterByModel(records, "gpt-4o"), 2)
	require.Len(t, FilterByModel(records, ""), 3)
	require.Len(t, FilterByUser(records, "bob"), 2)
	require.Len(t, FilterByUser(records, " "), 3)
	require.Empty(t, FilterByUser(records, "carol"))
}

func TestFilterByDateRangeInclusive(t *testing.T) {
	base := enhanced("alice", "gpt-4o", 1, 0, 0, "0")
	records := []EnhancedRecord{
		dated(base, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		dated(base, time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)),
		dated(base, time.Date(2025, 1, 31, 23, 59, 0, 0, time.UTC)),
		dated(base, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)),
		dated(base, time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC)),
		base,
	}
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	got := FilterByDateRange(records, &from, &to)
	require.Len(t, got, 3)

	require.Len(t, FilterByDateRange(records, nil, nil), len(records))
	require.Len(t, FilterByDateRange(records, &from, nil), 4)
	require.Len(t, FilterByDateRange(records, nil, &to), 4)
}

func TestFilterByDateRangeCalendarFields(t *testing.T) {
	day, month, year := 15, 1, 2025
	rec := Record{Kind: KindCompletion, Model: "gpt-4o", Period: Period{Day: &day, Month: &month, Year: &year}}
	from := time.Date(2025, 1, 15, 18, 0, 0, 0, time.UTC)
	require.Len(t, FilterByDateRange([]Record{rec}, &from, &from), 1)
}

func TestGroupBy(t *testing.T) {
	base := enhanced("alice", "gpt-4o", 1, 0, 0, "0")
	month, year := 3, 2025
	calendar := enhanced("bob", "gpt-4o-mini", 1, 0, 0, "0")
	calendar.Period = Period{Month: &month, Year: &year}
	records := []EnhancedRecord{
		dated(base, time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)),
		dated(base, time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)),
		calendar,
		enhanced("", "", 1, 0, 0, "0"),
	}

	byDay, err := GroupBy(records, DimensionDay, time.UTC)
	require.NoError(t, err)
	require.Equal(t, []string{"2025-03-01", "2025-03-02", UnknownBucket}, SortedKeys(byDay))
	require.Len(t, byDay[UnknownBucket], 2)

	byMonth, err := GroupBy(records, DimensionMonth, time.UTC)
	require.NoError(t, err)
	require.Len(t, byMonth["2025-03"], 3)
	require.Len(t, byMonth[UnknownBucket], 1)

	byYear, err := GroupBy(records, DimensionYear, nil)
	require.NoError(t, err)
	require.Len(t, byYear["2025"], 3)

	byUser, err := GroupBy(records, DimensionUser, time.UTC)
	require.NoError(t, err)
	require.Len(t, byUser["alice"], 2)
	require.Len(t, byUser[UnknownBucket], 1)

	byModel, err := GroupBy(records, DimensionModel, time.UTC)
	require.NoError(t, err)
	require.Len(t, byModel[UnknownBucket], 1)

	_, err = GroupBy(records, Dimension("week"), time.UTC)
	require.ErrorIs(t, err, ErrInvalidDimension)
}

func TestParseDimension(t *testing.T) {
	d, err := ParseDimension(" Month ")
	require.NoError(t, err)
	require.Equal(t, DimensionMonth, d)
	_, err = ParseDimension("week")
	require.ErrorIs(t, err, ErrInvalidDimension)
}
