package usage

import (
	"time"

	decimal "github.com/shopspring/decimal"

	"github.com/ncecere/usage_console/internal/timeutil"
)

// SeriesPoint is one calendar day of activity.
type SeriesPoint struct {
	Date         string          `json:"date"`
	Requests     int64           `json:"requests"`
	InputTokens  int64           `json:"tokensIn"`
	OutputTokens int64           `json:"tokensOut"`
	TotalTokens  int64           `json:"totalTokens"`
	Cost         decimal.Decimal `json:"cost"`
	Users        int             `json:"users"`
	Models       int             `json:"models"`
}

// Series is a gap-free daily series plus the activity that could not be
// placed on a day.
type Series struct {
	Points          []SeriesPoint   `json:"points"`
	UndatedRequests int64           `json:"undatedRequests"`
	UndatedCost     decimal.Decimal `json:"undatedCost"`
	Timezone        string          `json:"timezone"`
}

type dailyBucket struct {
	point  SeriesPoint
	users  map[string]struct{}
	models map[string]struct{}
}

// DailySeries buckets records per day over [start, end) in loc, emitting a
// zero point for every day without activity. Dated records outside the range
// are ignored.
func DailySeries(records []EnhancedRecord, start, end time.Time, loc *time.Location) Series {
	loc = timeutil.EnsureLocation(loc)
	startDay := timeutil.TruncateToDay(start, loc)
	endDay := timeutil.TruncateToDay(end.Add(-time.Nanosecond), loc)
	if endDay.Before(startDay) {
		endDay = startDay
	}

	series := Series{UndatedCost: decimal.Zero, Timezone: loc.String()}
	daily := make(map[int64]*dailyBucket)
	for _, rec := range records {
		day, ok := rec.Period.Date(loc)
		if !ok {
			series.UndatedRequests += rec.RequestCount
			series.UndatedCost = series.UndatedCost.Add(rec.Cost)
			continue
		}
		if day.Before(startDay) || day.After(endDay) {
			continue
		}
		key := day.Unix()
		bucket, ok := daily[key]
		if !ok {
			bucket = &dailyBucket{
				point:  SeriesPoint{Cost: decimal.Zero},
				users:  make(map[string]struct{}),
				models: make(map[string]struct{}),
			}
			daily[key] = bucket
		}
		bucket.point.Requests += rec.RequestCount
		bucket.point.InputTokens += rec.InputTokens
		bucket.point.OutputTokens += rec.OutputTokens
		bucket.point.TotalTokens += rec.TotalTokens
		bucket.point.Cost = bucket.point.Cost.Add(rec.Cost)
		bucket.users[rec.UserID] = struct{}{}
		bucket.models[rec.Model] = struct{}{}
	}

	series.Points = make([]SeriesPoint, 0, int(endDay.Sub(startDay).Hours()/24)+1)
	for day := startDay; !day.After(endDay); day = day.AddDate(0, 0, 1) {
		point := SeriesPoint{Cost: decimal.Zero}
		if bucket, ok := daily[day.Unix()]; ok {
			point = bucket.point
			point.Users = len(bucket.users)
			point.Models = len(bucket.models)
		}
		point.Date = day.Format("2006-01-02")
		series.Points = append(series.Points, point)
	}
	return series
}
