package usage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ncecere/usage_console/internal/timeutil"
)

// UnknownBucket collects records whose grouping key is missing, including
// undated records under the date dimensions.
const UnknownBucket = "unknown"

var ErrInvalidDimension = errors.New("invalid group dimension")

// Dimensional is implemented by both raw and normalized records.
type Dimensional interface {
	ModelName() string
	User() string
	UsagePeriod() Period
}

// Dimension selects the grouping key.
type Dimension string

const (
	DimensionUser  Dimension = "user"
	DimensionModel Dimension = "model"
	DimensionDay   Dimension = "day"
	DimensionMonth Dimension = "month"
	DimensionYear  Dimension = "year"
)

// ParseDimension validates a grouping dimension.
func ParseDimension(value string) (Dimension, error) {
	switch d := Dimension(strings.ToLower(strings.TrimSpace(value))); d {
	case DimensionUser, DimensionModel, DimensionDay, DimensionMonth, DimensionYear:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDimension, value)
	}
}

// FilterByModel keeps records for model (case-insensitive). An empty model
// returns the input unchanged.
func FilterByModel[T Dimensional](records []T, model string) []T {
	model = strings.TrimSpace(model)
	if model == "" {
		return records
	}
	return filter(records, func(r T) bool { return strings.EqualFold(r.ModelName(), model) })
}

// FilterByUser keeps records for userID. An empty id returns the input unchanged.
func FilterByUser[T Dimensional](records []T, userID string) []T {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return records
	}
	return filter(records, func(r T) bool { return r.User() == userID })
}

// FilterByDateRange keeps records whose day falls within [from, to], both
// inclusive and compared at day granularity in the bounds' location. Records
// without a resolvable date survive only when no bound is given.
func FilterByDateRange[T Dimensional](records []T, from, to *time.Time) []T {
	if from == nil && to == nil {
		return records
	}
	loc := time.UTC
	if from != nil {
		loc = from.Location()
	} else if to != nil {
		loc = to.Location()
	}
	var fromDay, toDay time.Time
	if from != nil {
		fromDay = timeutil.TruncateToDay(*from, loc)
	}
	if to != nil {
		toDay = timeutil.TruncateToDay(*to, loc)
	}
	return filter(records, func(r T) bool {
		day, ok := r.UsagePeriod().Date(loc)
		if !ok {
			return false
		}
		if from != nil && day.Before(fromDay) {
			return false
		}
		if to != nil && day.After(toDay) {
			return false
		}
		return true
	})
}

// GroupBy buckets records by dimension. Date keys are formatted in loc
// (2006-01-02, 2006-01, 2006); records without the needed date parts land in
// UnknownBucket.
func GroupBy[T Dimensional](records []T, dim Dimension, loc *time.Location) (map[string][]T, error) {
	loc = timeutil.EnsureLocation(loc)
	var keyFn func(T) string
	switch dim {
	case DimensionUser:
		keyFn = func(r T) string { return orUnknown(r.User()) }
	case DimensionModel:
		keyFn = func(r T) string { return orUnknown(r.ModelName()) }
	case DimensionDay:
		keyFn = func(r T) string {
			if day, ok := r.UsagePeriod().Date(loc); ok {
				return day.Format("2006-01-02")
			}
			return UnknownBucket
		}
	case DimensionMonth:
		keyFn = func(r T) string {
			if key, ok := r.UsagePeriod().monthKey(loc); ok {
				return key
			}
			return UnknownBucket
		}
	case DimensionYear:
		keyFn = func(r T) string {
			if key, ok := r.UsagePeriod().yearKey(loc); ok {
				return key
			}
			return UnknownBucket
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDimension, dim)
	}

	groups := make(map[string][]T)
	for _, rec := range records {
		k := keyFn(rec)
		groups[k] = append(groups[k], rec)
	}
	return groups, nil
}

// SortedKeys returns group keys ascending with UnknownBucket last.
func SortedKeys[T any](groups map[string][]T) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i] == UnknownBucket || keys[j] == UnknownBucket {
			return keys[j] == UnknownBucket && keys[i] != UnknownBucket
		}
		return keys[i] < keys[j]
	})
	return keys
}

func filter[T any](records []T, keep func(T) bool) []T {
	out := make([]T, 0, len(records))
	for _, rec := range records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}
