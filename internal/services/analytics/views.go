package analytics

import (
	"github.com/ncecere/usage_console/internal/usage"
)

// TopLimit is the number of users and models shown on the overview.
const TopLimit = 5

// Overview is the dashboard landing view.
type Overview struct {
	*Snapshot
	Aggregation usage.Aggregation `json:"aggregation"`
	TopUsers    []usage.Summary   `json:"top_users"`
	TopModels   []usage.Summary   `json:"top_models"`
	Series      usage.Series      `json:"series"`
}

// Overview aggregates the snapshot and picks the busiest users and models.
func (s *Snapshot) Overview() Overview {
	start, end := s.window.Bounds()
	return Overview{
		Snapshot:    s,
		Aggregation: usage.Aggregate(s.Records),
		TopUsers:    usage.TopN(usage.SummarizeByUser(s.Records), TopLimit),
		TopModels:   usage.TopN(usage.SummarizeByModel(s.Records), TopLimit),
		Series:      usage.DailySeries(s.Records, start, end, s.window.Location()),
	}
}

// Ranking is a user or model roll-up, busiest first.
type Ranking struct {
	*Snapshot
	Items []usage.Summary `json:"items"`
}

// Users ranks users by requests. limit <= 0 returns all.
func (s *Snapshot) Users(limit int) Ranking {
	return Ranking{Snapshot: s, Items: usage.TopN(usage.SummarizeByUser(s.Records), limit)}
}

// Models ranks models by requests. limit <= 0 returns all.
func (s *Snapshot) Models(limit int) Ranking {
	return Ranking{Snapshot: s, Items: usage.TopN(usage.SummarizeByModel(s.Records), limit)}
}

// Group is one bucket of a grouped view.
type Group struct {
	Key         string            `json:"key"`
	Aggregation usage.Aggregation `json:"aggregation"`
}

// Grouped is the snapshot bucketed by one dimension.
type Grouped struct {
	*Snapshot
	By     usage.Dimension `json:"by"`
	Groups []Group         `json:"groups"`
}

// Groups buckets the snapshot by dim, keys ascending with unknown last.
func (s *Snapshot) Groups(dim usage.Dimension) (Grouped, error) {
	groups, err := usage.GroupBy(s.Records, dim, s.window.Location())
	if err != nil {
		return Grouped{}, err
	}
	out := Grouped{Snapshot: s, By: dim, Groups: make([]Group, 0, len(groups))}
	for _, key := range usage.SortedKeys(groups) {
		out.Groups = append(out.Groups, Group{Key: key, Aggregation: usage.Aggregate(groups[key])})
	}
	return out, nil
}

// SeriesView carries the daily series of a snapshot.
type SeriesView struct {
	*Snapshot
	Series usage.Series `json:"series"`
}

// Series fills every day of the window, zero where there was no activity.
func (s *Snapshot) Series() SeriesView {
	start, end := s.window.Bounds()
	return SeriesView{Snapshot: s, Series: usage.DailySeries(s.Records, start, end, s.window.Location())}
}

// RecordPage is a window into the normalized records.
type RecordPage struct {
	*Snapshot
	Total   int                    `json:"total"`
	Offset  int                    `json:"offset"`
	Limit   int                    `json:"limit"`
	Records []usage.EnhancedRecord `json:"records"`
}

// MaxPageSize caps a records page.
const MaxPageSize = 1000

// Page returns records[offset:offset+limit].
func (s *Snapshot) Page(offset, limit int) RecordPage {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	total := len(s.Records)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return RecordPage{
		Snapshot: s,
		Total:    total,
		Offset:   offset,
		Limit:    limit,
		Records:  s.Records[offset:end],
	}
}
