package usage

import (
	"sort"

	decimal "github.com/shopspring/decimal"
)

// Aggregation holds totals and derived averages over a record set.
type Aggregation struct {
	TotalRequests       int64           `json:"totalRequests"`
	TotalInputTokens    int64           `json:"totalTokensIn"`
	TotalOutputTokens   int64           `json:"totalTokensOut"`
	TotalTokens         int64           `json:"totalTokens"`
	TotalCost           decimal.Decimal `json:"totalCost"`
	UniqueUsers         int             `json:"uniqueUsers"`
	UniqueModels        int             `json:"uniqueModels"`
	AvgRequestsPerUser  float64         `json:"averageRequestsPerUser"`
	AvgTokensPerRequest float64         `json:"averageTokensPerRequest"`
	AvgCostPerRequest   decimal.Decimal `json:"averageCostPerRequest"`
	EstimatedRecords    int             `json:"estimatedRecords"`
}

// Aggregate folds records into totals. Averages are zero when their
// denominator is zero.
func Aggregate(records []EnhancedRecord) Aggregation {
	agg := Aggregation{TotalCost: decimal.Zero, AvgCostPerRequest: decimal.Zero}
	users := make(map[string]struct{})
	models := make(map[string]struct{})

	for _, rec := range records {
		agg.TotalRequests += rec.RequestCount
		agg.TotalInputTokens += rec.InputTokens
		agg.TotalOutputTokens += rec.OutputTokens
		agg.TotalTokens += rec.TotalTokens
		agg.TotalCost = agg.TotalCost.Add(rec.Cost)
		users[rec.UserID] = struct{}{}
		models[rec.Model] = struct{}{}
		if rec.Estimated {
			agg.EstimatedRecords++
		}
	}

	agg.UniqueUsers = len(users)
	agg.UniqueModels = len(models)
	if agg.UniqueUsers > 0 {
		agg.AvgRequestsPerUser = float64(agg.TotalRequests) / float64(agg.UniqueUsers)
	}
	if agg.TotalRequests > 0 {
		agg.AvgTokensPerRequest = float64(agg.TotalTokens) / float64(agg.TotalRequests)
		agg.AvgCostPerRequest = agg.TotalCost.Div(decimal.NewFromInt(agg.TotalRequests))
	}
	return agg
}

// BreakdownEntry accumulates one counterpart inside a Summary. Tag keeps the
// last tag seen for the pairing.
type BreakdownEntry struct {
	Requests     int64           `json:"requests"`
	InputTokens  int64           `json:"tokensIn"`
	OutputTokens int64           `json:"tokensOut"`
	TotalTokens  int64           `json:"totalTokens"`
	Cost         decimal.Decimal `json:"cost"`
	Tag          string          `json:"tag"`
}

// Summary is a per-user or per-model roll-up. Breakdown is keyed by model in
// user summaries and by user in model summaries.
type Summary struct {
	Key               string                    `json:"key"`
	DisplayName       string                    `json:"displayName"`
	Kind              Kind                      `json:"type,omitempty"`
	TotalRequests     int64                     `json:"totalRequests"`
	TotalInputTokens  int64                     `json:"totalTokensIn"`
	TotalOutputTokens int64                     `json:"totalTokensOut"`
	TotalTokens       int64                     `json:"totalTokens"`
	TotalCost         decimal.Decimal           `json:"totalCost"`
	Breakdown         map[string]BreakdownEntry `json:"breakdown"`
}

// SummarizeByUser rolls records up per user with a per-model breakdown.
func SummarizeByUser(records []EnhancedRecord) []Summary {
	return summarize(records,
		func(r EnhancedRecord) string { return r.UserID },
		func(r EnhancedRecord) string { return r.Model },
		func(s *Summary, r EnhancedRecord) {
			if s.DisplayName == "" {
				s.DisplayName = r.UserName
			}
		})
}

// SummarizeByModel rolls records up per model with a per-user breakdown.
func SummarizeByModel(records []EnhancedRecord) []Summary {
	return summarize(records,
		func(r EnhancedRecord) string { return r.Model },
		func(r EnhancedRecord) string { return r.UserID },
		func(s *Summary, r EnhancedRecord) {
			s.DisplayName = r.Model
			s.Kind = r.Kind
		})
}

func summarize(records []EnhancedRecord, key, counterpart func(EnhancedRecord) string, label func(*Summary, EnhancedRecord)) []Summary {
	index := make(map[string]int)
	out := make([]Summary, 0)

	for _, rec := range records {
		k := orUnknown(key(rec))
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, Summary{
				Key:       k,
				TotalCost: decimal.Zero,
				Breakdown: make(map[string]BreakdownEntry),
			})
		}
		s := &out[i]
		label(s, rec)
		s.TotalRequests += rec.RequestCount
		s.TotalInputTokens += rec.InputTokens
		s.TotalOutputTokens += rec.OutputTokens
		s.TotalTokens += rec.TotalTokens
		s.TotalCost = s.TotalCost.Add(rec.Cost)

		other := orUnknown(counterpart(rec))
		entry, ok := s.Breakdown[other]
		if !ok {
			entry.Cost = decimal.Zero
		}
		entry.Requests += rec.RequestCount
		entry.InputTokens += rec.InputTokens
		entry.OutputTokens += rec.OutputTokens
		entry.TotalTokens += rec.TotalTokens
		entry.Cost = entry.Cost.Add(rec.Cost)
		entry.Tag = rec.Tag
		s.Breakdown[other] = entry
	}
	return out
}

// TopN returns the n summaries with the most requests, ties broken by key
// ascending. n <= 0 returns every summary in that order. The input is not
// modified.
func TopN(summaries []Summary, n int) []Summary {
	sorted := make([]Summary, len(summaries))
	copy(sorted, summaries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TotalRequests != sorted[j].TotalRequests {
			return sorted[i].TotalRequests > sorted[j].TotalRequests
		}
		return sorted[i].Key < sorted[j].Key
	})
	if n > 0 && n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

func orUnknown(value string) string {
	if value == "" {
		return UnknownBucket
	}
	return value
}
