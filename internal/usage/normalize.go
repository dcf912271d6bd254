package usage

import (
	"fmt"

	decimal "github.com/shopspring/decimal"

	"github.com/ncecere/usage_console/internal/pricing"
)

const (
	// DefaultTag is assumed for records that carry no deployment tag.
	DefaultTag = "production"

	// EstimatedInputTokensPerRequest and EstimatedOutputTokensPerRequest fill
	// in token counts when the upstream omits them entirely. Records built
	// this way are flagged Estimated.
	EstimatedInputTokensPerRequest  = 1000
	EstimatedOutputTokensPerRequest = 500
)

// EnhancedRecord is the canonical, priced form of a usage record.
type EnhancedRecord struct {
	UserID       string          `json:"userId"`
	UserName     string          `json:"userName"`
	Model        string          `json:"model"`
	Kind         Kind            `json:"type"`
	RequestCount int64           `json:"requests"`
	InputTokens  int64           `json:"tokensIn"`
	OutputTokens int64           `json:"tokensOut"`
	TotalTokens  int64           `json:"totalTokens"`
	Cost         decimal.Decimal `json:"cost"`
	Tag          string          `json:"tag"`
	APIKeyID     string          `json:"apiKeyId,omitempty"`
	Estimated    bool            `json:"estimated"`
	Period       Period          `json:"period"`
}

// ModelName implements Dimensional.
func (r EnhancedRecord) ModelName() string { return r.Model }

// User implements Dimensional.
func (r EnhancedRecord) User() string { return r.UserID }

// UsagePeriod implements Dimensional.
func (r EnhancedRecord) UsagePeriod() Period { return r.Period }

// Normalizer turns raw records into priced EnhancedRecords.
type Normalizer struct {
	calc *pricing.Calculator
}

func NewNormalizer(calc *pricing.Calculator) *Normalizer {
	if calc == nil {
		calc = pricing.NewCalculator(nil, pricing.DefaultMarkup)
	}
	return &Normalizer{calc: calc}
}

// Normalize builds the canonical record for rec, the index-th record of its
// batch. The index names anonymous users ("user-{index}").
func (n *Normalizer) Normalize(rec Record, index int) (EnhancedRecord, error) {
	family, err := rec.Kind.Family()
	if err != nil {
		return EnhancedRecord{}, err
	}

	userID := rec.UserID
	if userID == "" {
		userID = fmt.Sprintf("user-%d", index)
	}
	userName := rec.UserName
	if userName == "" {
		userName = userID
	}
	model := rec.Model
	if model == "" {
		model = pricing.UnknownModel
	}
	tag := rec.Tag
	if tag == "" {
		tag = DefaultTag
	}
	requests := rec.RequestCount
	if requests < 0 {
		requests = 0
	}

	in, out, estimated := tokenCounts(rec.Kind, rec.InputTokens, rec.OutputTokens, requests)

	cost, err := n.calc.Compute(pricing.Usage{
		Family:       family,
		Model:        model,
		InputTokens:  in,
		OutputTokens: out,
		RequestCount: requests,
		Quality:      pricing.ParseQuality(string(rec.Quality)),
		Width:        rec.Width,
		Height:       rec.Height,
	}, false)
	if err != nil {
		return EnhancedRecord{}, err
	}

	return EnhancedRecord{
		UserID:       userID,
		UserName:     userName,
		Model:        model,
		Kind:         rec.Kind,
		RequestCount: requests,
		InputTokens:  in,
		OutputTokens: out,
		TotalTokens:  in + out,
		Cost:         cost.FinalCost,
		Tag:          tag,
		APIKeyID:     rec.APIKeyID,
		Estimated:    estimated,
		Period:       rec.Period,
	}, nil
}

// NormalizeAll normalizes a batch, stopping at the first invalid kind.
func (n *Normalizer) NormalizeAll(records []Record) ([]EnhancedRecord, error) {
	out := make([]EnhancedRecord, 0, len(records))
	for i, rec := range records {
		normalized, err := n.Normalize(rec, i)
		if err != nil {
			return nil, fmt.Errorf("normalize record %d: %w", i, err)
		}
		out = append(out, normalized)
	}
	return out, nil
}

func tokenCounts(kind Kind, in, out *int64, requests int64) (int64, int64, bool) {
	if in == nil && out == nil && requests == 0 {
		return 0, 0, false
	}
	switch kind {
	case KindCompletion:
		if in == nil && out == nil {
			return requests * EstimatedInputTokensPerRequest, requests * EstimatedOutputTokensPerRequest, true
		}
		return deref(in), deref(out), false
	case KindEmbedding:
		if in == nil {
			return requests * EstimatedInputTokensPerRequest, 0, true
		}
		return deref(in), 0, false
	default:
		return 0, 0, false
	}
}

func deref(v *int64) int64 {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}
