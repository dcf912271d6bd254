package pricing

import (
	"fmt"
	"strings"

	decimal "github.com/shopspring/decimal"
)

// LargeFormatEdge is the pixel size above which an image is billed at the
// large-format tier.
const LargeFormatEdge = 1024

// Quality is the image quality tier.
type Quality string

const (
	QualityStandard Quality = "standard"
	QualityHD       Quality = "hd"
)

// ParseQuality maps anything other than "hd" to standard quality.
func ParseQuality(value string) Quality {
	if strings.EqualFold(strings.TrimSpace(value), string(QualityHD)) {
		return QualityHD
	}
	return QualityStandard
}

// Usage is the billable part of one usage record.
type Usage struct {
	Family       Family
	Model        string
	InputTokens  int64
	OutputTokens int64
	RequestCount int64
	Quality      Quality
	Width        int
	Height       int
}

// LargeFormat reports whether an image exceeds the standard size on either edge.
func (u Usage) LargeFormat() bool {
	return u.Width > LargeFormatEdge || u.Height > LargeFormatEdge
}

// Cost is the priced breakdown of one usage record.
type Cost struct {
	InputCost  decimal.Decimal `json:"input_cost"`
	OutputCost decimal.Decimal `json:"output_cost"`
	TotalCost  decimal.Decimal `json:"total_cost"`
	Markup     decimal.Decimal `json:"markup"`
	FinalCost  decimal.Decimal `json:"final_cost"`
}

// ComputeCost prices u against table. Prices are shifted by powers of ten so
// repeated calls return identical decimals.
func ComputeCost(table *Table, u Usage, useCachedInputPricing bool, markup decimal.Decimal) (Cost, error) {
	if table == nil {
		return Cost{}, fmt.Errorf("pricing table is required")
	}
	var input, output decimal.Decimal

	switch u.Family {
	case FamilyCompletion:
		entry := table.Completion(u.Model)
		price := entry.InputPerMillion
		if useCachedInputPricing && entry.CachedInputPerMillion.Valid {
			price = entry.CachedInputPerMillion.Decimal
		}
		input = count(u.InputTokens).Mul(price).Shift(-6)
		output = count(u.OutputTokens).Mul(entry.OutputPerMillion).Shift(-6)
	case FamilyEmbedding:
		entry := table.Embedding(u.Model)
		input = count(u.InputTokens).Mul(entry.PerThousandTokens).Shift(-3)
		output = decimal.Zero
	case FamilyImage:
		entry := table.Image(u.Model)
		input = decimal.Zero
		output = imagePrice(entry, u.Quality, u.LargeFormat()).Mul(count(u.RequestCount))
	default:
		return Cost{}, fmt.Errorf("%w: %q", ErrUnknownFamily, u.Family)
	}

	if markup.IsNegative() {
		markup = decimal.Zero
	}
	total := input.Add(output)
	surcharge := total.Mul(markup)
	return Cost{
		InputCost:  input,
		OutputCost: output,
		TotalCost:  total,
		Markup:     surcharge,
		FinalCost:  total.Add(surcharge),
	}, nil
}

func imagePrice(entry Entry, quality Quality, large bool) decimal.Decimal {
	if quality == QualityHD {
		if large && entry.ImageHDLarge.Valid {
			return entry.ImageHDLarge.Decimal
		}
		return entry.ImageHD
	}
	if large && entry.ImageStandardLarge.Valid {
		return entry.ImageStandardLarge.Decimal
	}
	return entry.ImageStandard
}

func count(n int64) decimal.Decimal {
	if n < 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(n)
}

// Calculator binds a table to the configured markup.
type Calculator struct {
	table  *Table
	markup decimal.Decimal
}

// NewCalculator returns a calculator. A nil table uses the default sheet.
func NewCalculator(table *Table, markup decimal.Decimal) *Calculator {
	if table == nil {
		table = DefaultTable()
	}
	return &Calculator{table: table, markup: markup}
}

// Compute prices u with the calculator's markup.
func (c *Calculator) Compute(u Usage, useCachedInputPricing bool) (Cost, error) {
	return ComputeCost(c.table, u, useCachedInputPricing, c.markup)
}

// Table exposes the live table backing the calculator.
func (c *Calculator) Table() *Table { return c.table }

// Markup returns the configured markup fraction.
func (c *Calculator) Markup() decimal.Decimal { return c.markup }
