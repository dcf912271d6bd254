package pricing

import (
	"testing"

	decimal "github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	require.NoError(t, err)
	return d
}

func TestComputeCostCompletionExample(t *testing.T) {
	table := DefaultTable()
	cost, err := ComputeCost(table, Usage{
		Family:       FamilyCompletion,
		Model:        "gpt-4o-mini",
		InputTokens:  198456,
		OutputTokens: 99863,
	}, false, DefaultMarkup)
	require.NoError(t, err)

	require.True(t, cost.InputCost.Equal(dec(t, "0.18654864")), "input %s", cost.InputCost)
	require.True(t, cost.OutputCost.Equal(dec(t, "0.37548488")), "output %s", cost.OutputCost)
	require.True(t, cost.TotalCost.Equal(dec(t, "0.56203352")), "total %s", cost.TotalCost)
	require.Equal(t, "0.6126", cost.FinalCost.StringFixed(4))
}

func TestComputeCostEmbeddingExample(t *testing.T) {
	cost, err := ComputeCost(DefaultTable(), Usage{
		Family:      FamilyEmbedding,
		Model:       "text-embedding-3-small",
		InputTokens: 50000,
	}, false, DefaultMarkup)
	require.NoError(t, err)
	require.True(t, cost.TotalCost.Equal(dec(t, "0.0009")), "total %s", cost.TotalCost)
	require.True(t, cost.OutputCost.IsZero())
}

func TestComputeCostUnknownModelFallsBack(t *testing.T) {
	table := DefaultTable()
	usage := Usage{Family: FamilyCompletion, Model: "totally-unknown-xyz", InputTokens: 1_000_000, OutputTokens: 1_000_000}

	cost, err := ComputeCost(table, usage, false, decimal.Zero)
	require.NoError(t, err)
	// unknown: 1.0 in / 3.0 out per million
	require.True(t, cost.TotalCost.Equal(dec(t, "4")), "total %s", cost.TotalCost)
}

func TestComputeCostCachedInputPricing(t *testing.T) {
	table := DefaultTable()
	usage := Usage{Family: FamilyCompletion, Model: "GPT-4.1", InputTokens: 1_000_000}

	cached, err := ComputeCost(table, usage, true, decimal.Zero)
	require.NoError(t, err)
	require.True(t, cached.InputCost.Equal(dec(t, "0.43")))

	regular, err := ComputeCost(table, usage, false, decimal.Zero)
	require.NoError(t, err)
	require.True(t, regular.InputCost.Equal(dec(t, "1.71")))

	// gpt-4o has no cached price, so the flag is ignored
	usage.Model = "gpt-4o"
	noCache, err := ComputeCost(table, usage, true, decimal.Zero)
	require.NoError(t, err)
	require.True(t, noCache.InputCost.Equal(dec(t, "2.17")))
}

func TestComputeCostImageTiers(t *testing.T) {
	table := DefaultTable()
	tests := []struct {
		name   string
		usage  Usage
		output string
	}{
		{"standard small", Usage{Model: "dall-e-3", Quality: QualityStandard, Width: 1024, Height: 1024, RequestCount: 2}, "0.06944"},
		{"hd large", Usage{Model: "dall-e-3", Quality: QualityHD, Width: 1792, Height: 1024, RequestCount: 3}, "0.31245"},
		{"standard large", Usage{Model: "dall-e-3", Quality: QualityStandard, Width: 1024, Height: 1792, RequestCount: 1}, "0.06943"},
		{"large falls back to quality price", Usage{Model: "midjourney-v6", Quality: QualityHD, Width: 2048, Height: 2048, RequestCount: 2}, "0.16"},
		{"no size is small", Usage{Model: "unknown-painter", Quality: QualityHD, RequestCount: 1}, "0.06943"},
		{"free model", Usage{Model: "dall-e-2", Quality: QualityHD, RequestCount: 10}, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.usage.Family = FamilyImage
			cost, err := ComputeCost(table, tt.usage, false, DefaultMarkup)
			require.NoError(t, err)
			require.True(t, cost.InputCost.IsZero())
			require.True(t, cost.OutputCost.Equal(dec(t, tt.output)), "output %s", cost.OutputCost)
		})
	}
}

func TestComputeCostMarkupInvariant(t *testing.T) {
	table := DefaultTable()
	markup := dec(t, "0.09")
	onePlus := decimal.NewFromInt(1).Add(markup)
	usages := []Usage{
		{Family: FamilyCompletion, Model: "gpt-4o", InputTokens: 12345, OutputTokens: 678},
		{Family: FamilyCompletion, Model: "claude-3-haiku", InputTokens: 1, OutputTokens: 0},
		{Family: FamilyEmbedding, Model: "text-embedding-3-large", InputTokens: 987654},
		{Family: FamilyImage, Model: "dall-e-3", Quality: QualityHD, Width: 1792, Height: 1024, RequestCount: 7},
		{Family: FamilyCompletion, Model: "gpt-4o-mini"},
	}
	for _, u := range usages {
		cost, err := ComputeCost(table, u, false, markup)
		require.NoError(t, err)
		require.True(t, cost.FinalCost.Equal(cost.TotalCost.Mul(onePlus)), "%s: %s vs %s", u.Model, cost.FinalCost, cost.TotalCost)
		require.True(t, cost.Markup.Equal(cost.TotalCost.Mul(markup)))
		require.False(t, cost.FinalCost.IsNegative())
	}
}

func TestComputeCostDeterministic(t *testing.T) {
	table := DefaultTable()
	usage := Usage{Family: FamilyCompletion, Model: "gpt-4.1-nano", InputTokens: 31337, OutputTokens: 4242}
	first, err := ComputeCost(table, usage, true, DefaultMarkup)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		next, err := ComputeCost(table, usage, true, DefaultMarkup)
		require.NoError(t, err)
		require.Equal(t, first.FinalCost.String(), next.FinalCost.String())
		require.Equal(t, first.InputCost.String(), next.InputCost.String())
	}
}

func TestComputeCostRejectsUnknownFamily(t *testing.T) {
	_, err := ComputeCost(DefaultTable(), Usage{Family: "audio", Model: "whisper"}, false, DefaultMarkup)
	require.ErrorIs(t, err, ErrUnknownFamily)
}

func TestComputeCostClampsNegativeCounts(t *testing.T) {
	cost, err := ComputeCost(DefaultTable(), Usage{Family: FamilyCompletion, Model: "gpt-4o", InputTokens: -50, OutputTokens: -1}, false, DefaultMarkup)
	require.NoError(t, err)
	require.True(t, cost.FinalCost.IsZero())
}

func TestCalculatorUsesConfiguredMarkup(t *testing.T) {
	calc := NewCalculator(nil, dec(t, "0.5"))
	cost, err := calc.Compute(Usage{Family: FamilyCompletion, Model: "unknown", InputTokens: 1_000_000}, false)
	require.NoError(t, err)
	require.True(t, cost.FinalCost.Equal(dec(t, "1.5")))
	require.True(t, calc.Markup().Equal(dec(t, "0.5")))
	require.NotNil(t, calc.Table())
}
