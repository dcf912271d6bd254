package adminpricing

import (
	decimal "github.com/shopspring/decimal"

	"github.com/ncecere/usage_console/internal/config"
	"github.com/ncecere/usage_console/internal/pricing"
)

// SeedEntries merges the configured price entries over the default sheet.
func SeedEntries(cfg config.PricingConfig) map[pricing.Family][]pricing.Entry {
	seed := pricing.DefaultEntries()
	for _, e := range cfg.Completion {
		seed[pricing.FamilyCompletion] = append(seed[pricing.FamilyCompletion], pricing.Entry{
			Model:                 e.Model,
			InputPerMillion:       decimal.NewFromFloat(e.InputPerMillion),
			OutputPerMillion:      decimal.NewFromFloat(e.OutputPerMillion),
			CachedInputPerMillion: nullFromFloat(e.CachedInputPerMillion),
		})
	}
	for _, e := range cfg.Embedding {
		seed[pricing.FamilyEmbedding] = append(seed[pricing.FamilyEmbedding], pricing.Entry{
			Model:             e.Model,
			PerThousandTokens: decimal.NewFromFloat(e.PerThousandTokens),
		})
	}
	for _, e := range cfg.Image {
		seed[pricing.FamilyImage] = append(seed[pricing.FamilyImage], pricing.Entry{
			Model:              e.Model,
			ImageStandard:      decimal.NewFromFloat(e.Standard),
			ImageHD:            decimal.NewFromFloat(e.HD),
			ImageStandardLarge: nullFromFloat(e.StandardLarge),
			ImageHDLarge:       nullFromFloat(e.HDLarge),
		})
	}
	return seed
}

// SeedTable builds the live table from defaults plus configuration.
// Later entries replace earlier ones with the same model name.
func SeedTable(cfg config.PricingConfig) (*pricing.Table, error) {
	return pricing.NewTable(SeedEntries(cfg))
}

// Markup returns the configured markup as a decimal.
func Markup(cfg config.PricingConfig) decimal.Decimal {
	return decimal.NewFromFloat(cfg.Markup)
}

// ConfigEntries returns only the configured entries, keyed by family.
func ConfigEntries(cfg config.PricingConfig) map[pricing.Family][]pricing.Entry {
	defaults := pricing.DefaultEntries()
	seed := SeedEntries(cfg)
	out := make(map[pricing.Family][]pricing.Entry, len(seed))
	for family, entries := range seed {
		out[family] = entries[len(defaults[family]):]
	}
	return out
}

func nullFromFloat(v *float64) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*v))
}
