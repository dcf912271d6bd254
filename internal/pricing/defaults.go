package pricing

import decimal "github.com/shopspring/decimal"

// DefaultMarkup is the service surcharge applied on top of vendor cost.
var DefaultMarkup = decimal.RequireFromString("0.09")

// DefaultCurrency is the currency the default price sheet is quoted in.
const DefaultCurrency = "EUR"

// DefaultEntries returns the canonical price sheet. Completion prices are per
// million tokens, embedding prices per thousand tokens, image prices per image.
func DefaultEntries() map[Family][]Entry {
	return map[Family][]Entry{
		FamilyCompletion: {
			completion("gpt-4o-mini", "0.94", "3.76", ""),
			completion("gpt-4o", "2.17", "8.68", ""),
			completion("gpt-4.1", "1.71", "6.84", "0.43"),
			completion("gpt-4.1-mini", "0.35", "1.37", "0.09"),
			completion("gpt-4.1-nano", "0.09", "0.35", "0.03"),
			completion("gpt-3.5-turbo", "0.15", "0.2", ""),
			completion("claude-3-sonnet", "3.0", "15.0", ""),
			completion("claude-3-haiku", "0.25", "1.25", ""),
			completion(UnknownModel, "1.0", "3.0", ""),
		},
		FamilyEmbedding: {
			embedding("text-embedding-ada-002", "0.000087"),
			embedding("text-embedding-3-large", "0.000113"),
			embedding("text-embedding-3-small", "0.000018"),
			embedding(UnknownModel, "0.0001"),
		},
		FamilyImage: {
			image("dall-e-3", "0.03472", "0.06943", "0.06943", "0.10415"),
			image("dall-e-2", "0", "0", "", ""),
			image("midjourney-v6", "0.05", "0.08", "", ""),
			image(UnknownModel, "0.03472", "0.06943", "", ""),
		},
	}
}

// DefaultTable builds a table from DefaultEntries.
func DefaultTable() *Table {
	t, err := NewTable(DefaultEntries())
	if err != nil {
		panic(err)
	}
	return t
}

func completion(model, input, output, cached string) Entry {
	return Entry{
		Model:                 model,
		InputPerMillion:       decimal.RequireFromString(input),
		OutputPerMillion:      decimal.RequireFromString(output),
		CachedInputPerMillion: nullDecimal(cached),
	}
}

func embedding(model, perThousand string) Entry {
	return Entry{Model: model, PerThousandTokens: decimal.RequireFromString(perThousand)}
}

func image(model, standard, hd, standardLarge, hdLarge string) Entry {
	return Entry{
		Model:              model,
		ImageStandard:      decimal.RequireFromString(standard),
		ImageHD:            decimal.RequireFromString(hd),
		ImageStandardLarge: nullDecimal(standardLarge),
		ImageHDLarge:       nullDecimal(hdLarge),
	}
}

func nullDecimal(value string) decimal.NullDecimal {
	if value == "" {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.RequireFromString(value))
}
