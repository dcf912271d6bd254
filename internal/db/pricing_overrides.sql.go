package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const pricingOverrideColumns = `family, model, input_per_million, output_per_million, cached_input_per_million,
    per_thousand_tokens, image_standard, image_hd, image_standard_large, image_hd_large,
    tombstone, updated_by, updated_at`

func scanPricingOverride(row interface{ Scan(...interface{}) error }) (PricingOverride, error) {
	var i PricingOverride
	err := row.Scan(
		&i.Family,
		&i.Model,
		&i.InputPerMillion,
		&i.OutputPerMillion,
		&i.CachedInputPerMillion,
		&i.PerThousandTokens,
		&i.ImageStandard,
		&i.ImageHd,
		&i.ImageStandardLarge,
		&i.ImageHdLarge,
		&i.Tombstone,
		&i.UpdatedBy,
		&i.UpdatedAt,
	)
	return i, err
}

const listPricingOverrides = `-- name: ListPricingOverrides :many
SELECT ` + pricingOverrideColumns + `
FROM pricing_overrides
ORDER BY family, model
`

func (q *Queries) ListPricingOverrides(ctx context.Context) ([]PricingOverride, error) {
	rows, err := q.db.Query(ctx, listPricingOverrides)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PricingOverride
	for rows.Next() {
		i, err := scanPricingOverride(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertPricingOverride = `-- name: UpsertPricingOverride :one
INSERT INTO pricing_overrides (
    family, model, input_per_million, output_per_million, cached_input_per_million,
    per_thousand_tokens, image_standard, image_hd, image_standard_large, image_hd_large,
    tombstone, updated_by, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, $11, NOW())
ON CONFLICT (family, model) DO UPDATE SET
    input_per_million = EXCLUDED.input_per_million,
    output_per_million = EXCLUDED.output_per_million,
    cached_input_per_million = EXCLUDED.cached_input_per_million,
    per_thousand_tokens = EXCLUDED.per_thousand_tokens,
    image_standard = EXCLUDED.image_standard,
    image_hd = EXCLUDED.image_hd,
    image_standard_large = EXCLUDED.image_standard_large,
    image_hd_large = EXCLUDED.image_hd_large,
    tombstone = FALSE,
    updated_by = EXCLUDED.updated_by,
    updated_at = NOW()
RETURNING ` + pricingOverrideColumns + `
`

type UpsertPricingOverrideParams struct {
	Family                string         `json:"family"`
	Model                 string         `json:"model"`
	InputPerMillion       pgtype.Numeric `json:"input_per_million"`
	OutputPerMillion      pgtype.Numeric `json:"output_per_million"`
	CachedInputPerMillion pgtype.Numeric `json:"cached_input_per_million"`
	PerThousandTokens     pgtype.Numeric `json:"per_thousand_tokens"`
	ImageStandard         pgtype.Numeric `json:"image_standard"`
	ImageHd               pgtype.Numeric `json:"image_hd"`
	ImageStandardLarge    pgtype.Numeric `json:"image_standard_large"`
	ImageHdLarge          pgtype.Numeric `json:"image_hd_large"`
	UpdatedBy             string         `json:"updated_by"`
}

func (q *Queries) UpsertPricingOverride(ctx context.Context, arg UpsertPricingOverrideParams) (PricingOverride, error) {
	row := q.db.QueryRow(ctx, upsertPricingOverride,
		arg.Family,
		arg.Model,
		arg.InputPerMillion,
		arg.OutputPerMillion,
		arg.CachedInputPerMillion,
		arg.PerThousandTokens,
		arg.ImageStandard,
		arg.ImageHd,
		arg.ImageStandardLarge,
		arg.ImageHdLarge,
		arg.UpdatedBy,
	)
	return scanPricingOverride(row)
}

const tombstonePricingOverride = `-- name: TombstonePricingOverride :exec
INSERT INTO pricing_overrides (family, model, tombstone, updated_by, updated_at)
VALUES ($1, $2, TRUE, $3, NOW())
ON CONFLICT (family, model) DO UPDATE SET
    tombstone = TRUE,
    updated_by = EXCLUDED.updated_by,
    updated_at = NOW()
`

type TombstonePricingOverrideParams struct {
	Family    string `json:"family"`
	Model     string `json:"model"`
	UpdatedBy string `json:"updated_by"`
}

func (q *Queries) TombstonePricingOverride(ctx context.Context, arg TombstonePricingOverrideParams) error {
	_, err := q.db.Exec(ctx, tombstonePricingOverride, arg.Family, arg.Model, arg.UpdatedBy)
	return err
}
