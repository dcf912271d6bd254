package db

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type PricingOverride struct {
	Family                string             `json:"family"`
	Model                 string             `json:"model"`
	InputPerMillion       pgtype.Numeric     `json:"input_per_million"`
	OutputPerMillion      pgtype.Numeric     `json:"output_per_million"`
	CachedInputPerMillion pgtype.Numeric     `json:"cached_input_per_million"`
	PerThousandTokens     pgtype.Numeric     `json:"per_thousand_tokens"`
	ImageStandard         pgtype.Numeric     `json:"image_standard"`
	ImageHd               pgtype.Numeric     `json:"image_hd"`
	ImageStandardLarge    pgtype.Numeric     `json:"image_standard_large"`
	ImageHdLarge          pgtype.Numeric     `json:"image_hd_large"`
	Tombstone             bool               `json:"tombstone"`
	UpdatedBy             string             `json:"updated_by"`
	UpdatedAt             pgtype.Timestamptz `json:"updated_at"`
}

type BudgetSetting struct {
	Subject          string             `json:"subject"`
	MonthlyLimit     pgtype.Numeric     `json:"monthly_limit"`
	WeeklyLimit      pgtype.Numeric     `json:"weekly_limit"`
	DailyLimit       pgtype.Numeric     `json:"daily_limit"`
	Currency         string             `json:"currency"`
	WarningThreshold float64            `json:"warning_threshold"`
	UpdatedAt        pgtype.Timestamptz `json:"updated_at"`
}

type BudgetAlertEvent struct {
	ID           pgtype.UUID        `json:"id"`
	Subject      string             `json:"subject"`
	BudgetWindow string             `json:"budget_window"`
	Level        string             `json:"level"`
	Spent        pgtype.Numeric     `json:"spent"`
	LimitAmount  pgtype.Numeric     `json:"limit_amount"`
	Webhooks     []string           `json:"webhooks"`
	Success      bool               `json:"success"`
	Error        pgtype.Text        `json:"error"`
	CreatedAt    pgtype.Timestamptz `json:"created_at"`
}
