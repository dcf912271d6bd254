package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getBudgetSettings = `-- name: GetBudgetSettings :one
SELECT subject, monthly_limit, weekly_limit, daily_limit, currency, warning_threshold, updated_at
FROM budget_settings
WHERE subject = $1
`

func (q *Queries) GetBudgetSettings(ctx context.Context, subject string) (BudgetSetting, error) {
	row := q.db.QueryRow(ctx, getBudgetSettings, subject)
	var i BudgetSetting
	err := row.Scan(
		&i.Subject,
		&i.MonthlyLimit,
		&i.WeeklyLimit,
		&i.DailyLimit,
		&i.Currency,
		&i.WarningThreshold,
		&i.UpdatedAt,
	)
	return i, err
}

const upsertBudgetSettings = `-- name: UpsertBudgetSettings :one
INSERT INTO budget_settings (subject, monthly_limit, weekly_limit, daily_limit, currency, warning_threshold, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())
ON CONFLICT (subject) DO UPDATE SET
    monthly_limit = EXCLUDED.monthly_limit,
    weekly_limit = EXCLUDED.weekly_limit,
    daily_limit = EXCLUDED.daily_limit,
    currency = EXCLUDED.currency,
    warning_threshold = EXCLUDED.warning_threshold,
    updated_at = NOW()
RETURNING subject, monthly_limit, weekly_limit, daily_limit, currency, warning_threshold, updated_at
`

type UpsertBudgetSettingsParams struct {
	Subject          string         `json:"subject"`
	MonthlyLimit     pgtype.Numeric `json:"monthly_limit"`
	WeeklyLimit      pgtype.Numeric `json:"weekly_limit"`
	DailyLimit       pgtype.Numeric `json:"daily_limit"`
	Currency         string         `json:"currency"`
	WarningThreshold float64        `json:"warning_threshold"`
}

func (q *Queries) UpsertBudgetSettings(ctx context.Context, arg UpsertBudgetSettingsParams) (BudgetSetting, error) {
	row := q.db.QueryRow(ctx, upsertBudgetSettings,
		arg.Subject,
		arg.MonthlyLimit,
		arg.WeeklyLimit,
		arg.DailyLimit,
		arg.Currency,
		arg.WarningThreshold,
	)
	var i BudgetSetting
	err := row.Scan(
		&i.Subject,
		&i.MonthlyLimit,
		&i.WeeklyLimit,
		&i.DailyLimit,
		&i.Currency,
		&i.WarningThreshold,
		&i.UpdatedAt,
	)
	return i, err
}

const insertBudgetAlertEvent = `-- name: InsertBudgetAlertEvent :exec
INSERT INTO budget_alert_events (id, subject, budget_window, level, spent, limit_amount, webhooks, success, error, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
`

type InsertBudgetAlertEventParams struct {
	ID           pgtype.UUID    `json:"id"`
	Subject      string         `json:"subject"`
	BudgetWindow string         `json:"budget_window"`
	Level        string         `json:"level"`
	Spent        pgtype.Numeric `json:"spent"`
	LimitAmount  pgtype.Numeric `json:"limit_amount"`
	Webhooks     []string       `json:"webhooks"`
	Success      bool           `json:"success"`
	Error        pgtype.Text    `json:"error"`
}

func (q *Queries) InsertBudgetAlertEvent(ctx context.Context, arg InsertBudgetAlertEventParams) error {
	_, err := q.db.Exec(ctx, insertBudgetAlertEvent,
		arg.ID,
		arg.Subject,
		arg.BudgetWindow,
		arg.Level,
		arg.Spent,
		arg.LimitAmount,
		arg.Webhooks,
		arg.Success,
		arg.Error,
	)
	return err
}

const listBudgetAlertEvents = `-- name: ListBudgetAlertEvents :many
SELECT id, subject, budget_window, level, spent, limit_amount, webhooks, success, error, created_at
FROM budget_alert_events
WHERE subject = $1
ORDER BY created_at DESC
LIMIT $2
`

type ListBudgetAlertEventsParams struct {
	Subject string `json:"subject"`
	Limit   int32  `json:"limit"`
}

func (q *Queries) ListBudgetAlertEvents(ctx context.Context, arg ListBudgetAlertEventsParams) ([]BudgetAlertEvent, error) {
	rows, err := q.db.Query(ctx, listBudgetAlertEvents, arg.Subject, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BudgetAlertEvent
	for rows.Next() {
		var i BudgetAlertEvent
		if err := rows.Scan(
			&i.ID,
			&i.Subject,
			&i.BudgetWindow,
			&i.Level,
			&i.Spent,
			&i.LimitAmount,
			&i.Webhooks,
			&i.Success,
			&i.Error,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
