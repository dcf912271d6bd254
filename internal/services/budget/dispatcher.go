package budget

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ncecere/usage_console/internal/db"
)

// EventStore persists dispatched alerts; *db.Queries satisfies it.
type EventStore interface {
	InsertBudgetAlertEvent(ctx context.Context, arg db.InsertBudgetAlertEventParams) error
}

// AlertRecorder counts dispatched alerts.
type AlertRecorder interface {
	RecordBudgetAlert(window, level string, success bool)
}

type alertSnapshot struct {
	Level AlertLevel
	Sent  time.Time
}

// AlertDispatcher sends one alert per window and level. A repeat of the same
// level is held back until the cooldown passes; an escalation from warning to
// exceeded is sent immediately.
type AlertDispatcher struct {
	sink     AlertSink
	events   EventStore
	metrics  AlertRecorder
	webhooks []string
	cooldown time.Duration

	stateMu sync.Mutex
	state   map[string]alertSnapshot
}

func NewAlertDispatcher(sink AlertSink, events EventStore, metrics AlertRecorder, webhooks []string, cooldown time.Duration) *AlertDispatcher {
	if sink == nil {
		sink = NewLogAlertSink(nil)
	}
	if cooldown <= 0 {
		cooldown = time.Hour
	}
	return &AlertDispatcher{
		sink:     sink,
		events:   events,
		metrics:  metrics,
		webhooks: webhooks,
		cooldown: cooldown,
		state:    make(map[string]alertSnapshot),
	}
}

// Dispatch notifies for every window of status at warning level or above and
// returns how many alerts were sent.
func (a *AlertDispatcher) Dispatch(ctx context.Context, status Status) (int, error) {
	if a == nil {
		return 0, nil
	}
	sent := 0
	var firstErr error
	for _, window := range status.Windows {
		key := status.Subject + "/" + string(window.Window)
		level := window.Level()
		if level == AlertLevelNone {
			a.storeState(key, alertSnapshot{})
			continue
		}

		prev := a.loadState(key)
		if !prev.Sent.IsZero() {
			elapsed := status.EvaluatedAt.Sub(prev.Sent)
			if elapsed < a.cooldown && alertSeverity(level) <= alertSeverity(prev.Level) {
				continue
			}
		}

		payload := AlertPayload{
			Subject:   status.Subject,
			Level:     level,
			Window:    window,
			Currency:  status.Currency,
			Webhooks:  a.webhooks,
			Timestamp: status.EvaluatedAt,
		}
		err := a.sink.Notify(ctx, payload)
		a.recordAlertEvent(ctx, payload, err)
		if a.metrics != nil {
			a.metrics.RecordBudgetAlert(string(window.Window), string(level), err == nil)
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		a.storeState(key, alertSnapshot{Level: level, Sent: status.EvaluatedAt})
		sent++
	}
	return sent, firstErr
}

func (a *AlertDispatcher) loadState(key string) alertSnapshot {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.state[key]
}

func (a *AlertDispatcher) storeState(key string, snapshot alertSnapshot) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if snapshot.Level == AlertLevelNone || snapshot.Sent.IsZero() {
		delete(a.state, key)
		return
	}
	a.state[key] = snapshot
}

func (a *AlertDispatcher) recordAlertEvent(ctx context.Context, payload AlertPayload, notifyErr error) {
	if a.events == nil {
		return
	}
	var errText pgtype.Text
	if notifyErr != nil {
		errText = pgtype.Text{String: notifyErr.Error(), Valid: true}
	}
	params := db.InsertBudgetAlertEventParams{
		ID:           pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Subject:      payload.Subject,
		BudgetWindow: string(payload.Window.Window),
		Level:        string(payload.Level),
		Spent:        db.NumericFromDecimal(payload.Window.Spent),
		LimitAmount:  db.NumericFromDecimal(payload.Window.Limit),
		Webhooks:     payload.Webhooks,
		Success:      notifyErr == nil,
		Error:        errText,
	}
	if err := a.events.InsertBudgetAlertEvent(ctx, params); err != nil {
		slog.WarnContext(ctx, "record budget alert failed",
			slog.String("subject", payload.Subject),
			slog.String("error", err.Error()),
		)
	}
}
