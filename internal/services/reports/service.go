package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ncecere/usage_console/internal/auth"
	"github.com/ncecere/usage_console/internal/services/analytics"
	"github.com/ncecere/usage_console/internal/storage/blob"
	"github.com/ncecere/usage_console/internal/timeutil"
	"github.com/ncecere/usage_console/internal/usage"
)

const contentType = "text/csv; charset=utf-8"

var (
	ErrServiceUnavailable = errors.New("report service unavailable")
	ErrInvalidID          = errors.New("invalid report id")
	ErrNotFound           = errors.New("report not found")
)

// Snapshotter builds the usage snapshot a report is rendered from.
type Snapshotter interface {
	Snapshot(ctx context.Context, viewer *auth.Principal, q analytics.Query) (*analytics.Snapshot, error)
}

// Report describes a stored export.
type Report struct {
	ID        string          `json:"id"`
	Key       string          `json:"-"`
	Scope     analytics.Scope `json:"scope"`
	Degraded  bool            `json:"degraded"`
	FromDate  string          `json:"from_date"`
	ToDate    string          `json:"to_date"`
	Rows      int             `json:"rows"`
	Estimated int             `json:"estimated_rows"`
	Size      int64           `json:"size"`
	CreatedAt time.Time       `json:"created_at"`
}

// Service renders usage snapshots as CSV and keeps them in the blob store.
type Service struct {
	snapshots Snapshotter
	store     blob.Store
	currency  string
	now       func() time.Time
}

func NewService(snapshots Snapshotter, store blob.Store, currency string) *Service {
	return &Service{snapshots: snapshots, store: store, currency: currency, now: time.Now}
}

// Export renders the viewer's snapshot for q and stores it.
func (s *Service) Export(ctx context.Context, viewer *auth.Principal, q analytics.Query) (Report, error) {
	if s == nil || s.snapshots == nil || s.store == nil {
		return Report{}, ErrServiceUnavailable
	}
	snap, err := s.snapshots.Snapshot(ctx, viewer, q)
	if err != nil {
		return Report{}, err
	}

	var buf bytes.Buffer
	estimated, err := WriteCSV(&buf, snap.Records, s.currency, snap.Window().Location())
	if err != nil {
		return Report{}, err
	}

	id := uuid.NewString()
	key := objectKey(viewer.Subject, id)
	info, err := s.store.Put(ctx, key, &buf, blob.PutOptions{
		ContentType: contentType,
		Metadata: map[string]string{
			"subject":   viewer.Subject,
			"from-date": snap.FromDate,
			"to-date":   snap.ToDate,
			"scope":     string(snap.Scope),
		},
	})
	if err != nil {
		return Report{}, fmt.Errorf("store report: %w", err)
	}

	report := Report{
		ID:        id,
		Key:       key,
		Scope:     snap.Scope,
		Degraded:  snap.Degraded,
		FromDate:  snap.FromDate,
		ToDate:    snap.ToDate,
		Rows:      len(snap.Records),
		Estimated: estimated,
		Size:      info.Size,
		CreatedAt: s.now().UTC(),
	}
	slog.InfoContext(ctx, "usage report exported",
		slog.String("subject", viewer.Subject),
		slog.String("report_id", id),
		slog.Int("rows", report.Rows),
	)
	return report, nil
}

// Open streams a report previously exported by the same viewer. The caller
// closes the reader.
func (s *Service) Open(ctx context.Context, viewer *auth.Principal, id string) (io.ReadCloser, blob.ObjectInfo, error) {
	if s == nil || s.store == nil {
		return nil, blob.ObjectInfo{}, ErrServiceUnavailable
	}
	if viewer == nil {
		return nil, blob.ObjectInfo{}, ErrNotFound
	}
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, blob.ObjectInfo{}, ErrInvalidID
	}
	r, info, err := s.store.Get(ctx, objectKey(viewer.Subject, parsed.String()))
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, blob.ObjectInfo{}, ErrNotFound
		}
		return nil, blob.ObjectInfo{}, err
	}
	return r, info, nil
}

var header = []string{
	"date", "user_id", "user_name", "model", "type", "tag", "api_key_id",
	"requests", "tokens_in", "tokens_out", "total_tokens", "cost", "currency", "estimated",
}

// WriteCSV writes one row per record and returns how many rows carry
// estimated token counts. Undated records leave the date column empty.
func WriteCSV(w io.Writer, records []usage.EnhancedRecord, currency string, loc *time.Location) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return 0, err
	}
	estimated := 0
	for _, rec := range records {
		date := ""
		if day, ok := rec.Period.Date(loc); ok {
			date = day.Format(timeutil.DateLayout)
		}
		if rec.Estimated {
			estimated++
		}
		if err := cw.Write([]string{
			date,
			rec.UserID,
			rec.UserName,
			rec.Model,
			string(rec.Kind),
			rec.Tag,
			rec.APIKeyID,
			strconv.FormatInt(rec.RequestCount, 10),
			strconv.FormatInt(rec.InputTokens, 10),
			strconv.FormatInt(rec.OutputTokens, 10),
			strconv.FormatInt(rec.TotalTokens, 10),
			rec.Cost.StringFixed(6),
			currency,
			strconv.FormatBool(rec.Estimated),
		}); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	return estimated, cw.Error()
}

// objectKey lays reports out as reports/{subject}/{id}.csv. The subject is
// reduced to a path-safe form.
func objectKey(subject, id string) string {
	return fmt.Sprintf("reports/%s/%s.csv", safeSegment(subject), id)
}

func safeSegment(value string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(value) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '@':
			b.WriteRune(r)
		case r == '.' && b.Len() > 0:
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
