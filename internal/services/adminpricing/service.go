package adminpricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	decimal "github.com/shopspring/decimal"

	"github.com/ncecere/usage_console/internal/db"
	"github.com/ncecere/usage_console/internal/pricing"
	"github.com/ncecere/usage_console/internal/usage"
)

var (
	ErrServiceUnavailable = errors.New("pricing service not initialized")
	ErrModelRequired      = errors.New("model is required")
	ErrFallbackRemoval    = errors.New("the unknown fallback entry cannot be removed")
	ErrEntryNotFound      = errors.New("pricing entry not found")
)

// OverrideStore persists admin edits to the price sheet.
type OverrideStore interface {
	ListPricingOverrides(ctx context.Context) ([]db.PricingOverride, error)
	UpsertPricingOverride(ctx context.Context, arg db.UpsertPricingOverrideParams) (db.PricingOverride, error)
	TombstonePricingOverride(ctx context.Context, arg db.TombstonePricingOverrideParams) error
}

// Service lists, edits and quotes against the live pricing table.
type Service struct {
	calc     *pricing.Calculator
	store    OverrideStore
	currency string
	logger   *slog.Logger
}

// NewService constructs a pricing service. store may be nil, in which case
// edits only affect the running process.
func NewService(calc *pricing.Calculator, store OverrideStore, currency string) *Service {
	if currency == "" {
		currency = pricing.DefaultCurrency
	}
	return &Service{calc: calc, store: store, currency: currency, logger: slog.Default()}
}

// Sheet is the effective price sheet.
type Sheet struct {
	Currency string                             `json:"currency"`
	Markup   decimal.Decimal                    `json:"markup"`
	Families map[pricing.Family][]pricing.Entry `json:"families"`
}

func (s *Service) List() (Sheet, error) {
	if s == nil || s.calc == nil {
		return Sheet{}, ErrServiceUnavailable
	}
	return Sheet{
		Currency: s.currency,
		Markup:   s.calc.Markup(),
		Families: s.calc.Table().Snapshot(),
	}, nil
}

// Upsert saves entry for family and applies it to the live table.
func (s *Service) Upsert(ctx context.Context, family string, entry pricing.Entry, actor string) (pricing.Entry, error) {
	if s == nil || s.calc == nil {
		return pricing.Entry{}, ErrServiceUnavailable
	}
	fam, ok := pricing.ParseFamily(family)
	if !ok {
		return pricing.Entry{}, fmt.Errorf("%w: %s", pricing.ErrUnknownFamily, family)
	}
	entry.Model = strings.ToLower(strings.TrimSpace(entry.Model))
	if entry.Model == "" {
		return pricing.Entry{}, ErrModelRequired
	}
	if err := entry.Validate(); err != nil {
		return pricing.Entry{}, err
	}

	if s.store != nil {
		if _, err := s.store.UpsertPricingOverride(ctx, upsertParams(fam, entry, actor)); err != nil {
			return pricing.Entry{}, fmt.Errorf("persist pricing override: %w", err)
		}
	}
	if err := s.calc.Table().Upsert(fam, entry); err != nil {
		return pricing.Entry{}, err
	}
	s.logger.InfoContext(ctx, "pricing entry updated",
		slog.String("family", string(fam)),
		slog.String("model", entry.Model),
		slog.String("actor", actor),
	)
	return entry, nil
}

// Remove drops model from family. Removing a default entry is persisted as a
// tombstone so it stays removed after restart.
func (s *Service) Remove(ctx context.Context, family, model, actor string) error {
	if s == nil || s.calc == nil {
		return ErrServiceUnavailable
	}
	fam, ok := pricing.ParseFamily(family)
	if !ok {
		return fmt.Errorf("%w: %s", pricing.ErrUnknownFamily, family)
	}
	model = strings.ToLower(strings.TrimSpace(model))
	if model == "" {
		return ErrModelRequired
	}
	if model == pricing.UnknownModel {
		return ErrFallbackRemoval
	}
	if !s.calc.Table().Has(fam, model) {
		return ErrEntryNotFound
	}
	if s.store != nil {
		if err := s.store.TombstonePricingOverride(ctx, db.TombstonePricingOverrideParams{
			Family:    string(fam),
			Model:     model,
			UpdatedBy: actor,
		}); err != nil {
			return fmt.Errorf("persist pricing tombstone: %w", err)
		}
	}
	s.calc.Table().Remove(fam, model)
	s.logger.InfoContext(ctx, "pricing entry removed",
		slog.String("family", string(fam)),
		slog.String("model", model),
		slog.String("actor", actor),
	)
	return nil
}

// LoadOverrides applies persisted edits to the live table and returns how
// many were applied.
func (s *Service) LoadOverrides(ctx context.Context) (int, error) {
	if s == nil || s.calc == nil {
		return 0, ErrServiceUnavailable
	}
	if s.store == nil {
		return 0, nil
	}
	overrides, err := s.store.ListPricingOverrides(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pricing overrides: %w", err)
	}
	applied := 0
	for _, o := range overrides {
		fam, ok := pricing.ParseFamily(o.Family)
		if !ok {
			s.logger.WarnContext(ctx, "skipping pricing override with unknown family", slog.String("family", o.Family))
			continue
		}
		if o.Tombstone {
			if s.calc.Table().Remove(fam, o.Model) {
				applied++
			}
			continue
		}
		if err := s.calc.Table().Upsert(fam, entryFromOverride(o)); err != nil {
			s.logger.WarnContext(ctx, "skipping invalid pricing override",
				slog.String("family", o.Family),
				slog.String("model", o.Model),
				slog.String("error", err.Error()),
			)
			continue
		}
		applied++
	}
	return applied, nil
}

// Seed writes entries into the override store without touching the live table.
func (s *Service) Seed(ctx context.Context, entries map[pricing.Family][]pricing.Entry, actor string) (int, error) {
	if s == nil || s.store == nil {
		return 0, ErrServiceUnavailable
	}
	written := 0
	for _, fam := range pricing.Families() {
		for _, entry := range entries[fam] {
			entry.Model = strings.ToLower(strings.TrimSpace(entry.Model))
			if entry.Model == "" {
				continue
			}
			if _, err := s.store.UpsertPricingOverride(ctx, upsertParams(fam, entry, actor)); err != nil {
				return written, fmt.Errorf("seed %s/%s: %w", fam, entry.Model, err)
			}
			written++
		}
	}
	return written, nil
}

// QuoteRequest prices an ad-hoc list of usage records.
type QuoteRequest struct {
	Records               []usage.Record `json:"records"`
	UseCachedInputPricing bool           `json:"use_cached_input_pricing"`
}

type QuoteLine struct {
	Model        string       `json:"model"`
	Kind         usage.Kind   `json:"type"`
	Requests     int64        `json:"requests"`
	InputTokens  int64        `json:"tokensIn"`
	OutputTokens int64        `json:"tokensOut"`
	Estimated    bool         `json:"estimated"`
	Fallback     bool         `json:"fallback_price"`
	Cost         pricing.Cost `json:"cost"`
}

type Quote struct {
	Currency string       `json:"currency"`
	Lines    []QuoteLine  `json:"lines"`
	Total    pricing.Cost `json:"total"`
}

// Quote prices records line by line. Token estimation matches the usage views.
func (s *Service) Quote(req QuoteRequest) (Quote, error) {
	if s == nil || s.calc == nil {
		return Quote{}, ErrServiceUnavailable
	}
	normalizer := usage.NewNormalizer(s.calc)
	quote := Quote{Currency: s.currency, Lines: make([]QuoteLine, 0, len(req.Records))}
	for i, rec := range req.Records {
		normalized, err := normalizer.Normalize(rec, i)
		if err != nil {
			return Quote{}, fmt.Errorf("record %d: %w", i, err)
		}
		family, _ := normalized.Kind.Family()
		cost, err := s.calc.Compute(pricing.Usage{
			Family:       family,
			Model:        normalized.Model,
			InputTokens:  normalized.InputTokens,
			OutputTokens: normalized.OutputTokens,
			RequestCount: normalized.RequestCount,
			Quality:      pricing.ParseQuality(string(rec.Quality)),
			Width:        rec.Width,
			Height:       rec.Height,
		}, req.UseCachedInputPricing)
		if err != nil {
			return Quote{}, fmt.Errorf("record %d: %w", i, err)
		}
		quote.Lines = append(quote.Lines, QuoteLine{
			Model:        normalized.Model,
			Kind:         normalized.Kind,
			Requests:     normalized.RequestCount,
			InputTokens:  normalized.InputTokens,
			OutputTokens: normalized.OutputTokens,
			Estimated:    normalized.Estimated,
			Fallback:     !s.calc.Table().Has(family, normalized.Model),
			Cost:         cost,
		})
		quote.Total = addCost(quote.Total, cost)
	}
	return quote, nil
}

func addCost(a, b pricing.Cost) pricing.Cost {
	return pricing.Cost{
		InputCost:  a.InputCost.Add(b.InputCost),
		OutputCost: a.OutputCost.Add(b.OutputCost),
		TotalCost:  a.TotalCost.Add(b.TotalCost),
		Markup:     a.Markup.Add(b.Markup),
		FinalCost:  a.FinalCost.Add(b.FinalCost),
	}
}

func upsertParams(fam pricing.Family, e pricing.Entry, actor string) db.UpsertPricingOverrideParams {
	return db.UpsertPricingOverrideParams{
		Family:                string(fam),
		Model:                 e.Model,
		InputPerMillion:       db.NumericFromDecimal(e.InputPerMillion),
		OutputPerMillion:      db.NumericFromDecimal(e.OutputPerMillion),
		CachedInputPerMillion: db.NumericFromNullDecimal(e.CachedInputPerMillion),
		PerThousandTokens:     db.NumericFromDecimal(e.PerThousandTokens),
		ImageStandard:         db.NumericFromDecimal(e.ImageStandard),
		ImageHd:               db.NumericFromDecimal(e.ImageHD),
		ImageStandardLarge:    db.NumericFromNullDecimal(e.ImageStandardLarge),
		ImageHdLarge:          db.NumericFromNullDecimal(e.ImageHDLarge),
		UpdatedBy:             actor,
	}
}

func entryFromOverride(o db.PricingOverride) pricing.Entry {
	return pricing.Entry{
		Model:                 o.Model,
		InputPerMillion:       db.DecimalFromNumeric(o.InputPerMillion),
		OutputPerMillion:      db.DecimalFromNumeric(o.OutputPerMillion),
		CachedInputPerMillion: db.NullDecimalFromNumeric(o.CachedInputPerMillion),
		PerThousandTokens:     db.DecimalFromNumeric(o.PerThousandTokens),
		ImageStandard:         db.DecimalFromNumeric(o.ImageStandard),
		ImageHD:               db.DecimalFromNumeric(o.ImageHd),
		ImageStandardLarge:    db.NullDecimalFromNumeric(o.ImageStandardLarge),
		ImageHDLarge:          db.NullDecimalFromNumeric(o.ImageHdLarge),
	}
}
