package pricing

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	decimal "github.com/shopspring/decimal"
)

// UnknownModel names the fallback entry every family must carry.
const UnknownModel = "unknown"

var (
	ErrUnknownFamily   = errors.New("unknown billing family")
	ErrInvalidEntry    = errors.New("invalid pricing entry")
	ErrMissingFallback = errors.New("pricing family missing unknown fallback")
)

// Family selects the billing model applied to a usage kind.
type Family string

const (
	FamilyCompletion Family = "completion"
	FamilyEmbedding  Family = "embedding"
	FamilyImage      Family = "image"
)

// Families lists the billing families in display order.
func Families() []Family {
	return []Family{FamilyCompletion, FamilyEmbedding, FamilyImage}
}

// ParseFamily converts a case-insensitive string to a Family.
func ParseFamily(value string) (Family, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(FamilyCompletion):
		return FamilyCompletion, true
	case string(FamilyEmbedding):
		return FamilyEmbedding, true
	case string(FamilyImage):
		return FamilyImage, true
	default:
		return "", false
	}
}

// Entry is one model's price. Only the fields of its family are meaningful:
// completion uses the per-million token prices, embedding the per-thousand
// price, image the per-image prices.
type Entry struct {
	Model string `json:"model"`

	InputPerMillion       decimal.Decimal     `json:"input_per_million"`
	OutputPerMillion      decimal.Decimal     `json:"output_per_million"`
	CachedInputPerMillion decimal.NullDecimal `json:"cached_input_per_million"`

	PerThousandTokens decimal.Decimal `json:"per_thousand_tokens"`

	ImageStandard      decimal.Decimal     `json:"image_standard"`
	ImageHD            decimal.Decimal     `json:"image_hd"`
	ImageStandardLarge decimal.NullDecimal `json:"image_standard_large"`
	ImageHDLarge       decimal.NullDecimal `json:"image_hd_large"`
}

// Validate rejects entries without a model or with negative prices.
func (e Entry) Validate() error { return e.validate() }

func (e Entry) validate() error {
	if strings.TrimSpace(e.Model) == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidEntry)
	}
	prices := []decimal.Decimal{
		e.InputPerMillion, e.OutputPerMillion, e.PerThousandTokens, e.ImageStandard, e.ImageHD,
	}
	for _, nd := range []decimal.NullDecimal{e.CachedInputPerMillion, e.ImageStandardLarge, e.ImageHDLarge} {
		if nd.Valid {
			prices = append(prices, nd.Decimal)
		}
	}
	for _, p := range prices {
		if p.IsNegative() {
			return fmt.Errorf("%w: %s has a negative price", ErrInvalidEntry, e.Model)
		}
	}
	return nil
}

// Table holds the per-family price lists. Lookups never fail: a miss returns
// the family's unknown entry. Safe for concurrent use.
type Table struct {
	mu       sync.RWMutex
	families map[Family][]Entry
}

// NewTable builds a table from seed entries. Every family must include an
// unknown entry.
func NewTable(seed map[Family][]Entry) (*Table, error) {
	t := &Table{families: make(map[Family][]Entry, len(seed))}
	for _, family := range Families() {
		entries := seed[family]
		list := make([]Entry, 0, len(entries))
		for _, entry := range entries {
			if err := entry.validate(); err != nil {
				return nil, err
			}
			list = upsertEntry(list, entry)
		}
		if _, ok := findEntry(list, UnknownModel); !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingFallback, family)
		}
		t.families[family] = list
	}
	for family := range seed {
		if _, ok := ParseFamily(string(family)); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFamily, family)
		}
	}
	return t, nil
}

// Lookup returns the entry for model, falling back to the family's unknown
// entry on a case-insensitive miss.
func (t *Table) Lookup(family Family, model string) (Entry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	list, ok := t.families[family]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownFamily, family)
	}
	if entry, ok := findEntry(list, model); ok {
		return entry, nil
	}
	entry, _ := findEntry(list, UnknownModel)
	return entry, nil
}

// Completion returns the completion price for model.
func (t *Table) Completion(model string) Entry {
	entry, _ := t.Lookup(FamilyCompletion, model)
	return entry
}

// Embedding returns the embedding price for model.
func (t *Table) Embedding(model string) Entry {
	entry, _ := t.Lookup(FamilyEmbedding, model)
	return entry
}

// Image returns the image price for model.
func (t *Table) Image(model string) Entry {
	entry, _ := t.Lookup(FamilyImage, model)
	return entry
}

// Has reports whether model has its own entry (not the fallback).
func (t *Table) Has(family Family, model string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := findEntry(t.families[family], model)
	return ok
}

// Upsert replaces the entry with the same model name or appends it.
func (t *Table) Upsert(family Family, entry Entry) error {
	if _, ok := ParseFamily(string(family)); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFamily, family)
	}
	entry.Model = strings.TrimSpace(entry.Model)
	if err := entry.validate(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.families[family] = upsertEntry(t.families[family], entry)
	return nil
}

// Remove deletes model from family. The unknown fallback cannot be removed.
func (t *Table) Remove(family Family, model string) bool {
	if strings.EqualFold(strings.TrimSpace(model), UnknownModel) {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	list := t.families[family]
	for i, entry := range list {
		if strings.EqualFold(entry.Model, strings.TrimSpace(model)) {
			t.families[family] = append(list[:i:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// Entries returns a copy of the family's entries in insertion order.
func (t *Table) Entries(family Family) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	list := t.families[family]
	out := make([]Entry, len(list))
	copy(out, list)
	return out
}

// Snapshot copies every family.
func (t *Table) Snapshot() map[Family][]Entry {
	out := make(map[Family][]Entry, len(Families()))
	for _, family := range Families() {
		out[family] = t.Entries(family)
	}
	return out
}

func findEntry(list []Entry, model string) (Entry, bool) {
	model = strings.TrimSpace(model)
	for _, entry := range list {
		if strings.EqualFold(entry.Model, model) {
			return entry, true
		}
	}
	return Entry{}, false
}

func upsertEntry(list []Entry, entry Entry) []Entry {
	for i := range list {
		if strings.EqualFold(list[i].Model, entry.Model) {
			list[i] = entry
			return list
		}
	}
	return append(list, entry)
}
