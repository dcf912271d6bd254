package usage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	decimal "github.com/shopspring/decimal"

	"github.com/ncecere/usage_console/internal/pricing"
	"github.com/ncecere/usage_console/internal/timeutil"
)

var ErrUnknownKind = errors.New("unknown usage kind")

// Kind is the wire discriminant of a usage record.
type Kind string

const (
	KindCompletion Kind = "CompletionModelUsage"
	KindEmbedding  Kind = "EmbeddingModelUsage"
	KindImage      Kind = "ImageModelUsage"
)

// ParseKind accepts the three wire discriminants, case-insensitively.
func ParseKind(value string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case strings.ToLower(string(KindCompletion)):
		return KindCompletion, nil
	case strings.ToLower(string(KindEmbedding)):
		return KindEmbedding, nil
	case strings.ToLower(string(KindImage)):
		return KindImage, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, value)
	}
}

// InferKind guesses the kind of a record that arrived without a discriminant.
func InferKind(model string) Kind {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "dall-e"), strings.Contains(m, "image"), strings.Contains(m, "midjourney"):
		return KindImage
	case strings.Contains(m, "embedding"):
		return KindEmbedding
	default:
		return KindCompletion
	}
}

// Family maps the kind onto its billing family.
func (k Kind) Family() (pricing.Family, error) {
	switch k {
	case KindCompletion:
		return pricing.FamilyCompletion, nil
	case KindEmbedding:
		return pricing.FamilyEmbedding, nil
	case KindImage:
		return pricing.FamilyImage, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
}

// Period locates a record in time. Timestamp wins over the calendar fields.
type Period struct {
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Day       *int       `json:"day,omitempty"`
	Month     *int       `json:"month,omitempty"`
	Year      *int       `json:"year,omitempty"`
}

// Dated reports whether any time information is present.
func (p Period) Dated() bool {
	return p.Timestamp != nil || p.Day != nil || p.Month != nil || p.Year != nil
}

// Date resolves the record's calendar day in loc.
func (p Period) Date(loc *time.Location) (time.Time, bool) {
	loc = timeutil.EnsureLocation(loc)
	if p.Timestamp != nil {
		return timeutil.TruncateToDay(*p.Timestamp, loc), true
	}
	if p.Year == nil || p.Month == nil || p.Day == nil {
		return time.Time{}, false
	}
	day := time.Date(*p.Year, time.Month(*p.Month), *p.Day, 0, 0, 0, 0, loc)
	if day.Year() != *p.Year || int(day.Month()) != *p.Month || day.Day() != *p.Day {
		return time.Time{}, false
	}
	return day, true
}

func (p Period) monthKey(loc *time.Location) (string, bool) {
	if p.Timestamp != nil {
		return p.Timestamp.In(timeutil.EnsureLocation(loc)).Format("2006-01"), true
	}
	if p.Year == nil || p.Month == nil || *p.Month < 1 || *p.Month > 12 {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d", *p.Year, *p.Month), true
}

func (p Period) yearKey(loc *time.Location) (string, bool) {
	if p.Timestamp != nil {
		return p.Timestamp.In(timeutil.EnsureLocation(loc)).Format("2006"), true
	}
	if p.Year == nil {
		return "", false
	}
	return fmt.Sprintf("%04d", *p.Year), true
}

// Record is a raw usage record as returned by the usage API. Field-name
// variants seen on the wire are resolved once, in UnmarshalJSON.
type Record struct {
	Kind         Kind            `json:"type"`
	Model        string          `json:"model"`
	Tag          string          `json:"tag,omitempty"`
	RequestCount int64           `json:"requests"`
	InputTokens  *int64          `json:"tokensIn,omitempty"`
	OutputTokens *int64          `json:"tokensOut,omitempty"`
	Quality      pricing.Quality `json:"quality,omitempty"`
	Width        int             `json:"sizeWidth,omitempty"`
	Height       int             `json:"sizeHeight,omitempty"`
	UserID       string          `json:"technicalUserId,omitempty"`
	UserName     string          `json:"technicalUserName,omitempty"`
	APIKeyID     string          `json:"apiKeyId,omitempty"`
	Period
}

var (
	kindFields      = []string{"type", "modelType"}
	modelFields     = []string{"model", "modelName"}
	tagFields       = []string{"tag"}
	requestFields   = []string{"requests", "requestCount"}
	inputFields     = []string{"requestTokens", "tokensIn", "inputTokens"}
	outputFields    = []string{"responseTokens", "tokensOut", "outputTokens"}
	qualityFields   = []string{"quality"}
	widthFields     = []string{"sizeWidth", "width"}
	heightFields    = []string{"sizeHeight", "height"}
	userIDFields    = []string{"technicalUserId", "technicalUSerid", "userId", "user_id"}
	userNameFields  = []string{"technicalUserName", "userName"}
	apiKeyFields    = []string{"apiKeyId", "api_key_id"}
	timestampFields = []string{"timestamp", "createDate"}
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// UnmarshalJSON decodes one wire record. Only an unrecognized discriminant is
// an error; malformed optional values are treated as absent.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode usage record: %w", err)
	}
	f := fields(raw)

	rec := Record{
		Model:        f.str(modelFields...),
		Tag:          f.str(tagFields...),
		Quality:      pricing.Quality(strings.ToLower(f.str(qualityFields...))),
		UserID:       f.str(userIDFields...),
		UserName:     f.str(userNameFields...),
		APIKeyID:     f.str(apiKeyFields...),
		InputTokens:  f.count(inputFields...),
		OutputTokens: f.count(outputFields...),
	}
	if kind := f.str(kindFields...); kind != "" {
		parsed, err := ParseKind(kind)
		if err != nil {
			return err
		}
		rec.Kind = parsed
	} else {
		rec.Kind = InferKind(rec.Model)
	}
	if rec.Quality != "" {
		rec.Quality = pricing.ParseQuality(string(rec.Quality))
	}
	if n := f.count(requestFields...); n != nil {
		rec.RequestCount = *n
	}
	if n := f.count(widthFields...); n != nil {
		rec.Width = int(*n)
	}
	if n := f.count(heightFields...); n != nil {
		rec.Height = int(*n)
	}
	if ts := f.str(timestampFields...); ts != "" {
		rec.Timestamp = parseTimestamp(ts)
	}
	rec.Day = f.calendar("day")
	rec.Month = f.calendar("month")
	rec.Year = f.calendar("year")

	*r = rec
	return nil
}

// ModelName implements Dimensional.
func (r Record) ModelName() string { return r.Model }

// User implements Dimensional.
func (r Record) User() string { return r.UserID }

// UsagePeriod implements Dimensional.
func (r Record) UsagePeriod() Period { return r.Period }

// DecodeRecords accepts a bare array of records, a usage response object
// ({"usage": [...]}) or the same wrapped in {"data": ...}.
func DecodeRecords(data []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var records []Record
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, err
		}
		return records, nil
	}
	var envelope struct {
		Usage []Record `json:"usage"`
		Data  *struct {
			Usage []Record `json:"usage"`
		} `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, err
	}
	if envelope.Data != nil && len(envelope.Usage) == 0 {
		return envelope.Data.Usage, nil
	}
	return envelope.Usage, nil
}

func parseTimestamp(value string) *time.Time {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return &ts
		}
	}
	return nil
}

type fields map[string]json.RawMessage

func (f fields) lookup(names ...string) (json.RawMessage, bool) {
	for _, name := range names {
		raw, ok := f[name]
		if !ok {
			continue
		}
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			continue
		}
		return trimmed, true
	}
	return nil, false
}

// str reads a string field. Numbers are accepted verbatim since some upstream
// versions send numeric user ids.
func (f fields) str(names ...string) string {
	raw, ok := f.lookup(names...)
	if !ok {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	if _, err := decimal.NewFromString(string(raw)); err == nil {
		return string(raw)
	}
	return ""
}

// count reads a non-negative integer from a number or numeric string.
func (f fields) count(names ...string) *int64 {
	raw, ok := f.lookup(names...)
	if !ok {
		return nil
	}
	text := strings.Trim(string(raw), `"`)
	d, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return nil
	}
	n := d.IntPart()
	if n < 0 {
		n = 0
	}
	return &n
}

func (f fields) calendar(name string) *int {
	n := f.count(name)
	if n == nil {
		return nil
	}
	v := int(*n)
	return &v
}
