package usage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ncecere/usage_console/internal/pricing"
)

func TestRecordDecodeResolvesAliases(t *testing.T) {
	payload := `{
		"modelType": "CompletionModelUsage",
		"modelName": "gpt-4o",
		"requestCount": 3,
		"requestTokens": 1200,
		"responseTokens": "800",
		"technicalUSerid": 42,
		"userName": "build-bot",
		"api_key_id": "key-1",
		"createDate": "2025-03-04T10:15:00Z"
	}`
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(payload), &rec))

	require.Equal(t, KindCompletion, rec.Kind)
	require.Equal(t, "gpt-4o", rec.Model)
	require.EqualValues(t, 3, rec.RequestCount)
	require.NotNil(t, rec.InputTokens)
	require.EqualValues(t, 1200, *rec.InputTokens)
	require.NotNil(t, rec.OutputTokens)
	require.EqualValues(t, 800, *rec.OutputTokens)
	require.Equal(t, "42", rec.UserID)
	require.Equal(t, "build-bot", rec.UserName)
	require.Equal(t, "key-1", rec.APIKeyID)
	require.NotNil(t, rec.Timestamp)
	require.True(t, rec.Timestamp.Equal(time.Date(2025, 3, 4, 10, 15, 0, 0, time.UTC)))
}

func TestRecordDecodeDefaults(t *testing.T) {
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(`{"model":"dall-e-3","quality":"HD","width":1792,"height":"1024"}`), &rec))
	require.Equal(t, KindImage, rec.Kind)
	require.Zero(t, rec.RequestCount)
	require.Equal(t, pricing.QualityHD, rec.Quality)
	require.Equal(t, 1792, rec.Width)
	require.Equal(t, 1024, rec.Height)
	require.False(t, rec.Dated())
	require.Nil(t, rec.InputTokens)
}

func TestRecordDecodeMalformedOptionalValues(t *testing.T) {
	var rec Record
	payload := `{"type":"EmbeddingModelUsage","model":"text-embedding-3-small","tokensIn":"lots","timestamp":"yesterday"}`
	require.NoError(t, json.Unmarshal([]byte(payload), &rec))
	require.Nil(t, rec.InputTokens)
	require.Nil(t, rec.Timestamp)
}

func TestRecordDecodeUnknownKind(t *testing.T) {
	var rec Record
	err := json.Unmarshal([]byte(`{"type":"AudioModelUsage","model":"whisper"}`), &rec)
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestInferKind(t *testing.T) {
	cases := map[string]Kind{
		"dall-e-2":               KindImage,
		"Midjourney-V6":          KindImage,
		"gpt-image-1":            KindImage,
		"text-embedding-3-large": KindEmbedding,
		"gpt-4o":                 KindCompletion,
		"":                       KindCompletion,
	}
	for model, want := range cases {
		require.Equal(t, want, InferKind(model), model)
	}
}

func TestDecodeRecordsEnvelopes(t *testing.T) {
	item := `{"type":"CompletionModelUsage","model":"gpt-4o","requests":1}`
	for _, payload := range []string{
		"[" + item + "]",
		`{"from_date":"2025-01-01","to_date":"2025-01-31","usage":[` + item + `]}`,
		`{"data":{"usage":[` + item + `]}}`,
	} {
		records, err := DecodeRecords([]byte(payload))
		require.NoError(t, err, payload)
		require.Len(t, records, 1, payload)
		require.Equal(t, "gpt-4o", records[0].Model)
	}

	records, err := DecodeRecords([]byte("  "))
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestPeriodDate(t *testing.T) {
	day, month, year := 31, 12, 2024
	p := Period{Day: &day, Month: &month, Year: &year}
	got, ok := p.Date(time.UTC)
	require.True(t, ok)
	require.Equal(t, "2024-12-31", got.Format("2006-01-02"))

	partial := Period{Month: &month, Year: &year}
	_, ok = partial.Date(time.UTC)
	require.False(t, ok)
	key, ok := partial.monthKey(time.UTC)
	require.True(t, ok)
	require.Equal(t, "2024-12", key)

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	ts := time.Date(2025, 1, 1, 2, 0, 0, 0, time.UTC)
	got, ok = Period{Timestamp: &ts}.Date(loc)
	require.True(t, ok)
	require.Equal(t, "2024-12-31", got.Format("2006-01-02"))
}

func TestPeriodDateRejectsImpossibleDays(t *testing.T) {
	year, feb, day31 := 2025, 2, 31
	p := Period{Year: &year, Month: &feb, Day: &day31}
	_, ok := p.Date(time.UTC)
	require.False(t, ok)

	leap, day29 := 2024, 29
	got, ok := Period{Year: &leap, Month: &feb, Day: &day29}.Date(time.UTC)
	require.True(t, ok)
	require.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), got)

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	require.Empty(t, FilterByDateRange([]Record{{Kind: KindCompletion, Period: p}}, &from, &to))
}
