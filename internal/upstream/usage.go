package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"

	"github.com/ncecere/usage_console/internal/usage"
)

const (
	endpointOwnUsage     = "/usage/ai"
	endpointOwnSummary   = "/usage/ai/summarize"
	endpointAdminSummary = "/admin/usage/ai/summarize"
)

// Query holds the upstream usage filters. Dates are YYYY-MM-DD.
type Query struct {
	FromDate        string
	ToDate          string
	By              string
	Model           string
	TechnicalUserID string
}

func (q Query) values(withBy bool) url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			v.Set(key, value)
		}
	}
	set("from_date", q.FromDate)
	set("to_date", q.ToDate)
	set("model", q.Model)
	set("technicalUserId", q.TechnicalUserID)
	if withBy {
		set("by", q.By)
	}
	return v
}

// Report is a usage response: detailed or summarized records for a date range.
type Report struct {
	FromDate        string         `json:"from_date"`
	ToDate          string         `json:"to_date"`
	TechnicalUserID string         `json:"technicalUserId,omitempty"`
	Records         []usage.Record `json:"usage"`
}

// decode tolerates the platform's loosely typed envelope fields (to_date and
// technicalUserId arrive as numbers on some endpoints).
func (r *Report) decode(data []byte) error {
	var envelope struct {
		FromDate        any `json:"from_date"`
		ToDate          any `json:"to_date"`
		TechnicalUserID any `json:"technicalUserId"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("decode usage response: %w", err)
	}
	records, err := usage.DecodeRecords(data)
	if err != nil {
		return fmt.Errorf("decode usage records: %w", err)
	}
	r.FromDate = looseString(envelope.FromDate)
	r.ToDate = looseString(envelope.ToDate)
	r.TechnicalUserID = looseString(envelope.TechnicalUserID)
	r.Records = records
	return nil
}

func looseString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// OwnUsage returns the caller's detailed usage records.
func (c *Client) OwnUsage(ctx context.Context, ts oauth2.TokenSource, q Query) (*Report, error) {
	var report Report
	if err := c.do(ctx, ts, http.MethodGet, endpointOwnUsage, q.values(false), nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// OwnSummary returns the caller's summarized usage.
func (c *Client) OwnSummary(ctx context.Context, ts oauth2.TokenSource, q Query) (*Report, error) {
	var report Report
	if err := c.do(ctx, ts, http.MethodGet, endpointOwnSummary, q.values(true), nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// AdminSummary returns summarized usage across all users. Requires admin rights upstream.
func (c *Client) AdminSummary(ctx context.Context, ts oauth2.TokenSource, q Query) (*Report, error) {
	var report Report
	if err := c.do(ctx, ts, http.MethodGet, endpointAdminSummary, q.values(true), nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}
