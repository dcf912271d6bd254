package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ncecere/usage_console/internal/config"
	"github.com/ncecere/usage_console/internal/pricing"
	"github.com/ncecere/usage_console/internal/services/adminpricing"
	"github.com/ncecere/usage_console/internal/timeutil"
	"github.com/ncecere/usage_console/internal/usage"
)

var (
	flagConfig   string
	flagInput    string
	flagFrom     string
	flagTo       string
	flagModel    string
	flagUser     string
	flagTimezone string
	flagTop      int
)

var rootCmd = &cobra.Command{
	Use:           "usagereport",
	Short:         "Offline usage reports",
	Long:          "Price and summarize a usage export without a running console.",
	RunE:          runSummary,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Config file with a pricing section")
	rootCmd.PersistentFlags().StringVarP(&flagInput, "input", "i", "-", "Usage export JSON file, - for stdin")
	rootCmd.PersistentFlags().StringVar(&flagFrom, "from", "", "First day to include (YYYY-MM-DD)")
	rootCmd.PersistentFlags().StringVar(&flagTo, "to", "", "Last day to include (YYYY-MM-DD)")
	rootCmd.PersistentFlags().StringVarP(&flagModel, "model", "m", "", "Filter to model")
	rootCmd.PersistentFlags().StringVarP(&flagUser, "user", "u", "", "Filter to user id")
	rootCmd.PersistentFlags().StringVar(&flagTimezone, "tz", "UTC", "Reporting timezone")
	rootCmd.PersistentFlags().IntVarP(&flagTop, "top", "n", 10, "Rows to show in ranked tables, 0 for all")
}

// report is the priced, filtered record set every subcommand renders from.
type report struct {
	records  []usage.EnhancedRecord
	currency string
	loc      *time.Location
}

func loadReport(stdin io.Reader) (*report, error) {
	loc, err := timeutil.LoadLocation(flagTimezone)
	if err != nil {
		return nil, err
	}
	pricingCfg, err := config.LoadPricing(flagConfig)
	if err != nil {
		return nil, err
	}
	table, err := adminpricing.SeedTable(pricingCfg)
	if err != nil {
		return nil, fmt.Errorf("pricing table: %w", err)
	}
	calc := pricing.NewCalculator(table, adminpricing.Markup(pricingCfg))

	data, err := readInput(flagInput, stdin)
	if err != nil {
		return nil, err
	}
	raw, err := usage.DecodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("decode usage: %w", err)
	}
	records, err := usage.NewNormalizer(calc).NormalizeAll(raw)
	if err != nil {
		return nil, fmt.Errorf("normalize usage: %w", err)
	}

	from, err := parseBound(flagFrom, loc)
	if err != nil {
		return nil, err
	}
	to, err := parseBound(flagTo, loc)
	if err != nil {
		return nil, err
	}
	records = usage.FilterByModel(records, flagModel)
	records = usage.FilterByUser(records, flagUser)
	records = usage.FilterByDateRange(records, from, to)

	return &report{records: records, currency: pricingCfg.Currency, loc: loc}, nil
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

func parseBound(value string, loc *time.Location) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	day, err := timeutil.ParseDate(value, loc)
	if err != nil {
		return nil, err
	}
	return &day, nil
}

func runSummary(cmd *cobra.Command, _ []string) error {
	rep, err := loadReport(cmd.InOrStdin())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	agg := usage.Aggregate(rep.records)

	fmt.Fprintln(out, renderTitle("Usage summary"))
	fmt.Fprintln(out, renderTable(table{
		Headers: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Requests", formatCount(agg.TotalRequests)},
			{"Input tokens", formatCount(agg.TotalInputTokens)},
			{"Output tokens", formatCount(agg.TotalOutputTokens)},
			{"Total tokens", formatCount(agg.TotalTokens)},
			{"Cost", formatCost(agg.TotalCost, rep.currency)},
			{"Users", formatCount(int64(agg.UniqueUsers))},
			{"Models", formatCount(int64(agg.UniqueModels))},
			{"Requests per user", fmt.Sprintf("%.1f", agg.AvgRequestsPerUser)},
			{"Tokens per request", fmt.Sprintf("%.1f", agg.AvgTokensPerRequest)},
			{"Cost per request", formatCost(agg.AvgCostPerRequest, rep.currency)},
		},
	}))
	if agg.EstimatedRecords > 0 {
		fmt.Fprintln(out, renderNote(fmt.Sprintf("%d records had estimated token counts", agg.EstimatedRecords)))
	}
	return nil
}
