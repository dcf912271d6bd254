package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ncecere/usage_console/internal/usage"
)

var flagGroupBy string

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Rank users by request count",
	RunE:  runUsers,
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Rank models by request count",
	RunE:  runModels,
}

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Totals per user, model, day, month or year",
	RunE:  runGroups,
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Totals and averages",
	RunE:  runSummary,
}

func init() {
	groupsCmd.Flags().StringVar(&flagGroupBy, "by", string(usage.DimensionDay), "Grouping dimension")
	rootCmd.AddCommand(summaryCmd, usersCmd, modelsCmd, groupsCmd)
}

func runUsers(cmd *cobra.Command, _ []string) error {
	rep, err := loadReport(cmd.InOrStdin())
	if err != nil {
		return err
	}
	summaries := usage.TopN(usage.SummarizeByUser(rep.records), flagTop)
	fmt.Fprintln(cmd.OutOrStdout(), renderTitle("Top users"))
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(summaryTable(summaries, "User", rep.currency)))
	return nil
}

func runModels(cmd *cobra.Command, _ []string) error {
	rep, err := loadReport(cmd.InOrStdin())
	if err != nil {
		return err
	}
	summaries := usage.TopN(usage.SummarizeByModel(rep.records), flagTop)
	fmt.Fprintln(cmd.OutOrStdout(), renderTitle("Top models"))
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(summaryTable(summaries, "Model", rep.currency)))
	return nil
}

func runGroups(cmd *cobra.Command, _ []string) error {
	dim, err := usage.ParseDimension(flagGroupBy)
	if err != nil {
		return err
	}
	rep, err := loadReport(cmd.InOrStdin())
	if err != nil {
		return err
	}
	groups, err := usage.GroupBy(rep.records, dim, rep.loc)
	if err != nil {
		return err
	}
	t := table{Headers: []string{string(dim), "Requests", "Tokens", "Cost"}}
	for _, key := range usage.SortedKeys(groups) {
		agg := usage.Aggregate(groups[key])
		t.Rows = append(t.Rows, []string{
			key,
			formatCount(agg.TotalRequests),
			formatCount(agg.TotalTokens),
			formatCost(agg.TotalCost, rep.currency),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTitle("Usage by "+string(dim)))
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(t))
	return nil
}

func summaryTable(summaries []usage.Summary, label, currency string) table {
	t := table{Headers: []string{label, "Requests", "Tokens in", "Tokens out", "Cost"}}
	for _, s := range summaries {
		name := s.Key
		if s.DisplayName != "" && s.DisplayName != s.Key {
			name = fmt.Sprintf("%s (%s)", s.DisplayName, s.Key)
		}
		t.Rows = append(t.Rows, []string{
			name,
			formatCount(s.TotalRequests),
			formatCount(s.TotalInputTokens),
			formatCount(s.TotalOutputTokens),
			formatCost(s.TotalCost, currency),
		})
	}
	return t
}
