package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleExport = `{"usage":[
  {"type":"CompletionModelUsage","model":"gpt-4o","technicalUserId":"alice","requests":3,"tokensIn":1200,"tokensOut":300,"year":2025,"month":3,"day":1},
  {"type":"CompletionModelUsage","model":"gpt-4o","technicalUserId":"bob","requests":1,"tokensIn":100,"tokensOut":50,"year":2025,"month":3,"day":2},
  {"type":"EmbeddingModelUsage","model":"text-embedding-3-small","technicalUserId":"alice","requests":5,"tokensIn":5000,"year":2025,"month":3,"day":5}
]}`

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	base := []string{"--config", "", "--input", "-", "--from", "", "--to", "", "--model", "", "--user", "", "--top", "10", "--tz", "UTC"}
	if len(args) > 0 {
		rootCmd.SetArgs(append(append([]string{args[0]}, base...), args[1:]...))
	} else {
		rootCmd.SetArgs(base)
	}
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSummaryFromStdin(t *testing.T) {
	out, err := runCLI(t, sampleExport, "summary")
	require.NoError(t, err)
	require.Contains(t, out, "Usage summary")
	require.Contains(t, out, "Requests")
	require.Contains(t, out, "9")
	require.Contains(t, out, "6,650")
	require.Contains(t, out, "EUR")
}

func TestUsersRespectsTopAndFilters(t *testing.T) {
	out, err := runCLI(t, sampleExport, "users", "--top", "1")
	require.NoError(t, err)
	require.Contains(t, out, "alice")
	require.NotContains(t, out, "bob")

	out, err = runCLI(t, sampleExport, "models", "--user", "bob")
	require.NoError(t, err)
	require.Contains(t, out, "gpt-4o")
	require.NotContains(t, out, "text-embedding-3-small")
}

func TestGroupsByDayWithDateRange(t *testing.T) {
	out, err := runCLI(t, sampleExport, "groups", "--by", "day", "--from", "2025-03-02", "--to", "2025-03-31")
	require.NoError(t, err)
	require.Contains(t, out, "2025-03-02")
	require.Contains(t, out, "2025-03-05")
	require.NotContains(t, out, "2025-03-01")

	_, err = runCLI(t, sampleExport, "groups", "--by", "week")
	require.Error(t, err)
}

func TestInputFileAndConfigPricing(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "usage.json")
	require.NoError(t, os.WriteFile(input, []byte(sampleExport), 0o600))
	cfgPath := filepath.Join(dir, "console.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("pricing:\n  markup: 0\n  currency: usd\n"), 0o600))

	out, err := runCLI(t, "", "summary", "--input", input, "--config", cfgPath)
	require.NoError(t, err)
	require.Contains(t, out, "USD")

	_, err = runCLI(t, "", "summary", "--input", filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}

func TestEmptyRangeRendersNote(t *testing.T) {
	out, err := runCLI(t, sampleExport, "groups", "--by", "model", "--from", "2030-01-01")
	require.NoError(t, err)
	require.Contains(t, out, "no usage in range")
}
