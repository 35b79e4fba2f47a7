package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"bollette/internal/core"
)

func init() {
	rootCmd.AddCommand(summaryCmd)

	summaryCmd.Flags().StringP("owner", "o", "", "Owner whose bills are summarized")
	summaryCmd.Flags().IntP("days", "d", 0, "Due-soon horizon in days (defaults to DUE_SOON_DAYS)")
	summaryCmd.Flags().Bool("json", false, "Print the summary as JSON")
	_ = summaryCmd.MarkFlagRequired("owner")
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the paid, upcoming and due-soon totals for an owner",
	Args:  cobra.NoArgs,
	RunE:  runSummary,
}

func runSummary(cmd *cobra.Command, args []string) error {
	owner, _ := cmd.Flags().GetString("owner")
	days, _ := cmd.Flags().GetInt("days")
	asJSON, _ := cmd.Flags().GetBool("json")
	if strings.TrimSpace(owner) == "" {
		return errors.New("--owner must not be empty")
	}

	cfg, err := LoadAndValidateConfig(configPath)
	if err != nil {
		return err
	}
	logger := SetupLogger(cfg.LogLevel)

	repo, err := InitSQLite(logger, cfg.SQLiteDBPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc := newBillService(repo, nil, cfg)
	sum, err := svc.GetSummary(cmd.Context(), owner, nil, days)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}
	return printSummary(cmd.OutOrStdout(), sum)
}

func printSummary(out io.Writer, sum core.Summary) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "BUCKET\tCOUNT\tAMOUNT\t")
	for _, row := range []struct {
		name   string
		totals core.BucketTotals
	}{
		{"paid", sum.Paid},
		{"upcoming", sum.Upcoming},
		{"due soon", sum.DueSoon},
	} {
		fmt.Fprintf(tw, "%s\t%d\t%s\t\n", row.name, row.totals.Count, row.totals.Amount)
	}
	return tw.Flush()
}
