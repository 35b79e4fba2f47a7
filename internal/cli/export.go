package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"bollette/internal/export"
	"bollette/internal/log"
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringP("owner", "o", "", "Owner whose bills are exported")
	exportCmd.Flags().String("out", "bollette.xlsx", "Workbook file to write")
	_ = exportCmd.MarkFlagRequired("owner")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write an owner's bills and payments to an xlsx workbook",
	Long: `Export writes a workbook with a Summary sheet (current bucket totals),
a Bills sheet and a Payments sheet for one owner.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	owner, _ := cmd.Flags().GetString("owner")
	out, _ := cmd.Flags().GetString("out")
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

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}

	exporter := export.NewExporter(repo, newBillService(repo, nil, cfg))
	if err := exporter.Write(cmd.Context(), owner, f); err != nil {
		f.Close()
		os.Remove(out)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", out, err)
	}

	logger.Info("Workbook written", log.FieldOwnerID, owner, "file", out)
	return nil
}
