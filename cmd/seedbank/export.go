package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"seedbank/internal/config"
	"seedbank/internal/export"
	"seedbank/internal/models"
)

func newExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the saved inventory to an Excel workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := cfg.NewLogger(cmd.ErrOrStderr())
			database := connectDatabase(cmd.Context(), cfg, logger)
			defer database.Close()

			inventory := models.NewInventory(cfg.HistoryLimit)
			if err := newPersister(inventory, cfg, database, logger).restore(cmd.Context()); err != nil {
				return err
			}
			data, err := export.Export(inventory.Catalog())
			if err != nil {
				return fmt.Errorf("building workbook: %w", err)
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("writing workbook: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d records to %s\n", inventory.Catalog().Count(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "seedbank.xlsx", "workbook path")
	return cmd
}
