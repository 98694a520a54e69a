package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"bronze-ingest/internal/app"
	"bronze-ingest/internal/domain"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [table...]",
		Short: "Ingest the named tables, or every registry table",
		Long: "Runs one batch: each table is read from raw storage, normalized, probed\n" +
			"and written to DuckLake. A failed table does not stop the others; the\n" +
			"command exits non-zero when any table failed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), app.Deps{Cfg: cfg, Logger: logger})
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			batch, err := a.Service.Run(cmd.Context(), args...)
			if err != nil {
				return err
			}
			if err := printBatch(cmd, batch); err != nil {
				return err
			}
			if batch.FailedCount() > 0 {
				return errTablesFailed
			}
			return nil
		},
	}
}

func printBatch(cmd *cobra.Command, batch *domain.BatchResult) error {
	summary := batch.Summary()
	if getOutputFormat(cmd) == "json" {
		return printJSON(cmd.OutOrStdout(), summary)
	}

	columns := []string{"TABLE", "STATUS", "STAGE", "VERDICT", "ROWS", "DURATION", "DETAIL"}
	rows := make([][]string, 0, len(summary.Runs))
	for _, r := range summary.Runs {
		stage := string(r.Stage)
		if r.FailedStage != "" {
			stage = string(r.FailedStage)
		}
		detail := r.Error
		if detail == "" {
			detail = r.Warning
		}
		rows = append(rows, []string{
			r.Table,
			string(r.Status),
			stage,
			string(r.Verdict),
			strconv.FormatInt(r.RowsWritten, 10),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
			detail,
		})
	}
	printTable(cmd.OutOrStdout(), columns, rows)
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\nbatch %s: %d tables, %d failed\n", summary.BatchID, summary.Tables, summary.Failed)
	return nil
}
