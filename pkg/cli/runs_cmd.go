package cli

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"bronze-ingest/internal/db"
	"bronze-ingest/internal/db/repository"
	"bronze-ingest/internal/domain"
)

func newRunsCmd() *cobra.Command {
	var (
		table string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded table runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return domain.ErrValidation("--limit must be positive")
			}
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if _, err := os.Stat(cfg.RunsDBPath); errors.Is(err, fs.ErrNotExist) {
				return printRuns(cmd, []domain.IngestionRun{})
			}
			ledger, err := db.Open(cmd.Context(), cfg.RunsDBPath, db.ModeRead, 1)
			if err != nil {
				return err
			}
			defer ledger.Close() //nolint:errcheck

			runs, err := repository.NewIngestionRunRepo(ledger).List(cmd.Context(),
				domain.IngestionRunFilter{Table: table, Limit: limit})
			if err != nil {
				return err
			}
			return printRuns(cmd, runs)
		},
	}

	cmd.Flags().StringVar(&table, "table", "", "Only runs of this table")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")
	return cmd
}

func printRuns(cmd *cobra.Command, runs []domain.IngestionRun) error {
	if getOutputFormat(cmd) == "json" {
		return printJSON(cmd.OutOrStdout(), runs)
	}

	columns := []string{"ID", "TABLE", "STATUS", "STAGE", "VERDICT", "ROWS", "STARTED", "ERROR"}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		verdict, written, errText := "", "", ""
		if r.Verdict != nil {
			verdict = string(*r.Verdict)
		}
		if r.RowsWritten != nil {
			written = strconv.FormatInt(*r.RowsWritten, 10)
		}
		if r.ErrorKind != nil {
			errText = *r.ErrorKind
		}
		if r.ManifestWarning != nil && errText == "" {
			errText = domain.KindManifest
		}
		rows = append(rows, []string{
			r.ID, r.Table, string(r.Status), string(r.Stage), verdict, written,
			r.StartedAt.Format(time.RFC3339), errText,
		})
	}
	printTable(cmd.OutOrStdout(), columns, rows)
	return nil
}
