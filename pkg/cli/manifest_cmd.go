package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"bronze-ingest/internal/app"
)

func newManifestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "manifest <table>",
		Short: "Regenerate a table's manifest from its current data files",
		Args:  cobra.ExactArgs(1),
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

			m, err := a.Service.RegenerateManifest(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), m)
			}

			rows := make([][]string, 0, len(m.Files))
			for _, f := range m.Files {
				rows = append(rows, []string{f.Path, strconv.FormatInt(f.SizeBytes, 10), f.DeleteFile})
			}
			printTable(cmd.OutOrStdout(), []string{"PATH", "SIZE", "DELETE FILE"}, rows)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\n%s: %d rows in %d files, written to %s\n",
				m.Table, m.RowCount, len(m.Files), m.Location)
			return nil
		},
	}
}
