// Package cli implements the bronze command-line interface.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"bronze-ingest/internal/domain"
)

var (
	version = "dev"
	commit  = "none"
)

// errTablesFailed marks a batch that finished with failed tables. The batch
// summary has already been printed, so Execute only sets the exit code.
var errTablesFailed = errors.New("one or more tables failed")

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errTablesFailed) {
			return 1
		}
		output, _ := rootCmd.PersistentFlags().GetString("output")
		printError(rootCmd.ErrOrStderr(), output, err)
		return 1
	}
	return 0
}

func printError(w io.Writer, output string, err error) {
	if output == "json" {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error": err.Error(),
			"kind":  domain.ErrorKind(err),
		})
		return
	}
	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
}

func newRootCmd() *cobra.Command {
	var (
		output  string
		envFile string
	)

	rootCmd := &cobra.Command{
		Use:           "bronze",
		Short:         "Bronze-layer ingestion into DuckLake",
		Long:          "Loads raw JSON documents from object storage into DuckLake bronze tables.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return validateOutputFormat(output)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before the environment")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newManifestCmd())
	rootCmd.AddCommand(newRunsCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"version": version,
					"commit":  commit,
				})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "bronze version %s (commit: %s)\n", version, commit)
			return nil
		},
	}
}
