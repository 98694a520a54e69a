// Package main is the entry point for the bronze binary.
package main

import (
	"os"

	cli "bronze-ingest/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
