package main

import (
	"context"
	"fmt"
	"os"

	"bollette/internal/cli"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	if err := cli.RunLedgerWorker(context.Background(), ""); err != nil {
		fmt.Fprintln(os.Stderr, "ledger-worker:", err)
		os.Exit(1)
	}
}
