// Command ingestor is the document-ingestion pipeline's CLI: poll-once
// runs exactly one cycle and exits, replay re-queues dead-lettered
// documents, and serve runs poll-once on a cron schedule until
// terminated. Grounded on cobra usage elsewhere in the retrieval pack
// (the teacher is an HTTP-only service with no CLI of its own to
// imitate for subcommand structure).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ingestor",
	Short: "Document ingestion pipeline: extract, validate, and file invoices/receipts into a ledger",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
