package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

const defaultConfigPath = "supportdesk.yaml"

func main() {
	root := &cobra.Command{
		Use:          "supportdesk",
		Short:        "Supportdesk: retrieval-backed customer support answers with escalation",
		Version:      version,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newQueryCmd(),
		newCacheCmd(),
		newFeedbackCmd(),
		newIngestCmd(),
		newMCPCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
