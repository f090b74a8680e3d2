package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pario-ai/supportdesk/pkg/models"
)

func newQueryCmd() *cobra.Command {
	var (
		configPath  string
		sessionID   string
		topK        int
		useWorkflow bool
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a single support question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.svc.Query(cmd.Context(), models.QueryRequest{
				Query:       strings.Join(args, " "),
				SessionID:   sessionID,
				TopK:        topK,
				UseWorkflow: useWorkflow,
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			printResponse(resp)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().StringVar(&sessionID, "session", "", "continue an existing session")
	cmd.Flags().IntVar(&topK, "top-k", 0, "documents to retrieve (default from config)")
	cmd.Flags().BoolVar(&useWorkflow, "workflow", true, "run the multi-step workflow")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full response as JSON")
	return cmd
}

func printResponse(resp models.QueryResponse) {
	fmt.Println(resp.Answer)
	fmt.Println()
	fmt.Printf("Session:    %s\n", resp.SessionID)
	fmt.Printf("Confidence: %.2f\n", resp.Confidence)
	fmt.Printf("Escalate:   %t\n", resp.ShouldEscalate)
	fmt.Printf("Cached:     %t\n", resp.Cached)
	for i, d := range resp.Documents {
		fmt.Printf("  [%d] %s\n", i+1, d.Source)
	}
	if resp.Ticket != nil {
		fmt.Printf("Ticket:     %s (%s)\n", resp.Ticket.Subject, resp.Ticket.Reason)
	}
}
