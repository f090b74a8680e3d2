package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/supportdesk/pkg/feedback"
)

func newFeedbackCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Analyze collected answer feedback",
	}

	openStore := func() (*feedback.Store, func(), error) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return nil, nil, err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return nil, nil, err
		}
		// The CLI prunes explicitly through "cleanup".
		fc := cfg.Feedback
		fc.RetentionDays = 0
		store, err := feedback.New(fc, logger.Named("feedback"))
		if err != nil {
			return nil, nil, fmt.Errorf("init feedback: %w", err)
		}
		return store, func() { _ = store.Close(); _ = logger.Sync() }, nil
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show feedback statistics and suggestions",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, done, err := openStore()
			if err != nil {
				return err
			}
			defer done()

			st, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Total:     %d\n", st.TotalFeedback)
			fmt.Printf("Average:   %.2f / 5\n", st.AverageRating)
			fmt.Printf("Positive:  %.1f%%\n", st.PositiveRate)
			fmt.Printf("Negative:  %.1f%%\n", st.NegativeRate)
			fmt.Printf("Comments:  %d\n", st.WithComments)
			for r := feedback.MaxRating; r >= feedback.MinRating; r-- {
				fmt.Printf("  %d: %d\n", r, st.RatingDistribution[r])
			}

			suggestions, err := store.Suggestions(cmd.Context())
			if err != nil {
				return err
			}
			if len(suggestions) > 0 {
				fmt.Println("\nSuggestions:")
				for _, s := range suggestions {
					fmt.Printf("  - %s\n", s)
				}
			}
			return nil
		},
	}

	var output string
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Write a JSON feedback report",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, done, err := openStore()
			if err != nil {
				return err
			}
			defer done()

			report, err := store.Report(cmd.Context())
			if err != nil {
				return err
			}

			w := os.Stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if output != "" {
				fmt.Fprintf(os.Stderr, "Report written to %s\n", output)
			}
			return nil
		},
	}
	reportCmd.Flags().StringVarP(&output, "output", "o", "", "write the report to a file instead of stdout")

	var days int
	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete feedback older than the given number of days",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return fmt.Errorf("--days must be positive, got %d", days)
			}
			store, done, err := openStore()
			if err != nil {
				return err
			}
			defer done()

			n, err := store.Cleanup(cmd.Context(), time.Duration(days)*24*time.Hour)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d feedback entries older than %d days.\n", n, days)
			return nil
		},
	}
	cleanupCmd.Flags().IntVar(&days, "days", 90, "age threshold in days")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.AddCommand(statsCmd, reportCmd, cleanupCmd)
	return cmd
}
