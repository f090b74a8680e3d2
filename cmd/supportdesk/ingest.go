package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/supportdesk/pkg/ingest"
	"github.com/pario-ai/supportdesk/pkg/retriever/keyword"
	"github.com/pario-ai/supportdesk/pkg/retriever/vector"
)

func newIngestCmd() *cobra.Command {
	var (
		configPath  string
		reset       bool
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Chunk the docs directory and load it into the retriever",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			rc := cfg.Retriever
			start := time.Now()

			if rc.Type != "vector" {
				// The keyword index lives in memory and is rebuilt on every start.
				r, err := keyword.FromDir(rc.DocsDir, rc.ChunkSize, rc.ChunkOverlap)
				if err != nil {
					return err
				}
				fmt.Printf("Indexed %d chunks from %s in %s (keyword index is not persisted).\n",
					r.Len(), rc.DocsDir, time.Since(start).Round(time.Millisecond))
				return nil
			}

			docs, err := ingest.LoadDir(rc.DocsDir, rc.ChunkSize, rc.ChunkOverlap)
			if err != nil {
				return err
			}
			r, err := vector.Open(rc.PersistDir, rc.Collection, vector.EmbeddingFunc(rc.Embedding))
			if err != nil {
				return err
			}
			if reset {
				if err := r.Reset(); err != nil {
					return fmt.Errorf("reset collection: %w", err)
				}
			}
			if err := r.Index(cmd.Context(), docs, concurrency); err != nil {
				return err
			}
			fmt.Printf("Indexed %d chunks from %s into %q (%d total) in %s.\n",
				len(docs), rc.DocsDir, rc.Collection, r.Len(), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().BoolVar(&reset, "reset", false, "drop the existing collection first")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "parallel embedding requests")
	return cmd
}
