package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pario-ai/supportdesk/pkg/cache"
	cachesqlite "github.com/pario-ai/supportdesk/pkg/cache/sqlite"
)

var errNoSnapshot = errors.New("cache.snapshot_path is not set")

func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the persisted query cache",
	}

	// openSnapshot restores the configured snapshot into a fresh cache.
	openSnapshot := func(cmd *cobra.Command) (*cache.QueryCache, string, error) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return nil, "", err
		}
		path := cfg.Cache.SnapshotPath
		if path == "" {
			return nil, "", errNoSnapshot
		}
		c := cache.New(cfg.Cache.MaxSize, cfg.Cache.TTL)
		if err := loadSnapshot(cmd.Context(), path, c); err != nil {
			return nil, "", fmt.Errorf("load snapshot %s: %w", path, err)
		}
		return c, path, nil
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := openSnapshot(cmd)
			if err != nil {
				return err
			}
			st := c.Stats()
			fmt.Printf("Entries:  %d / %d\n", st.Size, st.MaxSize)
			fmt.Printf("Hits:     %d\n", st.Hits)
			fmt.Printf("Misses:   %d\n", st.Misses)
			fmt.Printf("Hit Rate: %.2f%%\n", st.HitRatePercent)
			fmt.Printf("TTL:      %.0fm\n", st.TTLMinutes)
			return nil
		},
	}

	var limit int
	popularCmd := &cobra.Command{
		Use:   "popular",
		Short: "List the most frequently served cached queries",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := openSnapshot(cmd)
			if err != nil {
				return err
			}
			popular := c.Popular(limit)
			if len(popular) == 0 {
				fmt.Println("No cached queries.")
				return nil
			}
			for i, p := range popular {
				fmt.Printf("%3d. %-60s %d hits\n", i+1, p.Query, p.HitCount)
			}
			return nil
		},
	}
	popularCmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of queries to show")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the persisted cache snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			path := cfg.Cache.SnapshotPath
			if path == "" {
				return errNoSnapshot
			}
			if isSQLitePath(path) {
				store, err := cachesqlite.New(path)
				if err != nil {
					return err
				}
				defer func() { _ = store.Close() }()
				if err := store.Clear(cmd.Context()); err != nil {
					return err
				}
			} else if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			fmt.Println("Cache snapshot cleared.")
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.AddCommand(statsCmd, popularCmd, clearCmd)
	return cmd
}
