package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/sxsearch/pkg/present"
)

func newCacheCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the result cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cfg, cleanup, err := g.runtime()
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := rt.Store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), present.FormatStats(stats, cfg.Cache.Backend))
			return nil
		},
	}

	var prefix string
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, _, cleanup, err := g.runtime()
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := rt.Store.Delete(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d cache entries cleared.\n", n)
			return nil
		},
	}
	clearCmd.Flags().StringVar(&prefix, "prefix", "", "only clear keys starting with this prefix (e.g. search/stackoverflow/)")

	var olderThan time.Duration
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete cache entries older than a given age",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, _, cleanup, err := g.runtime()
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := rt.Store.Prune(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d cache entries pruned.\n", n)
			return nil
		},
	}
	pruneCmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "minimum age of entries to delete")

	cmd.AddCommand(statsCmd, clearCmd, pruneCmd)
	return cmd
}

func newJobsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List running background refreshes",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, _, cleanup, err := g.runtime()
			if err != nil {
				return err
			}
			defer cleanup()

			markers, err := rt.Registry.List()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), present.FormatJobs(markers, time.Now()))
			return nil
		},
	}
}

func newQuotaCmd(g *globals) *cobra.Command {
	var (
		days    int
		cleanup time.Duration
	)

	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Show Stack Exchange API quota usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, _, done, err := g.runtime()
			if err != nil {
				return err
			}
			defer done()

			ctx := cmd.Context()
			if cleanup > 0 {
				n, err := rt.Ledger.Cleanup(ctx, time.Now().Add(-cleanup))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d quota records deleted.\n", n)
			}

			latest, err := rt.Ledger.Latest(ctx)
			if err != nil {
				return err
			}
			rows, err := rt.Ledger.Summary(ctx, time.Now().AddDate(0, 0, -days))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), present.FormatQuota(latest, rows))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "days of history to summarise")
	cmd.Flags().DurationVar(&cleanup, "cleanup", 0, "first delete records older than this")
	return cmd
}
