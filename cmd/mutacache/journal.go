package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/revittco/mutacache/internal/config"
	"github.com/revittco/mutacache/internal/store"
)

func newJournalCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the mutation journal",
	}
	cmd.AddCommand(newJournalListCmd(root), newJournalStatsCmd(root), newJournalPruneCmd(root))
	return cmd
}

func newJournalListCmd(root *rootOptions) *cobra.Command {
	var (
		resource, status, mode string
		limit                  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent mutations, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openJournalFromConfig(cmd, root)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			f := store.MutationFilter{Limit: limit}
			if resource != "" {
				f.Resource = &resource
			}
			if status != "" {
				f.Status = &status
			}
			if mode != "" {
				f.Mode = &mode
			}
			entries, total, err := db.QueryMutations(cmd.Context(), f)
			if err != nil {
				return fmt.Errorf("query mutations: %w", err)
			}
			printEntries(cmd.OutOrStdout(), entries)
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d\n", len(entries), total)
			return nil
		},
	}
	cmd.Flags().StringVar(&resource, "resource", "", "Only this resource")
	cmd.Flags().StringVar(&status, "status", "", "Only this status (pending, committed, rolled_back, undone, failed)")
	cmd.Flags().StringVar(&mode, "mode", "", "Only this mode")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries")
	return cmd
}

func newJournalStatsCmd(root *rootOptions) *cobra.Command {
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarise mutation outcomes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openJournalFromConfig(cmd, root)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			now := time.Now().UTC()
			s, err := db.GetMutationStats(cmd.Context(), now.Add(-since), now)
			if err != nil {
				return fmt.Errorf("mutation stats: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Mutations (last %s)\n", since)
			fmt.Fprintf(cmd.OutOrStdout(), "  Total:        %d\n", s.Total)
			fmt.Fprintf(cmd.OutOrStdout(), "  Pending:      %d\n", s.Pending)
			fmt.Fprintf(cmd.OutOrStdout(), "  Committed:    %d\n", s.Committed)
			fmt.Fprintf(cmd.OutOrStdout(), "  Rolled back:  %d\n", s.RolledBack)
			fmt.Fprintf(cmd.OutOrStdout(), "  Undone:       %d\n", s.Undone)
			fmt.Fprintf(cmd.OutOrStdout(), "  Failed:       %d\n", s.Failed)
			fmt.Fprintf(cmd.OutOrStdout(), "  Avg latency:  %.1fms\n", s.AvgLatencyMs)
			return nil
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "Window to summarise")
	return cmd
}

func newJournalPruneCmd(root *rootOptions) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete settled mutations older than a cutoff",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openJournalFromConfig(cmd, root)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			n, err := db.PruneMutations(cmd.Context(), time.Now().UTC().Add(-olderThan))
			if err != nil {
				return fmt.Errorf("prune mutations: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d entries\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "Age cutoff")
	return cmd
}

type journalDB interface {
	store.MutationStore
	Close() error
}

// openJournalFromConfig is swapped in tests.
var openJournalFromConfig = func(cmd *cobra.Command, root *rootOptions) (journalDB, error) {
	cfg, err := config.Load(root.configPath)
	if err != nil {
		return nil, err
	}
	return openJournal(cmd.Context(), cfg.Journal.Path)
}

func printEntries(w io.Writer, entries []store.MutationEntry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tRESOURCE\tOPERATION\tMODE\tSTATUS\tLATENCY\tID")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%dms\t%s\n",
			e.CreatedAt.Format(time.RFC3339), e.Resource, e.Operation, e.Mode, e.Status, e.LatencyMs, e.ID)
	}
	_ = tw.Flush()
}
