package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"mastery-quiz/internal/catalog"
	"mastery-quiz/internal/domain"
)

// NewSeedCmd tops up every topic archive from the built-in templates.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Top up topic archives from built-in templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			if _, err := rt.migrator.Run(cmd.Context()); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			added, err := rt.service.Sync(cmd.Context(), func(p domain.SyncProgress) {
				fmt.Fprintf(out, "%-20s %d/%d\n", p.Topic, p.Current, p.Target)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "added %d questions\n", added)
			return nil
		},
	}
}

// NewStatsCmd prints the dashboard.
func NewStatsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show quiz statistics and archive sizes",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			d, err := rt.service.Dashboard(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "quizzes\t%d\n", d.Stats.TotalQuizzes)
			fmt.Fprintf(w, "average\t%d%%\n", d.Stats.AvgScore)
			fmt.Fprintf(w, "best topic\t%s\n", d.Stats.BestTopic)
			fmt.Fprintf(w, "mastery\t%d\n", d.Stats.Mastery)
			fmt.Fprintf(w, "points\t%d\n", d.Points)
			fmt.Fprintf(w, "archived\t%d\n", d.ArchiveTotal)
			ids := make([]string, 0, len(d.ArchiveCounts))
			for id := range d.ArchiveCounts {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				fmt.Fprintf(w, "  %s\t%d\n", rt.catalog.Title(id), d.ArchiveCounts[id])
			}
			return w.Flush()
		},
	}
}

// NewTopicsCmd lists the catalog; it needs no storage.
func NewTopicsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topics",
		Short: "List quiz topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tDIFFICULTY\tTIME")
			for _, t := range catalog.Default().Topics() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Title, t.Difficulty, t.Time)
			}
			return w.Flush()
		},
	}
}

// NewResetHistoryCmd forgets every seen question.
func NewResetHistoryCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-history",
		Short: "Forget which questions have been seen",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.service.ResetHistory(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "seen history cleared")
			return nil
		},
	}
}

// NewClearArchiveCmd drops one topic archive.
func NewClearArchiveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-archive <topic>",
		Short: "Delete the stored questions of one topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.service.ClearArchive(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "archive %s cleared\n", args[0])
			return nil
		},
	}
}
