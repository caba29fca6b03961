package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"speechcoach/pkg/history"

	"github.com/spf13/cobra"
)

var (
	exportFormat string
	exportOutput string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Review, delete and export past takes",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List takes, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open(cmd.Context(), &cfg.History, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.List(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintln(out, dimStyle.Render("No takes yet. Run 'speechcoach record' to make one."))
			return nil
		}

		fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%d takes", len(entries))))
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDATE\tDURATION\tSCORE\tWORDS")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%ds\t%s\t%d\n",
				e.ID,
				e.Date.Local().Format("2006-01-02 15:04"),
				e.Duration,
				e.Analysis.ScoreText(),
				e.Analysis.Metrics.WordCount,
			)
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one take",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open(cmd.Context(), &cfg.History, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		entry, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render(entry.Date.Local().Format("Mon Jan 2 2006 15:04")))
		printEntry(cmd.OutOrStdout(), entry)
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one take",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open(cmd.Context(), &cfg.History, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Remove(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("Deleted "+args[0]))
		return nil
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all takes as JSON or YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		exporter, err := history.NewExporter(exportFormat)
		if err != nil {
			return err
		}

		store, err := history.Open(cmd.Context(), &cfg.History, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.List(cmd.Context())
		if err != nil {
			return err
		}

		if exportOutput == "" || exportOutput == "-" {
			return exporter.Export(entries, cmd.OutOrStdout())
		}

		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("failed to create export file: %w", err)
		}
		if err := exporter.Export(entries, f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), dimStyle.Render(fmt.Sprintf("Exported %d takes to %s", len(entries), exportOutput)))
		return nil
	},
}

func init() {
	historyExportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "Export format (json, yaml)")
	historyExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default stdout)")

	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd, historyExportCmd)
}
