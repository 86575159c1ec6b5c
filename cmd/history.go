package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/minutes-cli/config"
	"github.com/otherjamesbrown/minutes-cli/pkg/history"
	"github.com/otherjamesbrown/minutes-cli/pkg/presenter"
)

// NewHistoryCommand creates the history command group.
func NewHistoryCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse past analyses",
		Long: `List, show, re-export and clear the analyses saved by upload, record,
analyze and watch.

History is kept in ~/.minutes/history by default. Set history.backend to
redis or postgres to share it between machines, or to none to disable it.`,
	}

	cmd.AddCommand(newHistoryListCommand(deps))
	cmd.AddCommand(newHistoryShowCommand(deps))
	cmd.AddCommand(newHistoryExportCommand(deps))
	cmd.AddCommand(newHistoryClearCommand(deps))
	return cmd
}

// withHistory opens the configured store for the duration of fn.
func (d *Deps) withHistory(ctx context.Context, fn func(*config.CLIConfig, history.Store) error) error {
	cfg, err := d.config()
	if err != nil {
		return err
	}
	store, err := history.Open(ctx, cfg,
		history.WithLogger(d.logger()),
		history.WithMetrics(d.Metrics),
	)
	if errors.Is(err, history.ErrDisabled) {
		return errors.New("history is disabled (history.backend is none)")
	}
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cfg, store)
}

// historyRow is the list form of an entry.
type historyRow struct {
	ID          string `json:"id" yaml:"id"`
	CreatedAt   string `json:"created_at" yaml:"created_at"`
	Source      string `json:"source" yaml:"source"`
	Filename    string `json:"filename,omitempty" yaml:"filename,omitempty"`
	Summary     string `json:"summary" yaml:"summary"`
	ActionItems int    `json:"action_items" yaml:"action_items"`
}

func newHistoryListCommand(deps *Deps) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved analyses, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return deps.withHistory(cmd.Context(), func(cfg *config.CLIConfig, store history.Store) error {
				n := limit
				if !cmd.Flags().Changed("limit") {
					n = cfg.History.Limit
				}
				entries, err := store.List(cmd.Context(), n)
				if err != nil {
					return err
				}

				rows := make([]historyRow, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, historyRow{
						ID:          e.ID,
						CreatedAt:   e.CreatedAt.Local().Format("2006-01-02 15:04"),
						Source:      string(e.Source),
						Filename:    e.Filename,
						Summary:     e.Analysis.Summary,
						ActionItems: len(e.Analysis.ActionItems),
					})
				}
				switch cfg.OutputFormat {
				case config.OutputFormatJSON:
					return outputJSON(deps.Out, rows)
				case config.OutputFormatYAML:
					return outputYAML(deps.Out, rows)
				}

				if len(rows) == 0 {
					fmt.Fprintln(deps.Out, "No analyses in history.")
					return nil
				}
				tw := tabwriter.NewWriter(deps.Out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCREATED\tSOURCE\tNAME\tSUMMARY")
				for _, r := range rows {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						r.ID, r.CreatedAt, r.Source, valueOrDefault(r.Filename, "-"), truncate(r.Summary, 60))
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", config.DefaultHistoryLimit, "Maximum number of entries (0 for all)")
	return cmd
}

func newHistoryShowCommand(deps *Deps) *cobra.Command {
	var showTranscript bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a saved analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return deps.withHistory(cmd.Context(), func(cfg *config.CLIConfig, store history.Store) error {
				entry, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return historyLookupError(args[0], err)
				}
				switch cfg.OutputFormat {
				case config.OutputFormatJSON:
					return outputJSON(deps.Out, entry)
				case config.OutputFormatYAML:
					return outputYAML(deps.Out, entry)
				}

				fmt.Fprintf(deps.Out, "%s  %s  %s\n\n", entry.ID, entry.CreatedAt.Local().Format("2006-01-02 15:04"),
					valueOrDefault(entry.Filename, string(entry.Source)))
				analysis := entry.Analysis
				if err := presenter.Render(deps.Out, &analysis, presenter.RenderOptions{
					Styled: deps.Styled,
					Width:  deps.terminalWidth(),
				}); err != nil {
					return err
				}
				if showTranscript && entry.Transcript != "" {
					fmt.Fprintf(deps.Out, "\nTranscript\n\n%s\n", entry.Transcript)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&showTranscript, "transcript", false, "Also print the transcript")
	return cmd
}

func newHistoryExportCommand(deps *Deps) *cobra.Command {
	var (
		dir  string
		docx bool
	)

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a saved analysis",
		Long: `Write a saved analysis to meeting-analysis-<date>.json (or .docx with
--docx), dated today.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return deps.withHistory(cmd.Context(), func(cfg *config.CLIConfig, store history.Store) error {
				entry, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return historyLookupError(args[0], err)
				}
				if dir == "" {
					if dir, err = cfg.GetExportDir(); err != nil {
						return err
					}
				}
				write := presenter.Export
				if docx {
					write = presenter.ExportDocx
				}
				analysis := entry.Analysis
				path, err := write(&analysis, entry.Transcript, dir, "", deps.now())
				if err != nil {
					return err
				}
				fmt.Fprintf(deps.Out, "Exported %s\n", path)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&dir, "export-dir", "", "Directory for the export (default: export_dir or the working directory)")
	cmd.Flags().BoolVar(&docx, "docx", false, "Write a Word document instead of JSON")
	return cmd
}

func newHistoryClearCommand(deps *Deps) *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every saved analysis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				if !deps.Interactive {
					return errors.New("refusing to clear history without --confirm")
				}
				answer, err := deps.readLine("Delete all saved analyses? [y/N] ")
				if err != nil {
					return err
				}
				if a := strings.ToLower(answer); a != "y" && a != "yes" {
					fmt.Fprintln(deps.Out, "Aborted.")
					return nil
				}
			}
			return deps.withHistory(cmd.Context(), func(_ *config.CLIConfig, store history.Store) error {
				if err := store.Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(deps.Out, "History cleared.")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&confirm, "confirm", false, "Clear without asking")
	return cmd
}

func historyLookupError(id string, err error) error {
	if errors.Is(err, history.ErrNotFound) {
		return fmt.Errorf("no analysis with id %s in history", id)
	}
	return err
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
