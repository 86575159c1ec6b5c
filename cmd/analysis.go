package cmd

import (
	"context"
	"errors"
	"sync"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/minutes-cli/config"
	"github.com/otherjamesbrown/minutes-cli/pkg/dashboard"
	"github.com/otherjamesbrown/minutes-cli/pkg/history"
	"github.com/otherjamesbrown/minutes-cli/pkg/logging"
	"github.com/otherjamesbrown/minutes-cli/pkg/presenter"
)

// deliveryFlags are the export flags shared by upload, record and analyze.
type deliveryFlags struct {
	export    bool
	docx      bool
	copy      bool
	exportDir string
	noHistory bool
}

func (f *deliveryFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.export, "export", false, "Write the analysis to meeting-analysis-<date>.json")
	cmd.Flags().BoolVar(&f.docx, "docx", false, "Write the analysis to meeting-analysis-<date>.docx")
	cmd.Flags().BoolVar(&f.copy, "copy", false, "Copy the analysis to the clipboard")
	cmd.Flags().StringVar(&f.exportDir, "export-dir", "", "Directory for exports (default: export_dir or the working directory)")
	cmd.Flags().BoolVar(&f.noHistory, "no-history", false, "Do not save this analysis to history")
}

// openHistory opens the configured history store. History is best-effort:
// a disabled or unreachable store yields nil and the analysis goes ahead.
func (d *Deps) openHistory(ctx context.Context, cfg *config.CLIConfig) history.Store {
	store, err := history.Open(ctx, cfg,
		history.WithLogger(d.logger()),
		history.WithMetrics(d.Metrics),
	)
	if err != nil {
		if !errors.Is(err, history.ErrDisabled) {
			d.logger().Warn("History unavailable", logging.Err(err))
		}
		return nil
	}
	return store
}

// newDashboard wires a dashboard to the app's client, notices and history.
func (d *Deps) newDashboard(app *App, store history.Store, progress presenter.Progress, extra ...dashboard.Option) *dashboard.Dashboard {
	opts := []dashboard.Option{
		dashboard.WithNotifier(app.Notifier),
		dashboard.WithMetrics(app.Metrics),
		dashboard.WithLogger(app.Logger),
		dashboard.WithClock(d.now),
	}
	if store != nil {
		opts = append(opts, dashboard.WithHistory(store))
	}
	if progress != nil {
		opts = append(opts, dashboard.WithProgress(progress.Update))
	}
	return dashboard.New(app.Client, append(opts, extra...)...)
}

// lazyProgress starts its display on the first update, so nothing is drawn
// for uploads rejected before they begin.
type lazyProgress struct {
	start func() presenter.Progress

	mu      sync.Mutex
	current presenter.Progress
}

func (p *lazyProgress) Update(percent int) {
	p.mu.Lock()
	if p.current == nil {
		p.current = p.start()
	}
	cur := p.current
	p.mu.Unlock()
	cur.Update(percent)
}

func (p *lazyProgress) Finish(ok bool) {
	p.mu.Lock()
	cur := p.current
	p.mu.Unlock()
	if cur != nil {
		cur.Finish(ok)
	}
}

// newProgress returns a progress bar on a terminal and percentage lines
// otherwise.
func (d *Deps) newProgress(ctx context.Context, label string) *lazyProgress {
	return &lazyProgress{start: func() presenter.Progress {
		if d.Styled {
			return presenter.StartProgressBar(ctx, d.ErrOut, label)
		}
		return presenter.NewLineProgress(d.ErrOut, label, 10)
	}}
}

// deliver runs the requested exports and prints the result.
func (d *Deps) deliver(cfg *config.CLIConfig, dash *dashboard.Dashboard, flags *deliveryFlags) error {
	snap := dash.Snapshot()
	view := resultView{
		HistoryID:  snap.HistoryID,
		Filename:   snap.Filename,
		Transcript: snap.Transcript,
		Analysis:   snap.Result,
	}
	if cfg.OutputFormat == config.OutputFormatText {
		view.Transcript = ""
	}

	dir := flags.exportDir
	if dir == "" && (flags.export || flags.docx) {
		var err error
		if dir, err = cfg.GetExportDir(); err != nil {
			return err
		}
	}
	if flags.export {
		path, err := dash.Export(dir)
		if err != nil {
			return reported(err)
		}
		view.Exports = append(view.Exports, path)
	}
	if flags.docx {
		path, err := dash.ExportDocx(dir)
		if err != nil {
			return reported(err)
		}
		view.Exports = append(view.Exports, path)
	}
	if flags.copy {
		if err := dash.CopyResult(); err != nil {
			d.logger().Warn("Copy to clipboard failed", logging.Err(err))
		}
	}
	return d.printResult(cfg, view)
}

// historyFor opens history unless --no-history was given.
func (d *Deps) historyFor(ctx context.Context, app *App, flags *deliveryFlags) history.Store {
	if flags.noHistory {
		return nil
	}
	return d.openHistory(ctx, app.Config)
}
