package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/minutes-cli/config"
	"github.com/otherjamesbrown/minutes-cli/pkg/dashboard"
	mferrors "github.com/otherjamesbrown/minutes-cli/pkg/errors"
	"github.com/otherjamesbrown/minutes-cli/pkg/logging"
	"github.com/otherjamesbrown/minutes-cli/pkg/media"
	"github.com/otherjamesbrown/minutes-cli/pkg/presenter"
	"github.com/otherjamesbrown/minutes-cli/pkg/watch"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	var (
		kindFlag    string
		concurrency int
		existing    bool
		flags       deliveryFlags
	)

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Analyze recordings as they appear in a folder",
		Long: `Watch a folder and upload every new audio (or video) file dropped into it.
Each file is analyzed like "minutes upload" and saved to history. With
--export (or --docx) every analysis gets its own file, named after the
recording: meeting-analysis-<date>-<file>.json.

The folder defaults to watch.dir from the configuration. Files are picked up
once they have stopped changing for half a second. Press Ctrl+C to stop;
uploads already running are allowed to finish. Press Ctrl+C again to abort
them.

Watching stops when the server rejects the session.

Examples:
  minutes watch ~/Recordings
  minutes watch --kind video --concurrency 1 ~/Movies/Meetings
  minutes watch --existing --export`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := deps.Connect(cmd.Context())
			if err != nil {
				return err
			}
			cfg := app.Config

			dir := cfg.Watch.Dir
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				return errors.New("no folder to watch: pass one or set watch.dir")
			}
			if dir, err = config.ExpandPath(dir); err != nil {
				return err
			}
			if !cmd.Flags().Changed("kind") && cfg.Watch.Kind != "" {
				kindFlag = cfg.Watch.Kind
			}
			kind, err := media.ParseKind(kindFlag)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("concurrency") && cfg.Watch.Concurrency > 0 {
				concurrency = cfg.Watch.Concurrency
			}

			store := deps.historyFor(cmd.Context(), app, &flags)
			if store != nil {
				defer store.Close()
			}

			ctx, cancel := context.WithCancelCause(cmd.Context())
			defer cancel(nil)

			var outMu sync.Mutex
			handler := func(ctx context.Context, path string) error {
				dash := deps.newDashboard(app, store, nil, dashboard.WithExportTag(presenter.ExportTag(path)))
				_, err := dash.SubmitFile(ctx, path, kind)
				if err != nil {
					if mferrors.IsAuthRequired(err) {
						cancel(err)
					}
					return err
				}
				outMu.Lock()
				defer outMu.Unlock()
				return deps.deliver(cfg, dash, &flags)
			}

			w, err := watch.New(dir, kind, handler,
				watch.WithConcurrency(concurrency),
				watch.WithExisting(existing),
				watch.WithLogger(app.Logger),
				watch.WithMetrics(app.Metrics),
				watch.WithTracer(deps.Tracer),
			)
			if err != nil {
				return err
			}
			defer w.Close()

			fmt.Fprintf(deps.ErrOut, "Watching %s for %s files. Press Ctrl+C to stop.\n", w.Dir(), kind)
			err = w.Run(ctx)
			if cause := context.Cause(ctx); mferrors.IsAuthRequired(cause) {
				return app.finish(cmd.Context(), cause)
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			app.Logger.Info("Stopped watching", logging.F("dir", filepath.Clean(w.Dir())))
			return app.finish(cmd.Context(), nil)
		},
	}

	cmd.Flags().StringVarP(&kindFlag, "kind", "k", config.DefaultWatchKind, "Media kind of watched files: audio or video")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", watch.DefaultConcurrency, "Maximum uploads at once")
	cmd.Flags().BoolVar(&existing, "existing", false, "Also analyze files already in the folder")
	flags.register(cmd)
	return cmd
}
