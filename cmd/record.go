package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/minutes-cli/config"
	"github.com/otherjamesbrown/minutes-cli/pkg/dashboard"
	"github.com/otherjamesbrown/minutes-cli/pkg/media"
)

// fakeRecordingLength is how much audio `record --fake` produces.
const fakeRecordingLength = 3 * time.Second

// NewRecordCommand creates the record command.
func NewRecordCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	var (
		device      string
		maxDuration time.Duration
		fake        bool
		flags       deliveryFlags
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a meeting from the microphone and analyze it",
		Long: `Record from the microphone until you press Enter (or until --max-duration
elapses), then upload the recording as FLAC and print the analysis.

Ctrl+C discards the recording.

Examples:
  minutes record
  minutes record --device "USB Microphone" --export
  minutes record --max-duration 30m
  minutes record devices`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			actx, err := deps.audioContext(fake)
			if err != nil {
				return err
			}
			defer actx.Close()

			dev, err := media.FindDevice(actx, device)
			if err != nil {
				return err
			}

			app, err := deps.Connect(ctx)
			if err != nil {
				return err
			}
			store := deps.historyFor(ctx, app, &flags)
			if store != nil {
				defer store.Close()
			}

			recorder := media.NewRecorder(actx,
				media.WithDevice(dev),
				media.WithClock(deps.now),
				media.WithRecorderLogger(app.Logger),
			)
			progress := deps.newProgress(ctx, "Uploading recording")
			dash := deps.newDashboard(app, store, progress, dashboard.WithRecorder(recorder))

			if err := dash.StartRecording(ctx); err != nil {
				return reported(err)
			}
			deps.waitForStop(ctx, maxDuration)

			_, err = dash.StopRecording(ctx)
			progress.Finish(err == nil)
			if err != nil {
				return app.finish(ctx, err)
			}
			return deps.deliver(app.Config, dash, &flags)
		},
	}

	cmd.Flags().StringVarP(&device, "device", "d", "", "Capture device name (default: system default)")
	cmd.Flags().DurationVar(&maxDuration, "max-duration", 0, "Stop recording automatically after this long")
	cmd.Flags().BoolVar(&fake, "fake", false, "Record a generated test tone instead of the microphone")
	flags.register(cmd)

	cmd.AddCommand(newRecordDevicesCommand(deps))
	return cmd
}

func (d *Deps) audioContext(fake bool) (media.AudioContext, error) {
	if fake || d.NewAudioContext == nil {
		return media.NewFakeAudioContext(media.FakeTone(fakeRecordingLength)), nil
	}
	actx, err := d.NewAudioContext()
	if err != nil {
		return nil, fmt.Errorf("opening audio system: %w", err)
	}
	return actx, nil
}

// waitForStop blocks until the user presses Enter, maxDuration elapses or
// ctx is canceled. Without a terminal and with a limit set, only the limit
// and ctx stop the recording.
func (d *Deps) waitForStop(ctx context.Context, maxDuration time.Duration) {
	fmt.Fprintln(d.ErrOut, "Recording... press Enter to stop.")

	// A line read after the limit fires is kept for the next prompt.
	var enter <-chan inputLine
	if d.Interactive || maxDuration <= 0 {
		enter = d.lines().next()
	}
	var limit <-chan time.Time
	if maxDuration > 0 {
		timer := time.NewTimer(maxDuration)
		defer timer.Stop()
		limit = timer.C
	}

	select {
	case <-enter:
		d.lines().consumed(enter)
	case <-limit:
		fmt.Fprintf(d.ErrOut, "Reached the %s limit.\n", maxDuration)
	case <-ctx.Done():
	}
}

func newRecordDevicesCommand(deps *Deps) *cobra.Command {
	var fake bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List capture devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actx, err := deps.audioContext(fake)
			if err != nil {
				return err
			}
			defer actx.Close()

			devices, err := actx.Devices()
			if err != nil {
				return fmt.Errorf("listing devices: %w", err)
			}
			cfg, err := deps.config()
			if err != nil {
				return err
			}
			switch cfg.OutputFormat {
			case config.OutputFormatJSON:
				return outputJSON(deps.Out, devices)
			case config.OutputFormatYAML:
				return outputYAML(deps.Out, devices)
			}
			if len(devices) == 0 {
				fmt.Fprintln(deps.Out, "No capture devices found.")
				return nil
			}
			tw := tabwriter.NewWriter(deps.Out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tID")
			for _, dev := range devices {
				fmt.Fprintf(tw, "%s\t%s\n", dev.Name, dev.ID)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&fake, "fake", false, "List the test tone device")
	return cmd
}
