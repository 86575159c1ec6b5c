package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/minutes-cli/pkg/media"
)

// NewUploadCommand creates the upload command.
func NewUploadCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	var (
		kindFlag string
		name     string
		flags    deliveryFlags
	)

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a recording for transcription and analysis",
		Long: fmt.Sprintf(`Upload an audio or video file of a meeting. The server transcribes it and
returns a summary, action items, decisions and next steps.

Audio uploads accept %s.
Video uploads accept %s.
Files must be under 50 MB.

Use "-" to read the file from stdin; --name then gives the filename the
server sees.

Examples:
  minutes upload standup.mp3
  minutes upload --kind video demo.mp4 --export
  cat call.wav | minutes upload - --name call.wav -o json`,
			strings.Join(media.AllowedExtensions(media.KindAudio), ", "),
			strings.Join(media.AllowedExtensions(media.KindVideo), ", ")),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			kind, err := media.ParseKind(kindFlag)
			if err != nil {
				return err
			}

			path := args[0]
			var payload *media.Payload
			if path == "-" {
				if name == "" {
					return fmt.Errorf("--name is required when reading from stdin")
				}
				data, err := io.ReadAll(io.LimitReader(deps.In, media.MaxFileSize+1))
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				payload = media.NewPayload(kind, name, media.DetectMIME(name), data)
			}

			app, err := deps.Connect(ctx)
			if err != nil {
				return err
			}
			store := deps.historyFor(ctx, app, &flags)
			if store != nil {
				defer store.Close()
			}

			label := "Uploading " + filepath.Base(path)
			if payload != nil {
				label = "Uploading " + payload.Name()
			}
			progress := deps.newProgress(ctx, label)
			dash := deps.newDashboard(app, store, progress)

			if payload != nil {
				_, err = dash.SubmitPayload(ctx, payload)
			} else {
				_, err = dash.SubmitFile(ctx, path, kind)
			}
			progress.Finish(err == nil)
			if err != nil {
				return app.finish(ctx, err)
			}
			return deps.deliver(app.Config, dash, &flags)
		},
	}

	cmd.Flags().StringVarP(&kindFlag, "kind", "k", string(media.KindAudio), "Media kind: audio or video")
	cmd.Flags().StringVar(&name, "name", "", "Filename to use when reading from stdin")
	flags.register(cmd)
	return cmd
}
