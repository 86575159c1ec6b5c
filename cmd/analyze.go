package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/minutes-cli/pkg/textenc"
)

// maxTranscriptBytes bounds how much transcript is read from stdin.
const maxTranscriptBytes = 10 * 1024 * 1024

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	var (
		file    string
		charset string
		flags   deliveryFlags
	)

	cmd := &cobra.Command{
		Use:   "analyze [transcript]",
		Short: "Analyze a meeting transcript",
		Long: `Send a meeting transcript for analysis. The transcript comes from the
argument, from --file, or from stdin when neither is given. Transcripts must
be at least 50 characters.

Files in legacy encodings are converted to UTF-8 first; --charset names the
encoding, and "auto" detects UTF-8, UTF-16 with a byte order mark, or falls
back to Windows-1252.

Examples:
  minutes analyze --file standup.txt
  minutes analyze --file notes.txt --charset iso-8859-1 --export
  pbpaste | minutes analyze`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			text, err := deps.readTranscript(args, file, charset)
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
			dash := deps.newDashboard(app, store, nil)

			if _, err := dash.AnalyzeTranscript(ctx, text); err != nil {
				return app.finish(ctx, err)
			}
			return deps.deliver(app.Config, dash, &flags)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the transcript from a file")
	cmd.Flags().StringVar(&charset, "charset", textenc.Auto,
		fmt.Sprintf("Transcript file encoding (%s)", strings.Join(textenc.Charsets(), ", ")))
	flags.register(cmd)
	return cmd
}

func (d *Deps) readTranscript(args []string, file, charset string) (string, error) {
	switch {
	case len(args) == 1 && file != "":
		return "", errors.New("give the transcript as an argument or with --file, not both")
	case len(args) == 1:
		return args[0], nil
	case file != "":
		return textenc.ReadFile(file, charset)
	}
	if d.Interactive {
		fmt.Fprintln(d.ErrOut, "Paste the transcript, then press Ctrl+D.")
	}
	data, err := io.ReadAll(io.LimitReader(d.In, maxTranscriptBytes))
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return textenc.Decode(data, charset)
}
