package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/minutes-cli/client"
	"github.com/otherjamesbrown/minutes-cli/config"
	mferrors "github.com/otherjamesbrown/minutes-cli/pkg/errors"
	"github.com/otherjamesbrown/minutes-cli/pkg/presenter"
)

// reportedError marks an error the user has already seen as a notice, so
// main exits non-zero without printing it again.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

func reported(err error) error {
	if err == nil {
		return nil
	}
	var r *reportedError
	if errors.As(err, &r) {
		return err
	}
	return &reportedError{err: err}
}

// AlreadyReported reports whether err was shown to the user as a notice.
func AlreadyReported(err error) bool {
	var r *reportedError
	return errors.As(err, &r)
}

func errorMessage(err error) string {
	return mferrors.Message(err)
}

func isNetworkError(err error) bool {
	return mferrors.IsNetworkError(err)
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputYAML writes v as YAML.
func outputYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(v)
}

// resultView is the machine-readable form of an analysis printed by upload,
// record and analyze.
type resultView struct {
	HistoryID  string                 `json:"history_id,omitempty" yaml:"history_id,omitempty"`
	Filename   string                 `json:"filename,omitempty" yaml:"filename,omitempty"`
	Transcript string                 `json:"transcript,omitempty" yaml:"transcript,omitempty"`
	Analysis   *client.AnalysisResult `json:"analysis" yaml:"analysis"`
	Exports    []string               `json:"exports,omitempty" yaml:"exports,omitempty"`
}

// printResult writes the analysis in the configured output format.
func (d *Deps) printResult(cfg *config.CLIConfig, view resultView) error {
	switch cfg.OutputFormat {
	case config.OutputFormatJSON:
		return outputJSON(d.Out, view)
	case config.OutputFormatYAML:
		return outputYAML(d.Out, view)
	}
	if view.Filename != "" {
		fmt.Fprintf(d.Out, "Analysis of %s\n\n", view.Filename)
	}
	if err := presenter.Render(d.Out, view.Analysis, presenter.RenderOptions{
		Styled: d.Styled,
		Width:  d.terminalWidth(),
	}); err != nil {
		return err
	}
	if view.HistoryID != "" {
		fmt.Fprintf(d.Out, "\nSaved to history as %s\n", view.HistoryID)
	}
	for _, path := range view.Exports {
		fmt.Fprintf(d.Out, "Exported %s\n", path)
	}
	return nil
}

func (d *Deps) terminalWidth() int {
	f, ok := d.Out.(*os.File)
	if !ok || !d.Styled {
		return 0
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return 0
	}
	return min(w, 100)
}

// formatBytes renders a byte count for humans.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}

// valueOrDefault returns the value if non-empty, otherwise the default.
func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
