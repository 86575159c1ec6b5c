package presenter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/otherjamesbrown/minutes-cli/client"
)

// ExportPrefix starts every export file name.
const ExportPrefix = "meeting-analysis-"

// ExportRecord is the on-disk shape of an exported analysis.
type ExportRecord struct {
	Timestamp          string   `json:"timestamp"`
	Summary            string   `json:"summary"`
	ActionItems        []string `json:"actionItems"`
	Decisions          []string `json:"decisions"`
	NextSteps          []string `json:"nextSteps"`
	OriginalTranscript string   `json:"originalTranscript"`
}

// NewExportRecord builds the record for result and the transcript it came from.
func NewExportRecord(result *client.AnalysisResult, transcript string, now time.Time) ExportRecord {
	return ExportRecord{
		Timestamp:          now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Summary:            result.Summary,
		ActionItems:        nonNil(result.ActionItems),
		Decisions:          nonNil(result.Decisions),
		NextSteps:          nonNil(result.NextSteps),
		OriginalTranscript: transcript,
	}
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

// ExportFilename returns meeting-analysis-<YYYY-MM-DD>[-<tag>]<ext> for the
// UTC date of now.
func ExportFilename(now time.Time, tag, ext string) string {
	name := ExportPrefix + now.UTC().Format("2006-01-02")
	if tag != "" {
		name += "-" + tag
	}
	return name + ext
}

// ExportTag turns a source file name into a tag for ExportFilename, keeping
// letters, digits, '_' and '-' and replacing everything else with '-'.
func ExportTag(source string) string {
	base := filepath.Base(source)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	tag := strings.Map(func(r rune) rune {
		switch {
		case r == '_' || r == '-', unicode.IsLetter(r), unicode.IsDigit(r):
			return r
		}
		return '-'
	}, base)
	return strings.Trim(tag, "-")
}

// Export writes the analysis as indented JSON into dir and returns the path.
// A same-day export with the same tag overwrites the previous one.
func Export(result *client.AnalysisResult, transcript, dir, tag string, now time.Time) (string, error) {
	if result == nil {
		return "", fmt.Errorf("no analysis to export")
	}
	data, err := json.MarshalIndent(NewExportRecord(result, transcript, now), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding export: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}
	path := filepath.Join(dir, ExportFilename(now, tag, ".json"))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing export: %w", err)
	}
	return path, nil
}
