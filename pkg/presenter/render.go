// Package presenter turns an analysis into terminal output and export files.
package presenter

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/otherjamesbrown/minutes-cli/client"
)

// Section titles, in render order.
const (
	TitleSummary     = "Meeting Summary"
	TitleActionItems = "Action Items"
	TitleDecisions   = "Key Decisions"
	TitleNextSteps   = "Next Steps"
)

// RenderOptions controls terminal rendering.
type RenderOptions struct {
	// Styled enables colors; leave false when the output is not a terminal.
	Styled bool
	// Width wraps long lines when positive.
	Width int
}

// Section is one titled block of the analysis.
type Section struct {
	Title string
	Items []string
}

// Sections returns the analysis in display order. The summary is always
// present; list sections are omitted when empty.
func Sections(result *client.AnalysisResult) []Section {
	if result == nil {
		return nil
	}
	sections := []Section{{Title: TitleSummary, Items: []string{result.Summary}}}
	for _, s := range []Section{
		{Title: TitleActionItems, Items: result.ActionItems},
		{Title: TitleDecisions, Items: result.Decisions},
		{Title: TitleNextSteps, Items: result.NextSteps},
	} {
		if len(s.Items) > 0 {
			sections = append(sections, s)
		}
	}
	return sections
}

// RenderString renders result for a terminal. Sections are separated by a
// blank line.
func RenderString(result *client.AnalysisResult, opts RenderOptions) string {
	s := newStyles(opts.Styled)
	if result == nil {
		return s.empty.Render("No analysis available.")
	}

	var blocks []string
	for _, sec := range Sections(result) {
		var lines []string
		if sec.Title == TitleSummary {
			lines = append(lines, s.heading.Render(sec.Title))
			text := strings.TrimSpace(sec.Items[0])
			if text == "" {
				lines = append(lines, "  "+s.empty.Render("(no summary)"))
			} else {
				lines = append(lines, indent(wrap(text, opts.Width-2), "  "))
			}
		} else {
			lines = append(lines, s.heading.Render(fmt.Sprintf("%s (%d)", sec.Title, len(sec.Items))))
			for n, item := range sec.Items {
				prefix := fmt.Sprintf("  %d. ", n+1)
				pad := strings.Repeat(" ", len(prefix))
				for j, l := range strings.Split(wrap(item, opts.Width-len(prefix)), "\n") {
					if j == 0 {
						lines = append(lines, s.index.Render(prefix)+s.item.Render(l))
					} else {
						lines = append(lines, pad+s.item.Render(l))
					}
				}
			}
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

// Render writes the analysis to w.
func Render(w io.Writer, result *client.AnalysisResult, opts RenderOptions) error {
	_, err := fmt.Fprintln(w, RenderString(result, opts))
	return err
}

func indent(text, pad string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = pad + l
	}
	return strings.Join(lines, "\n")
}

// wrap word-wraps text to width columns when width is positive.
func wrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	var (
		out  []string
		line string
	)
	for _, word := range strings.Fields(text) {
		switch {
		case line == "":
			line = word
		case lipgloss.Width(line)+1+lipgloss.Width(word) > width:
			out = append(out, line)
			line = word
		default:
			line += " " + word
		}
	}
	if line != "" {
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
