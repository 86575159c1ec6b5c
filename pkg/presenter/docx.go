package presenter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/docx"

	"github.com/otherjamesbrown/minutes-cli/client"
)

const (
	docxFont     = "Calibri"
	docxFontSize = 11
	docxColor    = "000000"
)

// ExportDocx writes the analysis and transcript as a Word document into dir
// and returns the path. tag is as for Export.
func ExportDocx(result *client.AnalysisResult, transcript, dir, tag string, now time.Time) (string, error) {
	if result == nil {
		return "", fmt.Errorf("no analysis to export")
	}
	doc, err := godocx.NewDocument()
	if err != nil {
		return "", fmt.Errorf("creating document: %w", err)
	}

	addRun(doc.AddParagraph(""), "Meeting Analysis", true, 16)
	addRun(doc.AddParagraph(""), now.Local().Format("Monday, January 2, 2006 15:04"), false, docxFontSize)

	for _, sec := range Sections(result) {
		doc.AddParagraph("")
		if sec.Title == TitleSummary {
			addRun(doc.AddParagraph(""), sec.Title, true, 14)
			addRun(doc.AddParagraph(""), strings.TrimSpace(sec.Items[0]), false, docxFontSize)
			continue
		}
		addRun(doc.AddParagraph(""), fmt.Sprintf("%s (%d)", sec.Title, len(sec.Items)), true, 14)
		for i, item := range sec.Items {
			addRun(doc.AddParagraph(""), fmt.Sprintf("%d. %s", i+1, item), false, docxFontSize)
		}
	}

	if transcript = strings.TrimSpace(transcript); transcript != "" {
		doc.AddParagraph("")
		addRun(doc.AddParagraph(""), "Original Transcript", true, 14)
		for _, para := range strings.Split(transcript, "\n") {
			if para = strings.TrimSpace(para); para != "" {
				addRun(doc.AddParagraph(""), para, false, docxFontSize)
			}
		}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}
	path := filepath.Join(dir, ExportFilename(now, tag, ".docx"))
	if err := doc.SaveTo(path); err != nil {
		return "", fmt.Errorf("writing document: %w", err)
	}
	return path, nil
}

func addRun(p *docx.Paragraph, text string, bold bool, size uint64) {
	run := p.AddText(text).Font(docxFont).Size(size).Color(docxColor)
	if bold {
		run.Bold(true)
	}
}
